package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/refguard/internal/client"
	"github.com/alfredjeanlab/refguard/internal/config"
	refsync "github.com/alfredjeanlab/refguard/internal/sync"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Download a JSONL snapshot of every collection",
	GroupID: "system",
	Args:    cobra.NoArgs,
	// The export stream is only served over HTTP, whatever --transport says.
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")
		var w io.Writer = os.Stdout
		if out != "" && out != "-" {
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}
		c := client.NewHTTPClient(httpURL, authToken)
		if err := c.Export(context.Background(), w); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load a JSONL snapshot straight into the configured store",
	Long: "Restore documents from an export into the store selected by REFGUARD_STORE. " +
		"Documents whose id already exists are skipped. References are not checked: " +
		"a snapshot is assumed to be consistent with itself.",
	GroupID:           "system",
	Args:              cobra.ExactArgs(1),
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		ctx := context.Background()
		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := refsync.ImportJSONL(ctx, st, f)
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}
		logger.Info("import complete", "file", args[0], "store", cfg.Store, "documents", n)
		if jsonOutput {
			return printJSON(map[string]int{"imported": n})
		}
		fmt.Printf("Imported %d documents\n", n)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "-", "write to file instead of stdout")
}
