package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/refguard/internal/client"
	"github.com/alfredjeanlab/refguard/internal/config"
	"github.com/alfredjeanlab/refguard/internal/refcheck"
)

var modelsCmd = &cobra.Command{
	Use:     "models",
	Short:   "List the server's models and their strict references",
	GroupID: "schema",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		models, err := rgClient.ListModels(context.Background())
		if err != nil {
			return fmt.Errorf("listing models: %w", err)
		}
		return printModels(models)
	},
}

var schemaCmd = &cobra.Command{
	Use:               "schema <file>",
	Short:             "Check a schema file and show the references it enforces",
	GroupID:           "schema",
	Args:              cobra.ExactArgs(1),
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := config.LoadSchemaFile(args[0])
		if err != nil {
			return err
		}
		models, err := analyzeSchema(f)
		if err != nil {
			return err
		}
		return printModels(models)
	},
}

// analyzeSchema reports the strict references of every model in f. Under
// model scope, models without strict_refs enforce nothing.
func analyzeSchema(f *config.SchemaFile) ([]client.ModelInfo, error) {
	out := make([]client.ModelInfo, 0, len(f.Models))
	for _, mc := range f.Models {
		s, err := mc.Schema()
		if err != nil {
			return nil, err
		}
		info := client.ModelInfo{Name: mc.Name, StrictRefs: []client.RefInfo{}}
		if f.Refs.Scope == config.ScopeGlobal || mc.StrictRefs {
			for _, fk := range refcheck.ForeignKeyFields(s) {
				info.StrictRefs = append(info.StrictRefs, client.RefInfo{
					Path:     fk.Path,
					Array:    fk.Array,
					RefModel: fk.Ref.DisplayName(),
				})
			}
		}
		out = append(out, info)
	}
	return out, nil
}
