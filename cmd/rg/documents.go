package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/refguard/internal/ui"
)

var createCmd = &cobra.Command{
	Use:     "create <model> [-f key=value ...]",
	Short:   "Create a document",
	GroupID: "documents",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pairs, _ := cmd.Flags().GetStringArray("field")
		fields, err := parseFields(pairs)
		if err != nil {
			return err
		}
		if id, _ := cmd.Flags().GetString("id"); id != "" {
			fields["_id"] = id
		}

		doc, err := rgClient.CreateDocument(context.Background(), args[0], fields)
		if err != nil {
			return describeError("create", err)
		}
		if !jsonOutput {
			fmt.Println(ui.RenderOK("Created"), args[0], doc.ID)
		}
		return printDocument(doc)
	},
}

var getCmd = &cobra.Command{
	Use:     "get <model> <id>",
	Short:   "Show a document",
	GroupID: "documents",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := rgClient.GetDocument(context.Background(), args[0], args[1])
		if err != nil {
			return describeError("get", err)
		}
		return printDocument(doc)
	},
}

var listCmd = &cobra.Command{
	Use:     "list <model>",
	Short:   "List documents of a model",
	GroupID: "documents",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		docs, err := rgClient.ListDocuments(context.Background(), args[0])
		if err != nil {
			return describeError("list", err)
		}
		return printDocumentList(docs)
	},
}

var saveCmd = &cobra.Command{
	Use:     "save <model> <id> [-f key=value ...]",
	Short:   "Replace a document's fields",
	Long:    "Replace every field of an existing document. Fields not given are removed; only references whose values changed are checked.",
	GroupID: "documents",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		pairs, _ := cmd.Flags().GetStringArray("field")
		fields, err := parseFields(pairs)
		if err != nil {
			return err
		}
		doc, err := rgClient.SaveDocument(context.Background(), args[0], args[1], fields)
		if err != nil {
			return describeError("save", err)
		}
		if !jsonOutput {
			fmt.Println(ui.RenderOK("Saved"), args[0], doc.ID)
		}
		return printDocument(doc)
	},
}

var updateCmd = &cobra.Command{
	Use:     "update <model> <id> [--set k=v] [--push k=v] [--inc k=n]",
	Short:   "Apply a partial update to a document",
	GroupID: "documents",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		set, _ := cmd.Flags().GetStringArray("set")
		push, _ := cmd.Flags().GetStringArray("push")
		inc, _ := cmd.Flags().GetStringArray("inc")
		upd, err := buildUpdate(set, push, inc)
		if err != nil {
			return err
		}

		doc, err := rgClient.UpdateDocument(context.Background(), args[0], args[1], upd)
		if err != nil {
			return describeError("update", err)
		}
		if !jsonOutput {
			fmt.Println(ui.RenderOK("Updated"), args[0], doc.ID)
		}
		return printDocument(doc)
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <model> <id>...",
	Short:   "Delete documents",
	GroupID: "documents",
	Args:    cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, id := range args[1:] {
			if err := rgClient.DeleteDocument(context.Background(), args[0], id); err != nil {
				return describeError("delete "+id, err)
			}
			if !jsonOutput {
				fmt.Println(ui.RenderOK("Deleted"), args[0], id)
			}
		}
		return nil
	},
}

func init() {
	createCmd.Flags().StringArrayP("field", "f", nil, "field value (key=value, repeatable; JSON values accepted)")
	createCmd.Flags().String("id", "", "explicit document id (default: generated)")

	saveCmd.Flags().StringArrayP("field", "f", nil, "field value (key=value, repeatable; JSON values accepted)")

	updateCmd.Flags().StringArray("set", nil, "set a field (key=value, repeatable)")
	updateCmd.Flags().StringArray("push", nil, "append to an array field (key=value, repeatable)")
	updateCmd.Flags().StringArray("inc", nil, "increment a numeric field (key=n, repeatable)")
}
