package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/alfredjeanlab/refguard/internal/client"
	"github.com/alfredjeanlab/refguard/internal/model"
	"github.com/alfredjeanlab/refguard/internal/ui"
)

const timeLayout = "2006-01-02 15:04:05"

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func printDocument(doc *model.Document) error {
	if jsonOutput {
		return printJSON(doc)
	}
	writeDocument(os.Stdout, doc)
	return nil
}

// writeDocument prints the id, timestamps and each top-level field sorted by
// name, nested values rendered as compact JSON.
func writeDocument(w io.Writer, doc *model.Document) {
	fmt.Fprintf(w, "%-12s%s\n", "ID:", ui.RenderAccent(doc.ID))
	if !doc.CreatedAt.IsZero() {
		fmt.Fprintf(w, "%-12s%s\n", "Created At:", doc.CreatedAt.Format(timeLayout))
	}
	if !doc.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "%-12s%s\n", "Updated At:", doc.UpdatedAt.Format(timeLayout))
	}
	keys := make([]string, 0, len(doc.Fields))
	for k := range doc.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %s\n", k, formatValue(doc.Fields[k]))
	}
}

func printDocumentList(docs []*model.Document) error {
	if jsonOutput {
		return printJSON(docs)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFIELDS")
	for _, d := range docs {
		fmt.Fprintf(w, "%s\t%s\n", d.ID, truncate(formatValue(d.Fields), 70))
	}
	w.Flush()
	fmt.Printf("\n%d documents\n", len(docs))
	return nil
}

func printModels(models []client.ModelInfo) error {
	if jsonOutput {
		return printJSON(models)
	}
	writeModels(os.Stdout, models)
	return nil
}

// writeModels lists every model and its strict reference fields in
// declaration order.
func writeModels(w io.Writer, models []client.ModelInfo) {
	for _, m := range models {
		fmt.Fprintln(w, ui.RenderAccent(m.Name))
		if len(m.StrictRefs) == 0 {
			fmt.Fprintln(w, ui.RenderMuted("  (no strict references)"))
			continue
		}
		for _, r := range m.StrictRefs {
			target := r.RefModel
			if r.Array {
				target = "[" + target + "]"
			}
			fmt.Fprintf(w, "  %s -> %s\n", r.Path, target)
		}
	}
}

func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// describeError reports a write that failed its reference check as
// rejected, and anything else as a plain failure.
func describeError(action string, err error) error {
	if errors.Is(err, model.ErrMissingReference) {
		return fmt.Errorf("%s rejected: %w", action, err)
	}
	return fmt.Errorf("%s: %w", action, err)
}
