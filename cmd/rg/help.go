package main

import (
	"regexp"
	"strings"
	"text/template"

	"github.com/alfredjeanlab/refguard/internal/ui"
	"github.com/spf13/cobra"
)

// Command listings show each command with the arguments it requires, so the
// root help tells at a glance which calls need a model, an id or a file.

// rePlaceholder matches "<model>", "<id>..." and bracketed optional parts.
var rePlaceholder = regexp.MustCompile(`<[a-z]+>(?:\.\.\.)?|\[[^\]]*\]`)

func init() {
	cobra.AddTemplateFuncs(template.FuncMap{
		"heading":     ui.RenderAccent,
		"muted":       ui.RenderMuted,
		"highlight":   highlightArgs,
		"commandLine": commandLine,
	})
}

const usageTemplate = `{{heading "Usage:"}}{{if .Runnable}}
  {{highlight .UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} <command>{{end}}{{if .HasExample}}

{{heading "Examples:"}}
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}{{range $group := .Groups}}

{{heading $group.Title}}{{range $.Commands}}{{if and (eq .GroupID $group.ID) .IsAvailableCommand}}
  {{commandLine .}}{{end}}{{end}}{{end}}{{if not .AllChildCommandsHaveGroup}}

{{heading "Additional Commands:"}}{{range .Commands}}{{if and (eq .GroupID "") (or .IsAvailableCommand (eq .Name "help"))}}
  {{commandLine .}}{{end}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

{{heading "Flags:"}}
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

{{heading "Global Flags:"}}
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableSubCommands}}

{{muted (printf "Use \"%s <command> --help\" for more about a command." .CommandPath)}}{{end}}
`

// synopsis is the command name followed by its required arguments. Optional
// parts of Use are left to the command's own help.
func synopsis(c *cobra.Command) string {
	parts := strings.Fields(c.Use)
	if len(parts) == 0 {
		return ""
	}
	out := parts[:1]
	for _, p := range parts[1:] {
		if strings.HasPrefix(p, "<") {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// commandLine renders one row of a command listing, padded against the
// synopses of its siblings.
func commandLine(c *cobra.Command) string {
	syn := synopsis(c)
	width := len(syn)
	if p := c.Parent(); p != nil {
		for _, sib := range p.Commands() {
			if sib.IsAvailableCommand() {
				width = max(width, len(synopsis(sib)))
			}
		}
	}
	name, args, _ := strings.Cut(syn, " ")
	line := ui.RenderCommand(name)
	if args != "" {
		line += " " + highlightArgs(args)
	}
	return line + strings.Repeat(" ", width-len(syn)+3) + c.Short
}

// highlightArgs colors required placeholders in the accent color and
// optional bracketed parts muted.
func highlightArgs(s string) string {
	return rePlaceholder.ReplaceAllStringFunc(s, func(m string) string {
		if strings.HasPrefix(m, "[") {
			return ui.RenderMuted(m)
		}
		return ui.RenderAccent(m)
	})
}
