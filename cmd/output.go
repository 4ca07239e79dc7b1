package cmd

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
)

// stdout is where reports are printed.
var stdout io.Writer = os.Stdout

// output is embedded by report commands printing either markdown or JSON.
type output struct {
	json bool
}

func (o *output) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&o.json, "json", false, "Print the JSON payload instead of a markdown report")
}

// print writes v as indented JSON with -json, the markdown report otherwise.
func (o *output) print(v any, markdown func() string) error {
	if o.json {
		return printJSON(v)
	}
	printMarkdown(markdown())
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printMarkdown renders md for the terminal, or prints it as is if it cannot.
func printMarkdown(md string) {
	fmt.Fprint(stdout, renderMarkdown(md))
}

func renderMarkdown(md string) string {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(120))
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
