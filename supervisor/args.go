package supervisor

import (
	"fmt"
	"strings"
	"text/template"
)

// ArgsData is the data available to argument templates.
type ArgsData struct {
	ImageDir  string
	OutputDir string
}

// ExpandArgs renders each argument as a text/template against data.
// Unknown fields are an error.
func ExpandArgs(args []string, data ArgsData) ([]string, error) {
	out := make([]string, 0, len(args))
	for i, arg := range args {
		if !strings.Contains(arg, "{{") {
			out = append(out, arg)
			continue
		}
		tmpl, err := template.New(fmt.Sprintf("arg%d", i)).Option("missingkey=error").Parse(arg)
		if err != nil {
			return nil, fmt.Errorf("parse arg %q: %w", arg, err)
		}
		var sb strings.Builder
		if err := tmpl.Execute(&sb, data); err != nil {
			return nil, fmt.Errorf("expand arg %q: %w", arg, err)
		}
		out = append(out, sb.String())
	}
	return out, nil
}
