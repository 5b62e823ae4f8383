package issue

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Reporter renders Issues the way the source-language compiler renders
// CompilerError: a colored "level[code]: message" header followed by an
// optional "--> where" location line and indented notes.
type Reporter struct {
	out io.Writer
}

func NewReporter(out io.Writer) *Reporter { return &Reporter{out: out} }

func (r *Reporter) Render(i Issue) {
	levelColor := r.levelColor(i.Level)
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	var b strings.Builder
	if i.Code != "" {
		fmt.Fprintf(&b, "%s[%s]: %s\n", levelColor(string(i.Level)), i.Code, bold(i.Message))
	} else {
		fmt.Fprintf(&b, "%s: %s\n", levelColor(string(i.Level)), bold(i.Message))
	}
	if i.Where != "" {
		fmt.Fprintf(&b, "  %s %s\n", dim("-->"), i.Where)
	}
	for _, n := range i.Notes {
		fmt.Fprintf(&b, "  %s %s\n", dim("note:"), n)
	}
	fmt.Fprint(r.out, b.String())
}

func (r *Reporter) RenderAll(issues []Issue) {
	for _, i := range issues {
		r.Render(i)
	}
}

func (r *Reporter) levelColor(l Level) func(a ...interface{}) string {
	switch l {
	case Error:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case Warning:
		return color.New(color.FgYellow, color.Bold).SprintFunc()
	default:
		return color.New(color.FgCyan).SprintFunc()
	}
}
