package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgCyan)
	chainColor   = color.New(color.Faint)
)

// Pretty writes one line per diagnostic:
//
//	<SEV> <CODE> <subject>: <message>
//	        chain: A -> B -> A
//
// Color is controlled globally through color.NoColor, which the CLI
// sets from the terminal check and the --color flag.
func Pretty(w io.Writer, r *Report) {
	for _, d := range r.Items() {
		sev := severityColor(d.Severity).Sprint(d.Severity.String())
		if d.Subject != "" {
			fmt.Fprintf(w, "%s %s %s: %s\n", sev, d.Code, d.Subject, d.Message)
		} else {
			fmt.Fprintf(w, "%s %s: %s\n", sev, d.Code, d.Message)
		}
		if len(d.Chain) > 1 {
			fmt.Fprintf(w, "        %s\n", chainColor.Sprint("chain: "+strings.Join(d.Chain, " -> ")))
		}
	}
}

func severityColor(s Severity) *color.Color {
	switch s {
	case SevError:
		return errorColor
	case SevWarning:
		return warningColor
	}
	return infoColor
}
