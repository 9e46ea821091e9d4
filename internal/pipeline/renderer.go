package pipeline

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"github.com/ppiankov/citeaudit/internal/model"
	"golang.org/x/term"
)

const (
	defaultWidth   = 100
	maxListedFails = 10
)

// Renderer prints run summaries to the console
type Renderer struct {
	out   io.Writer
	color bool
	width int
}

// NewRenderer creates a renderer. Color and terminal width are only used
// when out is a terminal.
func NewRenderer(out io.Writer, useColor bool) *Renderer {
	r := &Renderer{out: out, width: defaultWidth}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		r.color = useColor
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 40 {
			r.width = w
		}
	}
	return r
}

func (r *Renderer) paint(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if r.color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

func (r *Renderer) verdictColor(v model.Verdict) *color.Color {
	switch v {
	case model.VerdictPass:
		return r.paint(color.FgGreen)
	case model.VerdictUnsupportedFail:
		return r.paint(color.FgYellow)
	default:
		return r.paint(color.FgRed)
	}
}

// RenderSummary prints document counts, verdict counts and the first failing claims
func (r *Renderer) RenderSummary(rep *Report) {
	bold := r.paint(color.Bold)

	if rep.Reviews > 0 || rep.Sources > 0 {
		line := fmt.Sprintf("%d review(s), %d source(s)", rep.Reviews, rep.Sources)
		if n := len(rep.Failures); n > 0 {
			line += r.paint(color.FgRed).Sprintf(" (%d extraction failure(s))", n)
		}
		fmt.Fprintln(r.out, bold.Sprint("Documents: ")+line)
	}
	if rep.Claims > 0 {
		fmt.Fprintf(r.out, "%s%d\n", bold.Sprint("Claims: "), rep.Claims)
	}

	if len(rep.Adjudicated) > 0 {
		counts := make(map[model.Verdict]int)
		for _, ac := range rep.Adjudicated {
			counts[ac.Adjudication.Verdict]++
		}
		fmt.Fprintln(r.out, bold.Sprint("Verdicts:"))
		for _, v := range []model.Verdict{model.VerdictPass, model.VerdictUnsupportedFail, model.VerdictUnresolvedFail} {
			label := runewidth.FillRight(string(v), 18)
			fmt.Fprintf(r.out, "  %s %d\n", r.verdictColor(v).Sprint(label), counts[v])
		}
	}

	if len(rep.Rewrites) > 0 {
		proposed := 0
		for _, rw := range rep.Rewrites {
			if !rw.NoRewrite {
				proposed++
			}
		}
		fmt.Fprintf(r.out, "%s%d (%d proposed, %d no-rewrite)\n",
			bold.Sprint("Rewrites: "), len(rep.Rewrites), proposed, len(rep.Rewrites)-proposed)
		r.renderFailures(rep.Rewrites)
	}

	if rep.OutputDir != "" {
		fmt.Fprintf(r.out, "%s%s\n", bold.Sprint("Outputs: "), rep.OutputDir)
	}
}

func (r *Renderer) renderFailures(rewrites []model.Rewrite) {
	fmt.Fprintln(r.out)
	excerpt := (r.width - 24) / 2
	if excerpt < 20 {
		excerpt = 20
	}

	for i, rw := range rewrites {
		if i == maxListedFails {
			fmt.Fprintf(r.out, "  ... %d more in %s\n", len(rewrites)-maxListedFails, "rewrites.csv")
			break
		}
		proposal := rw.Proposed
		if rw.NoRewrite {
			proposal = rw.Marker
		}
		label := runewidth.FillRight(string(rw.Verdict), 18)
		fmt.Fprintf(r.out, "  %s %s\n", r.verdictColor(rw.Verdict).Sprint(label), truncate(rw.Original, excerpt*2))
		fmt.Fprintf(r.out, "  %s -> %s\n", strings.Repeat(" ", 18), r.paint(color.Faint).Sprint(truncate(proposal, excerpt*2)))
	}
}

func truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	return runewidth.Truncate(s, width, "...")
}
