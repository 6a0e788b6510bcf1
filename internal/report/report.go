// Package report renders human-readable views of descriptor sets.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"

	"symtrace/internal/config"
	"symtrace/internal/descriptor"
)

// Printer writes summary and diff reports.
type Printer struct {
	w     io.Writer
	color bool
	limit int
}

// NewPrinter creates a printer writing to w. Limit caps how many symbols a
// summary lists; zero shows all.
func NewPrinter(w io.Writer, cfg config.ReportConfig) *Printer {
	return &Printer{
		w:     w,
		color: cfg.Color,
		limit: cfg.Limit,
	}
}

func (p *Printer) paint(c color.Color, s string) string {
	if !p.color {
		return s
	}
	return c.Render(s)
}

// header prints a boxed title.
func (p *Printer) header(format string, args ...interface{}) {
	title := fmt.Sprintf(format, args...)
	width := runewidth.StringWidth(title) + 4
	fmt.Fprintln(p.w, strings.Repeat("=", width))
	fmt.Fprintf(p.w, "  %s\n", title)
	fmt.Fprintln(p.w, strings.Repeat("=", width))
}

// section prints a section header.
func (p *Printer) section(title string) {
	fmt.Fprintf(p.w, "[%s]\n", title)
	fmt.Fprintln(p.w, strings.Repeat("-", runewidth.StringWidth(title)+2))
}

// Summary renders symbol totals and the per-symbol member listing.
func (p *Printer) Summary(set *descriptor.Set) {
	p.header("Access Descriptor Summary")
	fmt.Fprintln(p.w)

	p.section("Totals")
	fmt.Fprintf(p.w, "  Symbols: %d\n", set.Len())
	fmt.Fprintf(p.w, "  Members: %d\n", set.MemberCount())

	if set.Len() == 0 {
		return
	}

	syms := set.Symbols()
	shown := syms
	if p.limit > 0 && len(syms) > p.limit {
		shown = syms[:p.limit]
	}

	// Align the member counts past the widest symbol name.
	nameWidth := 0
	for _, sym := range shown {
		if w := runewidth.StringWidth(sym); w > nameWidth {
			nameWidth = w
		}
	}

	fmt.Fprintln(p.w)
	p.section("Symbols")
	for _, sym := range shown {
		d, _ := set.Get(sym)
		pad := strings.Repeat(" ", nameWidth-runewidth.StringWidth(sym)+2)
		fmt.Fprintf(p.w, "  %s%s%s\n", p.paint(color.OpBold, sym), pad, memberWord(d.MemberCount()))
		for _, m := range d.Members() {
			fmt.Fprintf(p.w, "    - %s\n", m.Signature())
		}
	}

	if rest := len(syms) - len(shown); rest > 0 {
		fmt.Fprintf(p.w, "  ... and %s\n", symbolWord(rest))
	}
}

// Diff renders a computed diff, additions in green and removals in red.
func (p *Printer) Diff(d Diff) {
	p.header("Descriptor Diff")
	fmt.Fprintln(p.w)

	if d.Empty() {
		fmt.Fprintln(p.w, "  No differences.")
		return
	}

	if len(d.Added) > 0 {
		p.section(fmt.Sprintf("Added Symbols (%d)", len(d.Added)))
		for _, sym := range d.Added {
			fmt.Fprintf(p.w, "  %s\n", p.paint(color.FgGreen, "+ "+sym))
		}
		fmt.Fprintln(p.w)
	}

	if len(d.Removed) > 0 {
		p.section(fmt.Sprintf("Removed Symbols (%d)", len(d.Removed)))
		for _, sym := range d.Removed {
			fmt.Fprintf(p.w, "  %s\n", p.paint(color.FgRed, "- "+sym))
		}
		fmt.Fprintln(p.w)
	}

	if len(d.Changed) > 0 {
		p.section(fmt.Sprintf("Changed Symbols (%d)", len(d.Changed)))
		for _, delta := range d.Changed {
			fmt.Fprintf(p.w, "  %s\n", p.paint(color.OpBold, delta.Symbol))
			for _, sig := range delta.AddedMembers {
				fmt.Fprintf(p.w, "    %s\n", p.paint(color.FgGreen, "+ "+sig))
			}
			for _, sig := range delta.RemovedMembers {
				fmt.Fprintf(p.w, "    %s\n", p.paint(color.FgRed, "- "+sig))
			}
		}
	}
}

func memberWord(n int) string {
	if n == 1 {
		return "1 member"
	}
	return fmt.Sprintf("%d members", n)
}

func symbolWord(n int) string {
	if n == 1 {
		return "1 more symbol"
	}
	return fmt.Sprintf("%d more symbols", n)
}
