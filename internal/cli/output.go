package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// printer writes user-facing command output. Color is used only when the
// destination is a terminal and NO_COLOR is unset.
type printer struct {
	out io.Writer

	green  *color.Color
	red    *color.Color
	yellow *color.Color
	faint  *color.Color
}

func newPrinter(out io.Writer) *printer {
	p := &printer{
		out:    out,
		green:  color.New(color.FgGreen),
		red:    color.New(color.FgRed),
		yellow: color.New(color.FgYellow),
		faint:  color.New(color.Faint),
	}
	enable := useColor(out)
	for _, c := range []*color.Color{p.green, p.red, p.yellow, p.faint} {
		if enable {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func useColor(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *printer) line(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *printer) ok(format string, args ...any) {
	fmt.Fprintln(p.out, p.green.Sprint("✅ "+fmt.Sprintf(format, args...)))
}

func (p *printer) fail(format string, args ...any) {
	fmt.Fprintln(p.out, p.red.Sprint("❌ "+fmt.Sprintf(format, args...)))
}

func (p *printer) warn(format string, args ...any) {
	fmt.Fprintln(p.out, p.yellow.Sprint("⚠️  "+fmt.Sprintf(format, args...)))
}

func (p *printer) mark(ok bool) string {
	if ok {
		return p.green.Sprint("✅")
	}
	return p.red.Sprint("❌")
}
