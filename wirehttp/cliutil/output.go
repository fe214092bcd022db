package cliutil

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"
)

var colorEnabled atomic.Bool

func init() {
	_, noColor := os.LookupEnv("NO_COLOR")
	colorEnabled.Store(!noColor && term.IsTerminal(int(os.Stdout.Fd())))
}

// SetColor forces colored output on or off.
func SetColor(enabled bool) { colorEnabled.Store(enabled) }

// ColorEnabled reports whether output is colored.
func ColorEnabled() bool { return colorEnabled.Load() }

func paint(colors text.Colors, s string) string {
	if !colorEnabled.Load() {
		return s
	}
	return colors.Sprint(s)
}

func Bold(s string) string    { return paint(text.Colors{text.Bold}, s) }
func ID(s string) string      { return paint(text.Colors{text.FgCyan}, s) }
func Error(s string) string   { return paint(text.Colors{text.FgRed, text.Bold}, s) }
func Success(s string) string { return paint(text.Colors{text.FgGreen}, s) }
func Faint(s string) string   { return paint(text.Colors{text.Faint}, s) }

// NewTable returns a table writer that renders to w.
func NewTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	if colorEnabled.Load() {
		t.SetStyle(table.StyleLight)
		t.Style().Format.Header = text.FormatDefault
		t.Style().Color.Header = text.Colors{text.Bold}
	} else {
		t.SetStyle(table.StyleDefault)
	}
	return t
}

// StatusColors returns the colors for an HTTP status code.
func StatusColors(code int) text.Colors {
	switch {
	case code >= 500:
		return text.Colors{text.FgRed}
	case code >= 400:
		return text.Colors{text.FgYellow}
	case code >= 300:
		return text.Colors{text.FgCyan}
	case code >= 200:
		return text.Colors{text.FgGreen}
	default:
		return nil
	}
}

// StatusRowPainter colors each row by the HTTP status in column col.
func StatusRowPainter(col int) table.RowPainter {
	return func(row table.Row) text.Colors {
		if !colorEnabled.Load() || col >= len(row) {
			return nil
		}
		code, ok := row[col].(int)
		if !ok {
			return nil
		}
		return StatusColors(code)
	}
}

// Summary prints a count line such as "3 exchanges".
func Summary(w io.Writer, n int, singular, plural string) {
	noun := plural
	if n == 1 {
		noun = singular
	}
	_, _ = fmt.Fprintf(w, "\n%s\n", Faint(fmt.Sprintf("%d %s", n, noun)))
}

// NoResults prints a message for an empty listing.
func NoResults(w io.Writer, msg string) {
	_, _ = fmt.Fprintln(w, Faint(msg))
}

// Hint prints a follow-up suggestion.
func Hint(w io.Writer, msg string) {
	_, _ = fmt.Fprintf(w, "%s\n", Faint(msg))
}

// HintCommand prints a labelled command the user can run next.
func HintCommand(w io.Writer, label, command string) {
	_, _ = fmt.Fprintf(w, "%s: %s\n", Faint(label), Bold(command))
}
