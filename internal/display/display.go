package display

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

const defaultWordWrap = 80

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#8BC34A"))

	subtleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFC107"))

	chapterStyle = lipgloss.NewStyle().
			Bold(true).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(lipgloss.Color("#cccccc"))
)

// Displayer writes chapters and wizard chrome to a terminal. Markdown is
// rendered with glamour unless the displayer is plain.
type Displayer struct {
	out      io.Writer
	renderer *glamour.TermRenderer
	plain    bool
}

type Option func(*Displayer)

// WithPlain disables styling and markdown rendering.
func WithPlain(plain bool) Option {
	return func(d *Displayer) {
		d.plain = plain
	}
}

func New(out io.Writer, opts ...Option) *Displayer {
	d := &Displayer{
		out:   out,
		plain: !IsTerminal(out),
	}
	for _, opt := range opts {
		opt(d)
	}

	if !d.plain {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(defaultWordWrap),
		)
		if err == nil {
			d.renderer = r
		} else {
			d.plain = true
		}
	}
	return d
}

func (d *Displayer) Plain() bool {
	return d.plain
}

// Markdown renders text as markdown, falling back to the raw text.
func (d *Displayer) Markdown(text string) error {
	if d.renderer != nil {
		if out, err := d.renderer.Render(text); err == nil {
			_, err = fmt.Fprint(d.out, out)
			return err
		}
	}
	_, err := fmt.Fprintln(d.out, strings.TrimRight(text, "\n"))
	return err
}

func (d *Displayer) Chapter(number int, topic, content string) error {
	heading := fmt.Sprintf("Chapter %d", number)
	if topic != "" {
		heading += ": " + topic
	}
	fmt.Fprintln(d.out, d.style(chapterStyle, heading))
	fmt.Fprintln(d.out)
	return d.Markdown(content)
}

func (d *Displayer) Title(text string) {
	fmt.Fprintln(d.out, d.style(titleStyle, text))
}

func (d *Displayer) Subtle(text string) {
	fmt.Fprintln(d.out, d.style(subtleStyle, text))
}

func (d *Displayer) Warn(text string) {
	fmt.Fprintln(d.out, d.style(warnStyle, text))
}

func (d *Displayer) style(s lipgloss.Style, text string) string {
	if d.plain {
		return text
	}
	return s.Render(text)
}

// IsTerminal reports whether w is an interactive terminal that styling
// should be applied to.
func IsTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
