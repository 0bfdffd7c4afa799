package wizard

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/manash/novelgen/internal/display"
	"github.com/manash/novelgen/internal/session"
	"github.com/manash/novelgen/pkg/models"
)

var ErrInputClosed = errors.New("input closed before the step was complete")

// Prompter asks the step 1 and step 2 questions over a line based stream.
// Invalid answers are reported and asked again.
type Prompter struct {
	scanner *bufio.Scanner
	out     io.Writer
	display *display.Displayer
}

func NewPrompter(in io.Reader, out io.Writer, d *display.Displayer) *Prompter {
	if d == nil {
		d = display.New(out)
	}
	return &Prompter{
		scanner: bufio.NewScanner(in),
		out:     out,
		display: d,
	}
}

// Scanner exposes the underlying line reader so a follow-up loop can keep
// reading from the same buffered stream.
func (p *Prompter) Scanner() *bufio.Scanner {
	return p.scanner
}

func (p *Prompter) Header(step Step) {
	p.display.Title(fmt.Sprintf("Step %d of 3: %s", int(step), step))
}

func (p *Prompter) AskFormat(current *session.Record) (FormatInput, error) {
	p.Header(StepFormat)

	var in FormatInput
	for {
		answer, err := p.ask("Format (story or novel)", current.Format.String())
		if err != nil {
			return in, err
		}
		if _, err := models.ParseStoryFormat(answer); err != nil {
			p.display.Warn(ErrFormatRequired.Error())
			continue
		}
		in.Format = answer
		break
	}

	for {
		answer, err := p.ask("Write in the style of (author)", current.Author)
		if err != nil {
			return in, err
		}
		if answer == "" {
			p.display.Warn(ErrAuthorRequired.Error())
			continue
		}
		in.Author = answer
		break
	}

	return in, nil
}

func (p *Prompter) AskWorld(current *session.Record) (WorldInput, error) {
	p.Header(StepWorld)

	var in WorldInput
	var err error
	if in.EraPlace, err = p.ask("Era and place", current.EraPlace); err != nil {
		return in, err
	}
	if in.WorldRules, err = p.ask("World rules / genre", current.WorldRules); err != nil {
		return in, err
	}
	if in.StoryDirection, err = p.ask("Where does the story lead", current.StoryDirection); err != nil {
		return in, err
	}

	if len(current.Characters) > 0 {
		p.display.Subtle("Current characters:")
		for _, c := range current.Characters {
			p.display.Subtle("  " + FormatCharacter(c))
		}
		keep, err := p.ask("Keep these characters? (y/n)", "y")
		if err != nil {
			return in, err
		}
		if strings.HasPrefix(strings.ToLower(keep), "y") {
			in.Characters = append(in.Characters, current.Characters...)
		}
	}

	p.display.Subtle("Add characters as name|age|gender|nature. Leave blank to finish.")
	for {
		answer, err := p.ask("Character", "")
		if err != nil {
			if errors.Is(err, ErrInputClosed) && len(in.Characters) > 0 {
				return in, nil
			}
			return in, err
		}
		if answer == "" {
			if len(in.Characters) == 0 {
				p.display.Warn(ErrNoCharacters.Error())
				continue
			}
			return in, nil
		}

		c, err := ParseCharacter(answer)
		if err != nil {
			p.display.Warn(err.Error())
			continue
		}
		in.Characters = append(in.Characters, c)
	}
}

func (p *Prompter) ask(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}

	if !p.scanner.Scan() {
		fmt.Fprintln(p.out)
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", ErrInputClosed
	}

	answer := strings.TrimSpace(p.scanner.Text())
	if answer == "" {
		return def, nil
	}
	return answer, nil
}
