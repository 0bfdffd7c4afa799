// Package wizard holds the three linear steps that fill in a session record
// and the generation flow that runs once the record is complete.
package wizard

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/manash/novelgen/internal/session"
	"github.com/manash/novelgen/pkg/models"
)

var (
	ErrFormatRequired     = errors.New("story format is required (story or novel)")
	ErrAuthorRequired     = errors.New("author style is required")
	ErrNoCharacters       = errors.New("add at least one character")
	ErrCharacterName      = errors.New("character name is required")
	ErrIncompleteSession  = errors.New("session is incomplete")
	ErrTooManyFieldsInRow = errors.New("character has more than four fields")
)

// Step numbers the wizard pages.
type Step int

const (
	StepFormat Step = iota + 1
	StepWorld
	StepWriting
)

func (s Step) String() string {
	switch s {
	case StepFormat:
		return "Format & Style"
	case StepWorld:
		return "World & Characters"
	case StepWriting:
		return "Writing"
	default:
		return fmt.Sprintf("Step %d", int(s))
	}
}

// GateError is returned when the writing step is entered with a record that
// misses required answers. The caller should send the user back to RedirectStep.
type GateError struct {
	Missing      []string
	RedirectStep Step
}

func (e *GateError) Error() string {
	return fmt.Sprintf("%s: missing %s, start again from step %d",
		ErrIncompleteSession, strings.Join(e.Missing, ", "), e.RedirectStep)
}

func (e *GateError) Unwrap() error {
	return ErrIncompleteSession
}

type FormatInput struct {
	Format string
	Author string
}

type WorldInput struct {
	EraPlace       string
	WorldRules     string
	StoryDirection string
	Characters     []session.Character
}

// SubmitFormat applies step 1. The input record is left untouched.
func SubmitFormat(rec *session.Record, in FormatInput) (*session.Record, error) {
	if strings.TrimSpace(in.Format) == "" {
		return nil, ErrFormatRequired
	}
	format, err := models.ParseStoryFormat(in.Format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormatRequired, err)
	}

	author := strings.TrimSpace(in.Author)
	if author == "" {
		return nil, ErrAuthorRequired
	}

	next := rec.Clone()
	next.Format = format
	next.Author = author
	return next, nil
}

// SubmitWorld applies step 2. World fields may be empty; the roster may not.
func SubmitWorld(rec *session.Record, in WorldInput) (*session.Record, error) {
	if len(in.Characters) == 0 {
		return nil, ErrNoCharacters
	}

	next := rec.Clone()
	next.EraPlace = strings.TrimSpace(in.EraPlace)
	next.WorldRules = strings.TrimSpace(in.WorldRules)
	next.StoryDirection = strings.TrimSpace(in.StoryDirection)
	next.Characters = make([]session.Character, len(in.Characters))
	for i, c := range in.Characters {
		next.Characters[i] = session.Character{
			Name:   strings.TrimSpace(c.Name),
			Age:    strings.TrimSpace(c.Age),
			Gender: strings.TrimSpace(c.Gender),
			Nature: strings.TrimSpace(c.Nature),
		}
	}
	return next, nil
}

// CheckGate reports whether rec may enter the writing step.
func CheckGate(rec *session.Record) error {
	var missing []string
	if !rec.Format.IsValid() {
		missing = append(missing, "format")
	}
	if strings.TrimSpace(rec.Author) == "" {
		missing = append(missing, "author")
	}
	if len(rec.Characters) == 0 {
		missing = append(missing, "characters")
	}
	if len(missing) == 0 {
		return nil
	}
	return &GateError{Missing: missing, RedirectStep: StepFormat}
}

// EnterWriting runs the step 3 entry checks: the gate first, then history
// expiry. On a gate failure rec is returned unchanged and nothing should be
// saved. The bool reports whether expiry cleared the history.
func EnterWriting(rec *session.Record, now time.Time) (*session.Record, bool, error) {
	if err := CheckGate(rec); err != nil {
		return rec, false, err
	}

	next := rec.Clone()
	expired := next.ExpireHistory(now)
	return next, expired, nil
}

// AppendChapter returns a copy of rec with one more chapter.
func AppendChapter(rec *session.Record, topic, content string, now time.Time) *session.Record {
	next := rec.Clone()
	next.AppendChapter(topic, content, now)
	return next
}

// ParseCharacter reads "name|age|gender|nature". Trailing fields may be
// omitted; the name may not.
func ParseCharacter(s string) (session.Character, error) {
	parts := strings.Split(s, "|")
	if len(parts) > 4 {
		return session.Character{}, fmt.Errorf("%w: %q", ErrTooManyFieldsInRow, s)
	}
	for len(parts) < 4 {
		parts = append(parts, "")
	}

	c := session.Character{
		Name:   strings.TrimSpace(parts[0]),
		Age:    strings.TrimSpace(parts[1]),
		Gender: strings.TrimSpace(parts[2]),
		Nature: strings.TrimSpace(parts[3]),
	}
	if c.Name == "" {
		return session.Character{}, ErrCharacterName
	}
	return c, nil
}

func FormatCharacter(c session.Character) string {
	return strings.Join([]string{c.Name, c.Age, c.Gender, c.Nature}, "|")
}
