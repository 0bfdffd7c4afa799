// Package prompt turns a wizard record into the instruction pair sent to the
// model. Assembly is plain string templating and is deterministic.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/manash/novelgen/internal/session"
	"github.com/manash/novelgen/pkg/models"
)

var (
	ErrEmptyTopic    = errors.New("chapter topic cannot be empty")
	ErrEmptyLanguage = errors.New("output language cannot be empty")
)

type Prompt struct {
	System string
	User   string
}

// Request wraps the prompt in a model request with the fixed temperature.
func (p Prompt) Request(model string) *models.Request {
	req := models.NewRequest(p.System, p.User)
	req.Model = model
	return req
}

func Assemble(rec *session.Record, outputLanguage, chapterTopic string) (Prompt, error) {
	if strings.TrimSpace(chapterTopic) == "" {
		return Prompt{}, ErrEmptyTopic
	}
	if strings.TrimSpace(outputLanguage) == "" {
		return Prompt{}, ErrEmptyLanguage
	}

	return Prompt{
		System: System(rec, outputLanguage),
		User:   User(chapterTopic),
	}, nil
}

func System(rec *session.Record, outputLanguage string) string {
	var b strings.Builder

	b.WriteString("You are an expert AI Novel Writer. You must strictly follow these constraints:\n")
	fmt.Fprintf(&b, "1. FORMAT: You are writing a %s (%s chapters total). This generation is for ONE chapter only.\n",
		rec.Format.Label(), rec.Format.ChapterBand())
	fmt.Fprintf(&b, "2. AUTHOR STYLE: You must write strictly in the literary voice, tone, and style of: %s.\n", rec.Author)
	b.WriteString("3. WORLD CONTEXT: \n")
	fmt.Fprintf(&b, "   - Era and Place: %s\n", rec.EraPlace)
	fmt.Fprintf(&b, "   - World Rules/Genre: %s\n", rec.WorldRules)
	fmt.Fprintf(&b, "   - Ultimately, the story leads to: %s\n", rec.StoryDirection)
	b.WriteString("4. CHARACTERS: Use these characters accurately:\n")
	b.WriteString(Roster(rec.Characters))
	b.WriteString("\n")
	fmt.Fprintf(&b, "5. OUTPUT LANGUAGE: You MUST write the chapter entirely in %s.\n", outputLanguage)
	b.WriteString("\n")
	b.WriteString("Do not break character. Do not provide meta-commentary. ")
	b.WriteString("Output the chapter text directly using Markdown for formatting (headers, italics for thoughts, etc).")

	return b.String()
}

// Roster renders one line per character.
func Roster(characters []session.Character) string {
	lines := make([]string, 0, len(characters))
	for _, c := range characters {
		lines = append(lines, "   - "+CharacterLine(c))
	}
	return strings.Join(lines, "\n")
}

func CharacterLine(c session.Character) string {
	return fmt.Sprintf("%s (Age: %s, Gender: %s, Nature: %s)", c.Name, c.Age, c.Gender, c.Nature)
}

func User(chapterTopic string) string {
	return "Here is what happens in this specific chapter. " +
		"Write this occurrence in the established author style and world constraints:\n" +
		`"` + strings.TrimSpace(chapterTopic) + `"`
}
