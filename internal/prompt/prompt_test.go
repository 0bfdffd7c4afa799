package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manash/novelgen/internal/session"
	"github.com/manash/novelgen/pkg/models"
)

func novelRecord() *session.Record {
	rec := session.NewRecord()
	rec.Format = models.FormatNovel
	rec.Author = "Test Author"
	rec.EraPlace = "1920s Shanghai"
	rec.WorldRules = "Noir, no magic"
	rec.StoryDirection = "The heist unravels"
	rec.Characters = []session.Character{
		{Name: "Ada", Age: "30", Gender: "F", Nature: "curious"},
	}
	return rec
}

func TestAssemble_NovelScenario(t *testing.T) {
	p, err := Assemble(novelRecord(), "English", "Ada discovers a hidden door")
	require.NoError(t, err)

	assert.Contains(t, p.System, "50-60 chapters total")
	assert.Contains(t, p.System, "Ada (Age: 30, Gender: F, Nature: curious)")
	assert.Contains(t, p.System, "Test Author")
	assert.Contains(t, p.System, "You are writing a novel")
	assert.Contains(t, p.System, "This generation is for ONE chapter only.")
	assert.Contains(t, p.System, "You MUST write the chapter entirely in English.")
	assert.Contains(t, p.System, "Era and Place: 1920s Shanghai")
	assert.Contains(t, p.System, "World Rules/Genre: Noir, no magic")
	assert.Contains(t, p.System, "Ultimately, the story leads to: The heist unravels")
	assert.True(t, strings.HasSuffix(p.System, "(headers, italics for thoughts, etc)."))

	assert.Contains(t, p.User, `"Ada discovers a hidden door"`)
	assert.True(t, strings.HasPrefix(p.User, "Here is what happens in this specific chapter."))
}

func TestAssemble_ShortStoryBand(t *testing.T) {
	rec := novelRecord()
	rec.Format = models.FormatShortStory

	p, err := Assemble(rec, "French", "The letter arrives")
	require.NoError(t, err)

	assert.Contains(t, p.System, "You are writing a short story (5-6 chapters total).")
	assert.NotContains(t, p.System, "50-60")
	assert.Contains(t, p.System, "entirely in French.")
}

func TestAssemble_RosterOneLinePerCharacter(t *testing.T) {
	rec := novelRecord()
	rec.Characters = append(rec.Characters,
		session.Character{Name: "Brom", Age: "52", Gender: "M", Nature: "gruff"},
		session.Character{Name: "Cai"},
	)

	p, err := Assemble(rec, "English", "x")
	require.NoError(t, err)

	assert.Contains(t, p.System,
		"   - Ada (Age: 30, Gender: F, Nature: curious)\n"+
			"   - Brom (Age: 52, Gender: M, Nature: gruff)\n"+
			"   - Cai (Age: , Gender: , Nature: )\n")
}

func TestAssemble_Deterministic(t *testing.T) {
	first, err := Assemble(novelRecord(), "English", "Ada discovers a hidden door")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := Assemble(novelRecord(), "English", "Ada discovers a hidden door")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestAssemble_Validation(t *testing.T) {
	tests := []struct {
		name    string
		lang    string
		topic   string
		wantErr error
	}{
		{"empty topic", "English", "", ErrEmptyTopic},
		{"blank topic", "English", "  \n", ErrEmptyTopic},
		{"empty language", "", "topic", ErrEmptyLanguage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Assemble(novelRecord(), tt.lang, tt.topic)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAssemble_DoesNotMutateRecord(t *testing.T) {
	rec := novelRecord()
	before := rec.Clone()

	_, err := Assemble(rec, "English", "topic")
	require.NoError(t, err)
	assert.Equal(t, before, rec)
}

func TestPrompt_Request(t *testing.T) {
	p := Prompt{System: "sys", User: "user"}
	req := p.Request("gemini-2.5-pro")

	assert.Equal(t, "gemini-2.5-pro", req.Model)
	assert.Equal(t, "sys", req.SystemInstruction)
	assert.Equal(t, "user", req.Prompt)
	assert.InDelta(t, 0.7, req.Temperature, 0.0001)
}
