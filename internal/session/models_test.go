package session

import (
	"strings"
	"testing"
	"time"
)

func TestRecord_ExpireHistory(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		lastGenerated *time.Time
		wantExpired   bool
	}{
		{"never generated", nil, false},
		{"generated 25h ago", ptrTime(now.Add(-25 * time.Hour)), true},
		{"generated 23h ago", ptrTime(now.Add(-23 * time.Hour)), false},
		{"generated just now", ptrTime(now), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := NewRecord()
			rec.GeneratedChapters = []Chapter{{Topic: "a", Content: "b"}}
			rec.LastGenerated = tt.lastGenerated

			got := rec.ExpireHistory(now)
			if got != tt.wantExpired {
				t.Errorf("ExpireHistory() = %v, want %v", got, tt.wantExpired)
			}

			if tt.wantExpired {
				if len(rec.GeneratedChapters) != 0 {
					t.Errorf("GeneratedChapters = %v, want empty", rec.GeneratedChapters)
				}
				if rec.LastGenerated != nil {
					t.Errorf("LastGenerated = %v, want nil", rec.LastGenerated)
				}
			} else if len(rec.GeneratedChapters) != 1 {
				t.Errorf("GeneratedChapters cleared unexpectedly")
			}
		})
	}
}

func TestRecord_Clone(t *testing.T) {
	orig := sampleRecord()
	c := orig.Clone()

	c.Characters[0].Name = "Changed"
	c.GeneratedChapters[0].Topic = "changed"
	*c.LastGenerated = c.LastGenerated.Add(time.Hour)

	if orig.Characters[0].Name != "Ada" {
		t.Error("Clone() shares Characters with original")
	}
	if orig.GeneratedChapters[0].Topic != "intro" {
		t.Error("Clone() shares GeneratedChapters with original")
	}
	if orig.LastGenerated.Equal(*c.LastGenerated) {
		t.Error("Clone() shares LastGenerated with original")
	}
}

func TestRecord_JSONShape(t *testing.T) {
	rec := NewRecord()
	data, err := rec.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	want := `{"eraPlace":"","worldRules":"","storyDirection":"","characters":[],"generatedChapters":[],"lastGenerated":null}`
	if data != want {
		t.Errorf("ToJSON() = %s, want %s", data, want)
	}
}

func TestRecord_LastGeneratedIsEpochMillis(t *testing.T) {
	rec := NewRecord()
	rec.AppendChapter("intro", "text", time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC))

	data, err := rec.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}
	if !strings.HasSuffix(data, `"lastGenerated":1700000000000}`) {
		t.Errorf("ToJSON() = %s, want epoch milliseconds", data)
	}

	back, err := ParseRecord(data)
	if err != nil {
		t.Fatalf("ParseRecord() error = %v", err)
	}
	if back.LastGenerated == nil || !back.LastGenerated.Equal(*rec.LastGenerated) {
		t.Errorf("LastGenerated = %v, want %v", back.LastGenerated, rec.LastGenerated)
	}

	if _, err := ParseRecord(`{"lastGenerated":true}`); err == nil {
		t.Error("ParseRecord() should reject a non-time lastGenerated")
	}
}

func TestParseRecord(t *testing.T) {
	rec, err := ParseRecord(`{"format":"novel","characters":[{"name":"Ada","age":"30","gender":"F","nature":"curious"}]}`)
	if err != nil {
		t.Fatalf("ParseRecord() error = %v", err)
	}
	if len(rec.Characters) != 1 || rec.Characters[0].Nature != "curious" {
		t.Errorf("ParseRecord() Characters = %+v", rec.Characters)
	}
	if rec.GeneratedChapters == nil {
		t.Error("ParseRecord() left GeneratedChapters nil")
	}

	if _, err := ParseRecord("not json"); err == nil {
		t.Error("ParseRecord() should fail on invalid JSON")
	}
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
