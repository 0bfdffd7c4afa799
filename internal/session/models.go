package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/manash/novelgen/pkg/models"
)

// RecordKey is the fixed key the wizard record is stored under.
const RecordKey = "novelData"

// HistoryTTL bounds how long generated chapters survive after the last generation.
const HistoryTTL = 24 * time.Hour

type Character struct {
	Name   string `json:"name"`
	Age    string `json:"age"`
	Gender string `json:"gender"`
	Nature string `json:"nature"`
}

type Chapter struct {
	Topic   string `json:"topic"`
	Content string `json:"content"`
}

// Record holds every wizard answer plus the generated chapter history.
type Record struct {
	Format         models.StoryFormat `json:"format,omitempty"`
	Author         string             `json:"author,omitempty"`
	EraPlace       string             `json:"eraPlace"`
	WorldRules     string             `json:"worldRules"`
	StoryDirection string             `json:"storyDirection"`
	Characters     []Character        `json:"characters"`

	GeneratedChapters []Chapter  `json:"generatedChapters"`
	LastGenerated     *time.Time `json:"lastGenerated"`
}

func NewRecord() *Record {
	return &Record{
		Characters:        []Character{},
		GeneratedChapters: []Chapter{},
	}
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := *r
	c.Characters = append([]Character{}, r.Characters...)
	c.GeneratedChapters = append([]Chapter{}, r.GeneratedChapters...)
	if r.LastGenerated != nil {
		t := *r.LastGenerated
		c.LastGenerated = &t
	}
	return &c
}

// ExpireHistory clears the chapter history when the last generation is older
// than HistoryTTL. It reports whether anything was cleared.
func (r *Record) ExpireHistory(now time.Time) bool {
	if r.LastGenerated == nil {
		return false
	}
	if now.Sub(*r.LastGenerated) <= HistoryTTL {
		return false
	}
	r.GeneratedChapters = []Chapter{}
	r.LastGenerated = nil
	return true
}

func (r *Record) AppendChapter(topic, content string, now time.Time) {
	r.GeneratedChapters = append(r.GeneratedChapters, Chapter{
		Topic:   topic,
		Content: content,
	})
	t := now
	r.LastGenerated = &t
}

func (r *Record) ClearHistory() {
	r.GeneratedChapters = []Chapter{}
	r.LastGenerated = nil
}

func (r *Record) HasChapters() bool {
	return len(r.GeneratedChapters) > 0
}

// recordFields has Record's fields without its JSON methods.
type recordFields Record

// MarshalJSON writes lastGenerated as epoch milliseconds.
func (r Record) MarshalJSON() ([]byte, error) {
	aux := struct {
		recordFields
		LastGenerated *int64 `json:"lastGenerated"`
	}{recordFields: recordFields(r)}
	if r.LastGenerated != nil {
		ms := r.LastGenerated.UnixMilli()
		aux.LastGenerated = &ms
	}
	return json.Marshal(aux)
}

// UnmarshalJSON accepts lastGenerated as epoch milliseconds or an RFC 3339
// string.
func (r *Record) UnmarshalJSON(data []byte) error {
	aux := struct {
		*recordFields
		LastGenerated json.RawMessage `json:"lastGenerated"`
	}{recordFields: (*recordFields)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	t, err := parseTimestamp(aux.LastGenerated)
	if err != nil {
		return fmt.Errorf("lastGenerated: %w", err)
	}
	r.LastGenerated = t
	return nil
}

func parseTimestamp(raw json.RawMessage) (*time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var t time.Time
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, err
		}
		return &t, nil
	}
	var ms float64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return nil, err
	}
	t := time.UnixMilli(int64(ms)).UTC()
	return &t, nil
}

func (r *Record) ToJSON() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ParseRecord decodes a stored record and normalises nil slices.
func ParseRecord(data string) (*Record, error) {
	rec := NewRecord()
	if err := json.Unmarshal([]byte(data), rec); err != nil {
		return nil, err
	}
	if rec.Characters == nil {
		rec.Characters = []Character{}
	}
	if rec.GeneratedChapters == nil {
		rec.GeneratedChapters = []Chapter{}
	}
	return rec, nil
}
