package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/manash/novelgen/internal/session"
	"github.com/manash/novelgen/internal/wizard"
	"github.com/manash/novelgen/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestParseText(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{
			name:  "basic topics",
			input: "the storm\nthe harbour\nthe duel",
			want:  3,
		},
		{
			name:  "with empty lines",
			input: "the storm\n\nthe harbour\n\n",
			want:  2,
		},
		{
			name:  "with comments",
			input: "# act one\nthe storm\n# act two\nthe harbour",
			want:  2,
		},
		{
			name:    "empty file",
			input:   "",
			wantErr: true,
		},
		{
			name:    "only comments",
			input:   "# comment\n# another",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := ParseText(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseText() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && len(items) != tt.want {
				t.Errorf("ParseText() got %d items, want %d", len(items), tt.want)
			}
		})
	}
}

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []Item
		wantErr bool
	}{
		{
			name:  "bare strings",
			input: `["one", "two"]`,
			want:  []Item{{Index: 1, Topic: "one"}, {Index: 2, Topic: "two"}},
		},
		{
			name:  "objects with language",
			input: `[{"topic": "one", "language": "German"}, "two"]`,
			want:  []Item{{Index: 1, Topic: "one", Language: "German"}, {Index: 2, Topic: "two"}},
		},
		{
			name:    "empty array",
			input:   `[]`,
			wantErr: true,
		},
		{
			name:    "empty topic",
			input:   `[{"topic": "  "}]`,
			wantErr: true,
		},
		{
			name:    "invalid json",
			input:   `[{"topic": "one"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := ParseJSON(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseJSON() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if fmt.Sprint(items) != fmt.Sprint(tt.want) {
				t.Errorf("ParseJSON() = %v, want %v", items, tt.want)
			}
		})
	}
}

func TestParseYAML(t *testing.T) {
	input := "- the storm\n- topic: the harbour\n  language: Spanish\n"

	items, err := ParseYAML(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseYAML() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("ParseYAML() got %d items, want 2", len(items))
	}
	if items[0].Topic != "the storm" || items[0].Language != "" {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].Topic != "the harbour" || items[1].Language != "Spanish" || items[1].Index != 2 {
		t.Errorf("items[1] = %+v", items[1])
	}

	if _, err := ParseYAML(strings.NewReader("")); !errors.Is(err, ErrNoTopics) {
		t.Errorf("ParseYAML(empty) error = %v, want %v", err, ErrNoTopics)
	}
	if _, err := ParseYAML(strings.NewReader("topic: [")); err == nil {
		t.Error("ParseYAML(invalid) expected error")
	}
}

func TestParseFile(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
		want     int
		wantErr  bool
	}{
		{"txt file", "topics.txt", "one\ntwo", 2, false},
		{"json file", "topics.json", `["one", "two"]`, 2, false},
		{"yaml file", "topics.yaml", "- one\n- two\n- three\n", 3, false},
		{"yml file", "topics.yml", "- one\n", 1, false},
		{"no extension treated as txt", "topics", "one", 1, false},
		{"unsupported extension", "topics.csv", "one", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.filename)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			items, err := ParseFile(path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseFile() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && len(items) != tt.want {
				t.Errorf("ParseFile() got %d items, want %d", len(items), tt.want)
			}
		})
	}

	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("ParseFile(missing) expected error")
	}
}

// fakeGenerator records chapters in call order.
type fakeGenerator struct {
	calls    []wizard.GenerateInput
	chapters []string
	failOn   map[string]error
}

func (f *fakeGenerator) GenerateChapter(ctx context.Context, in wizard.GenerateInput) (*wizard.GenerateResult, error) {
	f.calls = append(f.calls, in)
	if err := f.failOn[in.Topic]; err != nil {
		return nil, err
	}
	f.chapters = append(f.chapters, in.Topic)
	return &wizard.GenerateResult{
		Chapter:  session.Chapter{Topic: in.Topic, Content: "text"},
		Number:   len(f.chapters),
		Response: &models.Response{Text: "text", Usage: models.Usage{TotalTokens: 10}},
	}, nil
}

func topicItems(topics ...string) []Item {
	out := make([]Item, len(topics))
	for i, t := range topics {
		out[i] = Item{Index: i + 1, Topic: t}
	}
	return out
}

func TestProcessor_AppendsInOrder(t *testing.T) {
	gen := &fakeGenerator{}
	out := &bytes.Buffer{}
	proc := NewProcessor(gen, out, out, nil)

	results, err := proc.Process(context.Background(), topicItems("a", "b", "c"), &Options{Language: "English", APIKey: "k"})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if got := strings.Join(gen.chapters, ","); got != "a,b,c" {
		t.Errorf("chapters = %s, want a,b,c", got)
	}
	for i, r := range results {
		if r.Error != nil {
			t.Errorf("Result[%d] has error: %v", i, r.Error)
		}
		if r.Chapter != i+1 {
			t.Errorf("Result[%d].Chapter = %d, want %d", i, r.Chapter, i+1)
		}
	}
	for _, c := range gen.calls {
		if c.APIKey != "k" || c.Language != "English" {
			t.Errorf("call = %+v, want key and default language passed through", c)
		}
	}
	if !strings.Contains(out.String(), "[3/3] Writing") {
		t.Errorf("missing progress line in %q", out.String())
	}
}

func TestProcessor_ItemLanguageOverrides(t *testing.T) {
	gen := &fakeGenerator{}
	proc := NewProcessor(gen, &bytes.Buffer{}, &bytes.Buffer{}, nil)

	list := []Item{{Index: 1, Topic: "a", Language: "Hindi"}, {Index: 2, Topic: "b"}}
	if _, err := proc.Process(context.Background(), list, &Options{Language: "English"}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if gen.calls[0].Language != "Hindi" || gen.calls[1].Language != "English" {
		t.Errorf("languages = %q, %q", gen.calls[0].Language, gen.calls[1].Language)
	}
}

func TestProcessor_ErrorHandling(t *testing.T) {
	boom := errors.New("quota exceeded")

	tests := []struct {
		name         string
		stopOnError  bool
		wantErr      bool
		wantCalls    int
		wantChapters string
	}{
		{"continues by default", false, false, 3, "a,c"},
		{"stops when asked", true, true, 2, "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{failOn: map[string]error{"b": boom}}
			errOut := &bytes.Buffer{}
			proc := NewProcessor(gen, &bytes.Buffer{}, errOut, nil)

			results, err := proc.Process(context.Background(), topicItems("a", "b", "c"), &Options{StopOnError: tt.stopOnError})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Process() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, boom) {
				t.Errorf("Process() error = %v, want wrapping %v", err, boom)
			}
			if len(gen.calls) != tt.wantCalls {
				t.Errorf("calls = %d, want %d", len(gen.calls), tt.wantCalls)
			}
			if got := strings.Join(gen.chapters, ","); got != tt.wantChapters {
				t.Errorf("chapters = %s, want %s", got, tt.wantChapters)
			}
			if !errors.Is(results[1].Error, boom) {
				t.Errorf("results[1].Error = %v", results[1].Error)
			}
			if !strings.Contains(errOut.String(), "quota exceeded") {
				t.Errorf("error output = %q", errOut.String())
			}
			if err := Err(results); !errors.Is(err, ErrTopicsFailed) {
				t.Errorf("Err() = %v, want ErrTopicsFailed", err)
			}
		})
	}
}

func TestErr(t *testing.T) {
	ok := []Result{{Index: 1, Topic: "one"}, {Index: 2, Topic: "two"}}
	if err := Err(ok); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
	if err := Err(nil); err != nil {
		t.Errorf("Err(nil) = %v, want nil", err)
	}

	mixed := append(ok, Result{Index: 3, Topic: "three", Error: errors.New("boom")})
	err := Err(mixed)
	if !errors.Is(err, ErrTopicsFailed) {
		t.Fatalf("Err() = %v, want ErrTopicsFailed", err)
	}
	if !strings.Contains(err.Error(), "1 of 3") {
		t.Errorf("Err() = %q, want count", err.Error())
	}
}

func TestProcessor_CancelDuringDelay(t *testing.T) {
	gen := &fakeGenerator{}
	proc := NewProcessor(gen, &bytes.Buffer{}, &bytes.Buffer{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	results, err := proc.Process(ctx, topicItems("a", "b"), &Options{DelayMs: 5000})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Process() error = %v, want deadline exceeded", err)
	}
	if len(results) != 1 || len(gen.calls) != 1 {
		t.Errorf("results = %d, calls = %d, want 1 and 1", len(results), len(gen.calls))
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"this is a longer string", 10, "this is..."},
		{"ééééééé", 5, "éé..."},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := truncate(tt.input, tt.maxLen)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestPrintSummary(t *testing.T) {
	tests := []struct {
		name    string
		results []Result
		wantOut string
	}{
		{
			name: "all successful",
			results: []Result{
				{Index: 1, Topic: "one", Chapter: 1, Tokens: 10},
				{Index: 2, Topic: "two", Chapter: 2, Tokens: 15},
			},
			wantOut: "Total tokens: 25",
		},
		{
			name: "with failures",
			results: []Result{
				{Index: 1, Topic: "one", Chapter: 1},
				{Index: 2, Topic: "two", Error: fmt.Errorf("generation failed")},
			},
			wantOut: "Failed: 1",
		},
		{
			name:    "empty results",
			results: []Result{},
			wantOut: "Successful: 0/0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			proc := NewProcessor(&fakeGenerator{}, out, out, nil)
			proc.PrintSummary(tt.results)
			if !strings.Contains(out.String(), tt.wantOut) {
				t.Errorf("PrintSummary() output = %q, want to contain %q", out.String(), tt.wantOut)
			}
		})
	}
}
