package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"github.com/manash/novelgen/pkg/models"
)

func testStore(t *testing.T) (*Store, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewStoreWithPath(dbPath, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewStoreWithPath() error = %v", err)
	}

	cleanup := func() {
		store.Close()
	}
	return store, cleanup
}

func sampleRecord() *Record {
	last := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &Record{
		Format:         models.FormatNovel,
		Author:         "Test Author",
		EraPlace:       "Victorian London",
		WorldRules:     "Gaslamp fantasy",
		StoryDirection: "A reckoning at the docks",
		Characters: []Character{
			{Name: "Ada", Age: "30", Gender: "F", Nature: "curious"},
			{Name: "Brom", Age: "52", Gender: "M", Nature: "gruff"},
		},
		GeneratedChapters: []Chapter{
			{Topic: "intro", Content: "**Hello**"},
		},
		LastGenerated: &last,
	}
}

func TestNewStoreWithPath(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()

	if store == nil {
		t.Error("NewStoreWithPath() returned nil")
	}
}

func TestNewStore_CreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	store, err := NewStore(dir, nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer store.Close()
}

func TestStore_LoadMissingReturnsDefault(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()

	got, err := store.Load(context.Background(), RecordKey)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if diff := cmp.Diff(NewRecord(), got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_SaveAndLoad(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	ctx := context.Background()

	rec := sampleRecord()
	if err := store.Save(ctx, RecordKey, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx, RecordKey)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if diff := cmp.Diff(rec, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.Save(ctx, RecordKey, sampleRecord()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	replacement := NewRecord()
	replacement.Author = "Someone Else"
	if err := store.Save(ctx, RecordKey, replacement); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx, RecordKey)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if diff := cmp.Diff(replacement, got); diff != "" {
		t.Errorf("Load() after overwrite mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_LoadCorruptReturnsDefault(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx,
		`INSERT INTO records (key, value) VALUES (?, ?)`, RecordKey, "{not json")
	if err != nil {
		t.Fatalf("insert corrupt value: %v", err)
	}

	got, err := store.Load(ctx, RecordKey)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if diff := cmp.Diff(NewRecord(), got); diff != "" {
		t.Errorf("Load() corrupt mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_LoadLegacyRecordWithoutHistory(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	ctx := context.Background()

	legacy := `{"format":"story","author":"Jane Austen"}`
	_, err := store.db.ExecContext(ctx,
		`INSERT INTO records (key, value) VALUES (?, ?)`, RecordKey, legacy)
	if err != nil {
		t.Fatalf("insert legacy value: %v", err)
	}

	got, err := store.Load(ctx, RecordKey)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got.Format != models.FormatShortStory {
		t.Errorf("Format = %q, want story", got.Format)
	}
	if got.Characters == nil || got.GeneratedChapters == nil {
		t.Error("Load() should normalise missing slices to empty")
	}
	if got.LastGenerated != nil {
		t.Errorf("LastGenerated = %v, want nil", got.LastGenerated)
	}
}

func TestStore_LoadLastGeneratedFormats(t *testing.T) {
	want := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)

	tests := []struct {
		name  string
		stamp string
	}{
		{"epoch millis", `1700000000000`},
		{"rfc3339", `"2023-11-14T22:13:20Z"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, cleanup := testStore(t)
			defer cleanup()
			ctx := context.Background()

			value := `{"format":"novel","author":"Tolkien",` +
				`"characters":[{"name":"Bilbo","age":"50","gender":"M","nature":"homely"}],` +
				`"generatedChapters":[{"topic":"party","content":"A long-expected party."}],` +
				`"lastGenerated":` + tt.stamp + `}`
			if _, err := store.db.ExecContext(ctx,
				`INSERT INTO records (key, value) VALUES (?, ?)`, RecordKey, value); err != nil {
				t.Fatalf("insert value: %v", err)
			}

			got, err := store.Load(ctx, RecordKey)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if got.Author != "Tolkien" || got.Format != models.FormatNovel {
				t.Errorf("Load() lost answers: format=%q author=%q", got.Format, got.Author)
			}
			if len(got.Characters) != 1 || len(got.GeneratedChapters) != 1 {
				t.Errorf("Load() characters=%d chapters=%d, want 1 and 1", len(got.Characters), len(got.GeneratedChapters))
			}
			if got.LastGenerated == nil || !got.LastGenerated.Equal(want) {
				t.Errorf("LastGenerated = %v, want %v", got.LastGenerated, want)
			}
		})
	}
}

func TestStore_Delete(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.Save(ctx, RecordKey, sampleRecord()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Delete(ctx, RecordKey); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	got, err := store.Load(ctx, RecordKey)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Author != "" {
		t.Errorf("Load() after Delete Author = %q, want empty", got.Author)
	}
}

func TestStore_KeysAreIndependent(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.Save(ctx, "a", sampleRecord()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load(ctx, "b")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Author != "" {
		t.Errorf("Load(b) Author = %q, want empty", got.Author)
	}
}

func TestStore_GenerationUsage(t *testing.T) {
	store, cleanup := testStore(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now()
	entries := []*GenerationEntry{
		{ID: "g1", Topic: "one", Provider: "gemini", Model: "gemini-2.5-flash", PromptTokens: 100, OutputTokens: 900, TotalTokens: 1000, Timestamp: now.Add(-48 * time.Hour)},
		{ID: "g2", Topic: "two", Provider: "gemini", Model: "gemini-2.5-flash", PromptTokens: 120, OutputTokens: 880, TotalTokens: 1000, Timestamp: now.Add(-1 * time.Hour)},
		{ID: "g3", Topic: "three", Provider: "sdk", Model: "gemini-2.5-pro", PromptTokens: 50, OutputTokens: 450, TotalTokens: 500, Timestamp: now},
	}
	for _, e := range entries {
		if err := store.LogGeneration(ctx, e); err != nil {
			t.Fatalf("LogGeneration() error = %v", err)
		}
	}

	total, err := store.TotalUsage(ctx)
	if err != nil {
		t.Fatalf("TotalUsage() error = %v", err)
	}
	if total.Generations != 3 || total.TotalTokens != 2500 {
		t.Errorf("TotalUsage() = %+v, want 3 generations / 2500 tokens", total)
	}

	recent, err := store.UsageByDateRange(ctx, now.Add(-24*time.Hour), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("UsageByDateRange() error = %v", err)
	}
	if recent.Generations != 2 {
		t.Errorf("UsageByDateRange() Generations = %d, want 2", recent.Generations)
	}

	byModel, err := store.UsageByModel(ctx)
	if err != nil {
		t.Fatalf("UsageByModel() error = %v", err)
	}
	if len(byModel) != 2 {
		t.Fatalf("UsageByModel() returned %d rows, want 2", len(byModel))
	}
	if byModel[0].Model != "gemini-2.5-flash" || byModel[0].Generations != 2 {
		t.Errorf("UsageByModel()[0] = %+v", byModel[0])
	}

	recentByModel, err := store.UsageByModelInRange(ctx, now.Add(-24*time.Hour), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("UsageByModelInRange() error = %v", err)
	}
	if len(recentByModel) != 2 || recentByModel[0].Generations != 1 || recentByModel[0].PromptTokens != 120 {
		t.Errorf("UsageByModelInRange() = %+v", recentByModel)
	}

	list, err := store.ListGenerations(ctx, 2)
	if err != nil {
		t.Fatalf("ListGenerations() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != "g3" {
		t.Errorf("ListGenerations() = %d entries, first %v; want newest first", len(list), list[0].ID)
	}
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	if got := FormatTimestamp(ts); got != "2025-01-02 03:04:05" {
		t.Errorf("FormatTimestamp() = %q", got)
	}
}
