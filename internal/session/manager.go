package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager owns the load/save boundaries of the wizard record. Every mutation
// is a full read-modify-write of the stored value; concurrent writers are
// not coordinated and the last write wins.
type Manager struct {
	store  *Store
	key    string
	now    func() time.Time
	logger *zap.Logger
}

type Option func(*Manager)

// WithClock overrides the time source used for expiry and history stamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithKey stores the record under a key other than RecordKey.
func WithKey(key string) Option {
	return func(m *Manager) {
		m.key = key
	}
}

func NewManager(store *Store, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		store:  store,
		key:    RecordKey,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Now() time.Time {
	return m.now()
}

func (m *Manager) Load(ctx context.Context) (*Record, error) {
	return m.store.Load(ctx, m.key)
}

func (m *Manager) Save(ctx context.Context, rec *Record) error {
	return m.store.Save(ctx, m.key, rec)
}

// ExpireStale clears rec's chapter history in place when it has outlived
// HistoryTTL and persists the result. The rest of the record never expires.
func (m *Manager) ExpireStale(ctx context.Context, rec *Record) (bool, error) {
	if !rec.ExpireHistory(m.now()) {
		return false, nil
	}

	if err := m.Save(ctx, rec); err != nil {
		return true, fmt.Errorf("failed to persist expired history: %w", err)
	}

	m.logger.Info("session expired, cleared previous chapters")
	return true, nil
}

// AppendChapter reloads the record, appends one chapter and saves it.
func (m *Manager) AppendChapter(ctx context.Context, topic, content string) (*Record, error) {
	rec, err := m.Load(ctx)
	if err != nil {
		return nil, err
	}

	rec.AppendChapter(topic, content, m.now())

	if err := m.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save chapter: %w", err)
	}

	m.logger.Debug("chapter appended",
		zap.Int("chapter", len(rec.GeneratedChapters)),
		zap.Int("bytes", len(content)))
	return rec, nil
}

func (m *Manager) ClearHistory(ctx context.Context) error {
	rec, err := m.Load(ctx)
	if err != nil {
		return err
	}
	rec.ClearHistory()
	return m.Save(ctx, rec)
}

// Reset removes the stored record entirely; the next Load starts empty.
func (m *Manager) Reset(ctx context.Context) error {
	return m.store.Delete(ctx, m.key)
}

// LogGeneration records usage for a successful generation. ID and Timestamp
// are filled when empty.
func (m *Manager) LogGeneration(ctx context.Context, entry *GenerationEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = m.now()
	}
	return m.store.LogGeneration(ctx, entry)
}

func (m *Manager) RecentGenerations(ctx context.Context, limit int) ([]*GenerationEntry, error) {
	return m.store.ListGenerations(ctx, limit)
}

func (m *Manager) UsageByDateRange(ctx context.Context, start, end time.Time) (*UsageSummary, error) {
	return m.store.UsageByDateRange(ctx, start, end)
}

func (m *Manager) TotalUsage(ctx context.Context) (*UsageSummary, error) {
	return m.store.TotalUsage(ctx)
}

func (m *Manager) UsageByModel(ctx context.Context) ([]ModelUsageSummary, error) {
	return m.store.UsageByModel(ctx)
}

func (m *Manager) UsageByModelInRange(ctx context.Context, start, end time.Time) ([]ModelUsageSummary, error) {
	return m.store.UsageByModelInRange(ctx, start, end)
}
