package wizard

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/manash/novelgen/internal/prompt"
	"github.com/manash/novelgen/internal/provider"
	"github.com/manash/novelgen/internal/session"
	"github.com/manash/novelgen/pkg/models"
)

type ControllerConfig struct {
	Backend models.ProviderType
	Model   string
	BaseURL string
}

// Controller runs the wizard steps against the persisted record. Each call
// is one load, transition, save cycle.
type Controller struct {
	sessions *session.Manager
	factory  *provider.Factory
	cfg      ControllerConfig
	logger   *zap.Logger
}

func NewController(sessions *session.Manager, factory *provider.Factory, cfg ControllerConfig, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Backend == "" {
		cfg.Backend = models.ProviderGemini
	}
	if cfg.Model == "" {
		cfg.Model = models.DefaultModel
	}
	return &Controller{
		sessions: sessions,
		factory:  factory,
		cfg:      cfg,
		logger:   logger,
	}
}

func (c *Controller) Sessions() *session.Manager {
	return c.sessions
}

func (c *Controller) Config() ControllerConfig {
	return c.cfg
}

func (c *Controller) Record(ctx context.Context) (*session.Record, error) {
	return c.sessions.Load(ctx)
}

func (c *Controller) SubmitFormat(ctx context.Context, in FormatInput) (*session.Record, error) {
	rec, err := c.sessions.Load(ctx)
	if err != nil {
		return nil, err
	}
	next, err := SubmitFormat(rec, in)
	if err != nil {
		return nil, err
	}
	if err := c.sessions.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to save step 1: %w", err)
	}
	return next, nil
}

func (c *Controller) SubmitWorld(ctx context.Context, in WorldInput) (*session.Record, error) {
	rec, err := c.sessions.Load(ctx)
	if err != nil {
		return nil, err
	}
	next, err := SubmitWorld(rec, in)
	if err != nil {
		return nil, err
	}
	if err := c.sessions.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to save step 2: %w", err)
	}
	return next, nil
}

// CurrentRecord loads the record with stale chapter history already expired,
// the same view the writing step sees.
func (c *Controller) CurrentRecord(ctx context.Context) (*session.Record, error) {
	rec, err := c.sessions.Load(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := c.sessions.ExpireStale(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// EnterWriting loads the record and runs the step 3 entry checks. A gate
// failure writes nothing; an expiry is persisted.
func (c *Controller) EnterWriting(ctx context.Context) (*session.Record, bool, error) {
	rec, err := c.sessions.Load(ctx)
	if err != nil {
		return nil, false, err
	}

	next, expired, err := EnterWriting(rec, c.sessions.Now())
	if err != nil {
		return rec, false, err
	}
	if expired {
		if err := c.sessions.Save(ctx, next); err != nil {
			return nil, false, fmt.Errorf("failed to persist expired history: %w", err)
		}
		c.logger.Info("session expired, cleared previous chapters")
	}
	return next, expired, nil
}

type GenerateInput struct {
	Topic    string
	Language string
	APIKey   string
}

type GenerateResult struct {
	Record   *session.Record
	Chapter  session.Chapter
	Number   int
	Response *models.Response
	Expired  bool
}

// GenerateChapter writes one chapter. The record is only written after the
// model returned usable text, so any failure leaves the history as it was.
func (c *Controller) GenerateChapter(ctx context.Context, in GenerateInput) (*GenerateResult, error) {
	topic := strings.TrimSpace(in.Topic)
	if topic == "" {
		return nil, prompt.ErrEmptyTopic
	}
	if strings.TrimSpace(in.APIKey) == "" {
		return nil, provider.ErrAPIKeyRequired
	}

	rec, expired, err := c.EnterWriting(ctx)
	if err != nil {
		return nil, err
	}

	p, err := prompt.Assemble(rec, in.Language, topic)
	if err != nil {
		return nil, err
	}

	gen, err := c.factory.NewForModel(c.cfg.Backend, c.cfg.Model, &provider.Config{
		APIKey:  in.APIKey,
		BaseURL: c.cfg.BaseURL,
		Logger:  c.logger,
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("generating chapter",
		zap.String("backend", c.cfg.Backend.String()),
		zap.String("model", c.cfg.Model),
		zap.Int("chapter", len(rec.GeneratedChapters)+1))

	resp, err := gen.Generate(ctx, p.Request(c.cfg.Model))
	if err != nil {
		c.logger.Warn("generation failed", zap.Error(err))
		return nil, err
	}

	updated, err := c.sessions.AppendChapter(ctx, topic, resp.Text)
	if err != nil {
		return nil, err
	}

	entry := &session.GenerationEntry{
		Topic:        topic,
		Provider:     c.cfg.Backend.String(),
		Model:        c.cfg.Model,
		PromptTokens: resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.OutputTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}
	if err := c.sessions.LogGeneration(ctx, entry); err != nil {
		c.logger.Warn("failed to record usage", zap.Error(err))
	}

	n := len(updated.GeneratedChapters)
	return &GenerateResult{
		Record:   updated,
		Chapter:  updated.GeneratedChapters[n-1],
		Number:   n,
		Response: resp,
		Expired:  expired,
	}, nil
}

func (c *Controller) ClearHistory(ctx context.Context) error {
	return c.sessions.ClearHistory(ctx)
}

func (c *Controller) Reset(ctx context.Context) error {
	return c.sessions.Reset(ctx)
}
