// Package batch writes a list of chapter topics one after another.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/manash/novelgen/internal/wizard"
)

// Generator is the part of wizard.Controller the processor needs.
type Generator interface {
	GenerateChapter(ctx context.Context, in wizard.GenerateInput) (*wizard.GenerateResult, error)
}

type Result struct {
	Index    int
	Topic    string
	Chapter  int
	Tokens   int
	Error    error
	Duration time.Duration
}

type Options struct {
	Language    string
	APIKey      string
	StopOnError bool
	DelayMs     int
}

// Processor runs items strictly in order so chapters land in file order.
type Processor struct {
	gen    Generator
	out    io.Writer
	err    io.Writer
	logger *zap.Logger
}

func NewProcessor(gen Generator, out, errOut io.Writer, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		gen:    gen,
		out:    out,
		err:    errOut,
		logger: logger,
	}
}

func (p *Processor) Process(ctx context.Context, items []Item, opts *Options) ([]Result, error) {
	results := make([]Result, 0, len(items))
	total := len(items)

	for i, item := range items {
		select {
		case <-ctx.Done():
			return results, ctx.Err()
		default:
		}

		result := p.processItem(ctx, item, opts, i+1, total)
		results = append(results, result)

		if result.Error != nil && opts.StopOnError {
			return results, fmt.Errorf("stopped at item %d: %w", item.Index, result.Error)
		}

		if opts.DelayMs > 0 && i < len(items)-1 {
			timer := time.NewTimer(time.Duration(opts.DelayMs) * time.Millisecond)
			select {
			case <-ctx.Done():
				timer.Stop()
				return results, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return results, nil
}

func (p *Processor) processItem(ctx context.Context, item Item, opts *Options, current, total int) Result {
	start := time.Now()
	result := Result{
		Index: item.Index,
		Topic: item.Topic,
	}

	fmt.Fprintf(p.out, "[%d/%d] Writing: %q...\n", current, total, truncate(item.Topic, 50))

	lang := item.Language
	if lang == "" {
		lang = opts.Language
	}

	res, err := p.gen.GenerateChapter(ctx, wizard.GenerateInput{
		Topic:    item.Topic,
		Language: lang,
		APIKey:   opts.APIKey,
	})
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err
		p.logger.Warn("batch item failed", zap.Int("index", item.Index), zap.Error(err))
		fmt.Fprintf(p.err, "       Error: %v\n", err)
		return result
	}

	result.Chapter = res.Number
	if res.Response != nil {
		result.Tokens = res.Response.Usage.TotalTokens
	}
	fmt.Fprintf(p.out, "       Saved as chapter %d (%s)\n", result.Chapter, result.Duration.Round(time.Millisecond))

	return result
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

// ErrTopicsFailed reports a run in which at least one topic failed.
var ErrTopicsFailed = errors.New("some topics failed")

// Err returns nil when every result succeeded.
func Err(results []Result) error {
	failed := 0
	for _, r := range results {
		if r.Error != nil {
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d of %d", ErrTopicsFailed, failed, len(results))
}

func (p *Processor) PrintSummary(results []Result) {
	var successful, failed, tokens int
	var errs []Result

	for _, r := range results {
		if r.Error != nil {
			failed++
			errs = append(errs, r)
		} else {
			successful++
			tokens += r.Tokens
		}
	}

	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, "Summary:")
	fmt.Fprintf(p.out, "  Successful: %d/%d chapters\n", successful, len(results))
	if failed > 0 {
		fmt.Fprintf(p.out, "  Failed: %d (see errors below)\n", failed)
	}
	fmt.Fprintf(p.out, "  Total tokens: %d\n", tokens)

	if len(errs) > 0 {
		fmt.Fprintln(p.out)
		fmt.Fprintln(p.out, "Errors:")
		for _, e := range errs {
			fmt.Fprintf(p.out, "  [%d] %q: %v\n", e.Index, truncate(e.Topic, 40), e.Error)
		}
	}
}
