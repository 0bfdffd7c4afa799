package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/manash/novelgen/internal/batch"
	"github.com/manash/novelgen/internal/cost"
	"github.com/manash/novelgen/internal/export"
	"github.com/manash/novelgen/internal/prompt"
	"github.com/manash/novelgen/internal/repl"
	"github.com/manash/novelgen/internal/server"
	"github.com/manash/novelgen/internal/session"
	"github.com/manash/novelgen/internal/wizard"
	"github.com/manash/novelgen/pkg/models"
)

var (
	flagFormat      string
	flagAuthor      string
	flagEra         string
	flagRules       string
	flagDirection   string
	flagCharacters  []string
	flagTopic       string
	flagLang        string
	flagStopOnError bool
	flagDelay       int
	flagExportKind  string
	flagOutput      string
	flagChromeBin   string
	flagNoSandbox   bool
	flagHistoryOnly bool
	flagAddr        string
)

func newSetupCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Step 1: choose the story format and author style",
		Long: fmt.Sprintf(`Choose between a short story (%s chapters) and a novel (%s chapters)
and name the author whose style the chapters should follow.

Without flags the answers are asked for interactively.`,
			models.FormatShortStory.ChapterBand(), models.FormatNovel.ChapterBand()),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, closeFn, err := app.openController()
			if err != nil {
				return err
			}
			defer closeFn()
			ctx := cmd.Context()

			in := wizard.FormatInput{Format: flagFormat, Author: flagAuthor}
			if !cmd.Flags().Changed("format") && !cmd.Flags().Changed("author") {
				rec, err := ctrl.Record(ctx)
				if err != nil {
					return err
				}
				if in, err = wizard.NewPrompter(app.In, app.Out, app.displayer()).AskFormat(rec); err != nil {
					return err
				}
			}

			rec, err := ctrl.SubmitFormat(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Saved: %s in the style of %s. Next: novelgen world\n", rec.Format.Label(), rec.Author)
			return nil
		},
	}
	cmd.Flags().StringVar(&flagFormat, "format", "", "story format (story, novel)")
	cmd.Flags().StringVar(&flagAuthor, "author", "", "author whose style to follow")
	return cmd
}

func newWorldCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "world",
		Short: "Step 2: describe the world and its characters",
		Long: `Describe the era and place, the rules of the world, where the story
is heading and who is in it. Characters are given as name|age|gender|nature
and the flag may be repeated.

Without flags the answers are asked for interactively.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, closeFn, err := app.openController()
			if err != nil {
				return err
			}
			defer closeFn()
			ctx := cmd.Context()

			var in wizard.WorldInput
			if !anyChanged(cmd, "era", "rules", "direction", "character") {
				rec, err := ctrl.Record(ctx)
				if err != nil {
					return err
				}
				if in, err = wizard.NewPrompter(app.In, app.Out, app.displayer()).AskWorld(rec); err != nil {
					return err
				}
			} else {
				in = wizard.WorldInput{
					EraPlace:       flagEra,
					WorldRules:     flagRules,
					StoryDirection: flagDirection,
				}
				for _, raw := range flagCharacters {
					c, err := wizard.ParseCharacter(raw)
					if err != nil {
						return fmt.Errorf("invalid --character %q: %w", raw, err)
					}
					in.Characters = append(in.Characters, c)
				}
			}

			rec, err := ctrl.SubmitWorld(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Saved %d character(s). Next: novelgen write\n", len(rec.Characters))
			return nil
		},
	}
	cmd.Flags().StringVar(&flagEra, "era", "", "era and place")
	cmd.Flags().StringVar(&flagRules, "rules", "", "world rules or genre")
	cmd.Flags().StringVar(&flagDirection, "direction", "", "where the story leads")
	cmd.Flags().StringArrayVarP(&flagCharacters, "character", "c", nil, "character as name|age|gender|nature (repeatable)")
	return cmd
}

func anyChanged(cmd *cobra.Command, names ...string) bool {
	for _, n := range names {
		if cmd.Flags().Changed(n) {
			return true
		}
	}
	return false
}

func newStartCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Walk through all three steps and start writing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, closeFn, err := app.openController()
			if err != nil {
				return err
			}
			defer closeFn()
			ctx := cmd.Context()

			d := app.displayer()
			p := wizard.NewPrompter(app.In, app.Out, d)

			rec, err := ctrl.Record(ctx)
			if err != nil {
				return err
			}
			fin, err := p.AskFormat(rec)
			if err != nil {
				return err
			}
			if rec, err = ctrl.SubmitFormat(ctx, fin); err != nil {
				return err
			}
			win, err := p.AskWorld(rec)
			if err != nil {
				return err
			}
			if _, err = ctrl.SubmitWorld(ctx, win); err != nil {
				return err
			}

			key, err := app.apiKey(false)
			if err != nil {
				return err
			}
			r := repl.New(&repl.Config{
				Scanner:    p.Scanner(),
				Out:        app.Out,
				Err:        app.Err,
				Controller: ctrl,
				Displayer:  d,
				Renderer:   app.renderer(flagChromeBin, flagNoSandbox),
				Logger:     app.logger,
				APIKey:     key,
				Language:   languageOr(flagLang, app.cfg.Language),
			})
			return r.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&flagLang, "lang", "l", "", "output language (default from NOVELGEN_LANGUAGE or English)")
	addRendererFlags(cmd)
	return cmd
}

func newWriteCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "write",
		Aliases: []string{"repl"},
		Short:   "Step 3: generate chapters interactively",
		Long: `Open the chapter writer. Each 'generate <topic>' produces the next chapter
using the saved format, author style and world. Type 'help' inside for the
full command list.

The format and world steps must be complete first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, closeFn, err := app.openController()
			if err != nil {
				return err
			}
			defer closeFn()

			key, err := app.apiKey(false)
			if err != nil {
				return err
			}
			r := repl.New(&repl.Config{
				In:         app.In,
				Out:        app.Out,
				Err:        app.Err,
				Controller: ctrl,
				Displayer:  app.displayer(),
				Renderer:   app.renderer(flagChromeBin, flagNoSandbox),
				Logger:     app.logger,
				APIKey:     key,
				Language:   languageOr(flagLang, app.cfg.Language),
			})
			return r.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&flagLang, "lang", "l", "", "output language (default from NOVELGEN_LANGUAGE or English)")
	addRendererFlags(cmd)
	return cmd
}

func newGenerateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "generate [topic]",
		Aliases: []string{"gen"},
		Short:   "Generate the next chapter from a topic",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := flagTopic
			if len(args) > 0 {
				topic = args[0]
			}
			if strings.TrimSpace(topic) == "" {
				return prompt.ErrEmptyTopic
			}

			ctrl, closeFn, err := app.openController()
			if err != nil {
				return err
			}
			defer closeFn()

			if _, _, err := ctrl.EnterWriting(cmd.Context()); err != nil {
				return err
			}
			key, err := app.apiKey(true)
			if err != nil {
				return err
			}

			res, err := ctrl.GenerateChapter(cmd.Context(), wizard.GenerateInput{
				Topic:    topic,
				Language: languageOr(flagLang, app.cfg.Language),
				APIKey:   key,
			})
			if err != nil {
				return err
			}

			if err := app.displayer().Chapter(res.Number, res.Chapter.Topic, res.Chapter.Content); err != nil {
				return err
			}
			if res.Response.Usage.TotalTokens > 0 {
				app.displayer().Subtle(fmt.Sprintf("Tokens: %d", res.Response.Usage.TotalTokens))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&flagTopic, "topic", "t", "", "chapter topic")
	cmd.Flags().StringVarP(&flagLang, "lang", "l", "", "output language (default from NOVELGEN_LANGUAGE or English)")
	return cmd
}

func newBatchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Generate one chapter per topic listed in a file",
		Long: `Generate chapters in order from a topics file. Supported formats:

  .txt          one topic per line, # starts a comment
  .json         ["topic", {"topic": "...", "language": "..."}]
  .yaml, .yml   the same list as YAML

A failed topic is reported and skipped unless --stop-on-error is set.
Either way the command exits non-zero when any topic failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := batch.ParseFile(args[0])
			if err != nil {
				return err
			}

			ctrl, closeFn, err := app.openController()
			if err != nil {
				return err
			}
			defer closeFn()

			if _, _, err := ctrl.EnterWriting(cmd.Context()); err != nil {
				return err
			}
			key, err := app.apiKey(true)
			if err != nil {
				return err
			}

			proc := batch.NewProcessor(ctrl, app.Out, app.Err, app.logger)
			results, err := proc.Process(cmd.Context(), items, &batch.Options{
				Language:    languageOr(flagLang, app.cfg.Language),
				APIKey:      key,
				StopOnError: flagStopOnError,
				DelayMs:     flagDelay,
			})
			proc.PrintSummary(results)
			if err != nil {
				return err
			}
			return batch.Err(results)
		},
	}
	cmd.Flags().StringVarP(&flagLang, "lang", "l", "", "default output language for topics without one")
	cmd.Flags().BoolVar(&flagStopOnError, "stop-on-error", false, "stop at the first failed topic")
	cmd.Flags().IntVar(&flagDelay, "delay", 0, "delay between topics in milliseconds")
	return cmd
}

func newChaptersCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "chapters",
		Aliases: []string{"ls"},
		Short:   "List generated chapters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, closeFn, err := app.openController()
			if err != nil {
				return err
			}
			defer closeFn()

			rec, err := ctrl.CurrentRecord(cmd.Context())
			if err != nil {
				return err
			}
			if !rec.HasChapters() {
				fmt.Fprintln(app.Out, "No chapters yet.")
				return nil
			}
			for i, ch := range rec.GeneratedChapters {
				fmt.Fprintf(app.Out, "%3d. %s\n", i+1, ch.Topic)
			}
			if rec.LastGenerated != nil {
				expires := rec.LastGenerated.Add(session.HistoryTTL)
				fmt.Fprintf(app.Out, "\nHistory kept until %s\n", session.FormatTimestamp(expires))
			}
			return nil
		},
	}
}

func newShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show [chapter]",
		Short: "Print a chapter (the latest by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, closeFn, err := app.openController()
			if err != nil {
				return err
			}
			defer closeFn()

			rec, err := ctrl.CurrentRecord(cmd.Context())
			if err != nil {
				return err
			}
			n := len(rec.GeneratedChapters)
			if n == 0 {
				return errors.New("no chapters generated yet")
			}
			if len(args) > 0 {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < 1 || v > len(rec.GeneratedChapters) {
					return fmt.Errorf("chapter must be between 1 and %d", len(rec.GeneratedChapters))
				}
				n = v
			}
			ch := rec.GeneratedChapters[n-1]
			return app.displayer().Chapter(n, ch.Topic, ch.Content)
		},
	}
}

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the saved format, world and progress",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, closeFn, err := app.openController()
			if err != nil {
				return err
			}
			defer closeFn()

			rec, err := ctrl.CurrentRecord(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Format:\t%s\n", orNone(rec.Format.Label()))
			fmt.Fprintf(w, "Author:\t%s\n", orNone(rec.Author))
			fmt.Fprintf(w, "Era/place:\t%s\n", orNone(rec.EraPlace))
			fmt.Fprintf(w, "World rules:\t%s\n", orNone(rec.WorldRules))
			fmt.Fprintf(w, "Direction:\t%s\n", orNone(rec.StoryDirection))
			fmt.Fprintf(w, "Chapters:\t%d\n", len(rec.GeneratedChapters))
			fmt.Fprintf(w, "Model:\t%s (%s)\n", app.cfg.Model, app.cfg.Backend)
			fmt.Fprintf(w, "Data dir:\t%s\n", app.cfg.DataDir)
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintln(app.Out, "Characters:")
			if len(rec.Characters) == 0 {
				fmt.Fprintln(app.Out, "  (none)")
			}
			for _, c := range rec.Characters {
				fmt.Fprintf(app.Out, "  %s\n", prompt.CharacterLine(c))
			}

			if err := wizard.CheckGate(rec); err != nil {
				var gate *wizard.GateError
				if errors.As(err, &gate) {
					fmt.Fprintf(app.Out, "\nNot ready to write: missing %s (run step %d).\n",
						strings.Join(gate.Missing, ", "), int(gate.RedirectStep))
				}
			}
			return nil
		},
	}
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(not set)"
	}
	return s
}

func newExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the chapters as HTML, text or PDF",
		Long: `Export every generated chapter into one document.

Formats:
  html      standalone HTML page
  txt       plain text with a UTF-8 byte order mark
  pdf       PDF rendered through a headless Chrome
  pdf-html  the print-ready HTML used for the PDF`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, err := export.ParseKind(flagExportKind)
			if err != nil {
				return err
			}

			ctrl, closeFn, err := app.openController()
			if err != nil {
				return err
			}
			defer closeFn()

			rec, err := ctrl.CurrentRecord(cmd.Context())
			if err != nil {
				return err
			}

			path := flagOutput
			if path == "" {
				path = export.DefaultFilename(kind)
			}
			data, err := export.Build(cmd.Context(), kind, export.FromRecord(rec), app.renderer(flagChromeBin, flagNoSandbox))
			if err != nil {
				return err
			}
			if err := export.WriteFile(path, data); err != nil {
				return err
			}
			app.logger.Info("exported", zap.String("kind", string(kind)), zap.String("path", path), zap.Int("bytes", len(data)))
			fmt.Fprintf(app.Out, "Saved %d chapter(s) to %s\n", len(rec.GeneratedChapters), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&flagExportKind, "format", "f", string(export.KindHTML), "export format (html, txt, pdf, pdf-html)")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output file (default by format)")
	addRendererFlags(cmd)
	return cmd
}

func addRendererFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagChromeBin, "chrome-bin", "", "Chrome/Chromium binary for PDF export")
	cmd.Flags().BoolVar(&flagNoSandbox, "no-sandbox", false, "launch Chrome without its sandbox")
}

func newUsageCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:       "usage [today|week|month|total|model]",
		Short:     "Show token usage of past generations",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"today", "week", "month", "total", "model"},
		RunE: func(cmd *cobra.Command, args []string) error {
			period := "total"
			if len(args) > 0 {
				period = strings.ToLower(args[0])
			}

			ctrl, closeFn, err := app.openController()
			if err != nil {
				return err
			}
			defer closeFn()
			mgr := ctrl.Sessions()
			ctx := cmd.Context()

			calc, err := app.calculator()
			if err != nil {
				return err
			}

			if period == "model" {
				rows, err := mgr.UsageByModel(ctx)
				if err != nil {
					return err
				}
				if len(rows) == 0 {
					fmt.Fprintln(app.Out, "No generations recorded.")
					return nil
				}
				w := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "MODEL\tGENERATIONS\tPROMPT\tOUTPUT\tTOTAL\tEST. COST")
				for _, r := range rows {
					est := calc.Calculate(r.Model, r.PromptTokens, r.OutputTokens)
					fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\n", r.Model, r.Generations, r.PromptTokens, r.OutputTokens, r.TotalTokens, formatCost(est))
				}
				return w.Flush()
			}

			var summary *session.UsageSummary
			var rows []session.ModelUsageSummary
			now := mgr.Now()
			switch period {
			case "total":
				summary, err = mgr.TotalUsage(ctx)
				if err == nil {
					rows, err = mgr.UsageByModel(ctx)
				}
			case "today", "week", "month":
				start := usageStart(period, now)
				summary, err = mgr.UsageByDateRange(ctx, start, now)
				if err == nil {
					rows, err = mgr.UsageByModelInRange(ctx, start, now)
				}
			default:
				return fmt.Errorf("unknown period %q: use today, week, month, total or model", period)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(app.Out, "Usage (%s)\n", period)
			fmt.Fprintf(app.Out, "  Generations:   %d\n", summary.Generations)
			fmt.Fprintf(app.Out, "  Prompt tokens: %d\n", summary.PromptTokens)
			fmt.Fprintf(app.Out, "  Output tokens: %d\n", summary.OutputTokens)
			fmt.Fprintf(app.Out, "  Total tokens:  %d\n", summary.TotalTokens)
			total, unpriced := sumCost(calc, rows)
			line := fmt.Sprintf("  Est. cost:     $%.4f", total)
			if len(unpriced) > 0 {
				line += fmt.Sprintf(" (no price for %s)", strings.Join(unpriced, ", "))
			}
			fmt.Fprintln(app.Out, line)
			return nil
		},
	}
}

func usageStart(period string, now time.Time) time.Time {
	switch period {
	case "today":
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	case "week":
		return now.AddDate(0, 0, -7)
	default:
		return now.AddDate(0, -1, 0)
	}
}

// sumCost prices each model's tokens at that model's rate. Models without
// a known price are returned separately and left out of the total.
func sumCost(calc *cost.Calculator, rows []session.ModelUsageSummary) (float64, []string) {
	var total float64
	var unpriced []string
	for _, r := range rows {
		est := calc.Calculate(r.Model, r.PromptTokens, r.OutputTokens)
		if !est.Known {
			unpriced = append(unpriced, r.Model)
			continue
		}
		total += est.Total
	}
	return total, unpriced
}

func formatCost(est *cost.Estimate) string {
	if !est.Known {
		return "n/a"
	}
	return fmt.Sprintf("$%.4f", est.Total)
}

func newPricingCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pricing",
		Short: "Show or override per-model token prices",
		Long: `Show the USD prices per million tokens used for usage estimates.

Overrides are kept in pricing.yaml in the data directory.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			calc, err := app.calculator()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(app.Out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tINPUT/1M\tOUTPUT/1M\tSOURCE")
			for _, m := range calc.Models() {
				p, _ := calc.Price(m)
				source := "built-in"
				if calc.Overridden(m) {
					source = "override"
				}
				fmt.Fprintf(w, "%s\t$%.2f\t$%.2f\t%s\n", m, p.Input, p.Output, source)
			}
			return w.Flush()
		},
	}

	set := &cobra.Command{
		Use:   "set <model> <input-per-1M> <output-per-1M>",
		Short: "Override the price of a model",
		Args:  cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			in, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid input price %q", args[1])
			}
			out, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid output price %q", args[2])
			}
			if err := cost.SetPrice(app.cfg.DataDir, args[0], cost.TokenPrice{Input: in, Output: out}); err != nil {
				return err
			}
			fmt.Fprintf(app.Out, "Saved price for %s\n", args[0])
			return nil
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Remove all price overrides",
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := cost.DeletePricing(app.cfg.DataDir); err != nil {
				return err
			}
			fmt.Fprintln(app.Out, "Price overrides removed.")
			return nil
		},
	}

	cmd.AddCommand(set, reset)
	return cmd
}

func newResetCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget the saved story (or only its chapters)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, closeFn, err := app.openController()
			if err != nil {
				return err
			}
			defer closeFn()

			if flagHistoryOnly {
				if err := ctrl.ClearHistory(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(app.Out, "Chapter history cleared.")
				return nil
			}
			if err := ctrl.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(app.Out, "Session reset. Start again with: novelgen setup")
			return nil
		},
	}
	cmd.Flags().BoolVar(&flagHistoryOnly, "history-only", false, "clear generated chapters but keep format and world")
	return cmd
}

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the wizard over HTTP",
		Long: `Serve the three steps as a JSON API for a browser front end.

The API key is read from the X-Goog-Api-Key header (or the request body)
on every chapter request and is never stored.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctrl, closeFn, err := app.openController()
			if err != nil {
				return err
			}
			defer closeFn()

			srv := server.New(ctrl, app.renderer(flagChromeBin, flagNoSandbox), app.logger)
			fmt.Fprintf(app.Out, "Listening on %s\n", flagAddr)
			return srv.Run(cmd.Context(), flagAddr)
		},
	}
	cmd.Flags().StringVar(&flagAddr, "addr", ":8080", "listen address")
	addRendererFlags(cmd)
	return cmd
}

func languageOr(flag, def string) string {
	if strings.TrimSpace(flag) != "" {
		return flag
	}
	return def
}
