package repl

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/manash/novelgen/internal/config"
	"github.com/manash/novelgen/internal/export"
	"github.com/manash/novelgen/internal/prompt"
	"github.com/manash/novelgen/internal/provider"
	"github.com/manash/novelgen/internal/session"
	"github.com/manash/novelgen/internal/wizard"
)

type Command interface {
	Name() string
	Aliases() []string
	Description() string
	Usage() string
	Execute(ctx context.Context, r *REPL, args []string) error
}

func allCommands() []Command {
	return []Command{
		&GenerateCommand{},
		&LanguageCommand{},
		&KeyCommand{},
		&ChaptersCommand{},
		&ShowCommand{},
		&ExportCommand{},
		&StatusCommand{},
		&ClearCommand{},
		&HelpCommand{},
		&QuitCommand{},
	}
}

func (r *REPL) registerCommands() {
	for _, cmd := range allCommands() {
		r.commands[cmd.Name()] = cmd
		for _, alias := range cmd.Aliases() {
			r.commands[alias] = cmd
		}
	}
}

// GenerateCommand writes the next chapter
type GenerateCommand struct{}

func (c *GenerateCommand) Name() string        { return "generate" }
func (c *GenerateCommand) Aliases() []string   { return []string{"gen", "g"} }
func (c *GenerateCommand) Description() string { return "Write the next chapter about a topic" }
func (c *GenerateCommand) Usage() string       { return "generate <topic>" }

func (c *GenerateCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}
	if r.apiKey == "" {
		return fmt.Errorf("%w: use 'key <value>' first", provider.ErrAPIKeyRequired)
	}

	topic := strings.Join(args, " ")
	fmt.Fprintf(r.out, "Writing chapter %d in %s...\n", r.chapters+1, r.language)

	res, err := r.controller.GenerateChapter(ctx, wizard.GenerateInput{
		Topic:    topic,
		Language: r.language,
		APIKey:   r.apiKey,
	})
	if err != nil {
		if errors.Is(err, provider.ErrAuthFailed) {
			return fmt.Errorf("%w (check your API key with 'key')", err)
		}
		return err
	}

	r.chapters = res.Number
	if err := r.displayer.Chapter(res.Number, res.Chapter.Topic, res.Chapter.Content); err != nil {
		fmt.Fprintf(r.err, "Warning: failed to display: %v\n", err)
	}
	if res.Response != nil && res.Response.Usage.TotalTokens > 0 {
		r.displayer.Subtle(fmt.Sprintf("%s, %d tokens", res.Response.Model, res.Response.Usage.TotalTokens))
	}
	return nil
}

// LanguageCommand sets the output language
type LanguageCommand struct{}

func (c *LanguageCommand) Name() string        { return "lang" }
func (c *LanguageCommand) Aliases() []string   { return []string{"language", "l"} }
func (c *LanguageCommand) Description() string { return "Get or set the output language" }
func (c *LanguageCommand) Usage() string       { return "lang [language]" }

func (c *LanguageCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(r.out, "Output language: %s\n", r.language)
		return nil
	}
	r.language = strings.Join(args, " ")
	fmt.Fprintf(r.out, "Output language set to: %s\n", r.language)
	return nil
}

// KeyCommand sets the API key for this session only
type KeyCommand struct{}

func (c *KeyCommand) Name() string      { return "key" }
func (c *KeyCommand) Aliases() []string { return nil }
func (c *KeyCommand) Description() string {
	return "Set the API key for this session (kept in memory only)"
}
func (c *KeyCommand) Usage() string { return "key [value]" }

func (c *KeyCommand) Execute(_ context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		if r.apiKey == "" {
			fmt.Fprintln(r.out, "No API key set.")
		} else {
			fmt.Fprintf(r.out, "API key: %s\n", config.MaskKey(r.apiKey))
		}
		return nil
	}
	r.apiKey = args[0]
	fmt.Fprintf(r.out, "API key set: %s\n", config.MaskKey(r.apiKey))
	return nil
}

// ChaptersCommand lists the chapter history
type ChaptersCommand struct{}

func (c *ChaptersCommand) Name() string        { return "chapters" }
func (c *ChaptersCommand) Aliases() []string   { return []string{"ls", "history"} }
func (c *ChaptersCommand) Description() string { return "List generated chapters" }
func (c *ChaptersCommand) Usage() string       { return "chapters" }

func (c *ChaptersCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	rec, err := r.controller.CurrentRecord(ctx)
	if err != nil {
		return err
	}
	r.chapters = len(rec.GeneratedChapters)

	if r.chapters == 0 {
		fmt.Fprintln(r.out, "No chapters yet.")
		return nil
	}

	for i, ch := range rec.GeneratedChapters {
		fmt.Fprintf(r.out, "  %3d. %s (%d words)\n", i+1, truncate(ch.Topic, 50), len(strings.Fields(ch.Content)))
	}
	if rec.LastGenerated != nil {
		r.displayer.Subtle("Last generated: " + session.FormatTimestamp(rec.LastGenerated.Local()))
	}
	return nil
}

// ShowCommand renders one chapter
type ShowCommand struct{}

func (c *ShowCommand) Name() string        { return "show" }
func (c *ShowCommand) Aliases() []string   { return []string{"s", "read"} }
func (c *ShowCommand) Description() string { return "Show a chapter (default: the latest)" }
func (c *ShowCommand) Usage() string       { return "show [number]" }

func (c *ShowCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	rec, err := r.controller.CurrentRecord(ctx)
	if err != nil {
		return err
	}
	if !rec.HasChapters() {
		return export.ErrNoChapters
	}

	n := len(rec.GeneratedChapters)
	if len(args) > 0 {
		n, err = strconv.Atoi(args[0])
		if err != nil || n < 1 || n > len(rec.GeneratedChapters) {
			return fmt.Errorf("chapter must be between 1 and %d", len(rec.GeneratedChapters))
		}
	}

	ch := rec.GeneratedChapters[n-1]
	return r.displayer.Chapter(n, ch.Topic, ch.Content)
}

// ExportCommand writes the book to a file
type ExportCommand struct{}

func (c *ExportCommand) Name() string      { return "export" }
func (c *ExportCommand) Aliases() []string { return []string{"save"} }
func (c *ExportCommand) Description() string {
	return "Export all chapters (html, txt, pdf, pdf-html)"
}
func (c *ExportCommand) Usage() string { return "export <html|txt|pdf|pdf-html> [path]" }

func (c *ExportCommand) Execute(ctx context.Context, r *REPL, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: %s", c.Usage())
	}

	kind, err := export.ParseKind(args[0])
	if err != nil {
		return err
	}

	path := export.DefaultFilename(kind)
	if len(args) > 1 {
		path = args[1]
	}

	rec, err := r.controller.CurrentRecord(ctx)
	if err != nil {
		return err
	}

	data, err := export.Build(ctx, kind, export.FromRecord(rec), r.renderer)
	if err != nil {
		return err
	}
	if err := export.WriteFile(path, data); err != nil {
		return err
	}

	r.logger.Info("exported book", zap.String("kind", string(kind)), zap.String("path", path), zap.Int("bytes", len(data)))
	fmt.Fprintf(r.out, "Exported %d chapter(s) to %s\n", len(rec.GeneratedChapters), path)
	return nil
}

// StatusCommand summarises the wizard answers
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Aliases() []string   { return []string{"info"} }
func (c *StatusCommand) Description() string { return "Show the story setup and history size" }
func (c *StatusCommand) Usage() string       { return "status" }

func (c *StatusCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	rec, err := r.controller.CurrentRecord(ctx)
	if err != nil {
		return err
	}
	r.chapters = len(rec.GeneratedChapters)
	cfg := r.controller.Config()

	fmt.Fprintf(r.out, "Format:     %s\n", rec.Format.Label())
	fmt.Fprintf(r.out, "Author:     %s\n", rec.Author)
	fmt.Fprintf(r.out, "Era/place:  %s\n", orNone(rec.EraPlace))
	fmt.Fprintf(r.out, "Rules:      %s\n", orNone(rec.WorldRules))
	fmt.Fprintf(r.out, "Direction:  %s\n", orNone(rec.StoryDirection))
	fmt.Fprintln(r.out, "Characters:")
	for _, ch := range rec.Characters {
		fmt.Fprintf(r.out, "  - %s\n", prompt.CharacterLine(ch))
	}
	fmt.Fprintf(r.out, "Chapters:   %d\n", r.chapters)
	fmt.Fprintf(r.out, "Language:   %s\n", r.language)
	fmt.Fprintf(r.out, "Model:      %s (%s)\n", cfg.Model, cfg.Backend)
	return nil
}

// ClearCommand drops the chapter history
type ClearCommand struct{}

func (c *ClearCommand) Name() string        { return "clear" }
func (c *ClearCommand) Aliases() []string   { return nil }
func (c *ClearCommand) Description() string { return "Delete all generated chapters" }
func (c *ClearCommand) Usage() string       { return "clear" }

func (c *ClearCommand) Execute(ctx context.Context, r *REPL, _ []string) error {
	if err := r.controller.ClearHistory(ctx); err != nil {
		return err
	}
	r.chapters = 0
	fmt.Fprintln(r.out, "Chapter history cleared.")
	return nil
}

// HelpCommand shows available commands
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Aliases() []string   { return []string{"?"} }
func (c *HelpCommand) Description() string { return "Show available commands" }
func (c *HelpCommand) Usage() string       { return "help" }

func (c *HelpCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, "Available commands:")
	fmt.Fprintln(r.out)

	for _, cmd := range allCommands() {
		aliases := ""
		if len(cmd.Aliases()) > 0 {
			aliases = fmt.Sprintf(" (%s)", strings.Join(cmd.Aliases(), ", "))
		}
		fmt.Fprintf(r.out, "  %-24s%s\n", cmd.Name()+aliases, cmd.Description())
		fmt.Fprintf(r.out, "  %-24sUsage: %s\n", "", cmd.Usage())
	}

	return nil
}

// QuitCommand exits the REPL
type QuitCommand struct{}

func (c *QuitCommand) Name() string        { return "quit" }
func (c *QuitCommand) Aliases() []string   { return []string{"exit", "q"} }
func (c *QuitCommand) Description() string { return "Exit interactive mode" }
func (c *QuitCommand) Usage() string       { return "quit" }

func (c *QuitCommand) Execute(_ context.Context, r *REPL, _ []string) error {
	fmt.Fprintln(r.out, "Goodbye!")
	r.Stop()
	return nil
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
