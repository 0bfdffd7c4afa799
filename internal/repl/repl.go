// Package repl is the interactive writing step: one chapter per command.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/manash/novelgen/internal/display"
	"github.com/manash/novelgen/internal/export"
	"github.com/manash/novelgen/internal/wizard"
)

type REPL struct {
	scanner    *bufio.Scanner
	out        io.Writer
	err        io.Writer
	controller *wizard.Controller
	displayer  *display.Displayer
	renderer   export.Renderer
	logger     *zap.Logger
	commands   map[string]Command
	running    bool

	// apiKey lives only for the lifetime of the REPL.
	apiKey   string
	language string
	chapters int
}

type Config struct {
	In io.Reader
	// Scanner, when set, continues reading a stream that was already
	// partially consumed (the guided setup steps). In is ignored then.
	Scanner    *bufio.Scanner
	Out        io.Writer
	Err        io.Writer
	Controller *wizard.Controller
	Displayer  *display.Displayer
	Renderer   export.Renderer
	Logger     *zap.Logger
	APIKey     string
	Language   string
}

func New(cfg *Config) *REPL {
	r := &REPL{
		scanner:    cfg.Scanner,
		out:        cfg.Out,
		err:        cfg.Err,
		controller: cfg.Controller,
		displayer:  cfg.Displayer,
		renderer:   cfg.Renderer,
		logger:     cfg.Logger,
		commands:   make(map[string]Command),
		apiKey:     cfg.APIKey,
		language:   cfg.Language,
	}
	if r.scanner == nil {
		r.scanner = bufio.NewScanner(cfg.In)
	}
	if r.displayer == nil {
		r.displayer = display.New(r.out)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if strings.TrimSpace(r.language) == "" {
		r.language = "English"
	}
	r.registerCommands()
	return r
}

// Run enters step 3. An incomplete record returns the gate error before
// any command is read.
func (r *REPL) Run(ctx context.Context) error {
	rec, _, err := r.controller.EnterWriting(ctx)
	if err != nil {
		return err
	}
	r.chapters = len(rec.GeneratedChapters)

	r.running = true
	r.printWelcome()

	for r.running {
		r.printPrompt()
		if !r.scanner.Scan() {
			break
		}

		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}

		if err := r.execute(ctx, line); err != nil {
			fmt.Fprintf(r.err, "Error: %v\n", err)
		}
	}

	return r.scanner.Err()
}

func (r *REPL) execute(ctx context.Context, line string) error {
	parts := parseCommand(line)
	if len(parts) == 0 {
		return nil
	}

	cmdName := strings.ToLower(parts[0])
	args := parts[1:]

	cmd, ok := r.commands[cmdName]
	if !ok {
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", cmdName)
	}

	return cmd.Execute(ctx, r, args)
}

func (r *REPL) Stop() {
	r.running = false
}

func (r *REPL) printWelcome() {
	r.displayer.Title("Step 3 of 3: Writing")
	fmt.Fprintln(r.out, "Type 'generate <topic>' to write the next chapter, 'help' for all commands.")
	fmt.Fprintln(r.out)
}

func (r *REPL) printPrompt() {
	fmt.Fprintf(r.out, "novelgen [%s] (ch %d)> ", r.language, r.chapters)
}

func parseCommand(line string) []string {
	var parts []string
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)

	for _, ch := range line {
		switch {
		case ch == '"' || ch == '\'':
			if inQuotes && ch == quoteChar {
				inQuotes = false
				quoteChar = 0
			} else if !inQuotes {
				inQuotes = true
				quoteChar = ch
			} else {
				current.WriteRune(ch)
			}
		case ch == ' ' && !inQuotes:
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(ch)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
