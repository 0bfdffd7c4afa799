package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/manash/novelgen/internal/config"
	"github.com/manash/novelgen/internal/cost"
	"github.com/manash/novelgen/internal/display"
	"github.com/manash/novelgen/internal/export"
	"github.com/manash/novelgen/internal/logging"
	"github.com/manash/novelgen/internal/provider"
	"github.com/manash/novelgen/internal/provider/gemini"
	"github.com/manash/novelgen/internal/provider/sdk"
	"github.com/manash/novelgen/internal/security"
	"github.com/manash/novelgen/internal/session"
	"github.com/manash/novelgen/internal/wizard"
	"github.com/manash/novelgen/pkg/models"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	flagAPIKey  string
	flagModel   string
	flagBackend string
	flagBaseURL string
	flagDataDir string
	flagVerbose bool
)

type App struct {
	In       io.Reader
	Out      io.Writer
	Err      io.Writer
	GetEnv   func(string) string
	Registry *models.ModelRegistry
	// NewFactory registers the generation backends.
	NewFactory func(registry *models.ModelRegistry) *provider.Factory
	// ReadSecret prompts for the API key without echo. It returns "" when
	// no terminal is attached.
	ReadSecret func(prompt string) (string, error)
	// Logger, when set, is used instead of building one from config.
	Logger *zap.Logger

	cfg    *config.Config
	logger *zap.Logger
}

func DefaultApp() *App {
	return &App{
		In:         os.Stdin,
		Out:        os.Stdout,
		Err:        os.Stderr,
		GetEnv:     os.Getenv,
		Registry:   models.DefaultRegistry(),
		NewFactory: defaultFactory,
		ReadSecret: readSecret,
	}
}

func defaultFactory(registry *models.ModelRegistry) *provider.Factory {
	f := provider.NewFactory(registry)
	f.Register(models.ProviderGemini, gemini.Constructor)
	f.Register(models.ProviderSDK, sdk.Constructor)
	return f
}

func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", nil
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := DefaultApp()
	rootCmd := newRootCmd(app)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "novelgen",
		Short: "Write stories and novels chapter by chapter with Gemini",
		Long: `novelgen walks through three steps to write long-form fiction with Gemini:

  1. setup   pick a format (short story or novel) and an author style
  2. world   describe the era, world rules, direction and characters
  3. write   generate one chapter at a time from a topic

Chapters are kept for 24 hours after the last generation and can be
exported as HTML, plain text or PDF.

Examples:
  novelgen start
  novelgen setup --format novel --author "Ursula K. Le Guin"
  novelgen world --era "Earthsea" --character "Ged|17|M|proud"
  novelgen generate --topic "Ged summons the shadow" --lang English
  novelgen export --format html`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.configure()
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if app.logger != nil {
				_ = app.logger.Sync()
			}
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flagAPIKey, "api-key", "", "API key (defaults to GEMINI_API_KEY or GOOGLE_API_KEY)")
	pf.StringVarP(&flagModel, "model", "m", "", "model to use (default "+models.DefaultModel+")")
	pf.StringVar(&flagBackend, "backend", "", "generation backend (gemini, sdk)")
	pf.StringVar(&flagBaseURL, "base-url", "", "override the generation API base URL")
	pf.StringVar(&flagDataDir, "data-dir", "", "directory holding the session database")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newSetupCmd(app),
		newWorldCmd(app),
		newStartCmd(app),
		newWriteCmd(app),
		newGenerateCmd(app),
		newBatchCmd(app),
		newChaptersCmd(app),
		newShowCmd(app),
		newStatusCmd(app),
		newExportCmd(app),
		newUsageCmd(app),
		newPricingCmd(app),
		newResetCmd(app),
		newServeCmd(app),
	)

	return cmd
}

// configure resolves configuration from the environment, applies flag overrides
// and builds the logger.
func (app *App) configure() error {
	cfg, err := config.Load(app.GetEnv)
	if err != nil {
		return err
	}

	if flagModel != "" {
		cfg.Model = flagModel
	}
	if flagBackend != "" {
		b := models.ProviderType(flagBackend)
		if !b.IsValid() {
			return fmt.Errorf("invalid backend %q: must be one of %v", flagBackend, models.ValidProviders())
		}
		cfg.Backend = b
	}
	if flagBaseURL != "" {
		if err := security.ValidateEndpoint(flagBaseURL); err != nil {
			return fmt.Errorf("invalid --base-url: %w", err)
		}
		cfg.BaseURL = flagBaseURL
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	if _, ok := app.Registry.Get(cfg.Model); !ok {
		return fmt.Errorf("unknown model %q: available models: %v", cfg.Model, app.Registry.List())
	}
	app.cfg = cfg

	if app.Logger != nil {
		app.logger = app.Logger
		return nil
	}
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Verbose: flagVerbose})
	if err != nil {
		return err
	}
	app.logger = logger
	return nil
}

// openController opens the session database and wires the wizard to it.
// The returned func closes the database.
func (app *App) openController() (*wizard.Controller, func(), error) {
	store, err := session.NewStore(app.cfg.DataDir, app.logger)
	if err != nil {
		return nil, nil, err
	}
	mgr := session.NewManager(store, app.logger)
	ctrl := wizard.NewController(mgr, app.NewFactory(app.Registry), wizard.ControllerConfig{
		Backend: app.cfg.Backend,
		Model:   app.cfg.Model,
		BaseURL: app.cfg.BaseURL,
	}, app.logger)
	return ctrl, func() { store.Close() }, nil
}

// apiKey resolves the key from the flag or environment, falling back to a
// hidden prompt. With required unset a missing key is not an error.
func (app *App) apiKey(required bool) (string, error) {
	key, source, err := config.ResolveAPIKey(flagAPIKey, app.GetEnv)
	if err == nil {
		app.logger.Debug("using API key", zap.String("source", source), zap.String("key", config.MaskKey(key)))
		return key, nil
	}
	if !errors.Is(err, config.ErrAPIKeyMissing) {
		return "", err
	}

	if app.ReadSecret != nil {
		key, rerr := app.ReadSecret("Gemini API key: ")
		if rerr != nil {
			return "", rerr
		}
		if key != "" {
			return key, nil
		}
	}
	if required {
		return "", err
	}
	return "", nil
}

func (app *App) calculator() (*cost.Calculator, error) {
	overrides, err := cost.LoadPricing(app.cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return cost.NewCalculator(overrides), nil
}

func (app *App) displayer() *display.Displayer {
	return display.New(app.Out)
}

func (app *App) renderer(bin string, noSandbox bool) export.Renderer {
	return &export.RodRenderer{
		Bin:       bin,
		NoSandbox: noSandbox,
		Logger:    app.logger,
	}
}
