package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ajramos/mailsync/internal/config"
	"github.com/ajramos/mailsync/internal/db"
	"github.com/ajramos/mailsync/internal/events"
	"github.com/ajramos/mailsync/internal/logging"
	"github.com/ajramos/mailsync/internal/mailapi"
	"github.com/ajramos/mailsync/internal/push"
	"github.com/ajramos/mailsync/internal/render"
	"github.com/ajramos/mailsync/internal/services"
	"github.com/ajramos/mailsync/internal/version"
	"github.com/ajramos/mailsync/pkg/auth"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const listWidth = 100

func main() {
	configPathFlag := flag.String("config", "", "Path to YAML configuration file (default: ~/.config/mailsync/config.yaml)")
	envFileFlag := flag.String("env-file", ".env", "Optional .env file loaded before environment lookup")
	onceFlag := flag.Bool("once", false, "Load folders and the inbox, print them and exit")
	verboseFlag := flag.Bool("verbose", false, "Log to stderr in human readable form instead of the log file")
	versionFlag := flag.Bool("version", false, "Show version information and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s\n\n", version.GetVersionString())
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  %-20s Override default config file path\n", config.EnvConfigPath)
		fmt.Fprintf(os.Stderr, "  %-20s Mail service API base URL\n", config.EnvAPIURL)
		fmt.Fprintf(os.Stderr, "  %-20s Push channel URL (empty disables push)\n", config.EnvPushURL)
		fmt.Fprintf(os.Stderr, "  %-20s Session access token\n", config.EnvToken)
	}
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.GetDetailedVersionString())
		return
	}

	if err := loadEnvFile(*envFileFlag); err != nil {
		log.Printf("Warning: could not load %s: %v", *envFileFlag, err)
	}

	cfg, err := config.LoadConfig(getConfigPath(*configPathFlag))
	if err != nil {
		log.Fatalf("Could not load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logOpts := logging.Options{File: cfg.Log.File, Level: cfg.Log.Level}
	if *verboseFlag {
		logOpts = logging.Options{Level: cfg.Log.Level, Console: true}
	}
	logger, logCloser, err := logging.New(logOpts)
	if err != nil {
		log.Fatalf("Could not initialize logging: %v", err)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *onceFlag, os.Stdout); err != nil {
		logger.Error().Err(err).Msg("mailsync stopped")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger, once bool, out io.Writer) error {
	logger.Info().Str("version", version.Version).Str("api", cfg.APIBaseURL).Msg("mailsync starting")

	session := auth.NewSession(cfg.TokenFile)
	tok, err := sessionToken(cfg, session)
	if err != nil {
		logger.Warn().Err(err).Msg("no session token, requests are unauthenticated")
	}
	var ts oauth2.TokenSource
	if tok != nil {
		ts = auth.NewTokenSource(ctx, cfg.APIBaseURL, tok, nil, func(t *oauth2.Token) {
			if err := session.SaveToken(t); err != nil {
				logger.Warn().Err(err).Msg("could not persist refreshed token")
			}
		})
	}

	client := mailapi.NewClient(ctx, cfg.APIBaseURL, ts, cfg.RequestTimeout)
	client.SetLogger(logger)

	opts := services.EngineOptions{
		Repository:   client,
		Account:      cfg.Account,
		PageSize:     cfg.PageSize,
		PollInterval: cfg.PollInterval,
		RetryPolicy:  services.NewRetryPolicy(cfg.Reconnect),
		Logger:       &logger,
	}
	if strings.Contains(cfg.Account, "@") {
		opts.Self = cfg.Account
	}
	if cfg.PushURL != "" {
		dialer, err := push.NewDialer(cfg.PushURL)
		if err != nil {
			return fmt.Errorf("push channel: %w", err)
		}
		opts.Dialer = dialer
		opts.Credentials = func() (string, error) {
			return auth.CurrentAccessToken(ts, time.Now())
		}
	}
	if cfg.Snapshot.Enabled {
		store, err := db.Open(ctx, cfg.Snapshot.Path)
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.Snapshot.Path).Msg("snapshot store unavailable, starting cold")
		} else {
			defer store.Close()
			opts.Snapshots = db.NewSnapshotStore(store)
		}
	}

	engine, err := services.NewEngine(opts)
	if err != nil {
		return err
	}
	defer engine.Close()

	renderer := render.NewEmailRenderer()
	changes, unsubscribe := engine.Subscribe(64)
	defer unsubscribe()

	if err := engine.Bootstrap(ctx); err != nil {
		if once {
			return err
		}
		logger.Warn().Err(err).Msg("initial load incomplete, waiting for sync")
	}
	printState(out, renderer, engine.State())
	if once {
		return nil
	}

	if err := engine.StartAutoSync(ctx); err != nil {
		return err
	}
	return watch(ctx, out, renderer, engine.State(), changes)
}

// watch prints the registry and list whenever they change until ctx ends
func watch(ctx context.Context, out io.Writer, renderer *render.EmailRenderer, state *services.State, changes <-chan events.Change) error {
	var lastConn services.ConnStatus = -1
	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-changes:
			if !ok {
				return nil
			}
			switch c.Kind {
			case events.KindFolders, events.KindView:
				if !state.View.Loading() {
					printState(out, renderer, state)
				}
			case events.KindConnection:
				if info := state.Connection.Get(); info.Status != lastConn {
					lastConn = info.Status
					fmt.Fprintln(out, formatConnection(info))
				}
			case events.KindMutationFailed:
				fmt.Fprintf(out, "! %v\n", c.Err)
			}
		}
	}
}

func printState(out io.Writer, renderer *render.EmailRenderer, state *services.State) {
	selected := state.Folders.SelectedFolderID()
	for _, f := range state.Folders.Folders() {
		fmt.Fprintln(out, renderer.FormatFolderLine(f, f.ID != 0 && f.ID == selected))
	}
	snap := state.View.Snapshot()
	if !snap.Active {
		return
	}
	fmt.Fprintf(out, "-- %s (%d of %d) --\n", snap.Descriptor, len(snap.Items), snap.Total)
	for _, m := range snap.Items {
		fmt.Fprintln(out, renderer.FormatSummaryLine(m, listWidth, m.ID == snap.SelectedID))
	}
}

func formatConnection(info services.ConnectionInfo) string {
	if info.Status == services.Reconnecting {
		return fmt.Sprintf("~ push %s (attempt %d, next at %s)", info.Status, info.Attempt, info.NextRetryAt.Format(time.Kitchen))
	}
	return fmt.Sprintf("~ push %s", info.Status)
}

// sessionToken prefers a token from the environment over the cached one
func sessionToken(cfg *config.Config, session *auth.Session) (*oauth2.Token, error) {
	if cfg.Token != "" {
		if err := auth.ValidateAccessToken(cfg.Token, time.Now()); err != nil && !errors.Is(err, auth.ErrTokenExpired) {
			return nil, err
		}
		return auth.TokenFromPair(cfg.Token, ""), nil
	}
	return session.LoadToken()
}

// loadEnvFile loads KEY=VALUE pairs without overriding the real environment.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// getConfigPath returns the configuration file path using the following priority:
// 1. CLI flag
// 2. Environment variable MAILSYNC_CONFIG
// 3. Default path ~/.config/mailsync/config.yaml
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envPath := os.Getenv(config.EnvConfigPath); envPath != "" {
		return envPath
	}
	return config.DefaultConfigPath()
}
