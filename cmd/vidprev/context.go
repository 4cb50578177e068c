package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyorg/vidprev/internal/config"
	"github.com/saltyorg/vidprev/internal/credentials"
	"github.com/saltyorg/vidprev/internal/database"
	"github.com/saltyorg/vidprev/internal/engine"
	"github.com/saltyorg/vidprev/internal/jellyfin"
	"github.com/saltyorg/vidprev/internal/logging"
	"github.com/saltyorg/vidprev/internal/source"
)

const defaultDBPath = "./vidprev.db"

// commandContext carries global flags and lazily opened resources shared by
// subcommands.
type commandContext struct {
	dbPath          string
	serverURL       string
	credentialsFile string
	logFile         string
	verbosity       int
	httpTimeout     time.Duration

	startTime      int
	playbackSpeed  float64
	hoverDelay     time.Duration
	transcodeWidth int
	inputMode      string

	db *database.Manager
}

func (c *commandContext) bindFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&c.dbPath, "db", "d", defaultDBPath, "SQLite database path (or set DB_PATH env var)")
	flags.StringVar(&c.serverURL, "server", "", "Jellyfin server URL (defaults to the stored credential address)")
	flags.StringVar(&c.credentialsFile, "credentials", "", "Read the credential document from this JSON file instead of the database")
	flags.StringVar(&c.logFile, "log-file", "", `Log file path ("-" for console only; default next to the database)`)
	flags.CountVarP(&c.verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")
	flags.DurationVar(&c.httpTimeout, "http-timeout", config.DefaultTimeoutConfig().HTTPClient, "Timeout for requests to the Jellyfin API")

	flags.IntVar(&c.startTime, "start", 0, "Preview start offset in seconds")
	flags.Float64Var(&c.playbackSpeed, "speed", 0, "Preview playback speed")
	flags.DurationVar(&c.hoverDelay, "hover-delay", 0, "Delay before a hovered card starts a preview")
	flags.IntVar(&c.transcodeWidth, "transcode-width", 0, "Width of the transcoded fallback stream")
	flags.StringVar(&c.inputMode, "input", "", "Input mode: auto, pointer or touch")
}

// setup applies logging and timeouts. It runs before every subcommand.
func (c *commandContext) setup() error {
	if c.dbPath == defaultDBPath {
		if env := os.Getenv("DB_PATH"); env != "" {
			c.dbPath = env
		}
	}

	config.SetGlobalTimeouts(&config.TimeoutConfig{
		HTTPClient: c.httpTimeout,
		Shutdown:   config.DefaultTimeoutConfig().Shutdown,
	})

	logging.Apply(logging.LevelForVerbosity(c.verbosity), nil, c.logPath())
	return nil
}

func (c *commandContext) logPath() string {
	if c.logFile != "" {
		return c.logFile
	}
	return logging.FilePathForDB(c.dbPath)
}

// database opens the database on first use.
func (c *commandContext) database() (*database.Manager, error) {
	if c.db != nil {
		return c.db, nil
	}
	db, err := database.Open(c.dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	c.db = db
	// Rotation settings live in the database.
	logging.Apply(logging.LevelForVerbosity(c.verbosity), config.NewLoader(db), c.logPath())
	log.Debug().Str("path", db.Path()).Msg("Database opened")
	return db, nil
}

func (c *commandContext) close() {
	if c.db == nil {
		return
	}
	if err := c.db.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close database")
	}
	c.db = nil
}

// preview builds the preview configuration: defaults, stored settings, then
// any flags given on the command line.
func (c *commandContext) preview(cmd *cobra.Command) (config.Preview, error) {
	db, err := c.database()
	if err != nil {
		return config.Preview{}, err
	}
	p, err := config.LoadPreview(config.NewLoader(db))
	if err != nil {
		return config.Preview{}, fmt.Errorf("stored preview settings are invalid: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("start") {
		p.StartTime = c.startTime
	}
	if flags.Changed("speed") {
		p.PlaybackSpeed = c.playbackSpeed
	}
	if flags.Changed("hover-delay") {
		p.HoverDelay = c.hoverDelay
	}
	if flags.Changed("transcode-width") {
		p.TranscodeWidth = c.transcodeWidth
	}
	if flags.Changed("input") {
		p.InputMode = config.InputMode(c.inputMode)
	}
	if err := p.Validate(); err != nil {
		return config.Preview{}, err
	}
	return p, nil
}

// store returns the credential store: the --credentials file or the
// database's local storage table.
func (c *commandContext) store() (credentials.Store, error) {
	if c.credentialsFile != "" {
		return credentials.FileStore{Path: c.credentialsFile}, nil
	}
	return c.database()
}

func (c *commandContext) credentials() (credentials.Credentials, error) {
	store, err := c.store()
	if err != nil {
		return credentials.Credentials{}, err
	}
	return credentials.Load(store)
}

// resolver builds a source resolver against the configured server.
func (c *commandContext) resolver(cmd *cobra.Command) (*source.Resolver, *jellyfin.Client, error) {
	cfg, err := c.preview(cmd)
	if err != nil {
		return nil, nil, err
	}
	creds, err := c.credentials()
	if err != nil {
		return nil, nil, err
	}
	server := engine.ServerURL(c.serverURL, "", creds.Address)
	if server == "" {
		return nil, nil, engine.ErrNoServer
	}
	client := jellyfin.NewClient(server, creds.Token, nil)
	return source.NewResolver(client, cfg), client, nil
}
