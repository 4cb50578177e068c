package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/saltyorg/vidprev/internal/config"
)

const (
	DefaultLogFilePath = "vidprev.log"
	DefaultMaxSizeMB   = 10
	DefaultMaxBackups  = 3
	DefaultMaxAgeDays  = 14
	DefaultCompress    = true

	// ConsoleOnly disables the rotating file writer when passed as the log
	// file path.
	ConsoleOnly = "-"

	timeFormat = "2006-01-02 15:04:05"
)

// LevelForVerbosity maps a repeated -v flag count to a level name.
func LevelForVerbosity(verbosity int) string {
	switch {
	case verbosity >= 2:
		return "trace"
	case verbosity == 1:
		return "debug"
	default:
		return "info"
	}
}

// Apply sets the global log level and output writers (console + rotating file).
// logFilePath is the destination file; when empty, a default filename next to
// the database is expected to have been resolved by the caller.
func Apply(level string, loader *config.Loader, logFilePath string) {
	applyLevel(level)
	applyOutputs(os.Stderr, loader, logFilePath)
}

// Console points the global logger at w only, without colour. Used where no
// filesystem is available.
func Console(level string, w io.Writer) {
	applyLevel(level)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat, NoColor: true}).
		With().Timestamp().Logger()
}

func applyLevel(level string) {
	switch level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

func applyOutputs(console io.Writer, loader *config.Loader, logFilePath string) {
	maxSize := loader.Int("log.max_size_mb", DefaultMaxSizeMB)
	if maxSize <= 0 {
		maxSize = DefaultMaxSizeMB
	}
	maxBackups := max(loader.Int("log.max_backups", DefaultMaxBackups), 0)
	maxAgeDays := max(loader.Int("log.max_age_days", DefaultMaxAgeDays), 0)
	compress := loader.Bool("log.compress", DefaultCompress)

	consoleOutput := zerolog.ConsoleWriter{Out: console, TimeFormat: timeFormat}
	log.Logger = zerolog.New(consoleOutput).With().Timestamp().Logger()

	if logFilePath == ConsoleOnly {
		return
	}
	if logFilePath == "" {
		logFilePath = DefaultLogFilePath
	}

	if err := ensureLogDir(logFilePath); err != nil {
		log.Error().Err(err).Str("path", logFilePath).Msg("Failed to prepare log directory; logging to console only")
		return
	}

	fileWriter := &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   compress,
	}

	fileConsole := zerolog.ConsoleWriter{
		Out:        fileWriter,
		TimeFormat: timeFormat,
		NoColor:    true,
	}

	multi := zerolog.MultiLevelWriter(consoleOutput, fileConsole)
	log.Logger = zerolog.New(multi).With().Timestamp().Logger()
}

// FilePathForDB returns a log file path that lives alongside the database file.
func FilePathForDB(dbPath string) string {
	if dbPath == "" {
		return DefaultLogFilePath
	}
	absDBPath, err := filepath.Abs(dbPath)
	if err != nil {
		return filepath.Join(filepath.Dir(dbPath), DefaultLogFilePath)
	}
	return filepath.Join(filepath.Dir(absDBPath), DefaultLogFilePath)
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
