package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"keepsake/internal/config"
)

// LogFileName is the daemon log written inside the configured log directory.
const LogFileName = "keepsake.log"

// Options describes logger construction parameters. OutputPaths and
// ErrorOutputPaths accept file paths plus the names "stdout" and "stderr";
// every destination receives every record.
type Options struct {
	Level            string
	Format           string
	OutputPaths      []string
	ErrorOutputPaths []string
	Development      bool
}

type handlerFactory func(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler

var formats = map[string]handlerFactory{
	"console": newConsoleHandler,
	"json":    newJSONHandler,
}

// New constructs a logger from opts. Format defaults to console.
func New(opts Options) (*slog.Logger, error) {
	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "console"
	}
	factory, ok := formats[format]
	if !ok {
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	outputs := opts.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	errOutputs := opts.ErrorOutputPaths
	if len(errOutputs) == 0 {
		errOutputs = []string{"stderr"}
	}
	w, err := openDestinations(append(append([]string(nil), outputs...), errOutputs...))
	if err != nil {
		return nil, err
	}

	lvl := levelVar(opts.Level)
	return slog.New(factory(w, lvl, opts.Development || lvl.Level() <= slog.LevelDebug)), nil
}

// NewFromConfig builds the daemon logger. Records go to the console in the
// configured format and, when a log directory is set, to keepsake.log as
// JSON so `keepsake logs` can parse them.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info"})
	}
	console, err := New(Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil || cfg.Paths.LogDir == "" {
		return console, err
	}
	file, err := openLogFile(filepath.Join(cfg.Paths.LogDir, LogFileName))
	if err != nil {
		return nil, err
	}
	return TeeLogger(console, newJSONHandler(file, levelVar(cfg.Logging.Level), false)), nil
}

func levelVar(name string) *slog.LevelVar {
	lvl := new(slog.LevelVar)
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		lvl.Set(slog.LevelDebug)
	case "warn", "warning":
		lvl.Set(slog.LevelWarn)
	case "error":
		lvl.Set(slog.LevelError)
	default:
		lvl.Set(slog.LevelInfo)
	}
	return lvl
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}

// openDestinations opens each distinct destination once.
func openDestinations(paths []string) (io.Writer, error) {
	seen := make(map[string]bool, len(paths))
	var writers []io.Writer
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		switch p {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			file, err := openLogFile(p)
			if err != nil {
				return nil, err
			}
			writers = append(writers, file)
		}
	}
	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}
