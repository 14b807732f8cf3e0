// Package logging provides per-component logrus loggers configured from the
// "logging" section of envmirror.yml and ENVMIRROR_LOG_* environment variables.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/grovetools/envmirror/config"
	"github.com/grovetools/envmirror/pkg/paths"
	"github.com/grovetools/envmirror/util/pathutil"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex
)

// NewLogger creates and returns a pre-configured logger for a specific component.
// Loggers are cached per component.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}

	var logCfg Config
	if cfg, err := config.LoadDefault(); err == nil {
		if err := cfg.UnmarshalExtension("logging", &logCfg); err != nil {
			logrus.Warnf("Failed to parse 'logging' config: %v", err)
		}
	}

	entry := build(component, logCfg, isInteractive())
	loggers[component] = entry
	return entry
}

// NewLoggerWithConfig builds an uncached logger from an explicit configuration.
func NewLoggerWithConfig(component string, logCfg Config) *logrus.Entry {
	return build(component, logCfg, isInteractive())
}

// Reset drops every cached logger so the next NewLogger call reloads configuration.
func Reset() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, entry := range loggers {
		for _, hooks := range entry.Logger.Hooks {
			for _, h := range hooks {
				if fh, ok := h.(*fileHook); ok {
					fh.sink.Close()
				}
			}
		}
	}
	loggers = make(map[string]*logrus.Entry)
}

func build(component string, logCfg Config, interactive bool) *logrus.Entry {
	logger := logrus.New()

	levelStr := "info"
	if env := os.Getenv("ENVMIRROR_LOG_LEVEL"); env != "" {
		levelStr = env
	} else if logCfg.Level != "" {
		levelStr = logCfg.Level
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if os.Getenv("ENVMIRROR_LOG_CALLER") == "true" || logCfg.ReportCaller {
		logger.SetReportCaller(true)
	}

	logger.SetFormatter(formatterFor(logCfg.Format))

	if !logCfg.ComponentFiltering.Allows(component) {
		logger.SetOutput(io.Discard)
		return logger.WithField("component", component)
	}

	if logCfg.File.Enabled {
		path := logCfg.File.Path
		if path == "" {
			path = defaultLogPath(component, time.Now())
		}
		var formatter logrus.Formatter = &TextFormatter{Config: FormatConfig{}}
		if logCfg.File.Format == "json" {
			formatter = &logrus.JSONFormatter{}
		}
		logger.AddHook(&fileHook{sink: newFileSink(pathutil.MustExpand(path)), formatter: formatter})
	}

	if shouldLogToStderr(logCfg.Format.StructuredToStderr, level, interactive) {
		logger.SetOutput(GetGlobalOutput())
	} else {
		logger.SetOutput(io.Discard)
	}

	return logger.WithField("component", component)
}

func formatterFor(format FormatConfig) logrus.Formatter {
	switch format.Preset {
	case "json":
		return &logrus.JSONFormatter{}
	case "simple":
		return &TextFormatter{Config: FormatConfig{
			DisableTimestamp: true,
			DisableComponent: true,
		}}
	default:
		return &TextFormatter{Config: format}
	}
}

// shouldLogToStderr applies the structured_to_stderr mode. In "auto" mode
// logs go to stderr when debugging or when stderr is not a terminal.
func shouldLogToStderr(mode string, level logrus.Level, interactive bool) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	default:
		isDebug := os.Getenv("ENVMIRROR_DEBUG") == "1" || level >= logrus.DebugLevel
		return isDebug || !interactive
	}
}

func isInteractive() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func defaultLogPath(component string, now time.Time) string {
	return filepath.Join(paths.StateDir(), "logs", fmt.Sprintf("%s-%s.log", component, now.Format("2006-01-02")))
}

