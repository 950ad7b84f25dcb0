package launcher

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/evalphobia/logrus_sentry"
	"github.com/sirupsen/logrus"
)

var verbosityLevels = []logrus.Level{
	logrus.FatalLevel,
	logrus.ErrorLevel,
	logrus.WarnLevel,
	logrus.InfoLevel,
	logrus.DebugLevel,
	logrus.TraceLevel,
}

// SetupLogger builds the node logger from the logging section of the config.
func SetupLogger(cfg LoggingConfig, out io.Writer) (*logrus.Logger, error) {
	if out == nil {
		out = os.Stderr
	}
	if cfg.Verbosity < 0 || cfg.Verbosity >= len(verbosityLevels) {
		return nil, fmt.Errorf("invalid log verbosity %d (want 0-%d)", cfg.Verbosity, len(verbosityLevels)-1)
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(verbosityLevels[cfg.Verbosity])

	switch cfg.Format {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
			ForceColors:     cfg.Color,
			DisableColors:   !cfg.Color,
		})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	default:
		return nil, fmt.Errorf("unknown log format %q (want text or json)", cfg.Format)
	}

	if cfg.SentryDSN != "" {
		hook, err := logrus_sentry.NewSentryHook(cfg.SentryDSN, []logrus.Level{
			logrus.PanicLevel,
			logrus.FatalLevel,
			logrus.ErrorLevel,
		})
		if err != nil {
			return nil, fmt.Errorf("sentry hook: %w", err)
		}
		hook.Timeout = 5 * time.Second
		logger.AddHook(hook)
	}
	return logger, nil
}
