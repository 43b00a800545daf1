package common

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger.  Components attach their own fields
// with Log.WithField rather than creating loggers of their own.
var Log = logrus.New()

// SetupLogging configures Log from the LOG_LEVEL environment
// variable.  Unknown levels fall back to info.
func SetupLogging() {
	Log.SetOutput(os.Stderr)
	Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		Log.Warnf("unknown LOG_LEVEL %q, using info", level)
		parsed = logrus.InfoLevel
	}
	Log.SetLevel(parsed)
}
