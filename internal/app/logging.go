package app

import (
	"strings"

	log "github.com/sirupsen/logrus"
)

// ConfigureLogging sets the global logrus level and formatter. Unknown
// levels fall back to info.
func ConfigureLogging(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	parsed, errParse := log.ParseLevel(strings.TrimSpace(level))
	if errParse != nil {
		log.WithField("level", level).Warn("unknown log level, using info")
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}
