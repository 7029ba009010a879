// Package logging configures the process-wide logrus logger.
package logging

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Init sets level and format on the standard logger. Unknown levels fall back
// to info.
func Init(level, format string) {
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetOutput(os.Stdout)

	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
