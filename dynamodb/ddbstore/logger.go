package ddbstore

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// badgerLogger routes badger's printf-style logging into zerolog.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error().Msg(clean(format, args))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn().Msg(clean(format, args))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Info().Msg(clean(format, args))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug().Msg(clean(format, args))
}

func clean(format string, args []interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
