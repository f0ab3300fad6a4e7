// Package logging configures the global zerolog logger from the viper keys
// log.level, log.format and log.no_color.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// InitDefault sets up a console logger at info level. Used before flags and
// config are parsed so early failures are still readable.
func InitDefault() {
	log.Logger = zerolog.New(consoleWriter(os.Stderr, false)).
		With().
		Timestamp().
		Logger().
		Level(zerolog.InfoLevel)
}

// Init configures the global logger from viper. A nil writer means stderr.
func Init(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}

	level, err := zerolog.ParseLevel(strings.ToLower(viper.GetString("log.level")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if viper.GetString("log.format") != FormatJSON {
		w = consoleWriter(w, viper.GetBool("log.no_color"))
	}

	log.Logger = zerolog.New(w).
		With().
		Timestamp().
		Logger().
		Level(level)
}

func consoleWriter(w io.Writer, noColor bool) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.Kitchen,
		NoColor:    noColor,
	}
}
