/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package logging provides the zerolog-backed logger used by the CLI.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger writes human-readable progress to a console writer.
type Logger struct {
	zl zerolog.Logger
}

// New creates a logger writing plain text to w. Debug messages are shown
// when verbose.
func New(w io.Writer, verbose bool) *Logger {
	return newLogger(zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: "15:04:05"}, verbose)
}

// NewStderr creates a colored console logger on stderr.
func NewStderr(verbose bool) *Logger {
	return newLogger(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}, verbose)
}

func newLogger(w zerolog.ConsoleWriter, verbose bool) *Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zl := zerolog.New(w).
		Level(level).
		With().Timestamp().Logger()
	return &Logger{zl: zl}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// Info logs a formatted message at info level.
func (l *Logger) Info(format string, args ...any) {
	l.zl.Info().Msg(fmt.Sprintf(format, args...))
}

// Warning logs a formatted message at warn level.
func (l *Logger) Warning(format string, args ...any) {
	l.zl.Warn().Msg(fmt.Sprintf(format, args...))
}

// Debug logs a formatted message at debug level. It skips formatting when
// debug output is off.
func (l *Logger) Debug(format string, args ...any) {
	if l.zl.GetLevel() > zerolog.DebugLevel {
		return
	}
	l.zl.Debug().Msg(fmt.Sprintf(format, args...))
}

// Zerolog exposes the underlying logger for structured fields.
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zl
}
