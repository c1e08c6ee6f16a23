// Package logger: единый вывод логов assistnow с учётом quiet и debug.
//
// Функции Info/Warn/Error/Debug сохраняют printf-стиль для сообщений
// пользователю; компоненты берут With() для структурных полей.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Quiet при true отключает информационные сообщения (Info); Error выводится всегда.
var Quiet bool

var base = New(os.Stderr)

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// New создаёт логгер с консольным выводом в w.
func New(w io.Writer) zerolog.Logger {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	return zerolog.New(cw).With().Timestamp().Str("app", "assistnow").Logger()
}

// SetOutput перенаправляет вывод (для тестов и cmd).
func SetOutput(w io.Writer) {
	base = New(w)
}

// SetDebug включает отладочные сообщения.
func SetDebug(on bool) {
	if on {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// With возвращает логгер компонента. При Quiet пропускает всё ниже Warn.
func With(component string) zerolog.Logger {
	l := base.With().Str("module", component).Logger()
	if Quiet {
		return l.Level(zerolog.WarnLevel)
	}
	return l
}

// Info выводит сообщение, если Quiet == false.
func Info(format string, args ...interface{}) {
	if Quiet {
		return
	}
	base.Info().Msgf(format, args...)
}

// Warn выводится всегда.
func Warn(format string, args ...interface{}) {
	base.Warn().Msgf(format, args...)
}

// Error выводит сообщение об ошибке всегда.
func Error(format string, args ...interface{}) {
	base.Error().Msgf(format, args...)
}

// Debug выводится только при SetDebug(true).
func Debug(format string, args ...interface{}) {
	base.Debug().Msgf(format, args...)
}
