package logger

import (
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"

	logFileName = "multibot.log"
)

// SetupLogger builds the process-wide slog.Logger.
//
// local -> text handler to stdout at debug level.
// dev   -> json handler to a rotating log file at debug level.
// prod  -> json handler to a rotating log file at info level.
//
// format, when non-empty, overrides the json/text choice for dev/prod
// (LOG_FORMAT env var); local always logs as text to stdout.
func SetupLogger(env, format, logDir string) *slog.Logger {
	switch env {
	case EnvLocal:
		return slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case EnvDev, EnvProd:
		level := slog.LevelDebug
		if env == EnvProd {
			level = slog.LevelInfo
		}
		sink := &lumberjack.Logger{
			Filename:   logFilePath(logDir),
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
		opts := &slog.HandlerOptions{Level: level}
		if format == "text" {
			return slog.New(slog.NewTextHandler(sink, opts))
		}
		return slog.New(slog.NewJSONHandler(sink, opts))
	default:
		log.Fatal("invalid environment: ", env)
		return nil
	}
}

func logFilePath(dir string) string {
	if dir == "" {
		dir = "/var/log/multibot"
	}
	return filepath.Join(dir, logFileName)
}
