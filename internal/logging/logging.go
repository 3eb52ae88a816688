package logging

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global logger. With a file path the log is written to
// both stderr and the file; otherwise stderr only.
func Init(level zerolog.Level, filePath string) error {
	writer := zerolog.MultiLevelWriter(os.Stderr)
	if filePath != "" {
		logFile, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		writer = zerolog.MultiLevelWriter(os.Stderr, logFile)
	}

	log.Logger = zerolog.New(writer).Level(level).With().Timestamp().Logger()

	if level == zerolog.DebugLevel {
		log.Debug().Msg("Log level set to DEBUG")
	}
	return nil
}
