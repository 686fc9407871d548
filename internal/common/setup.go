// Package common holds ambient host-process helpers: logger bootstrap and
// the console formatting used by the CLI tools under cmd/, matching the
// teacher's internal/common.
package common

import (
	"log"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from a .env file if one exists.
func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: no .env file found or unable to load it: %v", err)
		log.Println("Set environment variables via export or other means instead")
	} else {
		log.Println("Loaded environment variables from .env file")
	}
}

// InitializeLogger installs a production zap logger as the global logger
// (zap.L()) and returns a cleanup func that flushes it on shutdown.
func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil && !isIgnorableSyncError(err) {
			log.Printf("failed to sync logger: %v", err)
		}
	}
	return logger, cleanup
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
