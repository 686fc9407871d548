// Package config loads the host process's configuration the way the
// teacher's internal/config did: typed environment variables with
// defaults, layered under CLI flags parsed by cmd/pesahost (§6).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/OmentaElvis/pesa-playground-sub000/internal/models"
)

// Load reads environment variables into a Config. CLI flags (--port,
// --address, --webroot) are applied on top by cmd/pesahost after Load
// returns, matching the teacher's flag-overlays-env layering.
func Load() (*models.Config, error) {
	connMaxLifetime, err := getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	connMaxIdleTime, err := getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second)
	if err != nil {
		return nil, err
	}
	registryWait, err := getEnvDuration("REGISTRY_WAIT_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	outboundTimeout, err := getEnvDuration("OUTBOUND_TIMEOUT", 8*time.Second)
	if err != nil {
		return nil, err
	}
	accessTokenTTL, err := getEnvDuration("ACCESS_TOKEN_TTL", time.Hour)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	port, err := getEnvUint16("PORT", 7777)
	if err != nil {
		return nil, err
	}

	return &models.Config{
		Address: getEnvString("ADDRESS", "127.0.0.1"),
		Port:    port,
		Webroot: getEnvString("WEBROOT", ""),
		Database: models.DatabaseConfig{
			Path:            getEnvString("DATABASE_PATH", "pesa-sandbox.db"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
		},
		RegistryWaitTimeout: registryWait,
		OutboundTimeout:     outboundTimeout,
		AccessTokenTTL:      accessTokenTTL,
		ShutdownTimeout:     shutdownTimeout,
	}, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUint16(key string, defaultValue uint16) (uint16, error) {
	if value := os.Getenv(key); value != "" {
		n, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("invalid port for %s: %q (%w)", key, value, err)
		}
		return uint16(n), nil
	}
	return defaultValue, nil
}
