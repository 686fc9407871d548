package models

import "time"

// Config is the host process's full configuration, assembled by
// internal/config.Load from environment variables and overlaid by the
// cmd/pesahost CLI flags (§6 CLI surface).
type Config struct {
	// Address/Port/Webroot back the --address/--port/--webroot flags.
	Address string
	Port    uint16
	Webroot string

	Database DatabaseConfig

	// RegistryWaitTimeout is the STK-push registry deadline (§5: 30s).
	RegistryWaitTimeout time.Duration
	// OutboundTimeout bounds the C2B validation/confirmation round trips (§5: 8s).
	OutboundTimeout time.Duration
	// AccessTokenTTL is the sandbox oauth token lifetime (§6: 1 hour).
	AccessTokenTTL time.Duration
	// ShutdownTimeout bounds graceful sandbox/host shutdown on SIGINT/SIGTERM.
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds the sqlite connection settings (§6: "a single local
// database"), mirroring the teacher's pool-tuning knobs.
type DatabaseConfig struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}
