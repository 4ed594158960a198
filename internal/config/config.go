// Package config provides process configuration loaded from environment variables.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/apex-dispatch/pkg/broker"
	"github.com/morezero/apex-dispatch/pkg/broker/natsbroker"
)

const logPrefix = "config:LoadConfig"

// Dispatch modes.
const (
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// Config holds apex listener and dispatcher configuration.
type Config struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"apex-listener"`

	// DispatchMode is local (in process) or remote (through the broker).
	DispatchMode string `envconfig:"DISPATCH_MODE" default:"local"`

	// Broker
	BrokerDriver  string        `envconfig:"BROKER_DRIVER" default:"amqp"`
	BrokerHost    string        `envconfig:"BROKER_HOST" default:"localhost"`
	BrokerPort    int           `envconfig:"BROKER_PORT" default:"0"`
	BrokerUser    string        `envconfig:"BROKER_USER" default:"guest"`
	BrokerPass    string        `envconfig:"BROKER_PASS" default:"guest"`
	BrokerChannel string        `envconfig:"BROKER_CHANNEL" default:"apex"`
	RPCTimeout    time.Duration `envconfig:"RPC_TIMEOUT" default:"5s"`

	// EventsURL is the NATS server receiving registration change events.
	// Empty means the broker itself when BROKER_DRIVER is nats, else none.
	EventsURL string `envconfig:"EVENTS_URL"`

	// Workers manifest
	WorkersFile string `envconfig:"WORKERS_FILE"`

	// Database. Empty keeps registrations in memory.
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// HTTP health endpoint
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	c.BrokerDriver = strings.ToLower(c.BrokerDriver)
	c.DispatchMode = strings.ToLower(c.DispatchMode)
	return &c, nil
}

// Remote reports whether dispatch goes through the broker.
func (c *Config) Remote() bool {
	return c.DispatchMode == ModeRemote
}

// BrokerConnInfo implements broker.ConnInfoProvider. An unset port becomes
// the driver's standard port.
func (c *Config) BrokerConnInfo(_ context.Context) (broker.ConnInfo, error) {
	port := broker.DefaultPort(c.BrokerDriver)
	if port == 0 {
		return broker.ConnInfo{}, fmt.Errorf("%s - unknown BROKER_DRIVER %q", logPrefix, c.BrokerDriver)
	}
	info := broker.ConnInfo{
		Host: c.BrokerHost,
		Port: c.BrokerPort,
		User: c.BrokerUser,
		Pass: c.BrokerPass,
	}
	return info.WithDefaults(port), nil
}

// EventsNATSURL returns the NATS URL registration events go to, or "" when
// events are not published.
func (c *Config) EventsNATSURL() string {
	if c.EventsURL != "" {
		return c.EventsURL
	}
	if c.BrokerDriver != broker.DriverNATS {
		return ""
	}
	info, err := c.BrokerConnInfo(context.Background())
	if err != nil {
		return ""
	}
	return natsbroker.URL(info)
}

func (c *Config) validateBroker() error {
	if broker.DefaultPort(c.BrokerDriver) == 0 {
		return fmt.Errorf("%s - BROKER_DRIVER must be amqp or nats, got %q", logPrefix, c.BrokerDriver)
	}
	if c.BrokerChannel == "" {
		return fmt.Errorf("%s - BROKER_CHANNEL is required", logPrefix)
	}
	if c.BrokerPort < 0 || c.BrokerPort > 65535 {
		return fmt.Errorf("%s - BROKER_PORT out of range: %d", logPrefix, c.BrokerPort)
	}
	return nil
}

// ValidateForListen checks required config when running the listener.
func (c *Config) ValidateForListen() error {
	if err := c.validateBroker(); err != nil {
		return err
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if c.RunMigrations && c.DatabaseURL == "" {
		return fmt.Errorf("%s - RUN_MIGRATIONS requires DATABASE_URL", logPrefix)
	}
	return nil
}

// ValidateForDispatch checks required config when dispatching messages.
func (c *Config) ValidateForDispatch() error {
	switch c.DispatchMode {
	case ModeLocal:
		return nil
	case ModeRemote:
	default:
		return fmt.Errorf("%s - DISPATCH_MODE must be local or remote, got %q", logPrefix, c.DispatchMode)
	}
	if err := c.validateBroker(); err != nil {
		return err
	}
	if c.RPCTimeout <= 0 {
		return fmt.Errorf("%s - RPC_TIMEOUT must be positive", logPrefix)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
