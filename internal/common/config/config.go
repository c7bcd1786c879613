// internal/common/config/config.go
package config

import (
	"fmt"
	"time"

	"submission-engine/internal/models"
)

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig                        `mapstructure:"app"`
	Database     DatabaseConfig                   `mapstructure:"database"`
	Orchestrator OrchestratorConfig               `mapstructure:"orchestrator"`
	Servicers    map[string]models.ServicerConfig `mapstructure:"servicers"`
	Integrations IntegrationConfig                `mapstructure:"integrations"`
	Logging      LoggingConfig                    `mapstructure:"logging"`
	Metrics      MetricsConfig                    `mapstructure:"metrics"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	SSLEnabled bool     `mapstructure:"ssl_enabled"`
	Index      string   `mapstructure:"index"`
}

// OrchestratorConfig holds the tunables of the submission orchestrator.
// Zero values are replaced by the documented defaults at load time.
type OrchestratorConfig struct {
	HealthCheckInterval  time.Duration `mapstructure:"health_check_interval"`
	PendingWarnThreshold int           `mapstructure:"pending_warn_threshold"`
	StalePendingAge      time.Duration `mapstructure:"stale_pending_age"`
	SubmitTimeout        time.Duration `mapstructure:"submit_timeout"`
}

// IntegrationConfig holds settings for AWS and other external services.
type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled   bool   `mapstructure:"enabled"`
			FromEmail string `mapstructure:"from_email"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled            bool   `mapstructure:"enabled"`
			EscalationTopicARN string `mapstructure:"escalation_topic_arn"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig holds the metrics/pprof listener settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}
