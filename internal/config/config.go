package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime configuration, loaded from the environment.
// The transport and services receive it explicitly; there is no ambient
// settings singleton.
type Config struct {
	APIAddr   string `env:"API_ADDR" envDefault:":8080"`
	DBPath    string `env:"DB_PATH" envDefault:"gateway.db"`
	AuthToken string `env:"API_AUTH_TOKEN"`

	// Tax authority endpoint
	FBREndpoint    string        `env:"FBR_API_ENDPOINT"`
	FBRToken       string        `env:"FBR_AUTH_TOKEN"`
	ConnectTimeout time.Duration `env:"FBR_CONNECT_TIMEOUT" envDefault:"10s"`
	ReadTimeout    time.Duration `env:"FBR_READ_TIMEOUT" envDefault:"30s"`
	// RejectionIsTerminal controls whether a structured business rejection
	// from the validator ends the job immediately instead of consuming
	// retry budget.
	RejectionIsTerminal bool `env:"FBR_REJECTION_TERMINAL" envDefault:"false"`
	// MaxResponseBytes bounds the response excerpt kept for audit logging.
	MaxResponseBytes int `env:"FBR_MAX_RESPONSE_BYTES" envDefault:"4096"`

	// ERP collaborator (payload source and result write-back)
	ERPBaseURL string `env:"ERP_BASE_URL"`
	ERPToken   string `env:"ERP_AUTH_TOKEN"`

	// Queue behavior
	MaxRetries      int           `env:"QUEUE_MAX_RETRIES" envDefault:"5"`
	BatchLimit      int           `env:"QUEUE_BATCH_LIMIT" envDefault:"50"`
	ScheduledLimit  int           `env:"QUEUE_SCHEDULED_LIMIT" envDefault:"20"`
	ProcessInterval time.Duration `env:"QUEUE_PROCESS_INTERVAL" envDefault:"15m"`
	Retention       time.Duration `env:"QUEUE_RETENTION" envDefault:"720h"`
	MaxPendingJobs  int           `env:"QUEUE_MAX_PENDING" envDefault:"10000"`
	// Enqueue rate limiting
	MaxEnqueuePerMinute int `env:"QUEUE_MAX_ENQUEUE_PER_MINUTE" envDefault:"600"`
}

// Load parses configuration from the environment.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}
