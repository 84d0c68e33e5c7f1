package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "pipeline_db", cfg.Database.Database)
				assert.Equal(t, "pipeline_exchange", cfg.RabbitMQ.Exchange.Name)
				assert.Equal(t, "pipeline_jobs", cfg.RabbitMQ.Jobs.Name)
				assert.Equal(t, "webhook.deliver", cfg.RabbitMQ.Deliveries.RoutingKey)
				assert.Equal(t, "pipeline-api-service", cfg.App.Name)
				assert.Equal(t, 4, cfg.Worker.Concurrency)
				assert.Equal(t, 70.0, cfg.Worker.MatchScoreThreshold)
				assert.Equal(t, 15*time.Minute, cfg.Vendors.CacheTTL)

				zillow, ok := cfg.Vendors.Providers["zillow"]
				require.True(t, ok)
				assert.Equal(t, int64(50000), zillow.DailyCapCents)
				assert.Equal(t, 5.0, zillow.RequestsPerS)

				assert.Equal(t, 3, cfg.Webhooks.MaxAttempts)
				assert.Equal(t, 5*time.Second, cfg.Webhooks.PostTimeout)
			}
		})
	}
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "pipeline_db",
		},
		RabbitMQ: RabbitMQConfig{
			Host:       "localhost",
			Port:       5672,
			Exchange:   ExchangeConfig{Name: "pipeline_exchange"},
			Jobs:       QueueConfig{Name: "pipeline_jobs"},
			Deliveries: QueueConfig{Name: "pipeline_webhook_deliveries"},
		},
		Worker: WorkerConfig{
			Concurrency:         4,
			DeliveryConcurrency: 2,
			JobTimeout:          time.Minute,
			ShutdownTimeout:     30 * time.Second,
			MatchScoreThreshold: 70,
		},
	}
}

func TestConfig_ValidateAPIConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "empty database host",
			mutate:    func(c *Config) { c.Database.Host = "" },
			wantErr:   true,
			errString: "database host is required",
		},
		{
			name:      "empty database name",
			mutate:    func(c *Config) { c.Database.Database = "" },
			wantErr:   true,
			errString: "database name is required",
		},
		{
			name:      "empty rabbitmq host",
			mutate:    func(c *Config) { c.RabbitMQ.Host = "" },
			wantErr:   true,
			errString: "rabbitmq host is required",
		},
		{
			name:      "empty exchange name",
			mutate:    func(c *Config) { c.RabbitMQ.Exchange.Name = "" },
			wantErr:   true,
			errString: "rabbitmq exchange name is required",
		},
		{
			name:      "empty jobs queue name",
			mutate:    func(c *Config) { c.RabbitMQ.Jobs.Name = "" },
			wantErr:   true,
			errString: "rabbitmq jobs queue name is required",
		},
		{
			name:      "empty deliveries queue name",
			mutate:    func(c *Config) { c.RabbitMQ.Deliveries.Name = "" },
			wantErr:   true,
			errString: "rabbitmq deliveries queue name is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPIConfig()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ValidateWorkerConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:      "zero concurrency",
			mutate:    func(c *Config) { c.Worker.Concurrency = 0 },
			wantErr:   true,
			errString: "worker concurrency must be greater than 0",
		},
		{
			name:      "zero delivery concurrency",
			mutate:    func(c *Config) { c.Worker.DeliveryConcurrency = 0 },
			wantErr:   true,
			errString: "worker delivery_concurrency must be greater than 0",
		},
		{
			name:      "zero job timeout",
			mutate:    func(c *Config) { c.Worker.JobTimeout = 0 },
			wantErr:   true,
			errString: "worker job_timeout must be greater than 0",
		},
		{
			name:      "threshold above range",
			mutate:    func(c *Config) { c.Worker.MatchScoreThreshold = 120 },
			wantErr:   true,
			errString: "worker match_score_threshold must be between 0 and 100",
		},
		{
			name: "provider without cap",
			mutate: func(c *Config) {
				c.Vendors.Providers = map[string]ProviderConfig{
					"zillow": {BaseURL: "https://api.example.com", DailyCapCents: 0},
				}
			},
			wantErr:   true,
			errString: "daily_cap_cents must be greater than 0",
		},
		{
			name: "provider without base url",
			mutate: func(c *Config) {
				c.Vendors.Providers = map[string]ProviderConfig{
					"zillow": {DailyCapCents: 100},
				}
			},
			wantErr:   true,
			errString: "base_url is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateWorkerConfig()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
