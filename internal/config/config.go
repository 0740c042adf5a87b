package config

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/runixlabs/runes-indexer/common"
	"github.com/runixlabs/runes-indexer/internal/clickhouse"
	"github.com/runixlabs/runes-indexer/internal/postgres"
	"github.com/runixlabs/runes-indexer/pkg/logger"
	"github.com/runixlabs/runes-indexer/pkg/logger/slogx"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	configOnce sync.Once
	configFile string
	config     = &Config{
		Logger: logger.Config{
			Output: "TEXT",
		},
		Network: common.NetworkMainnet,
		BitcoinNode: BitcoinNodeClient{
			User: "user",
			Pass: "pass",
		},
		HTTPServer: HTTPServer{
			Port: 8080,
		},
	}
)

type Config struct {
	Logger      logger.Config     `mapstructure:"logger"`
	BitcoinNode BitcoinNodeClient `mapstructure:"bitcoin_node"`
	Network     common.Network    `mapstructure:"network"`
	HTTPServer  HTTPServer        `mapstructure:"http_server"`
	Modules     Modules           `mapstructure:"modules"`
}

type BitcoinNodeClient struct {
	Host       string `mapstructure:"host"`
	User       string `mapstructure:"user"`
	Pass       string `mapstructure:"pass"`
	DisableTLS bool   `mapstructure:"disable_tls"`
}

type HTTPServer struct {
	Port int `mapstructure:"port"`
}

type Modules struct {
	Runes  RunesModule  `mapstructure:"runes"`
	Market MarketModule `mapstructure:"market"`
}

type RunesModule struct {
	Postgres postgres.Config `mapstructure:"postgres"`
	APIOnly  bool            `mapstructure:"api_only"`
}

type MarketModule struct {
	Enabled    bool              `mapstructure:"enabled"`
	Postgres   postgres.Config   `mapstructure:"postgres"`
	ClickHouse clickhouse.Config `mapstructure:"clickhouse"`
}

// SetConfigFile overrides the config file path used by Load. Must be called
// before the first Load.
func SetConfigFile(path string) {
	configFile = path
}

// BindPFlag binds a config key to a command-line flag. The flag takes
// precedence over the config file when set.
func BindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		logger.Panic("failed to bind flag to config", slogx.Error(err), slog.String("key", key))
	}
}

// Load reads configuration from the config file and environment variables.
// The file is optional, environment variables always apply.
func Load() Config {
	ctx := logger.WithContext(context.Background(), slog.String("package", "config"))
	configOnce.Do(func() {
		if configFile != "" {
			viper.SetConfigFile(configFile)
		} else {
			viper.AddConfigPath("./")
			viper.SetConfigName("config")
		}

		viper.AutomaticEnv()
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		if err := viper.ReadInConfig(); err != nil {
			var errNotFound viper.ConfigFileNotFoundError
			if errors.As(err, &errNotFound) {
				logger.WarnContext(ctx, "config file not found, using default values", slogx.Error(err))
			} else {
				logger.PanicContext(ctx, "invalid config file", slogx.Error(err))
			}
		}

		if err := viper.Unmarshal(&config); err != nil {
			logger.PanicContext(ctx, "failed to unmarshal config", slogx.Error(err))
		}
		logger.InfoContext(ctx, "loaded config successfully")
	})

	return *config
}
