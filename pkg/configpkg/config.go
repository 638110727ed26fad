// Package configpkg provides parsing functionality for environment variables.
package configpkg

import (
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
//
// The values are read by viper from a config file or environment variables.
type Config struct {
	DBDriver          string `mapstructure:"DB_DRIVER"`
	DBSource          string `mapstructure:"DB_SOURCE"`
	MigrationsPath    string `mapstructure:"MIGRATIONS_PATH"`
	ServerAddress     string `mapstructure:"SERVER_ADDRESS"`
	TokenSymmetricKey string `mapstructure:"TOKEN_SYMMETRIC_KEY"`
	TokenType         string `mapstructure:"TOKEN_TYPE"`
	Environement      string `mapstructure:"GO_ENV"`
	RateSchedulePath  string `mapstructure:"RATE_SCHEDULE_PATH"`
	HistoryPageSize   int32  `mapstructure:"HISTORY_PAGE_SIZE"`
	RedisAddr         string `mapstructure:"REDIS_ADDR"`
	RedisPassword     string `mapstructure:"REDIS_PASSWORD"`
	RedisDB           int    `mapstructure:"REDIS_DB"`
	EventStream       string `mapstructure:"EVENT_STREAM"`
	OTELEndpoint      string `mapstructure:"OTEL_ENDPOINT"`
	OTELServiceName   string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load read configuration from file or environment variables.
func Load(path string) (Config, error) {
	var c Config

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")

	v.SetDefault("DB_DRIVER", "memory")
	v.SetDefault("SERVER_ADDRESS", "0.0.0.0:8080")
	v.SetDefault("TOKEN_TYPE", "paseto")
	v.SetDefault("HISTORY_PAGE_SIZE", 100)
	v.SetDefault("EVENT_STREAM", "lender.events")
	v.SetDefault("OTEL_SERVICE_NAME", "pet-lender")

	v.AutomaticEnv()

	err := v.ReadInConfig()
	if err != nil {
		return c, err
	}

	err = v.Unmarshal(&c)
	if err != nil {
		return c, err
	}

	return c, nil
}
