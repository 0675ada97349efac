package config

import (
	"fmt"

	"github.com/taskfabric/warehouse/internal/db"

	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

// ETLConfig holds pipeline settings.
type ETLConfig struct {
	SourceSystem string
	// DateHorizonDays bounds the date dimension and the partition registry
	// forward from today.
	DateHorizonDays int
}

// Config is the full application configuration.
type Config struct {
	Database db.Config
	Server   ServerConfig
	ETL      ETLConfig
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: db.DefaultConfig(),
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		ETL: ETLConfig{
			SourceSystem:    "taskdb",
			DateHorizonDays: 365,
		},
	}
}

// Load reads config.yaml from configPath with WH_-prefixed env overrides.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("WH") // map env vars like WH_DATABASE_HOST

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("server.addr")
	v.BindEnv("etl.source_system")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Just log it, use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("database.max_conns") {
		cfg.Database.MaxConns = v.GetInt("database.max_conns")
	}
	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("etl.source_system") {
		cfg.ETL.SourceSystem = v.GetString("etl.source_system")
	}
	if v.IsSet("etl.date_horizon_days") {
		cfg.ETL.DateHorizonDays = v.GetInt("etl.date_horizon_days")
	}
	return cfg, nil
}
