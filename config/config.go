package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 LIAR_SERVER_HTTP_ADDRESS
const EnvPrefix = "LIAR"

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Game     GameConfig     `mapstructure:"game"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress     string        `mapstructure:"http_address"`
	RPCAddress      string        `mapstructure:"rpc_address"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// Driver selects the room store: memory, gorm or postgres.
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// DSN returns the libpq connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		p.Host, p.Port, p.User, p.Password, p.DBName)
}

type GameConfig struct {
	DefaultMaxPlayers int           `mapstructure:"default_max_players"`
	RoomTTL           time.Duration `mapstructure:"room_ttl"`
	SubscriberBuffer  int           `mapstructure:"subscriber_buffer"`
	// Seed fixes the master random source; 0 seeds from the OS.
	Seed          int64 `mapstructure:"seed"`
	HandEmptyWins bool  `mapstructure:"hand_empty_wins"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":8081")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "liarsbar")

	v.SetDefault("game.default_max_players", 4)
	v.SetDefault("game.room_ttl", 10*time.Minute)
	v.SetDefault("game.subscriber_buffer", 16)
	v.SetDefault("game.seed", 0)
	v.SetDefault("game.hand_empty_wins", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
}

// LoadConfig reads config.yaml from path. The file is optional; defaults and
// LIAR_* environment variables (also read from a .env file in path) apply on top.
func LoadConfig(path string) (config *Config, err error) {
	if err = godotenv.Load(filepath.Join(path, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err = config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory", "gorm", "postgres":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Game.DefaultMaxPlayers < 2 || c.Game.DefaultMaxPlayers > 4 {
		return fmt.Errorf("game.default_max_players must be between 2 and 4, got %d", c.Game.DefaultMaxPlayers)
	}
	if c.Game.SubscriberBuffer < 1 {
		return fmt.Errorf("game.subscriber_buffer must be positive, got %d", c.Game.SubscriberBuffer)
	}
	if c.Game.RoomTTL < 0 {
		return fmt.Errorf("game.room_ttl must not be negative")
	}
	return nil
}
