package questionbank

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the binaries
type Config struct {
	Database struct {
		Driver string `yaml:"driver"`
		// DSN wins over the connection parts below when set
		DSN      string `yaml:"dsn"`
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"database"`
	OpenAI struct {
		APIKey      string `yaml:"api_key"`
		Model       string `yaml:"model"`
		BatchSize   int    `yaml:"batch_size"`
		MaxAttempts int    `yaml:"max_attempts"`
		Screen      bool   `yaml:"screen"`
	} `yaml:"openai"`
	Server struct {
		Addr          string `yaml:"addr"`
		SessionSecret string `yaml:"session_secret"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Channel  string `yaml:"channel"`
	} `yaml:"redis"`
	Categories struct {
		BeverageKeywords []string `yaml:"beverage_keywords"`
	} `yaml:"categories"`
	Log struct {
		Dir     string `yaml:"dir"`
		Verbose bool   `yaml:"verbose"`
	} `yaml:"log"`
}

// DefaultConfig returns the settings used when nothing overrides them
func DefaultConfig() *Config {
	c := &Config{}
	c.Database.Driver = "sqlite3"
	c.Database.Host = "localhost"
	c.Database.Port = "5432"
	c.OpenAI.Model = "gpt-4o"
	c.OpenAI.BatchSize = 5
	c.OpenAI.MaxAttempts = 3
	c.Server.Addr = ":8180"
	c.Redis.Channel = "questionbank:events"
	c.Categories.BeverageKeywords = append([]string(nil), DefaultBeverageKeywords...)
	c.Log.Dir = "log"
	return c
}

// LoadConfig reads .env if present, then the YAML file at path (which may
// be empty or missing), then applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	config := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setString("OPENAI_API_KEY", &c.OpenAI.APIKey)
	setString("DATABASE_DRIVER", &c.Database.Driver)
	setString("DATABASE_DSN", &c.Database.DSN)
	setString("DB_HOST", &c.Database.Host)
	setString("DB_PORT", &c.Database.Port)
	setString("DB_USER", &c.Database.User)
	setString("DB_PASSWORD", &c.Database.Password)
	setString("DB_NAME", &c.Database.Name)
	setString("REDIS_ADDR", &c.Redis.Addr)
	setString("SESSION_SECRET", &c.Server.SessionSecret)

	if port, ok := os.LookupEnv("PORT"); ok && port != "" {
		c.Server.Addr = ":" + strings.TrimPrefix(port, ":")
	}
	if v, ok := os.LookupEnv("VERBOSE"); ok && v != "" {
		verbose, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid VERBOSE value %q: %w", v, err)
		}
		c.Log.Verbose = verbose
	}
	return nil
}

// DatabaseDSN returns the connection string for the configured driver. A
// Postgres DSN is built from host, port, user, password and name when none
// is given; SQLite falls back to ./questionbank.db.
func (c *Config) DatabaseDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	switch c.Database.Driver {
	case "postgres", "pgx":
		return PostgresDSN(c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Name)
	default:
		return "./questionbank.db"
	}
}

// BeverageClassifier builds the classifier from the configured keywords
func (c *Config) BeverageClassifier() BeverageClassifier {
	return NewBeverageClassifier(c.Categories.BeverageKeywords)
}

// NewGenerator wires the AI generator, or returns nil when no API key is set
func (c *Config) NewGenerator(store Store) QuestionGenerator {
	if c.OpenAI.APIKey == "" {
		return nil
	}
	maker := NewQuestionMaker(c.OpenAI.APIKey, c.OpenAI.Model)
	var checker *QuestionChecker
	if c.OpenAI.Screen {
		checker = NewQuestionChecker(c.OpenAI.APIKey, c.OpenAI.Model)
	}
	return NewAIGenerator(store, maker, checker, GeneratorOptions{
		BatchSize:   c.OpenAI.BatchSize,
		MaxAttempts: c.OpenAI.MaxAttempts,
		LogDir:      c.Log.Dir,
	})
}

// NewNotifier connects the Redis event notifier, or returns nil when no
// address is configured
func (c *Config) NewNotifier() *RedisNotifier {
	if c.Redis.Addr == "" {
		return nil
	}
	return NewRedisNotifier(c.Redis.Addr, c.Redis.Password, c.Redis.DB, c.Redis.Channel)
}
