package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	SQLite    SQLiteConfig    `yaml:"sqlite"`
	Quiz      QuizConfig      `yaml:"quiz"`
	XP        XPConfig        `yaml:"xp"`
	Authoring AuthoringConfig `yaml:"authoring"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port string `yaml:"port" env:"QUIZBOT_PORT"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"QUIZBOT_REDIS_ADDR"`
	Password string `yaml:"password" env:"QUIZBOT_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"QUIZBOT_REDIS_DB"`
	TTL      string `yaml:"ttl" env:"QUIZBOT_REDIS_TTL"`
	LockTTL  string `yaml:"lock_ttl" env:"QUIZBOT_REDIS_LOCK_TTL"`
}

type PostgresConfig struct {
	URL string `yaml:"url" env:"QUIZBOT_POSTGRES_URL"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" env:"QUIZBOT_SQLITE_PATH"`
}

type QuizConfig struct {
	TTL             string   `yaml:"ttl" env:"QUIZBOT_QUIZ_TTL"`
	RoundTimeout    string   `yaml:"round_timeout" env:"QUIZBOT_ROUND_TIMEOUT"`
	RoundPause      string   `yaml:"round_pause" env:"QUIZBOT_ROUND_PAUSE"`
	PartySize       int      `yaml:"party_size" env:"QUIZBOT_PARTY_SIZE"`
	MaxPartySize    int      `yaml:"max_party_size" env:"QUIZBOT_MAX_PARTY_SIZE"`
	ChannelKeywords []string `yaml:"channel_keywords" env:"QUIZBOT_CHANNEL_KEYWORDS" envSeparator:","`
	Prefix          string   `yaml:"prefix" env:"QUIZBOT_PREFIX"`
}

type XPConfig struct {
	PerMessage  *int `yaml:"per_message" env:"QUIZBOT_XP_PER_MESSAGE"`
	PerQuestion *int `yaml:"per_question" env:"QUIZBOT_XP_PER_QUESTION"`
}

type AuthoringConfig struct {
	ThemeTimeout        string `yaml:"theme_timeout" env:"QUIZBOT_AUTHORING_THEME_TIMEOUT"`
	QuestionTimeout     string `yaml:"question_timeout" env:"QUIZBOT_AUTHORING_QUESTION_TIMEOUT"`
	PropositionsTimeout string `yaml:"propositions_timeout" env:"QUIZBOT_AUTHORING_PROPOSITIONS_TIMEOUT"`
}

type GatewayConfig struct {
	Token          string `yaml:"token" env:"QUIZBOT_GATEWAY_TOKEN"`
	RequestTimeout string `yaml:"request_timeout" env:"QUIZBOT_GATEWAY_REQUEST_TIMEOUT"`
}

type LogConfig struct {
	Level string `yaml:"level" env:"QUIZBOT_LOG_LEVEL"`
}

// Load reads YAML config from path, then applies QUIZBOT_* environment
// overrides. A missing file leaves the environment as the only source.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// IntOr returns *v, or fallback when v is unset.
func IntOr(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}
