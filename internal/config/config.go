package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	LLM       LLMConfig
	Mongo     MongoConfig
	Redis     RedisConfig
	Retrieval RetrievalConfig
	Policy    PolicyConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
	DataDir  string
}

type LLMConfig struct {
	BaseURL    string
	APIKey     string
	ChatModel  string
	EmbedModel string
}

type MongoConfig struct {
	URI      string
	Database string
	// VectorIndex is the Atlas Search index name used for $vectorSearch.
	// Empty disables the aggregation path and forces the full-scan fallback.
	VectorIndex string
}

type RedisConfig struct {
	// Addr empty disables the overview cache entirely.
	Addr     string
	Password string
	DB       int
}

type RetrievalConfig struct {
	TopK      int
	Threshold float64
}

type PolicyConfig struct {
	Epsilon      float64
	LearningRate float64
}

type LogConfig struct {
	Level string
}

func defaults(v *viper.Viper) {
	v.SetDefault("server.port", 4000)
	v.SetDefault("server.data_dir", defaultDataDir())
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.chat_model", "gpt-4o-mini")
	v.SetDefault("llm.embed_model", "text-embedding-3-small")
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "tutord")
	v.SetDefault("mongo.vector_index", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("retrieval.top_k", 3)
	v.SetDefault("retrieval.threshold", 0.35)
	v.SetDefault("policy.epsilon", 0.2)
	v.SetDefault("policy.learning_rate", 0.1)
	v.SetDefault("log.level", "info")
}

// Load assembles configuration from defaults, an optional tutord.yaml
// (searched in ., $HOME/.config/tutord and /etc/tutord) and TUTORD_*
// environment variables. Env keys use underscores for section separators,
// e.g. TUTORD_LLM_API_KEY overrides llm.api_key.
func Load() (Config, error) {
	v := viper.New()
	defaults(v)

	v.SetConfigName("tutord")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/tutord")
	v.AddConfigPath("/etc/tutord")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("TUTORD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := fromViper(v)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) Config {
	return Config{
		Server: ServerConfig{
			Port:     v.GetInt("server.port"),
			APIToken: v.GetString("server.api_token"),
			DataDir:  v.GetString("server.data_dir"),
		},
		LLM: LLMConfig{
			BaseURL:    v.GetString("llm.base_url"),
			APIKey:     v.GetString("llm.api_key"),
			ChatModel:  v.GetString("llm.chat_model"),
			EmbedModel: v.GetString("llm.embed_model"),
		},
		Mongo: MongoConfig{
			URI:         v.GetString("mongo.uri"),
			Database:    v.GetString("mongo.database"),
			VectorIndex: v.GetString("mongo.vector_index"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Retrieval: RetrievalConfig{
			TopK:      v.GetInt("retrieval.top_k"),
			Threshold: v.GetFloat64("retrieval.threshold"),
		},
		Policy: PolicyConfig{
			Epsilon:      v.GetFloat64("policy.epsilon"),
			LearningRate: v.GetFloat64("policy.learning_rate"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
	}
}

func validate(cfg Config) error {
	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("missing required config: LLM API key (set TUTORD_LLM_API_KEY or llm.api_key)")
	}
	if cfg.Retrieval.TopK < 1 {
		return fmt.Errorf("retrieval.top_k must be at least 1, got %d", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.Threshold < 0 || cfg.Retrieval.Threshold > 1 {
		return fmt.Errorf("retrieval.threshold must be in [0,1], got %g", cfg.Retrieval.Threshold)
	}
	if cfg.Policy.Epsilon < 0 || cfg.Policy.Epsilon > 1 {
		return fmt.Errorf("policy.epsilon must be in [0,1], got %g", cfg.Policy.Epsilon)
	}
	return nil
}

func defaultDataDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(dir, ".local", "share", "tutord")
	}
	return "./tutord-data"
}
