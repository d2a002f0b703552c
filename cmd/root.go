package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/skillmatch/internal/logger"
	"github.com/spigell/skillmatch/internal/matching"
)

const (
	app       = "skillmatch"
	envPrefix = "SKILLMATCH"
)

type Config struct {
	Matching    *MatchingConfig   `mapstructure:"matching"`
	Embeddings  *EmbeddingsConfig `mapstructure:"embeddings"`
	Gemini      *GeminiConfig     `mapstructure:"gemini"`
	OpenAI      *OpenAIConfig     `mapstructure:"openai"`
	Index       *IndexConfig      `mapstructure:"index"`
	Server      *ServerConfig     `mapstructure:"server"`
	ExcludeFile string            `mapstructure:"exclude-file"`
	Limit       int               `mapstructure:"limit"`
}

type MatchingConfig struct {
	TopK              int           `mapstructure:"top-k"`
	Threshold         float64       `mapstructure:"threshold"`
	Dimension         int           `mapstructure:"dimension"`
	RecordNeedOnEmpty bool          `mapstructure:"record-need-on-empty"`
	EmbedTimeout      time.Duration `mapstructure:"embed-timeout"`
	IndexTimeout      time.Duration `mapstructure:"index-timeout"`
	ClassifyTimeout   time.Duration `mapstructure:"classify-timeout"`
}

type EmbeddingsConfig struct {
	// Provider is gemini or openai.
	Provider string `mapstructure:"provider"`
}

type GeminiConfig struct {
	APIKey         string `mapstructure:"api-key"`
	APIKeyFile     string `mapstructure:"api-key-file"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding-model"`
	MaxLogLength   int    `mapstructure:"max-log-length"`
}

type OpenAIConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base-url"`
}

type IndexConfig struct {
	// Backend is memory, pgvector or pinecone.
	Backend     string          `mapstructure:"backend"`
	DatabaseDSN string          `mapstructure:"database-dsn"`
	Table       string          `mapstructure:"table"`
	Pinecone    *PineconeConfig `mapstructure:"pinecone"`
}

type PineconeConfig struct {
	APIKey     string `mapstructure:"api-key"`
	APIKeyFile string `mapstructure:"api-key-file"`
	NeedsHost  string `mapstructure:"needs-host"`
	OffersHost string `mapstructure:"offers-host"`
	Namespace  string `mapstructure:"namespace"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

var (
	// Used for flags.
	cfgFile string
	envFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "skillmatch pairs people whose skills cover each other's needs",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

var envBindings = map[string]string{
	"gemini.api-key-file":         "SKILLMATCH_GEMINI_API_KEY_FILE",
	"openai.api-key-file":         "SKILLMATCH_OPENAI_API_KEY_FILE",
	"index.database-dsn":          "SKILLMATCH_DATABASE_DSN",
	"index.pinecone.api-key-file": "SKILLMATCH_PINECONE_API_KEY_FILE",
}

func init() {
	setDefaults(viper.GetViper())

	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			log.Fatalf("binding %s environment variable: %v", env, err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is skillmatch.yaml in current directory)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "a dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().StringP("exclude-file", "e", "", "special file with candidates to exclude. Default is unset.")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("exclude-file", rootCmd.PersistentFlags().Lookup("exclude-file"))
}

func setDefaults(v *viper.Viper) {
	defaults := matching.DefaultConfig()

	v.SetDefault("matching.top-k", defaults.TopK)
	v.SetDefault("matching.threshold", defaults.Threshold)
	v.SetDefault("matching.dimension", 768)
	v.SetDefault("matching.record-need-on-empty", defaults.RecordNeedOnEmpty)
	v.SetDefault("matching.embed-timeout", 10*time.Second)
	v.SetDefault("matching.index-timeout", defaults.IndexTimeout)
	v.SetDefault("matching.classify-timeout", defaults.ClassifyTimeout)
	v.SetDefault("embeddings.provider", "gemini")
	v.SetDefault("index.backend", "memory")
	v.SetDefault("server.addr", ":8080")
}

func initConfig() {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Fatalf("loading %s: %v", envFile, err)
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
	}

	// A config file given explicitly must be readable. The default one is optional.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	return decodeConfig(viper.GetViper())
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	var config *Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config == nil {
		return nil, errors.New("config is empty")
	}

	if config.Matching == nil {
		config.Matching = &MatchingConfig{}
	}
	if config.Embeddings == nil {
		config.Embeddings = &EmbeddingsConfig{}
	}
	if config.Gemini == nil {
		config.Gemini = &GeminiConfig{}
	}
	if config.OpenAI == nil {
		config.OpenAI = &OpenAIConfig{}
	}
	if config.Index == nil {
		config.Index = &IndexConfig{}
	}
	if config.Index.Pinecone == nil {
		config.Index.Pinecone = &PineconeConfig{}
	}
	if config.Server == nil {
		config.Server = &ServerConfig{}
	}

	if config.Matching.Dimension <= 0 {
		return nil, fmt.Errorf("matching.dimension must be positive, got %d", config.Matching.Dimension)
	}
	if config.Limit < 0 {
		return nil, fmt.Errorf("limit must not be negative, got %d", config.Limit)
	}

	return config, nil
}

func (c *Config) matchingConfig() matching.Config {
	return matching.Config{
		TopK:              c.Matching.TopK,
		Threshold:         c.Matching.Threshold,
		RecordNeedOnEmpty: c.Matching.RecordNeedOnEmpty,
		IndexTimeout:      c.Matching.IndexTimeout,
		ClassifyTimeout:   c.Matching.ClassifyTimeout,
	}
}

// setup builds the logger and the config shared by every command.
func setup() (*zap.Logger, *Config) {
	logger, err := logger.New(logger.Options{
		JSON:  viper.GetBool("json"),
		Debug: viper.GetBool("debug"),
	})
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	return logger, config
}
