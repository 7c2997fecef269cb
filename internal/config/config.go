package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	LLM     LLMConfig
	Speech  SpeechConfig  `mapstructure:"speech"`
	History HistoryConfig `mapstructure:"history"`
	Server  ServerConfig
	Video   VideoConfig `mapstructure:"video"`
	Log     LogConfig   `mapstructure:"log"`
}

// LLMConfig holds the text generation configuration
type LLMConfig struct {
	Provider     string `mapstructure:"provider"`
	BaseURL      string `mapstructure:"base_url"`
	APIKey       string `mapstructure:"api_key"`
	Model        string `mapstructure:"model"`
	SystemPrompt string `mapstructure:"system_prompt"`
	Search       bool   `mapstructure:"search"`
}

// SpeechConfig holds the text-to-speech and playback configuration
type SpeechConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	Voice    string `mapstructure:"voice"`
	// Player is the command raw PCM is piped into, e.g.
	// ["aplay", "-q", "-t", "raw", "-f", "S16_LE", "-r", "24000", "-c", "1"].
	Player []string `mapstructure:"player"`
}

// HistoryConfig holds the conversation persistence configuration
type HistoryConfig struct {
	Driver         string `mapstructure:"driver"`
	Path           string `mapstructure:"path"`
	ConversationID string `mapstructure:"conversation_id"`
	BatchSize      int    `mapstructure:"batch_size"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// VideoConfig holds the video generation configuration
type VideoConfig struct {
	Model        string        `mapstructure:"model"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	OutputDir    string        `mapstructure:"output_dir"`
}

// LogConfig holds the logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.search", true)
	v.SetDefault("speech.provider", "gemini")
	v.SetDefault("speech.model", "gemini-2.5-flash-preview-tts")
	v.SetDefault("speech.voice", "Kore")
	v.SetDefault("history.driver", "sqlite")
	v.SetDefault("history.path", "history.db")
	v.SetDefault("history.conversation_id", "jenesi_chat_history")
	v.SetDefault("history.batch_size", 20)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("video.model", "veo-3.1-fast-generate-preview")
	v.SetDefault("video.poll_interval", 5*time.Second)
	v.SetDefault("video.output_dir", ".")
	v.SetDefault("log.level", "info")
}

// envOnlyKeys have no default, so AutomaticEnv alone would never surface them
// to Unmarshal.
var envOnlyKeys = []string{"llm.api_key", "llm.base_url", "llm.system_prompt", "speech.player"}

// Load loads the configuration from config.yaml in the working directory, or
// from the file named by CONFIG_PATH. JENESI_* environment variables override
// file values (JENESI_LLM_API_KEY sets llm.api_key).
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_PATH"))
}

// LoadFile loads the configuration from path. An empty path searches for
// config.yaml in the working directory; a missing default file is not an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("jenesi")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, err
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if config.LLM.APIKey == "" {
		config.LLM.APIKey = os.Getenv("API_KEY")
	}

	return &config, nil
}
