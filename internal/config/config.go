package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string `mapstructure:"mode"`
	LogLevel   string `mapstructure:"log_level"`
	Host       string `mapstructure:"host"`
	TCPPort    int    `mapstructure:"tcp_port"`
	UDPPort    int    `mapstructure:"udp_port"`
	HTTPPort   int    `mapstructure:"http_port"`
	StaticPath string `mapstructure:"static_path"`
	Secret     string `mapstructure:"secret"`

	HandshakeTimeout    time.Duration `mapstructure:"handshake_timeout"`
	WriteTimeout        time.Duration `mapstructure:"write_timeout"`
	ReliableSendTimeout time.Duration `mapstructure:"reliable_send_timeout"`
	QueueCapacity       int           `mapstructure:"queue_capacity"`
	MaxFrameSize        int           `mapstructure:"max_frame_size"`

	MaxParticipants int           `mapstructure:"max_participants"`
	MeetingGrace    time.Duration `mapstructure:"meeting_grace"`

	MaxFileSize         int64         `mapstructure:"max_file_size"`
	TransferIdleTimeout time.Duration `mapstructure:"transfer_idle_timeout"`
	TransferRetention   time.Duration `mapstructure:"transfer_retention"`
	ArchiveDir          string        `mapstructure:"archive_dir"`

	JournalPath   string        `mapstructure:"journal_path"`
	StatsInterval time.Duration `mapstructure:"stats_interval"`

	JoinRateLimit  int           `mapstructure:"join_rate_limit"`
	JoinRateWindow time.Duration `mapstructure:"join_rate_window"`
}

func (c *Config) TCPAddr() string  { return fmt.Sprintf("%s:%d", c.Host, c.TCPPort) }
func (c *Config) UDPAddr() string  { return fmt.Sprintf("%s:%d", c.Host, c.UDPPort) }
func (c *Config) HTTPAddr() string { return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort) }

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("host", "")
	v.SetDefault("tcp_port", 5001)
	v.SetDefault("udp_port", 0)
	v.SetDefault("http_port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "")

	v.SetDefault("handshake_timeout", "10s")
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("reliable_send_timeout", "5s")
	v.SetDefault("queue_capacity", 256)
	v.SetDefault("max_frame_size", 10<<20)

	v.SetDefault("max_participants", 50)
	v.SetDefault("meeting_grace", "30s")

	v.SetDefault("max_file_size", int64(2<<30))
	v.SetDefault("transfer_idle_timeout", "30s")
	v.SetDefault("transfer_retention", "1m")
	v.SetDefault("archive_dir", "")

	v.SetDefault("journal_path", "")
	v.SetDefault("stats_interval", "10s")

	v.SetDefault("join_rate_limit", 5)
	v.SetDefault("join_rate_window", "10s")
}

// Load reads config/config.<CONFIG_ENV>.yaml over the defaults. A .env file
// and LANMEET_* variables override both.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("module", "config").Err(err).Msg(".env not loaded")
	}

	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("LANMEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.UDPPort == 0 {
		cfg.UDPPort = cfg.TCPPort + 1
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("tcp", cfg.TCPPort).
		Int("udp", cfg.UDPPort).
		Int("http", cfg.HTTPPort).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.TCPPort <= 0 || c.TCPPort > 65535:
		return fmt.Errorf("invalid tcp_port %d", c.TCPPort)
	case c.UDPPort <= 0 || c.UDPPort > 65535:
		return fmt.Errorf("invalid udp_port %d", c.UDPPort)
	case c.HTTPPort < 0 || c.HTTPPort > 65535:
		return fmt.Errorf("invalid http_port %d", c.HTTPPort)
	case c.MaxParticipants <= 0:
		return fmt.Errorf("max_participants must be positive")
	case c.MaxFrameSize <= 0:
		return fmt.Errorf("max_frame_size must be positive")
	}
	return nil
}
