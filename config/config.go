package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tcriess/bingo-chat/globals"
)

const (
	envPrefix = "BINGOCHAT"

	defaultAddr           = "localhost:5000"
	defaultPersistence    = "sqlite"
	defaultDSN            = "bingo-chat.db"
	defaultSessionTTL     = 30 * 24 * time.Hour
	defaultSessionPath    = ":memory:"
	defaultPingTimeout    = 60 * time.Second
	defaultWriteWait      = 10 * time.Second
	defaultMaxMessageSize = 64 * 1024
	defaultSendBuffer     = 256
	defaultStatsCron      = "@every 5m"
	defaultUserCacheSize  = 1024
)

// Config is the global configuration object which is filled via the configuration file, the environment and
// command-line flags (in increasing order of precedence)
type Config struct {
	LogLevel          string            `mapstructure:"log_level"`
	HTTPConfig        HTTPConfig        `mapstructure:"http"`
	PersistenceConfig PersistenceConfig `mapstructure:"persistence"`
	SessionConfig     SessionConfig     `mapstructure:"session"`
	RealtimeConfig    RealtimeConfig    `mapstructure:"realtime"`
	RedisConfig       RedisConfig       `mapstructure:"redis"`
	CacheConfig       CacheConfig       `mapstructure:"cache"`
}

type HTTPConfig struct {
	Addr        string   `mapstructure:"addr"`
	SSLCert     string   `mapstructure:"ssl_cert"`
	SSLKey      string   `mapstructure:"ssl_key"`
	CORSOrigins []string `mapstructure:"cors_origins"` // empty allows any origin
}

// PersistenceConfig selects the gorm dialector. Type is one of "sqlite" or "postgres".
type PersistenceConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

// SessionConfig configures token signing and the buntdb file holding the issued sessions.
type SessionConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
	Path   string        `mapstructure:"path"`
}

type RealtimeConfig struct {
	PingTimeout    time.Duration `mapstructure:"ping_timeout"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	RequireToken   bool          `mapstructure:"require_token"`
	StatsCron      string        `mapstructure:"stats_cron"`
}

// RedisConfig enables the cross-instance relay when URL is set (f.e. "redis://localhost:6379/0").
type RedisConfig struct {
	URL     string `mapstructure:"url"`
	Channel string `mapstructure:"channel"`
}

type CacheConfig struct {
	UserCacheSize int `mapstructure:"user_cache_size"`
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flagSet.String("http.addr", "", "http service address (including port)")
	flagSet.String("persistence.type", "", "persistence backend (sqlite or postgres)")
	flagSet.String("persistence.dsn", "", "persistence data source name")
	flagSet.String("session.secret", "", "secret used to sign session tokens")
	flagSet.String("redis.url", "", "redis url for the cross-instance relay (optional)")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.Replace(name, "-", "_", -1))
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("http.addr", defaultAddr)
	v.SetDefault("http.ssl_cert", "")
	v.SetDefault("http.ssl_key", "")
	v.SetDefault("http.cors_origins", []string{})
	v.SetDefault("persistence.type", defaultPersistence)
	v.SetDefault("persistence.dsn", defaultDSN)
	v.SetDefault("session.secret", "")
	v.SetDefault("session.ttl", defaultSessionTTL)
	v.SetDefault("session.path", defaultSessionPath)
	v.SetDefault("realtime.ping_timeout", defaultPingTimeout)
	v.SetDefault("realtime.write_wait", defaultWriteWait)
	v.SetDefault("realtime.max_message_size", defaultMaxMessageSize)
	v.SetDefault("realtime.send_buffer", defaultSendBuffer)
	v.SetDefault("realtime.require_token", false)
	v.SetDefault("realtime.stats_cron", defaultStatsCron)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.channel", "bingo-chat:deliveries")
	v.SetDefault("cache.user_cache_size", defaultUserCacheSize)
}

// ReadConfiguration reads and parses the configuration located at configPath, which can either point to a single TOML
// file or to a directory, in which case all *.toml files in this directory are concatenated. A .env file in the
// working directory is loaded into the environment first. Flags that were set on flagSet (may be nil) override
// everything else.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		globals.AppLogger.Warn("could not load .env file (ignored)", "error", err)
	}

	v := viper.New()
	setDefaults(v)
	if flagSet != nil {
		flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
		flagSet.VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				v.Set(f.Name, f.Value.String())
			}
		})
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := os.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		v.SetConfigType("toml")
		err = v.ReadConfig(bytes.NewBuffer(contents))
		if err != nil {
			return nil, err
		}
	}

	cfg := Config{}
	err := v.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}
	globals.AppLogger.Debug("config", "all", v.AllSettings())
	return &cfg, nil
}
