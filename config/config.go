package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tripmesh/tripmesh-server/globals"
)

const (
	defaultNotificationPageSize = 20
	defaultMessageTTL           = 24 * time.Hour
)

// Config is the global configuration object which is filled via the
// configuration file and, for selected values, command-line flags.
type Config struct {
	HistoryConfig     HistoryConfig     `mapstructure:"history"`
	RetentionConfig   RetentionConfig   `mapstructure:"retention"`
	PersistenceConfig PersistenceConfig `mapstructure:"persistence"`
	LogLevel          string            `mapstructure:"log_level"`
	SessionSecret     string            `mapstructure:"session_secret"`
}

// HistoryConfig bounds the notification inbox page handed to clients.
type HistoryConfig struct {
	NotificationPageSize int `mapstructure:"notification_page_size"`
}

// RetentionConfig configures how long a chat message survives after the
// recipient has acknowledged the notification referencing it.
type RetentionConfig struct {
	MessageTTLHours int `mapstructure:"message_ttl_hours"`
}

// PersistenceConfig selects the storage backend. Type is one of "buntdb",
// "sqlite" or "postgres"; DSN is the file name resp. connection string.
type PersistenceConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

func (c *Config) NotificationPageSize() int {
	if c.HistoryConfig.NotificationPageSize > 0 {
		return c.HistoryConfig.NotificationPageSize
	}
	return defaultNotificationPageSize
}

func (c *Config) MessageTTL() time.Duration {
	if c.RetentionConfig.MessageTTLHours > 0 {
		return time.Duration(c.RetentionConfig.MessageTTLHours) * time.Hour
	}
	return defaultMessageTTL
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.StringP("session-secret", "s", "", "HMAC secret the session tokens are signed with")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	from := "-"
	to := "_"
	name = strings.Replace(name, from, to, -1)
	return pflag.NormalizedName(name)
}

// ReadConfiguration reads and parses the configuration located at configPath, which can either point to a single TOML
// file or to a directory, in which case all *.toml files in this directory are concatenated. It returns a Config
// object.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	err := viper.BindPFlags(flagSet)
	if err != nil {
		globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
	}
	viper.SetEnvPrefix("TRIPMESH")
	viper.AutomaticEnv()
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
		viper.SetConfigType("toml")
		err = viper.ReadConfig(bytes.NewBuffer(contents))
		if err != nil {
			globals.AppLogger.Error("could not read config:", "error", err)
		}
	}
	err = viper.Unmarshal(&cfg)
	if err != nil {
		globals.AppLogger.Error("could not unmarshal config:", "error", err)
	}

	return &cfg, nil
}
