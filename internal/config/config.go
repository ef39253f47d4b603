package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes environment overrides: BOX_HTTP_TIMEOUT overrides
// http.timeout, BOX_BOX_CLIENT_ID overrides box.client_id.
const EnvPrefix = "BOX"

type BoxConfiguration struct {
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
	SubjectType  string `mapstructure:"subject_type" yaml:"subject_type"`
	SubjectId    string `mapstructure:"subject_id" yaml:"subject_id"`
	AccessToken  string `mapstructure:"access_token" yaml:"access_token"`
	APIURL       string `mapstructure:"api_url" yaml:"api_url"`
	UploadURL    string `mapstructure:"upload_url" yaml:"upload_url"`
	TokenURL     string `mapstructure:"token_url" yaml:"token_url"`
}

type HTTPConfiguration struct {
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" yaml:"retry_base_delay"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type EventsConfiguration struct {
	FetchInterval   time.Duration `mapstructure:"fetch_interval" yaml:"fetch_interval"`
	PollingInterval time.Duration `mapstructure:"polling_interval" yaml:"polling_interval"`
	DedupSize       int           `mapstructure:"dedup_size" yaml:"dedup_size"`
}

type UploadConfiguration struct {
	Parallelism int `mapstructure:"parallelism" yaml:"parallelism"`
}

type RetentionConfiguration struct {
	// Keep is how many files the upload command leaves in the target
	// folder. Zero keeps everything.
	Keep int `mapstructure:"keep" yaml:"keep"`
}

type LogConfiguration struct {
	Level string `mapstructure:"level" yaml:"level"`
}

type Configuration struct {
	Box       BoxConfiguration       `mapstructure:"box" yaml:"box"`
	HTTP      HTTPConfiguration      `mapstructure:"http" yaml:"http"`
	Events    EventsConfiguration    `mapstructure:"events" yaml:"events"`
	Upload    UploadConfiguration    `mapstructure:"upload" yaml:"upload"`
	Retention RetentionConfiguration `mapstructure:"retention" yaml:"retention"`
	Log       LogConfiguration       `mapstructure:"log" yaml:"log"`
}

// Default is the configuration written on first use.
func Default() Configuration {
	return Configuration{
		HTTP: HTTPConfiguration{
			MaxRetries:     5,
			RetryBaseDelay: time.Second,
			Timeout:        time.Minute,
		},
		Events: EventsConfiguration{
			FetchInterval:   time.Second,
			PollingInterval: time.Minute,
			DedupSize:       5000,
		},
		Upload: UploadConfiguration{
			Parallelism: 4,
		},
		Retention: RetentionConfiguration{
			Keep: 50,
		},
		Log: LogConfiguration{
			Level: "info",
		},
	}
}

// DefaultPath is ~/.box/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".box", "config.yaml"), nil
}

func initializeConfig(v *viper.Viper, path string) error {
	logrus.WithField("path", path).Info("Creating new config file")
	err := os.MkdirAll(filepath.Dir(path), 0o700)
	if err != nil {
		return err
	}

	// Load the defaults into the viper instance and write them out
	defaultBytes, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	if err := v.ReadConfig(bytes.NewBuffer(defaultBytes)); err != nil {
		return err
	}
	return v.SafeWriteConfigAs(path)
}

// Load reads the configuration at path, or DefaultPath when path is empty.
// A missing file is created with the defaults. Environment variables
// prefixed with EnvPrefix override file values.
func Load(path string) (Configuration, error) {
	var config Configuration

	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return config, err
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := setDefaults(v); err != nil {
		return config, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return config, err
		}
		if err := initializeConfig(v, path); err != nil {
			return config, err
		}
	}

	err := v.Unmarshal(&config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	return config, err
}

// setDefaults registers every key with its default, which also makes the
// keys visible to AutomaticEnv.
func setDefaults(v *viper.Viper) error {
	defaultBytes, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	defaults := viper.New()
	defaults.SetConfigType("yaml")
	if err := defaults.ReadConfig(bytes.NewBuffer(defaultBytes)); err != nil {
		return err
	}
	for _, key := range defaults.AllKeys() {
		v.SetDefault(key, defaults.Get(key))
	}
	return nil
}
