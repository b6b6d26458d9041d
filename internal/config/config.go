package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/fileflow-cli/internal/correlation"
	"github.com/KaramelBytes/fileflow-cli/internal/dataset"
	"github.com/KaramelBytes/fileflow-cli/internal/logging"
)

// Global configuration structure.
type Global struct {
	Delimiter   string `mapstructure:"delimiter" yaml:"delimiter"`
	PreviewRows int    `mapstructure:"preview_rows" yaml:"preview_rows"`
	BatchSize   int    `mapstructure:"batch_size" yaml:"batch_size"`
	SampleRows  int    `mapstructure:"sample_rows" yaml:"sample_rows"`
	Workers     int    `mapstructure:"workers" yaml:"workers"`

	// Numeric policies
	SpearmanTies   string `mapstructure:"spearman_ties" yaml:"spearman_ties"`
	MissingNumeric string `mapstructure:"missing_numeric" yaml:"missing_numeric"`
	OnMalformed    string `mapstructure:"on_malformed" yaml:"on_malformed"`

	TempDir string `mapstructure:"temp_dir" yaml:"temp_dir"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	ServeAddr string `mapstructure:"serve_addr" yaml:"serve_addr"`
}

// Keys lists the settable keys in display order.
var Keys = []string{
	"delimiter", "preview_rows", "batch_size", "sample_rows", "workers",
	"spearman_ties", "missing_numeric", "on_malformed", "temp_dir",
	"log_level", "log_format", "serve_addr",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("delimiter", ",")
	v.SetDefault("preview_rows", 70)
	v.SetDefault("batch_size", 1000)
	v.SetDefault("sample_rows", 50)
	v.SetDefault("workers", 4)
	v.SetDefault("spearman_ties", "average")
	v.SetDefault("missing_numeric", "skip")
	v.SetDefault("on_malformed", "abort")
	v.SetDefault("temp_dir", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("serve_addr", "127.0.0.1:8089")
}

// Default returns the built-in configuration.
func Default() *Global {
	v := viper.New()
	setDefaults(v)
	var c Global
	_ = v.Unmarshal(&c)
	return &c
}

func defaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".fileflow"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.fileflow/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := defaultDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
// A .env file in the working directory is read first; variables already
// present in the environment win over it.
func Load(cfgFile string) (*Global, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("FILEFLOW")
	v.AutomaticEnv()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := defaultDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects unknown policy names and non-positive sizes.
func (c *Global) Validate() error {
	if _, err := c.DelimiterRune(); err != nil {
		return err
	}
	for key, n := range map[string]int{
		"preview_rows": c.PreviewRows,
		"batch_size":   c.BatchSize,
		"sample_rows":  c.SampleRows,
		"workers":      c.Workers,
	} {
		if n <= 0 {
			return fmt.Errorf("invalid %s: %d (must be positive)", key, n)
		}
	}
	if _, err := correlation.ParseTiePolicy(c.SpearmanTies); err != nil {
		return err
	}
	if _, err := correlation.ParseMissingPolicy(c.MissingNumeric); err != nil {
		return err
	}
	if _, err := dataset.ParseMalformedPolicy(c.OnMalformed); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if !logging.ValidFormat(c.LogFormat) {
		return fmt.Errorf("invalid log_format: %s (use text or json)", c.LogFormat)
	}
	if c.ServeAddr == "" {
		return fmt.Errorf("serve_addr must not be empty")
	}
	return nil
}

// DelimiterRune maps the delimiter setting to a rune. "tab" and `\t` both
// mean a tab character.
func (c *Global) DelimiterRune() (rune, error) {
	switch strings.ToLower(c.Delimiter) {
	case "", ",":
		return ',', nil
	case "tab", `\t`, "\t":
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(c.Delimiter)
	if size != len(c.Delimiter) || r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
		return 0, fmt.Errorf("invalid delimiter: %q (use a single character or tab)", c.Delimiter)
	}
	return r, nil
}

// Get returns the display form of a key.
func (c *Global) Get(key string) (string, error) {
	switch key {
	case "delimiter":
		return c.Delimiter, nil
	case "preview_rows":
		return strconv.Itoa(c.PreviewRows), nil
	case "batch_size":
		return strconv.Itoa(c.BatchSize), nil
	case "sample_rows":
		return strconv.Itoa(c.SampleRows), nil
	case "workers":
		return strconv.Itoa(c.Workers), nil
	case "spearman_ties":
		return c.SpearmanTies, nil
	case "missing_numeric":
		return c.MissingNumeric, nil
	case "on_malformed":
		return c.OnMalformed, nil
	case "temp_dir":
		return c.TempDir, nil
	case "log_level":
		return c.LogLevel, nil
	case "log_format":
		return c.LogFormat, nil
	case "serve_addr":
		return c.ServeAddr, nil
	}
	return "", fmt.Errorf("unknown key: %s", key)
}

// Set assigns one key from its text form and validates the result. On error
// c is left unchanged.
func (c *Global) Set(key, val string) error {
	next := *c
	atoi := func() (int, error) {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("invalid int for %s: %v", key, val)
		}
		return i, nil
	}
	var err error
	switch key {
	case "delimiter":
		next.Delimiter = val
	case "preview_rows":
		next.PreviewRows, err = atoi()
	case "batch_size":
		next.BatchSize, err = atoi()
	case "sample_rows":
		next.SampleRows, err = atoi()
	case "workers":
		next.Workers, err = atoi()
	case "spearman_ties":
		next.SpearmanTies = strings.ToLower(val)
	case "missing_numeric":
		next.MissingNumeric = strings.ToLower(val)
	case "on_malformed":
		next.OnMalformed = strings.ToLower(val)
	case "temp_dir":
		next.TempDir = val
	case "log_level":
		next.LogLevel = strings.ToLower(val)
	case "log_format":
		next.LogFormat = strings.ToLower(val)
	case "serve_addr":
		next.ServeAddr = val
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	if err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}
	*c = next
	return nil
}
