// Package config loads settings for the ebms administrative tools.
//
// Settings come from, in increasing priority: built-in defaults, an
// ebms.toml (or ebms.yaml) file, and EBMS_* environment variables
// (EBMS_PUBMED_HOST overrides pubmed.host, and so on).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nciocpl/ebms/internal/snapshot"
)

// FileName is the base name of the configuration file, without extension.
const FileName = "ebms"

// Config holds every setting used by the commands.
type Config struct {
	// Dir is the working directory relative paths are resolved against.
	Dir string `mapstructure:"-" toml:"-"`

	Paths    PathsConfig       `mapstructure:"paths" toml:"paths"`
	IDKeys   map[string]string `mapstructure:"id_keys" toml:"id_keys"`
	Export   ExportConfig      `mapstructure:"export" toml:"export"`
	Database DatabaseConfig    `mapstructure:"database" toml:"database"`
	PubMed   PubMedConfig      `mapstructure:"pubmed" toml:"pubmed"`
	Retry    RetryConfig       `mapstructure:"retry" toml:"retry"`
	SMTP     SMTPConfig        `mapstructure:"smtp" toml:"smtp"`
	Log      LogConfig         `mapstructure:"log" toml:"log"`
}

// PathsConfig locates the snapshot directories and article files.
type PathsConfig struct {
	Baseline string `mapstructure:"baseline" toml:"baseline"`
	Exported string `mapstructure:"exported" toml:"exported"`
	Deltas   string `mapstructure:"deltas" toml:"deltas"`
	Articles string `mapstructure:"articles" toml:"articles"` // article XML files
	Manifest string `mapstructure:"manifest" toml:"manifest"`
	Sums     string `mapstructure:"sums" toml:"sums"`
	FileSums string `mapstructure:"file_sums" toml:"file_sums"` // sha1sum listing of managed files
}

// TableConfig maps an entity type to its source table.
type TableConfig struct {
	Table   string `mapstructure:"table" toml:"table"`
	OrderBy string `mapstructure:"order_by" toml:"order_by"`
}

// ExportConfig lists the entity types written by the exporter.
type ExportConfig struct {
	Tables map[string]TableConfig `mapstructure:"tables" toml:"tables"`
}

// DatabaseConfig locates the relational database.
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// PubMedConfig configures the scheduled PubMed refresh.
type PubMedConfig struct {
	Host      string        `mapstructure:"host" toml:"host"`     // EBMS web server
	Scheme    string        `mapstructure:"scheme" toml:"scheme"` // https unless testing
	ESearch   string        `mapstructure:"esearch" toml:"esearch"`
	BatchSize int           `mapstructure:"batch_size" toml:"batch_size"`
	DayPause  time.Duration `mapstructure:"day_pause" toml:"day_pause"`
	StopLag   time.Duration `mapstructure:"stop_lag" toml:"stop_lag"` // how far behind today the refresh stops
	Timeout   time.Duration `mapstructure:"timeout" toml:"timeout"`
}

// RetryConfig is the fixed-attempt, linearly growing retry policy.
type RetryConfig struct {
	Attempts int           `mapstructure:"attempts" toml:"attempts"`
	Delay    time.Duration `mapstructure:"delay" toml:"delay"`
	Step     time.Duration `mapstructure:"step" toml:"step"`
}

// SMTPConfig configures report email.
type SMTPConfig struct {
	Host     string   `mapstructure:"host" toml:"host"`
	Port     int      `mapstructure:"port" toml:"port"`
	From     string   `mapstructure:"from" toml:"from"`
	To       []string `mapstructure:"to" toml:"to"`
	Username string   `mapstructure:"username" toml:"username,omitempty"`
	Password string   `mapstructure:"password" toml:"password,omitempty"`
}

// LogConfig configures the rotating log file written by scheduled jobs.
type LogConfig struct {
	File       string `mapstructure:"file" toml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" toml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" toml:"compress"`
	Verbose    bool   `mapstructure:"verbose" toml:"verbose"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Dir: ".",
		Paths: PathsConfig{
			Baseline: "baseline",
			Exported: "exported",
			Deltas:   "deltas",
			Articles: "articles",
			Manifest: "articles.manifest",
			Sums:     "articles.sums",
			FileSums: "files.sums",
		},
		IDKeys: map[string]string(snapshot.DefaultIDKeys()),
		Export: ExportConfig{Tables: map[string]TableConfig{}},
		Database: DatabaseConfig{
			Path: "ebms.db",
		},
		PubMed: PubMedConfig{
			Scheme:    "https",
			ESearch:   "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi",
			BatchSize: 100,
			DayPause:  5 * time.Second,
			StopLag:   7 * 24 * time.Hour,
			Timeout:   5 * time.Minute,
		},
		Retry: RetryConfig{
			Attempts: 10,
			Delay:    10 * time.Second,
			Step:     10 * time.Second,
		},
		SMTP: SMTPConfig{
			Host: "MAILFWD.NIH.GOV",
			Port: 25,
			From: "ebms@cancer.gov",
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 90,
			Compress:   true,
		},
	}
}

// Load reads the configuration for dir. If file is empty, ebms.toml/.yaml
// is looked up in dir and then in $HOME/.config/ebms; a missing file is
// not an error.
func Load(dir, file string) (*Config, error) {
	if dir == "" {
		dir = "."
	}
	def := Default()
	v := viper.New()
	setDefaults(v, def)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(dir)
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "ebms"))
		}
	}
	v.SetEnvPrefix("EBMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Dir = dir
	// Configured overrides are layered on the built-in table rather than replacing it
	cfg.IDKeys = map[string]string(snapshot.DefaultIDKeys().Merge(snapshot.IDKeys(cfg.IDKeys)))
	if cfg.Export.Tables == nil {
		cfg.Export.Tables = map[string]TableConfig{}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, def *Config) {
	v.SetDefault("paths.baseline", def.Paths.Baseline)
	v.SetDefault("paths.exported", def.Paths.Exported)
	v.SetDefault("paths.deltas", def.Paths.Deltas)
	v.SetDefault("paths.articles", def.Paths.Articles)
	v.SetDefault("paths.manifest", def.Paths.Manifest)
	v.SetDefault("paths.sums", def.Paths.Sums)
	v.SetDefault("paths.file_sums", def.Paths.FileSums)
	v.SetDefault("database.path", def.Database.Path)
	v.SetDefault("pubmed.host", def.PubMed.Host)
	v.SetDefault("pubmed.scheme", def.PubMed.Scheme)
	v.SetDefault("pubmed.esearch", def.PubMed.ESearch)
	v.SetDefault("pubmed.batch_size", def.PubMed.BatchSize)
	v.SetDefault("pubmed.day_pause", def.PubMed.DayPause)
	v.SetDefault("pubmed.stop_lag", def.PubMed.StopLag)
	v.SetDefault("pubmed.timeout", def.PubMed.Timeout)
	v.SetDefault("retry.attempts", def.Retry.Attempts)
	v.SetDefault("retry.delay", def.Retry.Delay)
	v.SetDefault("retry.step", def.Retry.Step)
	v.SetDefault("smtp.host", def.SMTP.Host)
	v.SetDefault("smtp.port", def.SMTP.Port)
	v.SetDefault("smtp.from", def.SMTP.From)
	v.SetDefault("smtp.to", def.SMTP.To)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("log.file", def.Log.File)
	v.SetDefault("log.max_size_mb", def.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", def.Log.MaxBackups)
	v.SetDefault("log.max_age_days", def.Log.MaxAgeDays)
	v.SetDefault("log.compress", def.Log.Compress)
	v.SetDefault("log.verbose", def.Log.Verbose)
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be at least 1 (got %d)", c.Retry.Attempts)
	}
	if c.Retry.Delay < 0 || c.Retry.Step < 0 {
		return fmt.Errorf("retry.delay and retry.step must not be negative")
	}
	if c.PubMed.BatchSize < 1 {
		return fmt.Errorf("pubmed.batch_size must be at least 1 (got %d)", c.PubMed.BatchSize)
	}
	for name, t := range c.Export.Tables {
		if t.Table == "" {
			return fmt.Errorf("export.tables.%s: table is required", name)
		}
	}
	return snapshot.IDKeys(c.IDKeys).Validate()
}

// Path resolves p against the working directory unless it is absolute.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// SnapshotIDKeys returns the identifying field table for the delta computer.
func (c *Config) SnapshotIDKeys() snapshot.IDKeys {
	return snapshot.IDKeys(c.IDKeys)
}
