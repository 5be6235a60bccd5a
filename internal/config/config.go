package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mediabatch/internal/core/domain"
	"mediabatch/internal/logging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MEDIABATCH_"

// Config holds all configuration for the service.
type Config struct {
	Server    Server    `yaml:"server"`
	Storage   Storage   `yaml:"storage"`
	Jobs      Jobs      `yaml:"jobs"`
	Extractor Extractor `yaml:"extractor"`
	Transfer  Transfer  `yaml:"transfer"`
	Log       Log       `yaml:"log"`
}

type Server struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	// WriteTimeout must cover a whole job; zero disables it.
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Storage struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	PublicBaseURL   string `yaml:"public_base_url"`
	KeyPrefix       string `yaml:"key_prefix"`
	PartSizeMiB     int    `yaml:"part_size_mib"`
	UseSSL          bool   `yaml:"use_ssl"`
	CreateBucket    bool   `yaml:"create_bucket"`
}

type Jobs struct {
	Concurrency     int    `yaml:"concurrency"`
	MaxPageSize     int    `yaml:"max_page_size"`
	MaxListingItems int    `yaml:"max_listing_items"`
	DefaultPageSize int    `yaml:"default_page_size"`
	DefaultMode     string `yaml:"default_mode"`
	StagingDir      string `yaml:"staging_dir"`
	// StaleAfter is the age past which leftover staging entries are removed at startup.
	StaleAfter      time.Duration `yaml:"stale_after"`
	PreferredFormat string        `yaml:"preferred_format"`
}

type Extractor struct {
	Binary       string        `yaml:"binary"`
	Timeout      time.Duration `yaml:"timeout"`
	Retries      int           `yaml:"retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	RateLimit    float64       `yaml:"rate_limit"`
	RateBurst    int           `yaml:"rate_burst"`
}

type Transfer struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	UserAgent      string        `yaml:"user_agent"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the configuration used when nothing overrides it.
// Storage credentials have no defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: Server{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      15 * time.Minute,
			IdleTimeout:       2 * time.Minute,
			ShutdownTimeout:   30 * time.Second,
		},
		Storage: Storage{
			Region:       "auto",
			PartSizeMiB:  16,
			UseSSL:       true,
			CreateBucket: false,
		},
		Jobs: Jobs{
			Concurrency:     3,
			MaxPageSize:     10,
			MaxListingItems: 200,
			DefaultPageSize: 3,
			DefaultMode:     string(domain.DeliveryDirect),
			StagingDir:      filepath.Join(os.TempDir(), "mediabatch"),
			StaleAfter:      6 * time.Hour,
			PreferredFormat: "mp4",
		},
		Extractor: Extractor{
			Binary:       "",
			Timeout:      2 * time.Minute,
			Retries:      3,
			RetryBackoff: time.Second,
			RateLimit:    2,
			RateBurst:    4,
		},
		Transfer: Transfer{
			ConnectTimeout: 30 * time.Second,
			ReadTimeout:    60 * time.Second,
			UserAgent:      "mediabatch/1.0",
		},
		Log: Log{
			Level:  "info",
			Format: string(logging.FormatAuto),
		},
	}
}

// Load reads the YAML file at path, when given, over the defaults and then
// applies MEDIABATCH_* environment overrides. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks that the configuration can run jobs.
func (c *Config) Validate() error {
	var errs []error
	if c.Storage.Endpoint == "" {
		errs = append(errs, errors.New("storage.endpoint is required"))
	}
	if c.Storage.AccessKeyID == "" || c.Storage.SecretAccessKey == "" {
		errs = append(errs, errors.New("storage.access_key_id and storage.secret_access_key are required"))
	}
	if c.Storage.Bucket == "" {
		errs = append(errs, errors.New("storage.bucket is required"))
	}
	if u, err := url.Parse(c.Storage.PublicBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, errors.New("storage.public_base_url must be an absolute http(s) URL"))
	}
	if c.Storage.PartSizeMiB < 5 {
		errs = append(errs, errors.New("storage.part_size_mib must be at least 5"))
	}
	if c.Jobs.Concurrency < 1 {
		errs = append(errs, errors.New("jobs.concurrency must be positive"))
	}
	if c.Jobs.MaxPageSize < 1 {
		errs = append(errs, errors.New("jobs.max_page_size must be positive"))
	}
	if c.Jobs.MaxListingItems < c.Jobs.MaxPageSize {
		errs = append(errs, errors.New("jobs.max_listing_items must be at least jobs.max_page_size"))
	}
	if c.Jobs.DefaultPageSize < 1 || c.Jobs.DefaultPageSize > c.Jobs.MaxPageSize {
		errs = append(errs, fmt.Errorf("jobs.default_page_size must be between 1 and %d", c.Jobs.MaxPageSize))
	}
	if mode, err := domain.ParseDeliveryMode(c.Jobs.DefaultMode, ""); err != nil || mode == "" {
		errs = append(errs, fmt.Errorf("jobs.default_mode must be %q or %q", domain.DeliveryDirect, domain.DeliveryArchive))
	}
	if c.Jobs.StagingDir == "" {
		errs = append(errs, errors.New("jobs.staging_dir is required"))
	}
	if c.Extractor.Retries < 1 {
		errs = append(errs, errors.New("extractor.retries must be positive"))
	}
	if c.Extractor.Timeout <= 0 || c.Transfer.ConnectTimeout <= 0 || c.Transfer.ReadTimeout <= 0 {
		errs = append(errs, errors.New("extractor and transfer timeouts must be positive"))
	}
	if c.Extractor.RateLimit <= 0 || c.Extractor.RateBurst < 1 {
		errs = append(errs, errors.New("extractor.rate_limit and extractor.rate_burst must be positive"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		errs = append(errs, fmt.Errorf("log.format: %w", err))
	}
	return errors.Join(errs...)
}

// applyEnv overrides fields from MEDIABATCH_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	e := envReader{lookup: lookup}

	e.str("SERVER_ADDR", &c.Server.Addr)
	e.duration("SERVER_READ_HEADER_TIMEOUT", &c.Server.ReadHeaderTimeout)
	e.duration("SERVER_READ_TIMEOUT", &c.Server.ReadTimeout)
	e.duration("SERVER_WRITE_TIMEOUT", &c.Server.WriteTimeout)
	e.duration("SERVER_IDLE_TIMEOUT", &c.Server.IdleTimeout)
	e.duration("SERVER_SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)

	e.str("STORAGE_ENDPOINT", &c.Storage.Endpoint)
	e.str("STORAGE_REGION", &c.Storage.Region)
	e.str("STORAGE_ACCESS_KEY_ID", &c.Storage.AccessKeyID)
	e.str("STORAGE_SECRET_ACCESS_KEY", &c.Storage.SecretAccessKey)
	e.str("STORAGE_BUCKET", &c.Storage.Bucket)
	e.str("STORAGE_PUBLIC_BASE_URL", &c.Storage.PublicBaseURL)
	e.str("STORAGE_KEY_PREFIX", &c.Storage.KeyPrefix)
	e.integer("STORAGE_PART_SIZE_MIB", &c.Storage.PartSizeMiB)
	e.boolean("STORAGE_USE_SSL", &c.Storage.UseSSL)
	e.boolean("STORAGE_CREATE_BUCKET", &c.Storage.CreateBucket)

	e.integer("JOBS_CONCURRENCY", &c.Jobs.Concurrency)
	e.integer("JOBS_MAX_PAGE_SIZE", &c.Jobs.MaxPageSize)
	e.integer("JOBS_MAX_LISTING_ITEMS", &c.Jobs.MaxListingItems)
	e.integer("JOBS_DEFAULT_PAGE_SIZE", &c.Jobs.DefaultPageSize)
	e.str("JOBS_DEFAULT_MODE", &c.Jobs.DefaultMode)
	e.str("JOBS_STAGING_DIR", &c.Jobs.StagingDir)
	e.duration("JOBS_STALE_AFTER", &c.Jobs.StaleAfter)
	e.str("JOBS_PREFERRED_FORMAT", &c.Jobs.PreferredFormat)

	e.str("EXTRACTOR_BINARY", &c.Extractor.Binary)
	e.duration("EXTRACTOR_TIMEOUT", &c.Extractor.Timeout)
	e.integer("EXTRACTOR_RETRIES", &c.Extractor.Retries)
	e.duration("EXTRACTOR_RETRY_BACKOFF", &c.Extractor.RetryBackoff)
	e.float("EXTRACTOR_RATE_LIMIT", &c.Extractor.RateLimit)
	e.integer("EXTRACTOR_RATE_BURST", &c.Extractor.RateBurst)

	e.duration("TRANSFER_CONNECT_TIMEOUT", &c.Transfer.ConnectTimeout)
	e.duration("TRANSFER_READ_TIMEOUT", &c.Transfer.ReadTimeout)
	e.str("TRANSFER_USER_AGENT", &c.Transfer.UserAgent)

	e.str("LOG_LEVEL", &c.Log.Level)
	e.str("LOG_FORMAT", &c.Log.Format)

	return errors.Join(e.errs...)
}

type envReader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (e *envReader) get(name string) (string, bool) {
	v, ok := e.lookup(EnvPrefix + name)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e *envReader) integer(name string, dst *int) {
	if v, ok := e.get(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = n
	}
}

func (e *envReader) float(name string, dst *float64) {
	if v, ok := e.get(name); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = f
	}
}

func (e *envReader) boolean(name string, dst *bool) {
	if v, ok := e.get(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(name string, dst *time.Duration) {
	if v, ok := e.get(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.errs = append(e.errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = d
	}
}
