package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the main configuration for docsign.
type Config struct {
	InstanceID string           `toml:"instance_id" yaml:"instance_id"`
	BaseDir    string           `toml:"base_dir" yaml:"base_dir"`
	LogDir     string           `toml:"log_dir" yaml:"log_dir"`
	LogLevel   string           `toml:"log_level" yaml:"log_level"` // debug, info, warn or error
	Storage    StorageConfig    `toml:"storage" yaml:"storage"`
	Database   DatabaseConfig   `toml:"database" yaml:"database"`
	Mailer     MailerConfig     `toml:"mailer" yaml:"mailer"`
	Encryption EncryptionConfig `toml:"encryption" yaml:"encryption"`
	Server     ServerConfig     `toml:"server" yaml:"server"`
	Signing    SigningConfig    `toml:"signing" yaml:"signing"`
	Viewer     ViewerConfig     `toml:"viewer" yaml:"viewer"`
	Network    NetworkConfig    `toml:"network" yaml:"network"`
	Tracing    TracingConfig    `toml:"tracing" yaml:"tracing"`
}

// StorageConfig represents configuration for the object store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StorageConfig struct {
	Type          string `toml:"type" yaml:"type"` // "memory", "filesystem", or "s3"
	Bucket        string `toml:"bucket" yaml:"bucket"`
	MaxObjectSize int64  `toml:"max_object_size" yaml:"max_object_size"` // bytes; defaults to 10 MiB
	PublicBaseURL string `toml:"public_base_url,omitempty" yaml:"public_base_url,omitempty"`
	Encrypt       bool   `toml:"encrypt" yaml:"encrypt"` // age-encrypt objects at rest

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty" yaml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Prefix     string   `toml:"s3_prefix,omitempty" yaml:"s3_prefix,omitempty"`
	S3Region     string   `toml:"s3_region,omitempty" yaml:"s3_region,omitempty"`
	S3Endpoint   string   `toml:"s3_endpoint,omitempty" yaml:"s3_endpoint,omitempty"`     // custom endpoint, e.g. LocalStack or MinIO
	S3PresignTTL Duration `toml:"s3_presign_ttl,omitempty" yaml:"s3_presign_ttl,omitempty"` // when set, public URLs are presigned GETs
}

// DatabaseConfig represents configuration for the relational store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type" yaml:"type"`                             // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty" yaml:"data_dir,omitempty"` // only used for type=sqlite
}

// MailerConfig represents configuration for email dispatch.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type MailerConfig struct {
	Type string `toml:"type" yaml:"type"` // "log", "memory", or "resend"
	From string `toml:"from,omitempty" yaml:"from,omitempty"`

	// Resend-specific fields (only used when Type == "resend").
	// The API key falls back to the RESEND_API_KEY environment variable.
	ResendAPIKey   string `toml:"resend_api_key,omitempty" yaml:"resend_api_key,omitempty"`
	ResendEndpoint string `toml:"resend_endpoint,omitempty" yaml:"resend_endpoint,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for at-rest encryption.
type EncryptionConfig struct {
	Type           string `toml:"type" yaml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path" yaml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path" yaml:"private_key_path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string   `toml:"addr" yaml:"addr"`
	BaseURL      string   `toml:"base_url" yaml:"base_url"` // prefix for signing links
	ReadTimeout  Duration `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout" yaml:"write_timeout"`
}

// SigningConfig holds signature capture and placement settings.
type SigningConfig struct {
	ReductionFactor float64 `toml:"reduction_factor" yaml:"reduction_factor"`
	CornerMargin    float64 `toml:"corner_margin" yaml:"corner_margin"`
	CanvasWidth     int     `toml:"canvas_width" yaml:"canvas_width"`
	CanvasHeight    int     `toml:"canvas_height" yaml:"canvas_height"`
	LineWidth       float64 `toml:"line_width" yaml:"line_width"`
}

// ViewerConfig holds the zoom range of the document viewer.
type ViewerConfig struct {
	InitialScale float64 `toml:"initial_scale" yaml:"initial_scale"`
	MinScale     float64 `toml:"min_scale" yaml:"min_scale"`
	MaxScale     float64 `toml:"max_scale" yaml:"max_scale"`
	ScaleStep    float64 `toml:"scale_step" yaml:"scale_step"`
}

// NetworkConfig bounds calls to storage and email backends.
type NetworkConfig struct {
	Timeout        Duration `toml:"timeout" yaml:"timeout"`
	MaxRetries     int      `toml:"max_retries" yaml:"max_retries"`
	InitialBackoff Duration `toml:"initial_backoff" yaml:"initial_backoff"`
}

// TracingConfig enables OpenTelemetry export over OTLP/HTTP.
type TracingConfig struct {
	Enabled     bool   `toml:"enabled" yaml:"enabled"`
	Endpoint    string `toml:"endpoint,omitempty" yaml:"endpoint,omitempty"` // host:port, e.g. localhost:4318
	Insecure    bool   `toml:"insecure" yaml:"insecure"`
	ServiceName string `toml:"service_name,omitempty" yaml:"service_name,omitempty"`
}

// Duration is a time.Duration written as a string such as "30s".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

// NewConfig creates a new Config with the provided values and defaults for
// every section.
func NewConfig(instanceID, baseDir string) *Config {
	return &Config{
		InstanceID: instanceID,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		LogLevel:   "info",
		Storage: StorageConfig{
			Type:          "filesystem",
			Bucket:        "documents",
			MaxObjectSize: 10 << 20,
			FSRoot:        filepath.Join(baseDir, "objects"),
			PublicBaseURL: "http://localhost:8080/files",
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Mailer: MailerConfig{
			Type: "log",
			From: "onboarding@resend.dev",
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "docsign.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "docsign.key"),
		},
		Server: ServerConfig{
			Addr:         ":8080",
			BaseURL:      "http://localhost:8080",
			ReadTimeout:  Duration{30 * time.Second},
			WriteTimeout: Duration{60 * time.Second},
		},
		Signing: SigningConfig{
			ReductionFactor: 0.5,
			CornerMargin:    0.05,
			CanvasWidth:     500,
			CanvasHeight:    150,
			LineWidth:       2,
		},
		Viewer: ViewerConfig{
			InitialScale: 1.2,
			MinScale:     0.6,
			MaxScale:     3,
			ScaleStep:    0.2,
		},
		Network: NetworkConfig{
			Timeout:        Duration{30 * time.Second},
			MaxRetries:     3,
			InitialBackoff: Duration{500 * time.Millisecond},
		},
		Tracing: TracingConfig{
			ServiceName: "docsign",
		},
	}
}

// Format is a configuration file encoding.
type Format int

const (
	FormatTOML Format = iota
	FormatYAML
)

// FormatForPath picks the encoding from the file extension. Anything that is
// not .yaml or .yml is treated as TOML.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

// Manager handles reading and writing configuration.
type Manager struct {
	Format Format
}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	switch m.Format {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	default:
		if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	switch m.Format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
	default:
		if err := toml.NewEncoder(w).Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{Format: FormatForPath(path)}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{Format: FormatForPath(path)}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
