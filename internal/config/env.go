package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
)

var ErrInvalidConfig = goerr.New("invalid configuration")

type Config struct {
	Database   DatabaseConfig   `toml:"database"`
	Graph      GraphConfig      `toml:"graph"`
	Storage    StorageConfig    `toml:"storage"`
	Source     SourceConfig     `toml:"source"`
	Conversion ConversionConfig `toml:"conversion"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
	Extraction ExtractionConfig `toml:"extraction"`
	Chunking   ChunkingConfig   `toml:"chunking"`
	Workers    WorkerConfig     `toml:"workers"`
	HTTP       HTTPConfig       `toml:"http"`
	Log        LogConfig        `toml:"log"`
	Telemetry  TelemetryConfig  `toml:"telemetry"`
}

type DatabaseConfig struct {
	URL          string `toml:"url" masq:"secret"`
	SslCertPath  string `toml:"ssl_cert_path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

type GraphConfig struct {
	Enabled  bool   `toml:"enabled"`
	URL      string `toml:"url" masq:"secret"` // defaults to Database.URL
	Name     string `toml:"name"`
	Identity string `toml:"identity"` // natural | normalized
	MaxConns int32  `toml:"max_conns"`
}

type StorageConfig struct {
	AwsAccessKey string `toml:"aws_access_key" masq:"secret"`
	AwsSecretKey string `toml:"aws_secret_key" masq:"secret"`
	AwsRegion    string `toml:"aws_region"`
	BucketName   string `toml:"bucket"`
}

type SourceConfig struct {
	Kind    string   `toml:"kind"` // directus | s3
	BaseURL string   `toml:"base_url"`
	Token   string   `toml:"token" masq:"secret"`
	Prefix  string   `toml:"prefix"`
	Timeout Duration `toml:"timeout"`
	RPS     float64  `toml:"rps"`
}

type ConversionConfig struct {
	Backend     string   `toml:"backend"` // remote | local
	RemoteURL   string   `toml:"remote_url"`
	RemoteToken string   `toml:"remote_token" masq:"secret"`
	Timeout     Duration `toml:"timeout"`
	RPS         float64  `toml:"rps"`
	MaxInFlight int64    `toml:"max_in_flight"`
}

type EmbeddingConfig struct {
	APIKey      string   `toml:"api_key" masq:"secret"`
	Model       string   `toml:"model"`
	Dim         int      `toml:"dim"`
	Timeout     Duration `toml:"timeout"`
	RPS         float64  `toml:"rps"`
	MaxInFlight int64    `toml:"max_in_flight"`
}

type ExtractionConfig struct {
	Model         string `toml:"model"`
	AfterIngest   bool   `toml:"after_ingest"`
	MaxInputChars int    `toml:"max_input_chars"`
}

type ChunkingConfig struct {
	Size    int `toml:"size"`
	Overlap int `toml:"overlap"`
}

type WorkerConfig struct {
	Count      int      `toml:"count"`
	QueueSize  int      `toml:"queue_size"`
	JobTimeout Duration `toml:"job_timeout"`
}

type HTTPConfig struct {
	Port               string   `toml:"port"`
	JWTSecret          string   `toml:"jwt_secret" masq:"secret"`
	WebhookSecret      string   `toml:"webhook_secret" masq:"secret"`
	WebhookCollection  string   `toml:"webhook_collection"`
	WebhookEvents      []string `toml:"webhook_events"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
	MaxUploadBytes     int64    `toml:"max_upload_bytes"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type TelemetryConfig struct {
	Enabled     bool   `toml:"enabled"`
	ServiceName string `toml:"service_name"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{MaxOpenConns: 20, MaxIdleConns: 10},
		Graph:    GraphConfig{Enabled: true, Name: "docket", Identity: "natural", MaxConns: 8},
		Storage:  StorageConfig{AwsRegion: "us-east-2", BucketName: "docketgraph-docs"},
		Source:   SourceConfig{Kind: "directus", Timeout: Duration{60 * time.Second}, RPS: 5},
		Conversion: ConversionConfig{
			Backend:     "local",
			Timeout:     Duration{5 * time.Minute},
			RPS:         1,
			MaxInFlight: 2,
		},
		Embedding: EmbeddingConfig{
			Model:       "text-embedding-004",
			Dim:         768,
			Timeout:     Duration{2 * time.Minute},
			RPS:         2,
			MaxInFlight: 4,
		},
		Extraction: ExtractionConfig{Model: "gemini-1.5-flash", AfterIngest: true, MaxInputChars: 120000},
		Chunking:   ChunkingConfig{Size: 1000, Overlap: 200},
		Workers:    WorkerConfig{Count: 4, QueueSize: 64, JobTimeout: Duration{15 * time.Minute}},
		HTTP: HTTPConfig{
			Port:               "8080",
			WebhookCollection:  "documents",
			WebhookEvents:      []string{"items.create", "items.update"},
			CORSAllowedOrigins: []string{"http://localhost:5173"},
			MaxUploadBytes:     52 << 20,
		},
		Log:       LogConfig{Level: "info", Format: "console"},
		Telemetry: TelemetryConfig{ServiceName: "docketgraph"},
	}
}

// LoadConfig layers defaults, the optional TOML file named by DOCKET_CONFIG,
// a .env file and the process environment, in that order.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("DOCKET_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return goerr.Wrap(err, "read config file", goerr.V("path", path))
	}
	if err := toml.Unmarshal(raw, c); err != nil {
		return goerr.Wrap(err, "parse config file", goerr.V("path", path))
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	c.Database.SslCertPath = getEnv("SSL_CERT_PATH", c.Database.SslCertPath)
	c.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)

	c.Graph.Enabled = getEnvBool("GRAPH_ENABLED", c.Graph.Enabled)
	c.Graph.URL = getEnv("GRAPH_DATABASE_URL", c.Graph.URL)
	c.Graph.Name = getEnv("GRAPH_NAME", c.Graph.Name)
	c.Graph.Identity = getEnv("GRAPH_IDENTITY", c.Graph.Identity)

	c.Storage.AwsAccessKey = getEnv("AWS_ACCESS_KEY", c.Storage.AwsAccessKey)
	c.Storage.AwsSecretKey = getEnv("AWS_SECRET_KEY", c.Storage.AwsSecretKey)
	c.Storage.AwsRegion = getEnv("AWS_REGION", c.Storage.AwsRegion)
	c.Storage.BucketName = getEnv("BUCKET_NAME", c.Storage.BucketName)

	c.Source.Kind = getEnv("SOURCE_KIND", c.Source.Kind)
	c.Source.BaseURL = getEnv("DIRECTUS_URL", c.Source.BaseURL)
	c.Source.Token = getEnv("DIRECTUS_TOKEN", c.Source.Token)
	c.Source.Prefix = getEnv("SOURCE_PREFIX", c.Source.Prefix)
	c.Source.Timeout = getEnvDuration("SOURCE_TIMEOUT", c.Source.Timeout)

	c.Conversion.Backend = getEnv("CONVERSION_BACKEND", c.Conversion.Backend)
	c.Conversion.RemoteURL = getEnv("REMOTE_CONVERT_URL", c.Conversion.RemoteURL)
	c.Conversion.RemoteToken = getEnv("REMOTE_CONVERT_TOKEN", c.Conversion.RemoteToken)
	c.Conversion.Timeout = getEnvDuration("REMOTE_CONVERT_TIMEOUT", c.Conversion.Timeout)
	c.Conversion.MaxInFlight = int64(getEnvInt("REMOTE_CONVERT_MAX_IN_FLIGHT", int(c.Conversion.MaxInFlight)))

	c.Embedding.APIKey = getEnv("GEMINI_API_KEY", c.Embedding.APIKey)
	c.Embedding.Model = getEnv("EMBED_MODEL", c.Embedding.Model)
	c.Embedding.Dim = getEnvInt("EMBED_DIM", c.Embedding.Dim)
	c.Embedding.Timeout = getEnvDuration("EMBED_TIMEOUT", c.Embedding.Timeout)
	c.Embedding.MaxInFlight = int64(getEnvInt("EMBED_MAX_IN_FLIGHT", int(c.Embedding.MaxInFlight)))

	c.Extraction.Model = getEnv("GEN_MODEL", c.Extraction.Model)
	c.Extraction.AfterIngest = getEnvBool("EXTRACT_AFTER_INGEST", c.Extraction.AfterIngest)

	c.Chunking.Size = getEnvInt("CHUNK_SIZE", c.Chunking.Size)
	c.Chunking.Overlap = getEnvInt("CHUNK_OVERLAP", c.Chunking.Overlap)

	c.Workers.Count = getEnvInt("WORKERS", c.Workers.Count)
	c.Workers.QueueSize = getEnvInt("QUEUE_SIZE", c.Workers.QueueSize)
	c.Workers.JobTimeout = getEnvDuration("JOB_TIMEOUT", c.Workers.JobTimeout)

	c.HTTP.Port = getEnv("PORT", c.HTTP.Port)
	c.HTTP.JWTSecret = getEnv("JWT_SECRET", c.HTTP.JWTSecret)
	c.HTTP.WebhookSecret = getEnv("WEBHOOK_SECRET", c.HTTP.WebhookSecret)
	c.HTTP.WebhookCollection = getEnv("WEBHOOK_COLLECTION", c.HTTP.WebhookCollection)
	c.HTTP.WebhookEvents = getEnvList("WEBHOOK_EVENTS", c.HTTP.WebhookEvents)
	c.HTTP.CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", c.HTTP.CORSAllowedOrigins)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Telemetry.Enabled = getEnvBool("OTEL_ENABLED", c.Telemetry.Enabled)
}

// Validate reports the first field that cannot work.
func (c *Config) Validate() error {
	invalid := func(field string, value any, msg string) error {
		return goerr.Wrap(ErrInvalidConfig, msg, goerr.V("field", field), goerr.V("value", value))
	}

	if c.Database.URL == "" {
		return invalid("database.url", "", "DATABASE_URL not set")
	}
	if c.Embedding.Dim <= 0 {
		return invalid("embedding.dim", c.Embedding.Dim, "embedding dimension must be positive")
	}
	if c.Chunking.Size <= 0 {
		return invalid("chunking.size", c.Chunking.Size, "chunk size must be positive")
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return invalid("chunking.overlap", c.Chunking.Overlap, "overlap must be in [0, chunk size)")
	}
	switch c.Conversion.Backend {
	case "local":
	case "remote":
		if c.Conversion.RemoteURL == "" {
			return invalid("conversion.remote_url", "", "remote backend requires REMOTE_CONVERT_URL")
		}
	default:
		return invalid("conversion.backend", c.Conversion.Backend, "backend must be remote or local")
	}
	switch c.Source.Kind {
	case "directus", "s3":
	default:
		return invalid("source.kind", c.Source.Kind, "source must be directus or s3")
	}
	switch c.Graph.Identity {
	case "natural", "normalized":
	default:
		return invalid("graph.identity", c.Graph.Identity, "identity must be natural or normalized")
	}
	if c.Workers.Count <= 0 {
		return invalid("workers.count", c.Workers.Count, "worker count must be positive")
	}
	if c.Workers.QueueSize <= 0 {
		return invalid("workers.queue_size", c.Workers.QueueSize, "queue size must be positive")
	}
	return nil
}

// GraphURL is the connection string for the graph pool.
func (c *Config) GraphURL() string {
	if c.Graph.URL != "" {
		return c.Graph.URL
	}
	return c.Database.URL
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvDuration(key string, def Duration) Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return Duration{d}
}

// Duration decodes "90s"-style strings from TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return goerr.Wrap(err, "parse duration", goerr.V("value", string(b)))
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func getEnvList(key string, def []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
