package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Camera    CameraConfig    `yaml:"camera"`
	Vision    VisionConfig    `yaml:"vision"`
	Security  SecurityConfig  `yaml:"security"`
	NATS      NATSConfig      `yaml:"nats"`
	Snapshots SnapshotsConfig `yaml:"snapshots"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type CameraConfig struct {
	Device         string        `yaml:"device"`
	Width          int           `yaml:"width"`
	Height         int           `yaml:"height"`
	FPS            int           `yaml:"fps"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
}

type VisionConfig struct {
	ModelsDir            string  `yaml:"models_dir"`
	DetectionThreshold   float64 `yaml:"detection_threshold"`
	RecognitionThreshold float64 `yaml:"recognition_threshold"`
	EmbeddingDim         int     `yaml:"embedding_dim"`
	MinFaceSize          int     `yaml:"min_face_size"`
}

// SecurityConfig gates encryption-at-rest and audit logging.
// An empty EncryptionKey disables payload encryption; when a key is set
// every embedding write is sealed and every read unsealed.
type SecurityConfig struct {
	EncryptionKey string `yaml:"encryption_key"` // hex-encoded 32 bytes
	HashNames     bool   `yaml:"hash_names"`
	AuditEnabled  bool   `yaml:"audit_enabled"`
	AuditActor    string `yaml:"audit_actor"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

type SnapshotsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Camera.Device == "" {
		cfg.Camera.Device = "/dev/video0"
	}
	if cfg.Camera.Width == 0 {
		cfg.Camera.Width = 640
	}
	if cfg.Camera.Height == 0 {
		cfg.Camera.Height = 480
	}
	if cfg.Camera.FPS == 0 {
		cfg.Camera.FPS = 10
	}
	if cfg.Camera.AcquireTimeout == 0 {
		cfg.Camera.AcquireTimeout = 5 * time.Second
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.RecognitionThreshold == 0 {
		cfg.Vision.RecognitionThreshold = 0.4
	}
	if cfg.Vision.EmbeddingDim == 0 {
		cfg.Vision.EmbeddingDim = 512
	}
	if cfg.Vision.MinFaceSize == 0 {
		cfg.Vision.MinFaceSize = 20
	}
	if cfg.Security.AuditActor == "" {
		cfg.Security.AuditActor = "engine"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FACEID_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FACEID_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("FACEID_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FACEID_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FACEID_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FACEID_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FACEID_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FACEID_CAMERA_DEVICE"); v != "" {
		cfg.Camera.Device = v
	}
	if v := os.Getenv("FACEID_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("FACEID_RECOGNITION_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Vision.RecognitionThreshold = f
		}
	}
	if v := os.Getenv("FACEID_ENCRYPTION_KEY"); v != "" {
		cfg.Security.EncryptionKey = v
	}
	if v := os.Getenv("FACEID_NATS_URL"); v != "" {
		cfg.NATS.URL = v
		cfg.NATS.Enabled = true
	}
	if v := os.Getenv("FACEID_MINIO_ENDPOINT"); v != "" {
		cfg.Snapshots.Endpoint = v
	}
	if v := os.Getenv("FACEID_MINIO_ACCESS_KEY"); v != "" {
		cfg.Snapshots.AccessKey = v
	}
	if v := os.Getenv("FACEID_MINIO_SECRET_KEY"); v != "" {
		cfg.Snapshots.SecretKey = v
	}
	if v := os.Getenv("FACEID_MINIO_BUCKET"); v != "" {
		cfg.Snapshots.Bucket = v
	}
}
