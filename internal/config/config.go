package config

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `env:",prefix=SERVER_"`
	Database DatabaseConfig `env:",prefix=DB_"`
	Mongo    MongoConfig    `env:",prefix=MONGO_"`
	AMQP     AMQPConfig     `env:",prefix=AMQP_"`
	S3       S3Config       `env:",prefix=S3_"`
	SMTP     SMTPConfig     `env:",prefix=SMTP_"`
	Cache    CacheConfig    `env:",prefix=CACHE_"`
	Workflow WorkflowConfig `env:",prefix=WORKFLOW_"`
	App      AppConfig      `env:",prefix=APP_"`

	// StoreDriver selects the persistence backend: postgres, mongo or memory.
	StoreDriver string `env:"STORE_DRIVER,default=postgres"`
}

type ServerConfig struct {
	Port         string `env:"PORT,default=8080"`
	Host         string `env:"HOST,default=0.0.0.0"`
	ReadTimeout  int    `env:"READ_TIMEOUT,default=30"`  // seconds
	WriteTimeout int    `env:"WRITE_TIMEOUT,default=30"` // seconds
	// Token bucket applied to pledge creation.
	PledgeRate  float64 `env:"PLEDGE_RATE,default=50"`
	PledgeBurst int     `env:"PLEDGE_BURST,default=100"`
	// Multipart upload limit in bytes.
	MaxUploadBytes int64 `env:"MAX_UPLOAD_BYTES,default=10485760"`
}

type DatabaseConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=5432"`
	User     string `env:"USER,default=postgres"`
	Password string `env:"PASSWORD,default=postgres"`
	Name     string `env:"NAME,default=charityng"`
	SSLMode  string `env:"SSL_MODE,default=disable"`
	MaxConns int    `env:"MAX_CONNS,default=25"`
	MinConns int    `env:"MIN_CONNS,default=5"`
}

type MongoConfig struct {
	URI      string `env:"URI,default=mongodb://localhost:27017"`
	Database string `env:"DATABASE,default=charityng"`
}

type AMQPConfig struct {
	// Empty URL keeps the bus in process.
	URL string `env:"URL"`
}

type S3Config struct {
	Bucket          string `env:"BUCKET_NAME"`
	Region          string `env:"REGION,default=eu-central-1"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	// Endpoint overrides the AWS endpoint, e.g. for MinIO.
	Endpoint string `env:"ENDPOINT"`
}

type SMTPConfig struct {
	Host          string `env:"HOST"`
	Port          int    `env:"PORT,default=587"`
	User          string `env:"USER"`
	Password      string `env:"PASS"`
	SenderAddress string `env:"SENDER_ADDRESS,default=no-reply@charityng.local"`
	TemplateDir   string `env:"TEMPLATE_DIR,default=templates/emails"`
}

type CacheConfig struct {
	TTL time.Duration `env:"TTL,default=30s"`
}

type WorkflowConfig struct {
	// Strict rejects status changes that skip the documented lifecycle.
	Strict            bool          `env:"STRICT,default=false"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL,default=5m"`
	ResetTokenTTL     time.Duration `env:"RESET_TOKEN_TTL,default=1h"`
}

type AppConfig struct {
	Environment   string `env:"ENVIRONMENT,default=development"`
	LogLevel      string `env:"LOG_LEVEL,default=info"`
	AdminEmail    string `env:"ADMIN_USER_EMAIL"`
	AdminPassword string `env:"ADMIN_USER_PASSWORD"`
}

// Load reads an optional .env file and then the process environment.
func Load(ctx context.Context) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	switch cfg.StoreDriver {
	case "postgres", "mongo", "memory":
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	return &cfg, nil
}

// GetDatabaseURL returns the PostgreSQL connection URL
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}
