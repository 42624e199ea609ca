package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/go-chi/jwtauth"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/chi-demo/app"

	"github.com/datafed/fednode/pkg/fednode"
	"github.com/datafed/fednode/pkg/fednode/api"
	"github.com/datafed/fednode/pkg/fednode/repo/postgres"
	"github.com/datafed/fednode/pkg/fednode/storage/s3"
)

type Config struct {
	DB        DbConfig
	S3        S3Config
	Node      NodeConfig
	JwtSecret string `env:"JWT_SECRET" env-default:""`
	DbMigrate bool   `env:"DB_MIGRATE" env-default:"false"`
}

type DbConfig struct {
	Port     uint16 `env:"FEDNODE_PG_PORT" env-default:"5432"`
	Host     string `env:"FEDNODE_PG_HOST" env-default:"localhost"`
	Name     string `env:"FEDNODE_PG_NAME" env-default:"fednode_db"`
	User     string `env:"FEDNODE_PG_USER" env-default:"fednode"`
	Password string `env:"FEDNODE_PG_PASSWORD" env-default:"pwd"`
}

type S3Config struct {
	Endpoint        string `env:"AWS_S3_ENDPOINT" env-default:"http://localhost:9000"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID" env-default:"minioadmin"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" env-default:"minioadmin"`
	BucketName      string `env:"AWS_S3_BUCKET" env-default:"fednode-bucket"`
	Region          string `env:"AWS_S3_REGION" env-default:"us-east-1"`
	UsePathStyle    bool   `env:"AWS_S3_USE_PATH_STYLE" env-default:"true"`
	CreateBucket    bool   `env:"AWS_S3_CREATE_BUCKET" env-default:"false"`
}

type NodeConfig struct {
	NodeID        string `env:"NODE_ID" env-default:"urn:node:fednode"`
	ScopeName     string `env:"SCOPE_NAME" env-default:"fednode"`
	CapacityBytes int64  `env:"STORAGE_CAPACITY_BYTES" env-default:"1099511627776"`
	DOIPrefix     string `env:"DOI_PREFIX" env-default:""`
}

func (c DbConfig) toDatabaseUrl() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   c.Name,
	}
	return u.String()
}

func NewDbPool(ctx context.Context, dbConfig DbConfig) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dbConfig.toDatabaseUrl())
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

func initializeS3Backend(config S3Config) (fednode.BlobStore, error) {
	s3Config := s3.Config{
		Endpoint:               config.Endpoint,
		AccessKeyID:            config.AccessKeyID,
		SecretAccessKey:        config.SecretAccessKey,
		Bucket:                 config.BucketName,
		Region:                 config.Region,
		UsePathStyle:           config.UsePathStyle,
		CreateBucketIfNotExist: config.CreateBucket,
	}

	backend, err := s3.New(s3Config)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 backend: %w", err)
	}

	return backend, nil
}

func main() {
	// Load configuration
	var config Config
	if err := cleanenv.ReadEnv(&config); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	// Initialize database connection
	ctx := context.Background()
	dbPool, err := NewDbPool(ctx, config.DB)
	if err != nil {
		slog.Error("Failed to connect to database", "err", err)
		os.Exit(1)
	}

	if config.DbMigrate {
		if err := postgres.Migrate(ctx, dbPool); err != nil {
			slog.Error("Failed to migrate database", "err", err)
			os.Exit(1)
		}
		slog.Info("Database schema migrated")
	}

	// Initialize S3 storage backend
	s3Backend, err := initializeS3Backend(config.S3)
	if err != nil {
		slog.Error("Failed to initialize S3 backend", "err", err)
		os.Exit(1)
	}

	// Assemble the member-node service
	options := []fednode.Option{
		fednode.WithRepository(postgres.NewWithPool(dbPool, s3Backend)),
		fednode.WithNode(fednode.NodeRef(config.Node.NodeID)),
		fednode.WithScope(config.Node.ScopeName),
		fednode.WithStorageCapacity(config.Node.CapacityBytes),
	}
	if config.Node.DOIPrefix != "" {
		options = append(options, fednode.WithIdentifierMinter(fednode.NewSequenceMinter(config.Node.DOIPrefix)))
	}

	svc, err := fednode.New(options...)
	if err != nil {
		slog.Error("Failed to create service", "err", err)
		os.Exit(1)
	}

	var tokenAuth *jwtauth.JWTAuth
	if config.JwtSecret != "" {
		tokenAuth = jwtauth.New("HS256", []byte(config.JwtSecret), nil)
	}

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	server.R.Mount("/v1", api.Routes(svc, tokenAuth))

	defer dbPool.Close()

	slog.Info("Member node starting",
		"node", config.Node.NodeID,
		"scope", config.Node.ScopeName,
		"bucket", config.S3.BucketName)

	// Start server
	server.Run()
}
