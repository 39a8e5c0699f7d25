package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/juju/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	ListenAddress string
	LogLevel      string

	// Record store: memory, sqlite or mongo.
	StorageType    string
	DataSourceName string
	MongoURI       string
	MongoDatabase  string
	RedisAddr      string
	RedisTTL       time.Duration

	// Blob store: memory, filesystem or s3.
	BlobType         string
	LocalStoragePath string
	PublicBaseURL    string
	S3BucketName     string
	S3PublicURL      string
	S3Prefix         string

	JWTSecret        string
	JWTRefreshSecret string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration

	BrowseAllOnEmptySearch bool
	UploadConcurrency      int
	MaxUploadFiles         int
	MaxUploadBytes         int64

	GitHubClientID     string
	GitHubClientSecret string
	GitHubRedirectURL  string
	OIDCIssuerURL      string
	OIDCClientID       string
	OIDCClientSecret   string
	OIDCRedirectURL    string
}

func flagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("car-management", pflag.ContinueOnError)
	fs.String("config", "", "Optional config file (yaml, json or toml).")
	fs.String("listen", ":3001", "The address to listen on.")
	fs.String("loglevel", "info", "The log level (debug, info, warn, error).")

	fs.String("storage-type", "memory", "Record store: memory, sqlite or mongo.")
	fs.String("data-source-name", "cars.db", "SQLite data source name.")
	fs.String("mongo-uri", "mongodb://localhost:27017", "MongoDB connection string.")
	fs.String("mongo-database", "car_management", "MongoDB database name.")
	fs.String("redis-addr", "", "Redis address for the car cache; empty disables caching.")
	fs.Duration("redis-ttl", time.Hour, "Lifetime of cached cars.")

	fs.String("blob-type", "memory", "Blob store: memory, filesystem or s3.")
	fs.String("local-storage-path", "./uploads", "Directory for the filesystem blob store.")
	fs.String("public-base-url", "http://localhost:3001", "Base URL the filesystem blob store serves /media from.")
	fs.String("s3-bucket-name", "", "S3 bucket for the s3 blob store.")
	fs.String("s3-public-url", "", "Public base URL of the bucket; defaults to the virtual-hosted S3 URL.")
	fs.String("s3-prefix", "cars/", "Key prefix for uploaded images.")

	fs.String("jwt-secret", "", "Secret used to sign access tokens.")
	fs.String("jwt-refresh-secret", "", "Secret used to sign refresh tokens.")
	fs.Duration("access-token-ttl", 72*time.Hour, "Access token lifetime.")
	fs.Duration("refresh-token-ttl", 7*24*time.Hour, "Refresh token lifetime.")

	fs.Bool("browse-all-on-empty-search", true, "An empty search keyword lists cars of every owner.")
	fs.Int("upload-concurrency", 4, "Parallel uploads per request.")
	fs.Int("max-upload-files", 10, "Maximum images per request.")
	fs.Int64("max-upload-bytes", 5<<20, "Maximum size of a single image.")

	fs.String("github-client-id", "", "GitHub OAuth client id.")
	fs.String("github-client-secret", "", "GitHub OAuth client secret.")
	fs.String("github-redirect-url", "", "GitHub OAuth redirect URL.")
	fs.String("oidc-issuer-url", "", "OIDC issuer URL.")
	fs.String("oidc-client-id", "", "OIDC client id.")
	fs.String("oidc-client-secret", "", "OIDC client secret.")
	fs.String("oidc-redirect-url", "", "OIDC redirect URL.")
	return fs
}

// Load reads configuration from flags, the environment (a .env file is
// loaded first when present) and an optional config file, in that order
// of precedence.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found")
	}

	fs := flagSet()
	if err := fs.Parse(args); err != nil {
		return nil, errors.Annotate(err, "failed to parse flags")
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, errors.Trace(err)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Annotatef(err, "failed to read config file %s", file)
		}
	}

	cfg := &Config{
		ListenAddress:          v.GetString("listen"),
		LogLevel:               v.GetString("loglevel"),
		StorageType:            v.GetString("storage-type"),
		DataSourceName:         v.GetString("data-source-name"),
		MongoURI:               v.GetString("mongo-uri"),
		MongoDatabase:          v.GetString("mongo-database"),
		RedisAddr:              v.GetString("redis-addr"),
		RedisTTL:               v.GetDuration("redis-ttl"),
		BlobType:               v.GetString("blob-type"),
		LocalStoragePath:       v.GetString("local-storage-path"),
		PublicBaseURL:          strings.TrimRight(v.GetString("public-base-url"), "/"),
		S3BucketName:           v.GetString("s3-bucket-name"),
		S3PublicURL:            strings.TrimRight(v.GetString("s3-public-url"), "/"),
		S3Prefix:               v.GetString("s3-prefix"),
		JWTSecret:              v.GetString("jwt-secret"),
		JWTRefreshSecret:       v.GetString("jwt-refresh-secret"),
		AccessTokenTTL:         v.GetDuration("access-token-ttl"),
		RefreshTokenTTL:        v.GetDuration("refresh-token-ttl"),
		BrowseAllOnEmptySearch: v.GetBool("browse-all-on-empty-search"),
		UploadConcurrency:      v.GetInt("upload-concurrency"),
		MaxUploadFiles:         v.GetInt("max-upload-files"),
		MaxUploadBytes:         v.GetInt64("max-upload-bytes"),
		GitHubClientID:         v.GetString("github-client-id"),
		GitHubClientSecret:     v.GetString("github-client-secret"),
		GitHubRedirectURL:      v.GetString("github-redirect-url"),
		OIDCIssuerURL:          v.GetString("oidc-issuer-url"),
		OIDCClientID:           v.GetString("oidc-client-id"),
		OIDCClientSecret:       v.GetString("oidc-client-secret"),
		OIDCRedirectURL:        v.GetString("oidc-redirect-url"),
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.NotValidf("empty JWT_SECRET")
	}
	if c.JWTRefreshSecret == "" {
		logrus.Warn("JWT_REFRESH_SECRET is not set, refresh tokens are signed with JWT_SECRET")
		c.JWTRefreshSecret = c.JWTSecret
	}
	if c.UploadConcurrency < 1 {
		c.UploadConcurrency = 1
	}
	if c.MaxUploadFiles < 0 || c.MaxUploadBytes <= 0 {
		return errors.NotValidf("upload limits %d files / %d bytes", c.MaxUploadFiles, c.MaxUploadBytes)
	}
	switch c.StorageType {
	case "memory", "sqlite", "mongo":
	default:
		return errors.NotValidf("storage type %q", c.StorageType)
	}
	switch c.BlobType {
	case "memory", "filesystem":
	case "s3":
		if c.S3BucketName == "" {
			return errors.NotValidf("empty S3_BUCKET_NAME for s3 blob storage")
		}
	default:
		return errors.NotValidf("blob type %q", c.BlobType)
	}
	return nil
}
