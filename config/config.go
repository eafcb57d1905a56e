// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	v "github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	validLogLevels    = []string{"debug", "info", "warn", "error", "fatal"}
	validEnvs         = []string{"development", "production"}
	validStorageTypes = []string{"s3", "r2", "minio"}
	validIndexDrivers = []string{"sqlite", "postgres"}
)

// Every key that can be set from the environment. APP_LOG_LEVEL sets
// app.log_level and so on.
var envKeys = []string{
	"app.log_level",
	"app.env",

	"host.port",
	"host.cors_origins",
	"host.ssl.enabled",
	"host.ssl.certificate_path",
	"host.ssl.certificate_key_path",

	"storage.type",
	"storage.bucket",

	"aws.region",
	"aws.access_key",
	"aws.secret_access_key",
	"aws.endpoint",

	"cloudflare.account_id",
	"cloudflare.access_key_id",
	"cloudflare.secret_access_key",

	"minio.endpoint",
	"minio.access_key",
	"minio.secret_key",
	"minio.use_ssl",

	"index.driver",
	"index.dsn",

	"auth.region",
	"auth.user_pool_id",
	"auth.client_id",
	"auth.jwks_url",
	"auth.issuer",

	"rate_limit.window",
	"rate_limit.max_requests",
	"rate_limit.redis_url",

	"presign.default_expiry",
	"share.max_days",
	"tags.probe_width",

	"events.webhook_secret",
	"events.nats_url",
	"events.nats_subject",
	"events.concurrency",

	"derivatives.max_source_bytes",
	"upload.max_size",
}

// EnvName returns the environment variable bound to key.
func EnvName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func setDefaults() {
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.env", "production")

	v.SetDefault("host.port", 8080)
	v.SetDefault("host.cors_origins", []string{"http://localhost:5173"})
	v.SetDefault("host.ssl.enabled", false)

	v.SetDefault("storage.type", "s3")
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("minio.use_ssl", true)

	v.SetDefault("index.driver", "sqlite")
	v.SetDefault("index.dsn", "photos.db")

	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("rate_limit.max_requests", 100)

	v.SetDefault("presign.default_expiry", time.Hour)
	v.SetDefault("share.max_days", 30)
	v.SetDefault("tags.probe_width", 10)

	v.SetDefault("events.nats_subject", "photos.events")
	v.SetDefault("events.concurrency", 10)

	v.SetDefault("derivatives.max_source_bytes", 64<<20)

	// MiB
	v.SetDefault("upload.max_size", 50)
}

// Load binds the environment, applies defaults and reads the config file
// without validating anything. path points at a toml file; when empty
// config.toml is looked up in the working directory and may be absent, in
// which case the environment and defaults are used.
func Load(path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetConfigType("toml")

	for _, key := range envKeys {
		if err := v.BindEnv(key, EnvName(key)); err != nil {
			return fmt.Errorf("failed to bind %s, %w", key, err)
		}
	}

	setDefaults()

	if err := v.ReadInConfig(); err != nil {
		var notFound v.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file, %w", err)
		}

		zap.L().Info("No config.toml found, using environment and defaults")
	}

	return nil
}

// Setup prepares everything config-related so that the server can
// start working. Function will return an error if something is critically
// wrong and the application can't run because of that.
func Setup(path string) error {
	if err := Load(path); err != nil {
		return err
	}

	return Validate()
}

// UploadMaxBytes returns upload.max_size, which is configured in MiB.
func UploadMaxBytes() int64 {
	return v.GetInt64("upload.max_size") << 20
}

// Validate checks the loaded configuration. Storage and auth settings are
// checked as a whole so a misconfigured deployment fails at startup rather
// than on the first request.
func Validate() error {
	if err := ValidateStore(); err != nil {
		return err
	}

	if v.GetInt("host.port") <= 0 {
		return errors.New("invalid port provided")
	}

	if v.GetBool("host.ssl.enabled") {
		if v.GetString("host.ssl.certificate_path") == "" {
			return errors.New("no ssl certificate path provided")
		}

		if v.GetString("host.ssl.certificate_key_path") == "" {
			return errors.New("no ssl certificate key path provided")
		}
	}

	if v.GetString("auth.client_id") == "" {
		return errors.New("auth.client_id can't be empty")
	}

	if v.GetString("auth.issuer") == "" && (v.GetString("auth.region") == "" || v.GetString("auth.user_pool_id") == "") {
		return errors.New("auth.region and auth.user_pool_id are required unless auth.issuer is set")
	}

	if v.GetDuration("rate_limit.window") <= 0 {
		return errors.New("rate_limit.window must be bigger than 0")
	}

	if v.GetInt("rate_limit.max_requests") <= 0 {
		return errors.New("rate_limit.max_requests must be bigger than 0")
	}

	if d := v.GetDuration("presign.default_expiry"); d <= 0 || d > 7*24*time.Hour {
		return errors.New("presign.default_expiry must be between 1s and 7 days")
	}

	if v.GetInt("share.max_days") < 1 {
		return errors.New("share.max_days must be at least 1")
	}

	if v.GetInt("events.concurrency") < 1 {
		return errors.New("events.concurrency must be at least 1")
	}

	if v.GetString("events.nats_url") != "" && v.GetString("events.nats_subject") == "" {
		return errors.New("events.nats_subject can't be empty when events.nats_url is set")
	}

	if v.GetString("events.webhook_secret") == "" {
		zap.L().Warn("No events.webhook_secret set, the storage webhook is disabled")
	}

	if v.GetInt("upload.max_size") <= 0 {
		return errors.New("upload.max_size must be bigger than 0")
	}

	return nil
}

// ValidateStore checks only what offline tools touching the bucket and the
// index need. Auth, HTTP and event settings are ignored.
func ValidateStore() error {
	if !slices.Contains(validLogLevels, v.GetString("app.log_level")) {
		return errors.New("invalid log level provided")
	}

	if !slices.Contains(validEnvs, v.GetString("app.env")) {
		return errors.New("app.env must be development or production")
	}

	if err := validateStorage(); err != nil {
		return err
	}

	if !slices.Contains(validIndexDrivers, v.GetString("index.driver")) {
		return errors.New("index.driver must be sqlite or postgres")
	}

	if v.GetString("index.dsn") == "" {
		return errors.New("index.dsn can't be empty")
	}

	if v.GetInt("tags.probe_width") < 1 {
		return errors.New("tags.probe_width must be at least 1")
	}

	if v.GetInt64("derivatives.max_source_bytes") <= 0 {
		return errors.New("derivatives.max_source_bytes must be bigger than 0")
	}

	return nil
}

func validateStorage() error {
	storageType := v.GetString("storage.type")
	if !slices.Contains(validStorageTypes, storageType) {
		return errors.New("invalid storage type provided")
	}

	if v.GetString("storage.bucket") == "" {
		return errors.New("bucket can't be empty")
	}

	switch storageType {
	case "s3":
		if v.GetString("aws.region") == "" {
			return errors.New("aws.region can't be empty")
		}
		if (v.GetString("aws.access_key") == "") != (v.GetString("aws.secret_access_key") == "") {
			return errors.New("aws.access_key and aws.secret_access_key must be set together")
		}
	case "r2":
		if v.GetString("cloudflare.account_id") == "" {
			return errors.New("account id can't be empty")
		}
		if v.GetString("cloudflare.access_key_id") == "" {
			return errors.New("account access id can't be empty")
		}
		if v.GetString("cloudflare.secret_access_key") == "" {
			return errors.New("secret access key can't be empty")
		}
	case "minio":
		if v.GetString("minio.endpoint") == "" {
			return errors.New("minio.endpoint can't be empty")
		}
	}

	return nil
}
