package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/nimasrn/congregation-messenger/pkg/logger"
	"github.com/pkg/errors"
)

const ConfigTagName = "env"
const ConfigDefaultTagName = "default"

var config *Config

// Config holds every configuration value of the service. Only this struct
// must be used to read configuration, no package reads the environment directly.
type Config struct {
	AppEnv   string   `env:"APP_ENV,default=dev"`
	AppName  string   `env:"APP_NAME,default=congregation_messenger"`
	AppDebug bool     `env:"APP_DEBUG"`
	LogLevel []string `env:"LOG_LEVEL"`

	HttpListenAddr     string        `env:"HTTP_LISTEN_ADDR,default=:8080"`
	HttpRequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT,default=30s"`
	MetricsListenAddr  string        `env:"METRICS_LISTEN_ADDR,default=:9100"`
	MetricsURI         string        `env:"METRICS_URI,default=/metrics"`
	PromNamespace      string        `env:"PROM_NAMESPACE,default=congregation"`

	// STORE_DRIVER selects the record store backend: postgres | firestore
	StoreDriver string `env:"STORE_DRIVER,default=postgres"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`

	FirestoreProjectID       string `env:"FIRESTORE_PROJECT_ID"`
	GoogleCredentialsFile    string `env:"GOOGLE_CREDENTIALS_FILE"`
	FirestoreCollectionsRoot string `env:"FIRESTORE_COLLECTIONS_ROOT"`

	RedisAddr               string `env:"REDIS_ADDR"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX"`

	QueueName              string        `env:"QUEUE_NAME,default=delivery-reports"`
	QueueConsumerGroup     string        `env:"QUEUE_CONSUMER_GROUP,default=delivery-processors"`
	QueueConsumerName      string        `env:"QUEUE_CONSUMER_NAME"`
	QueueConsumers         int           `env:"QUEUE_CONSUMERS,default=2"`
	QueueMaxRetries        int           `env:"QUEUE_MAX_RETRIES,default=3"`
	QueueVisibilityTimeout time.Duration `env:"QUEUE_VISIBILITY_TIMEOUT,default=30s"`
	QueuePollInterval      time.Duration `env:"QUEUE_POLL_INTERVAL,default=1s"`
	QueueBatchSize         int64         `env:"QUEUE_BATCH_SIZE,default=10"`
	QueueMaxLen            int64         `env:"QUEUE_MAX_LEN,default=100000"`
	QueueEnableDLQ         bool          `env:"QUEUE_ENABLE_DLQ"`

	GatewayBaseURL  string        `env:"GATEWAY_BASE_URL,default=https://api.smsonlinegh.com"`
	GatewayAPIKey   string        `env:"GATEWAY_API_KEY"`
	GatewaySenderID string        `env:"GATEWAY_SENDER_ID"`
	GatewayTimeout  time.Duration `env:"GATEWAY_TIMEOUT,default=15s"`

	RetryMaxAttempts int           `env:"RETRY_MAX_ATTEMPTS,default=3"`
	RetryBaseDelay   time.Duration `env:"RETRY_BASE_DELAY,default=1s"`

	PhoneCountryCode     string  `env:"PHONE_COUNTRY_CODE,default=233"`
	PhoneCanonicalLength int     `env:"PHONE_CANONICAL_LENGTH,default=12"`
	SMSUnitPrice         float64 `env:"SMS_UNIT_PRICE,default=0.03"`
	FallbackDisplayName  string  `env:"FALLBACK_DISPLAY_NAME,default=Beloved"`

	// AUTH_DRIVER selects how bearer tokens are verified: jwt | firebase
	AuthDriver          string `env:"AUTH_DRIVER,default=jwt"`
	AuthJWTSigningKey   string `env:"AUTH_JWT_SIGNING_KEY"`
	AuthJWTIssuer       string `env:"AUTH_JWT_ISSUER,default=congregation-messenger"`
	FirebaseProjectID   string `env:"FIREBASE_PROJECT_ID"`
	FirebaseCredentials string `env:"FIREBASE_CREDENTIALS_FILE"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.Wrapf(err, "failed to load configuration file %s", path)
		}
	}

	_, err = env.UnmarshalFromEnviron(c)
	if err != nil {
		return errors.Wrap(err, "failed to map env variables to Configuration object")
	}

	if err = c.validate(); err != nil {
		return err
	}

	config = c
	return nil
}

// Set replaces the process configuration. Tests and tools use it to skip the environment.
func Set(c *Config) {
	config = c
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

func (c *Config) validate() error {
	if c.RetryMaxAttempts < 1 {
		return errors.Errorf("RETRY_MAX_ATTEMPTS must be >= 1, got %d", c.RetryMaxAttempts)
	}
	if c.RetryBaseDelay < 0 {
		return errors.New("RETRY_BASE_DELAY must not be negative")
	}
	if c.PhoneCanonicalLength <= len(c.PhoneCountryCode)+1 {
		return errors.Errorf("PHONE_CANONICAL_LENGTH %d is too short for country code %q", c.PhoneCanonicalLength, c.PhoneCountryCode)
	}
	switch c.StoreDriver {
	case "postgres", "firestore":
	default:
		return errors.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.AuthDriver {
	case "jwt", "firebase":
	default:
		return errors.Errorf("unknown AUTH_DRIVER %q", c.AuthDriver)
	}
	return nil
}

// GatewayConfigured reports whether the credentials needed to reach the SMS gateway are present.
func (c *Config) GatewayConfigured() bool {
	return c.GatewayAPIKey != "" && c.GatewaySenderID != ""
}
