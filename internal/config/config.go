package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// HTTPConfig holds the inbound notification server settings. The path
// must match the endpoint URI advertised to the carrier.
type HTTPConfig struct {
	Addr             string        `envconfig:"HTTP_ADDR"          default:"0.0.0.0:8080"`
	NotificationPath string        `envconfig:"NOTIFICATION_PATH"  default:"/services/USSDNotification"`
	ReadTimeout      time.Duration `envconfig:"HTTP_READ_TIMEOUT"  default:"10s"`
	WriteTimeout     time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"10s"`
	IdleTimeout      time.Duration `envconfig:"HTTP_IDLE_TIMEOUT"  default:"60s"`
}

// CarrierConfig holds the provisioned ParlayX parameters.
type CarrierConfig struct {
	ServiceID       string        `envconfig:"SP_SERVICE_ID"             required:"true"`
	SPID            string        `envconfig:"SP_ID"                     required:"true"`
	SPPassword      string        `envconfig:"SP_PASSWORD"               required:"true"`
	ShortCode       string        `envconfig:"SHORT_CODE"                required:"true"`
	EndpointURI     string        `envconfig:"NOTIFICATION_ENDPOINT_URI" required:"true"`
	SendURI         string        `envconfig:"REMOTE_SEND_URI"           required:"true"`
	NotificationURI string        `envconfig:"REMOTE_NOTIFICATION_URI"   required:"true"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT"           default:"30s"`
	// Register controls whether the bridge registers (and deregisters)
	// itself as the notification delivery target on startup/shutdown.
	Register           bool `envconfig:"REGISTER_NOTIFICATIONS" default:"false"`
	RegisterMaxRetries uint `envconfig:"REGISTER_MAX_RETRIES"   default:"5"`
}

// SessionConfig holds session store settings. Store selects the backing
// implementation: "redis" or "memory".
type SessionConfig struct {
	Store         string        `envconfig:"SESSION_STORE"  default:"redis"`
	TTL           time.Duration `envconfig:"SESSION_TTL"    default:"10m"`
	RedisAddr     string        `envconfig:"REDIS_ADDR"     default:"127.0.0.1:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB"       default:"0"`
}

// BusConfig names the internal bus topics.
type BusConfig struct {
	InboundTopic  string `envconfig:"BUS_INBOUND_TOPIC"  default:"ussd.inbound"`
	OutboundTopic string `envconfig:"BUS_OUTBOUND_TOPIC" default:"ussd.outbound"`
	EventsTopic   string `envconfig:"BUS_EVENTS_TOPIC"   default:"ussd.event"`
}

// Config holds the overall application configuration.
type Config struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	HTTP     HTTPConfig
	Carrier  CarrierConfig
	Session  SessionConfig
	Bus      BusConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found, skipping: %v", err)
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
