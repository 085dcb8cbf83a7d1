package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	PostgresDSN string
	MongoURI    string
	RedisAddr   string
	RabbitURL   string

	JWTSecret string

	// Gateway (mobile-money STK push) credentials.
	GatewayBaseURL     string
	GatewayShortcode   string
	GatewayPasskey     string
	GatewayConsumerKey string
	GatewayConsumerSec string
	CallbackURL        string

	ResendCooldown time.Duration
	PaymentExpiry  time.Duration
	OTLPEndpoint   string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cooldown := duration("RESEND_COOLDOWN", 10*time.Minute)
	expiry := duration("PAYMENT_EXPIRY", 2*time.Hour)

	return &Config{
		PostgresDSN:        os.Getenv("POSTGRES_DSN"),
		MongoURI:           os.Getenv("MONGO_URI"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RabbitURL:          os.Getenv("RABBIT_URL"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		GatewayBaseURL:     os.Getenv("GATEWAY_BASE_URL"),
		GatewayShortcode:   os.Getenv("GATEWAY_SHORTCODE"),
		GatewayPasskey:     os.Getenv("GATEWAY_PASSKEY"),
		GatewayConsumerKey: os.Getenv("GATEWAY_CONSUMER_KEY"),
		GatewayConsumerSec: os.Getenv("GATEWAY_CONSUMER_SECRET"),
		CallbackURL:        os.Getenv("GATEWAY_CALLBACK_URL"),
		ResendCooldown:     cooldown,
		PaymentExpiry:      expiry,
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}

func duration(key string, fallback time.Duration) time.Duration {
	d, _ := time.ParseDuration(os.Getenv(key))
	if d == 0 {
		return fallback
	}
	return d
}
