package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port         string
	StoreBackend string // postgres | memory

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	GatewayBackend  string // hosted | mock
	GatewayBaseURL  string
	MerchantID      string
	GatewayAPIKey   string
	ReturnURL       string
	CancelURL       string
	GatewayTimeout  time.Duration
	MockFailureRate float64

	BreakerFailureThreshold int
	BreakerResetTimeout     time.Duration
	BreakerWindow           time.Duration

	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	FallbackEnabled bool

	ExpiryStandard     time.Duration
	ExpiryManual       time.Duration
	ExpiryBankTransfer time.Duration

	SweepInterval time.Duration

	ManualPayBaseURL  string
	BankName          string
	BankAccountName   string
	BankAccountNumber string
}

func Load() *Config {
	return &Config{
		Port:         getEnvOrDefault("PORT", "8002"),
		StoreBackend: getEnvOrDefault("STORE_BACKEND", "postgres"),

		DBHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DBPort:     getEnvOrDefault("DB_PORT", "5432"),
		DBUser:     getEnvOrDefault("DB_USER", "postgres"),
		DBPassword: getEnvOrDefault("DB_PASSWORD", "postgres"),
		DBName:     getEnvOrDefault("DB_NAME", "payment_db"),

		GatewayBackend:  getEnvOrDefault("GATEWAY_BACKEND", "hosted"),
		GatewayBaseURL:  getEnvOrDefault("GATEWAY_BASE_URL", "https://checkout.example.com/api/v1"),
		MerchantID:      getEnvOrDefault("GATEWAY_MERCHANT_ID", ""),
		GatewayAPIKey:   getEnvOrDefault("GATEWAY_API_KEY", ""),
		ReturnURL:       getEnvOrDefault("GATEWAY_RETURN_URL", "http://localhost:8002/api/v1/payments/callback"),
		CancelURL:       getEnvOrDefault("GATEWAY_CANCEL_URL", "http://localhost:8002/api/v1/payments/callback"),
		GatewayTimeout:  getEnvDuration("GATEWAY_TIMEOUT", 15*time.Second),
		MockFailureRate: getEnvFloat("PAYMENT_FAILURE_RATE", 0.1),

		BreakerFailureThreshold: getEnvInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerResetTimeout:     getEnvDuration("BREAKER_RESET_TIMEOUT", 30*time.Second),
		BreakerWindow:           getEnvDuration("BREAKER_MONITORING_WINDOW", 2*time.Minute),

		MaxRetries:     getEnvInt("PAYMENT_MAX_RETRIES", 3),
		RetryBaseDelay: getEnvDuration("PAYMENT_RETRY_BASE_DELAY", 500*time.Millisecond),
		RetryMaxDelay:  getEnvDuration("PAYMENT_RETRY_MAX_DELAY", 10*time.Second),

		FallbackEnabled: getEnvBool("PAYMENT_FALLBACK_ENABLED", true),

		ExpiryStandard:     getEnvDuration("PAYMENT_EXPIRY_STANDARD", 30*time.Minute),
		ExpiryManual:       getEnvDuration("PAYMENT_EXPIRY_MANUAL", time.Hour),
		ExpiryBankTransfer: getEnvDuration("PAYMENT_EXPIRY_BANK_TRANSFER", 24*time.Hour),

		SweepInterval: getEnvDuration("PAYMENT_SWEEP_INTERVAL", 5*time.Minute),

		ManualPayBaseURL:  getEnvOrDefault("MANUAL_PAY_BASE_URL", "https://pay.example.com"),
		BankName:          getEnvOrDefault("BANK_TRANSFER_BANK_NAME", "Himalayan Bank"),
		BankAccountName:   getEnvOrDefault("BANK_TRANSFER_ACCOUNT_NAME", "Hotel Booking Platform Ltd"),
		BankAccountNumber: getEnvOrDefault("BANK_TRANSFER_ACCOUNT_NUMBER", ""),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
