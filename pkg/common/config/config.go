package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server
	ServerPort   string
	ServerHost   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ItemsPerPage int

	// Refresh engine
	RefreshInterval time.Duration
	RetryInterval   time.Duration
	SourceTimeout   time.Duration

	// Open-data sources
	SocrataBaseURL    string
	SourcesConfigPath string

	// Lookup feeds. Either may be unset; lookups then degrade to "Unknown".
	RosterCSVURL string
	UIDCSVURL    string

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Kafka
	KafkaBrokers      []string
	RefreshEventTopic string
}

func Load() *Config {
	return &Config{
		ServerPort:   getEnv("SERVER_PORT", "8080"),
		ServerHost:   getEnv("SERVER_HOST", "0.0.0.0"),
		ReadTimeout:  getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout: getDuration("WRITE_TIMEOUT", 30*time.Second),
		ItemsPerPage: getIntEnv("ITEMS_PER_PAGE", 25),

		RefreshInterval: getDuration("REFRESH_INTERVAL", time.Hour),
		RetryInterval:   getDuration("RETRY_INTERVAL", 10*time.Minute),
		SourceTimeout:   getDuration("SOURCE_TIMEOUT", 30*time.Second),

		SocrataBaseURL:    getEnv("SOCRATA_BASE_URL", "https://data.seattle.gov"),
		SourcesConfigPath: getEnv("SOURCES_CONFIG_PATH", ""),

		RosterCSVURL: getEnv("ROSTER_CSV_URL", ""),
		UIDCSVURL:    getEnv("UID_CSV_URL", ""),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "tracker"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "tracker123"),
		PostgresDB:       getEnv("POSTGRES_DB", "tracker"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		KafkaBrokers:      getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		RefreshEventTopic: getEnv("REFRESH_EVENT_TOPIC", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return []string{value}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
