package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Hub     HubConfig
	Redis   RedisConfig
	Kafka   KafkaConfig
	Observ  ObservabilityConfig
	Sync    SyncConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type BackendConfig struct {
	BaseURL        string
	TimeoutSeconds int
}

type HubConfig struct {
	NotificationURL string
	KitchenURL      string
	StoreID         string
	Dept            string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers       []string
	TopicPush     string
	ConsumerGroup string
}

type ObservabilityConfig struct {
	JaegerEndpoint string
}

type SyncConfig struct {
	PageSize          int
	RefreshDebounceMS int
}

func Load() *Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	backendTimeout, _ := strconv.Atoi(getEnv("BACKEND_TIMEOUT_SECONDS", "15"))
	pageSize, _ := strconv.Atoi(getEnv("SYNC_PAGE_SIZE", "10"))
	debounceMS, _ := strconv.Atoi(getEnv("SYNC_REFRESH_DEBOUNCE_MS", "2000"))

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("ENV", "development"),
		},
		Backend: BackendConfig{
			BaseURL:        getEnv("BACKEND_BASE_URL", "https://focs.site"),
			TimeoutSeconds: backendTimeout,
		},
		Hub: HubConfig{
			NotificationURL: getEnv("HUB_NOTIFICATION_URL", "wss://focs.site/notification"),
			KitchenURL:      getEnv("HUB_KITCHEN_URL", "wss://focs.site/hubs/order"),
			StoreID:         getEnv("STORE_ID", ""),
			Dept:            getEnv("HUB_DEPT", "kitchen"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Kafka: KafkaConfig{
			Brokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			TopicPush:     getEnv("KAFKA_TOPIC_PUSH", "staff-push-events"),
			ConsumerGroup: getEnv("KAFKA_CONSUMER_GROUP", "staff-sync-group"),
		},
		Observ: ObservabilityConfig{
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		},
		Sync: SyncConfig{
			PageSize:          pageSize,
			RefreshDebounceMS: debounceMS,
		},
	}

	log.Printf("Config loaded: env=%s, port=%s", cfg.Server.Env, cfg.Server.Port)
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
