package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 구조체 - 모든 환경변수를 담음
type Config struct {
	// Server
	Port string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool
	RedisEnabled  bool

	// Supabase (최적화 결과 저장용 storage)
	SupabaseURL            string
	SupabaseServiceKey     string
	SupabaseStorageBaseURL string
	StorageBucket          string

	// Gemini API
	GeminiAPIKeys []string
	GeminiModel   string

	// Scraper 외부 서비스
	ScraperAPIURL string
	ScraperAPIKey string

	// 배치 처리
	BatchSizeThreshold   int
	BatchPollInterval    time.Duration
	BatchMaxPollAttempts int

	// 파이프라인
	ImageConcurrency int
	RetryAttempts    int

	// 만료 Job 정리
	JobMaxAge     time.Duration
	SweepInterval time.Duration
}

// LoadConfig - 환경변수 로드
func LoadConfig() (*Config, error) {
	// .env 파일 로드 (있으면)
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  .env file not found, using environment variables")
	}

	// Redis UseTLS 파싱
	useTLS := true // 기본값
	if tlsStr := os.Getenv("REDIS_USE_TLS"); tlsStr != "" {
		if parsed, err := strconv.ParseBool(tlsStr); err == nil {
			useTLS = parsed
		}
	}

	// API 키는 콤마 구분으로 여러 개 지원 (429 시 키 로테이션)
	var geminiKeys []string
	for _, key := range strings.Split(os.Getenv("GEMINI_API_KEYS"), ",") {
		if key = strings.TrimSpace(key); key != "" {
			geminiKeys = append(geminiKeys, key)
		}
	}
	if len(geminiKeys) == 0 {
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			geminiKeys = []string{key}
		}
	}

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8080"),

		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:   useTLS,
		RedisEnabled:  getEnvBool("REDIS_ENABLED", true),

		// Supabase
		SupabaseURL:            getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:     getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBaseURL: getEnv("SUPABASE_STORAGE_BASE_URL", ""),
		StorageBucket:          getEnv("STORAGE_BUCKET", "optimized-images"),

		// Gemini
		GeminiAPIKeys: geminiKeys,
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),

		// Scraper
		ScraperAPIURL: getEnv("SCRAPER_API_URL", ""),
		ScraperAPIKey: getEnv("SCRAPER_API_KEY", ""),

		// 배치 처리
		BatchSizeThreshold:   getEnvInt("BATCH_SIZE_THRESHOLD", 5),
		BatchPollInterval:    time.Duration(getEnvInt("BATCH_POLL_INTERVAL_SECONDS", 30)) * time.Second,
		BatchMaxPollAttempts: getEnvInt("BATCH_MAX_POLL_ATTEMPTS", 2880),

		// 파이프라인
		ImageConcurrency: getEnvInt("IMAGE_CONCURRENCY", 4),
		RetryAttempts:    getEnvInt("RETRY_ATTEMPTS", 3),

		// 만료 정리
		JobMaxAge:     time.Duration(getEnvInt("JOB_MAX_AGE_HOURS", 24)) * time.Hour,
		SweepInterval: time.Duration(getEnvInt("SWEEP_INTERVAL_MINUTES", 30)) * time.Minute,
	}

	// 필수 환경변수 검증
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log.Println("✅ Configuration loaded successfully")
	log.Printf("   Redis: %s:%s (TLS: %v, enabled: %v)", cfg.RedisHost, cfg.RedisPort, cfg.RedisUseTLS, cfg.RedisEnabled)
	log.Printf("   Gemini: %s (%d keys)", cfg.GeminiModel, len(cfg.GeminiAPIKeys))
	log.Printf("   Scraper: %s", cfg.ScraperAPIURL)
	log.Printf("   Batch: threshold=%d, poll=%s, max_attempts=%d",
		cfg.BatchSizeThreshold, cfg.BatchPollInterval, cfg.BatchMaxPollAttempts)

	return cfg, nil
}

// validate - 필수 환경변수 검증
func (c *Config) validate() error {
	if len(c.GeminiAPIKeys) == 0 {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.ScraperAPIURL == "" {
		return fmt.Errorf("SCRAPER_API_URL is required")
	}
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabaseServiceKey == "" {
		return fmt.Errorf("SUPABASE_SERVICE_KEY is required")
	}
	if c.BatchSizeThreshold < 1 {
		return fmt.Errorf("BATCH_SIZE_THRESHOLD must be >= 1")
	}
	return nil
}

// getEnv - 환경변수 가져오기 (기본값 지원)
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt - 정수 환경변수 (기본값 지원)
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvBool - 불리언 환경변수 (기본값 지원)
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetRedisAddr - Redis 연결 문자열 생성
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}
