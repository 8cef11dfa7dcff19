package redis

import (
	"context"
	"crypto/tls"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"listing-optimizer-server/modules/common/config"
)

// QueueKey - Job 대기열 키
const QueueKey = "jobs:queue"

// cancelKeyPrefix - 취소 플래그 키 prefix
const cancelKeyPrefix = "jobs:cancel:"

// cancelFlagTTL - 취소 플래그 보관 기간 (Job 만료 기준과 동일하게 24시간)
const cancelFlagTTL = 24 * time.Hour

// Connect - Redis 연결 생성. 비활성화이거나 연결 실패 시 nil
func Connect(cfg *config.Config) *redis.Client {
	if !cfg.RedisEnabled {
		log.Printf("⚠️ Redis disabled, jobs will run inline without a queue")
		return nil
	}

	log.Printf("🔌 Connecting to Redis: %s", cfg.GetRedisAddr())

	// TLS 설정 (InsecureSkipVerify 추가)
	var tlsConfig *tls.Config
	if cfg.RedisUseTLS {
		tlsConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true, // Render.com Redis용
		}
	}

	// Redis 클라이언트 생성
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Username:     cfg.RedisUsername,
		Password:     cfg.RedisPassword,
		TLSConfig:    tlsConfig,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	// 연결 테스트
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Printf("🔍 Testing Redis connection...")
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("❌ Redis ping failed: %v", err)
		return nil
	}

	return rdb
}

// Enqueue - Job ID를 대기열에 push, 현재 대기열 길이 반환
func Enqueue(ctx context.Context, rdb *redis.Client, jobID string) (int64, error) {
	if _, err := rdb.LPush(ctx, QueueKey, jobID).Result(); err != nil {
		return 0, err
	}
	queueLen, _ := rdb.LLen(ctx, QueueKey).Result()
	return queueLen, nil
}

// SetJobCancelled - Job 취소 플래그 설정
func SetJobCancelled(ctx context.Context, rdb *redis.Client, jobID string) error {
	return rdb.Set(ctx, cancelKeyPrefix+jobID, "1", cancelFlagTTL).Err()
}

// IsJobCancelled - Job 취소 여부 확인 (Redis 불가 시 false - 취소는 best-effort)
func IsJobCancelled(ctx context.Context, rdb *redis.Client, jobID string) bool {
	if rdb == nil {
		return false
	}
	n, err := rdb.Exists(ctx, cancelKeyPrefix+jobID).Result()
	if err != nil {
		log.Printf("⚠️ Failed to check cancel flag for job %s: %v", jobID, err)
		return false
	}
	return n > 0
}
