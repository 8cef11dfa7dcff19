package optimize

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	redisutil "listing-optimizer-server/modules/common/redis"
)

// StartWorker - Redis 큐에서 Job을 꺼내 파이프라인 실행
// ctx 취소 전까지 블로킹. Redis 에러는 잠시 쉰 뒤 재시도
func StartWorker(ctx context.Context, rdb *redis.Client, service *Service) {
	log.Printf("👷 Job worker started (queue: %s)", redisutil.QueueKey)

	for {
		select {
		case <-ctx.Done():
			log.Printf("👷 Job worker stopped")
			return
		default:
		}

		result, err := rdb.BRPop(ctx, 5*time.Second, redisutil.QueueKey).Result()
		if err != nil {
			if err == redis.Nil {
				continue // 큐가 비어있음
			}
			if ctx.Err() != nil {
				log.Printf("👷 Job worker stopped")
				return
			}
			log.Printf("⚠️ BRPOP error, retrying in 5s: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		jobID := result[1]
		log.Printf("📨 Dequeued job: %s", jobID)
		go service.RunJob(ctx, jobID)
	}
}
