package sweeper

import (
	"context"
	"log"
	"time"

	"listing-optimizer-server/modules/common/model"
	"listing-optimizer-server/modules/repository"
)

// Sweeper - 오래된 활성 Job을 주기적으로 만료 처리
// 종료 상태 Job은 조회용으로 계속 남겨둔다
type Sweeper struct {
	repo     repository.JobRepository
	maxAge   time.Duration
	interval time.Duration
}

// New - Sweeper 생성
func New(repo repository.JobRepository, maxAge, interval time.Duration) *Sweeper {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Sweeper{repo: repo, maxAge: maxAge, interval: interval}
}

// Start - ctx 취소 전까지 주기적으로 Sweep 실행
func (s *Sweeper) Start(ctx context.Context) {
	log.Printf("🧹 Job sweeper started (max age: %s, interval: %s)", s.maxAge, s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("🧹 Job sweeper stopped")
			return
		case <-ticker.C:
			if count, err := s.Sweep(ctx); err != nil {
				log.Printf("⚠️ Sweep failed: %v", err)
			} else if count > 0 {
				log.Printf("🧹 Swept %d expired jobs", count)
			}
		}
	}
}

// Sweep - maxAge를 넘긴 활성 Job을 전부 취소 처리, 처리 개수 반환
// 이미 종료된 Job은 건드리지 않음
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	olderThan := time.Now().Add(-s.maxAge)
	expired, err := s.repo.FindExpiredJobs(ctx, olderThan)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, job := range expired {
		changed, err := s.repo.UpdateStatusIfActive(ctx, job.ID, model.JobCancelled, "expired: exceeded max job age")
		if err != nil {
			log.Printf("⚠️ Failed to expire job %s: %v", job.ID, err)
			continue
		}
		if changed {
			count++
			log.Printf("⏰ Job %s expired (created: %s)", job.ID, job.CreatedAt.Format(time.RFC3339))
		}
	}
	return count, nil
}
