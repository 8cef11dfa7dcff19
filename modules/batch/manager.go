package batch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"listing-optimizer-server/modules/common/apperr"
)

// Config - 배치 실행 설정
type Config struct {
	SizeThreshold   int           // 이 개수 이상이면 배치 전략
	PollInterval    time.Duration // 원격 상태 폴링 간격
	MaxPollAttempts int           // 폴링 횟수 상한 (기본 2880회 × 30초 = 24시간)
}

// DefaultConfig - 기본값
func DefaultConfig() Config {
	return Config{
		SizeThreshold:   5,
		PollInterval:    30 * time.Second,
		MaxPollAttempts: 2880,
	}
}

// Manager - 배치 작업 제출/폴링/결과 수집/취소 관리자
// BatchJob 레코드는 원격 작업 하나가 도는 동안만 존재한다: 결과를 넘기거나
// 실패/만료/취소로 끝나는 즉시 요청 페이로드와 함께 비워진다
type Manager struct {
	backend Backend
	cfg     Config

	mu   sync.Mutex
	jobs map[string]*BatchJob
	reqs map[string][]Request // 결과 패딩용 원본 요청 보관 (소비 시점까지만)
}

// NewManager - Manager 생성
func NewManager(backend Backend, cfg Config) *Manager {
	if cfg.SizeThreshold < 1 {
		cfg.SizeThreshold = DefaultConfig().SizeThreshold
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.MaxPollAttempts < 1 {
		cfg.MaxPollAttempts = DefaultConfig().MaxPollAttempts
	}
	return &Manager{
		backend: backend,
		cfg:     cfg,
		jobs:    make(map[string]*BatchJob),
		reqs:    make(map[string][]Request),
	}
}

// DecideStrategy - 이미지 개수 기준 전략 결정 (threshold 이상이면 batch)
func (m *Manager) DecideStrategy(itemCount int) Strategy {
	if itemCount >= m.cfg.SizeThreshold {
		return StrategyBatch
	}
	return StrategyIndividual
}

// RunBatch - 요청 전체를 하나의 원격 배치로 제출, BatchJob ID 즉시 반환
func (m *Manager) RunBatch(ctx context.Context, kind Kind, reqs []Request) (string, error) {
	if len(reqs) == 0 {
		return "", fmt.Errorf("empty batch request")
	}

	job := &BatchJob{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    StatusPending,
		Requested: len(reqs),
		CreatedAt: time.Now(),
	}

	remoteID, err := m.backend.Submit(ctx, kind, reqs)
	if err != nil {
		return "", fmt.Errorf("batch submit failed: %w", err)
	}

	job.RemoteID = remoteID
	job.Status = StatusRunning

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.reqs[job.ID] = reqs
	m.mu.Unlock()

	log.Printf("📤 [Batch] Submitted %s batch %s (%d requests, remote: %s)",
		kind, job.ID, len(reqs), remoteID)
	return job.ID, nil
}

// PollUntilDone - 원격 상태가 running을 벗어날 때까지 고정 간격 폴링
// 횟수 상한 초과 시 expired 상태를 합성해서 반환
// ctx 취소 시 best-effort로 원격 취소 후 cancelled 반환
func (m *Manager) PollUntilDone(ctx context.Context, batchJobID string) (*BatchJob, error) {
	job, err := m.snapshot(batchJobID)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= m.cfg.MaxPollAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			m.Cancel(context.Background(), batchJobID)
			return m.snapshotOrNil(batchJobID), err
		}

		status, err := m.backend.Status(ctx, job.RemoteID)
		if err != nil {
			// 일시적 폴링 에러는 다음 attempt에서 재확인
			log.Printf("⚠️ [Batch] Poll %d/%d for %s failed: %v",
				attempt, m.cfg.MaxPollAttempts, batchJobID, err)
			if !apperr.Transient(err) {
				m.backend.Cancel(ctx, job.RemoteID)
				m.setTerminal(batchJobID, StatusFailed, err.Error())
				snap := m.snapshotOrNil(batchJobID)
				m.evict(batchJobID)
				return snap, nil
			}
		} else if status.Terminal() {
			m.setTerminal(batchJobID, status, "")
			log.Printf("🏁 [Batch] %s finished with status: %s (attempt %d)", batchJobID, status, attempt)
			snap := m.snapshotOrNil(batchJobID)
			if status != StatusCompleted {
				// completed만 FetchResults까지 레코드 유지, 나머지는 즉시 정리
				m.evict(batchJobID)
			}
			return snap, nil
		}

		// 마지막 attempt 뒤에는 기다리지 않음
		if attempt == m.cfg.MaxPollAttempts {
			break
		}

		select {
		case <-ctx.Done():
			m.Cancel(context.Background(), batchJobID)
			return m.snapshotOrNil(batchJobID), ctx.Err()
		case <-time.After(m.cfg.PollInterval):
		}
	}

	// 폴링 횟수 상한 초과 - expired 합성, 원격 작업은 best-effort 중단
	timeoutErr := &apperr.BatchTimeoutError{BatchID: batchJobID, Attempts: m.cfg.MaxPollAttempts}
	m.backend.Cancel(ctx, job.RemoteID)
	m.setTerminal(batchJobID, StatusExpired, timeoutErr.Error())
	log.Printf("⏰ [Batch] %s expired after %d poll attempts", batchJobID, m.cfg.MaxPollAttempts)
	snap := m.snapshotOrNil(batchJobID)
	m.evict(batchJobID)
	return snap, nil
}

// FetchResults - completed 상태에서만 유효, 1회성 소비
// 요청 개수보다 적은 결과는 절대 반환하지 않음 (빠진 항목은 에러 결과로 채움)
// 결과를 넘기면서 BatchJob 레코드와 요청 페이로드를 정리한다
func (m *Manager) FetchResults(ctx context.Context, batchJobID string) ([]Result, error) {
	job, err := m.snapshot(batchJobID)
	if err != nil {
		return nil, err
	}
	if job.Status != StatusCompleted {
		return nil, fmt.Errorf("batch %s is %s, results only available when completed", batchJobID, job.Status)
	}

	remote, err := m.backend.Results(ctx, job.RemoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch batch results: %w", err)
	}

	m.mu.Lock()
	reqs := m.reqs[batchJobID]
	m.mu.Unlock()

	byID := make(map[string]Result, len(remote))
	for _, res := range remote {
		byID[res.RequestID] = res
	}

	// 요청 순서대로 1:1 매칭, 누락분은 에러 결과로 패딩
	out := make([]Result, 0, len(reqs))
	succeeded, failed := 0, 0
	for _, req := range reqs {
		res, ok := byID[req.ID]
		if !ok {
			res = Result{
				RequestID: req.ID,
				Error:     "no result returned by batch operation",
			}
		}
		if res.Error == "" {
			succeeded++
		} else {
			failed++
		}
		out = append(out, res)
	}

	m.mu.Lock()
	if stored := m.jobs[batchJobID]; stored != nil {
		stored.Succeeded = succeeded
		stored.Failed = failed
	}
	m.mu.Unlock()

	log.Printf("📥 [Batch] %s results delivered: %d succeeded, %d failed", batchJobID, succeeded, failed)
	m.evict(batchJobID)
	return out, nil
}

// Cancel - best-effort 취소. 이미 종료된 배치는 false
func (m *Manager) Cancel(ctx context.Context, batchJobID string) bool {
	m.mu.Lock()
	job, exists := m.jobs[batchJobID]
	if !exists || job.Status.Terminal() {
		m.mu.Unlock()
		return false
	}
	remoteID := job.RemoteID
	m.mu.Unlock()

	if err := m.backend.Cancel(ctx, remoteID); err != nil {
		log.Printf("⚠️ [Batch] Remote cancel for %s failed (ignored): %v", batchJobID, err)
	}
	m.setTerminal(batchJobID, StatusCancelled, "")
	m.evict(batchJobID)
	return true
}

// GetJob - 진행 중인 BatchJob 스냅샷 조회 (정리된 뒤에는 NotFoundError)
func (m *Manager) GetJob(batchJobID string) (*BatchJob, error) {
	return m.snapshot(batchJobID)
}

func (m *Manager) snapshot(batchJobID string) (*BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[batchJobID]
	if !exists {
		return nil, &apperr.NotFoundError{Kind: "batch job", ID: batchJobID}
	}
	out := *job
	return &out, nil
}

// evict - 레코드와 요청 페이로드 제거 (종료된 배치가 이미지 바이트를 계속 붙잡지 않도록)
func (m *Manager) evict(batchJobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, batchJobID)
	delete(m.reqs, batchJobID)
}

func (m *Manager) snapshotOrNil(batchJobID string) *BatchJob {
	job, err := m.snapshot(batchJobID)
	if err != nil {
		return nil
	}
	return job
}

func (m *Manager) setTerminal(batchJobID string, status Status, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, exists := m.jobs[batchJobID]
	if !exists || job.Status.Terminal() {
		return
	}
	job.Status = status
	if errMsg != "" {
		job.Error = errMsg
	}
	t := time.Now()
	job.CompletedAt = &t
}
