package ai

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"listing-optimizer-server/modules/batch"
	"listing-optimizer-server/modules/common/apperr"
	"listing-optimizer-server/modules/roomtype"
)

// GeminiBatchBackend - batch.Backend 구현
// 제출 즉시 원격 ID를 돌려주고, 백그라운드에서 요청들을 bounded concurrency로
// 처리하면서 원격 배치 작업처럼 상태를 노출한다.
type GeminiBatchBackend struct {
	client      *GeminiClient
	concurrency int

	mu  sync.Mutex
	ops map[string]*batchOp
}

type batchOp struct {
	status  batch.Status
	results []batch.Result
	cancel  context.CancelFunc
}

// NewGeminiBatchBackend - 백엔드 생성
func NewGeminiBatchBackend(client *GeminiClient, concurrency int) *GeminiBatchBackend {
	if concurrency < 1 {
		concurrency = 2
	}
	return &GeminiBatchBackend{
		client:      client,
		concurrency: concurrency,
		ops:         make(map[string]*batchOp),
	}
}

// Submit - 배치 제출, 처리용 goroutine 기동 후 즉시 반환
func (b *GeminiBatchBackend) Submit(ctx context.Context, kind batch.Kind, reqs []batch.Request) (string, error) {
	if len(reqs) == 0 {
		return "", fmt.Errorf("empty batch")
	}

	// 제출자 컨텍스트와 분리 - 제출 호출이 끝나도 배치는 계속 돈다
	opCtx, cancel := context.WithCancel(context.Background())
	op := &batchOp{
		status: batch.StatusRunning,
		cancel: cancel,
	}

	remoteID := uuid.New().String()
	b.mu.Lock()
	b.ops[remoteID] = op
	b.mu.Unlock()

	go b.run(opCtx, remoteID, kind, reqs)

	log.Printf("🚀 [GeminiBatch] %s batch %s started (%d requests, concurrency: %d)",
		kind, remoteID, len(reqs), b.concurrency)
	return remoteID, nil
}

// run - 요청 전체를 세마포어로 제한하며 병렬 처리
func (b *GeminiBatchBackend) run(ctx context.Context, remoteID string, kind batch.Kind, reqs []batch.Request) {
	results := make([]batch.Result, len(reqs))
	semaphore := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup

	for i, req := range reqs {
		wg.Add(1)
		go func(idx int, r batch.Request) {
			defer wg.Done()

			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				results[idx] = batch.Result{RequestID: r.ID, Error: "batch cancelled"}
				return
			}

			if ctx.Err() != nil {
				results[idx] = batch.Result{RequestID: r.ID, Error: "batch cancelled"}
				return
			}

			results[idx] = b.processOne(ctx, kind, r)
		}(i, req)
	}

	wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	op := b.ops[remoteID]
	if op == nil {
		return
	}
	op.results = results
	if ctx.Err() != nil {
		op.status = batch.StatusCancelled
		return
	}
	// 개별 실패는 배치 실패가 아님 - 결과에 항목별 에러로 남는다
	op.status = batch.StatusCompleted
}

func (b *GeminiBatchBackend) processOne(ctx context.Context, kind batch.Kind, req batch.Request) batch.Result {
	switch kind {
	case batch.KindClassification:
		analysis, err := b.client.Classify(ctx, req.Image)
		if err != nil {
			return batch.Result{RequestID: req.ID, Error: err.Error()}
		}
		return batch.Result{RequestID: req.ID, Analysis: analysis}

	case batch.KindOptimization:
		optimized, err := b.client.Optimize(ctx, req.Image, roomtype.RoomType(req.RoomType), req.Analysis)
		if err != nil {
			return batch.Result{RequestID: req.ID, Error: err.Error()}
		}
		return batch.Result{RequestID: req.ID, Optimized: optimized}

	default:
		return batch.Result{RequestID: req.ID, Error: fmt.Sprintf("unknown batch kind: %s", kind)}
	}
}

// Status - 현재 배치 상태
func (b *GeminiBatchBackend) Status(ctx context.Context, remoteID string) (batch.Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	op, exists := b.ops[remoteID]
	if !exists {
		return "", &apperr.NotFoundError{Kind: "batch operation", ID: remoteID}
	}
	return op.status, nil
}

// Results - completed 이후 1회만 유효, 결과를 넘기면서 작업 레코드 정리
func (b *GeminiBatchBackend) Results(ctx context.Context, remoteID string) ([]batch.Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	op, exists := b.ops[remoteID]
	if !exists {
		return nil, &apperr.NotFoundError{Kind: "batch operation", ID: remoteID}
	}
	if op.status != batch.StatusCompleted {
		return nil, fmt.Errorf("batch operation %s is %s", remoteID, op.status)
	}

	out := make([]batch.Result, len(op.results))
	copy(out, op.results)
	delete(b.ops, remoteID)
	return out, nil
}

// Cancel - 진행 중인 배치 중단 후 레코드 정리 (Results 호출은 더 오지 않음)
func (b *GeminiBatchBackend) Cancel(ctx context.Context, remoteID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	op, exists := b.ops[remoteID]
	if !exists {
		return &apperr.NotFoundError{Kind: "batch operation", ID: remoteID}
	}
	if op.cancel != nil {
		op.cancel()
	}
	delete(b.ops, remoteID)
	return nil
}
