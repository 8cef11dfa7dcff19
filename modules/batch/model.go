package batch

import (
	"context"
	"time"

	"listing-optimizer-server/modules/common/model"
)

// Kind - 배치 작업 종류
type Kind string

const (
	KindClassification Kind = "classification"
	KindOptimization   Kind = "optimization"
)

// Status - BatchJob 상태 머신
// pending → running → {completed | failed | cancelled | expired}
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Terminal - 종료 상태 여부
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Strategy - 스테이지 실행 전략
type Strategy string

const (
	StrategyBatch      Strategy = "batch"
	StrategyIndividual Strategy = "individual"
)

// Request - 배치에 포함되는 이미지 한 장의 요청
type Request struct {
	ID       string // 이미지 ID (결과 매칭 키)
	Image    []byte
	RoomType string               // 최적화 요청에만 사용
	Analysis *model.ImageAnalysis // 최적화 요청에만 사용
}

// Result - 요청 하나당 정확히 하나 돌아오는 결과
// Error가 비어있지 않으면 해당 이미지는 실패
type Result struct {
	RequestID string
	Analysis  *model.ImageAnalysis
	Optimized *model.OptimizedImage
	Error     string
}

// BatchJob - 원격 배치 작업 하나의 추적 레코드 (파이프라인 한 번에만 존재)
type BatchJob struct {
	ID          string
	Kind        Kind
	Status      Status
	RemoteID    string
	Requested   int
	Succeeded   int
	Failed      int
	Error       string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// Backend - 원격 배치 서비스 계약
type Backend interface {
	Submit(ctx context.Context, kind Kind, reqs []Request) (remoteID string, err error)
	Status(ctx context.Context, remoteID string) (Status, error)
	Results(ctx context.Context, remoteID string) ([]Result, error)
	Cancel(ctx context.Context, remoteID string) error
}
