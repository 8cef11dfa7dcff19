package optimize

import (
	"context"
	"time"

	"listing-optimizer-server/modules/common/model"
	"listing-optimizer-server/modules/roomtype"
)

// Classifier - 이미지 분류 collaborator
type Classifier interface {
	Classify(ctx context.Context, image []byte) (*model.ImageAnalysis, error)
}

// Optimizer - 이미지 최적화 collaborator
type Optimizer interface {
	Optimize(ctx context.Context, image []byte, rt roomtype.RoomType, analysis *model.ImageAnalysis) (*model.OptimizedImage, error)
}

// ContentStore - 원본 다운로드 + 결과물 업로드 collaborator
type ContentStore interface {
	FetchImage(ctx context.Context, url string) ([]byte, error)
	UploadOptimized(ctx context.Context, jobID, fileName string, data []byte) (ref string, size int64, err error)
}

// SubmitRequest - Job 제출 요청
type SubmitRequest struct {
	URL string `json:"url"`
}

// SubmitResponse - Job 제출 응답
type SubmitResponse struct {
	Success       bool   `json:"success"`
	JobID         string `json:"job_id,omitempty"`
	Queue         string `json:"queue,omitempty"`
	QueuePosition int64  `json:"queue_position,omitempty"`
	Error         string `json:"error,omitempty"`
}

// CancelResponse - 취소 요청 응답
type CancelResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message,omitempty"`
	JobID           string `json:"job_id"`
	JobStatus       string `json:"job_status,omitempty"`
	CompletedImages int    `json:"completed_images"`
	TotalImages     int    `json:"total_images"`
}

// JobProgress - 진행 상황 스냅샷 (항상 repository의 현재 상태 기준)
type JobProgress struct {
	JobID       string            `json:"job_id"`
	ListingURL  string            `json:"listing_url"`
	Status      model.JobStatus   `json:"status"`
	Progress    model.Progress    `json:"progress"`
	CurrentStep string            `json:"current_step,omitempty"`
	Error       string            `json:"error,omitempty"`
	Images      []model.Image     `json:"images"`
	ImagePairs  []model.ImagePair `json:"image_pairs"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}
