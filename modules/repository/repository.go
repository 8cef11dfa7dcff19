package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"listing-optimizer-server/modules/common/apperr"
	"listing-optimizer-server/modules/common/model"
)

// JobRepository - OptimizationJob 상태의 단일 소유자
// 모든 메서드는 동시 호출에 안전해야 하고, 깊은 복사만 주고받는다.
type JobRepository interface {
	Create(ctx context.Context, job *model.OptimizationJob) (*model.OptimizationJob, error)
	FindByID(ctx context.Context, id string) (*model.OptimizationJob, error)
	Update(ctx context.Context, job *model.OptimizationJob) (*model.OptimizationJob, error)
	UpdateStatus(ctx context.Context, id string, status model.JobStatus, errMsg string) error
	UpdateStatusIfActive(ctx context.Context, id string, status model.JobStatus, errMsg string) (bool, error)
	SetCurrentStep(ctx context.Context, id string, step string) error
	AttachImages(ctx context.Context, jobID string, images []model.Image) error
	UpdateImage(ctx context.Context, jobID string, img *model.Image) error
	Delete(ctx context.Context, id string) error
	FindByStatus(ctx context.Context, status model.JobStatus) ([]*model.OptimizationJob, error)
	FindExpiredJobs(ctx context.Context, olderThan time.Time) ([]*model.OptimizationJob, error)
}

// MemoryJobRepository - 인메모리 구현 (프로세스 수명과 동일)
type MemoryJobRepository struct {
	mu    sync.RWMutex
	jobs  map[string]*model.OptimizationJob
	order []string // 삽입 순서 (FindByStatus 결과 순서 고정용)
}

// NewMemoryJobRepository - 빈 저장소 생성
func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{
		jobs: make(map[string]*model.OptimizationJob),
	}
}

// Create - 신규 Job 저장, ID 충돌 시 DuplicateIDError
func (r *MemoryJobRepository) Create(ctx context.Context, job *model.OptimizationJob) (*model.OptimizationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; exists {
		return nil, &apperr.DuplicateIDError{ID: job.ID}
	}

	stored := job.Clone()
	r.jobs[job.ID] = stored
	r.order = append(r.order, job.ID)
	return stored.Clone(), nil
}

// FindByID - 깊은 복사 반환 (호출자가 수정해도 저장 상태에 영향 없음)
func (r *MemoryJobRepository) FindByID(ctx context.Context, id string) (*model.OptimizationJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, exists := r.jobs[id]
	if !exists {
		return nil, &apperr.NotFoundError{Kind: "job", ID: id}
	}
	return job.Clone(), nil
}

// Update - 전체 교체
func (r *MemoryJobRepository) Update(ctx context.Context, job *model.OptimizationJob) (*model.OptimizationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.ID]; !exists {
		return nil, &apperr.NotFoundError{Kind: "job", ID: job.ID}
	}

	stored := job.Clone()
	stored.UpdatedAt = time.Now()
	r.jobs[job.ID] = stored
	return stored.Clone(), nil
}

// UpdateStatus - 상태 부분 업데이트 (종료 상태 진입 시 completedAt 기록)
func (r *MemoryJobRepository) UpdateStatus(ctx context.Context, id string, status model.JobStatus, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateStatusLocked(id, status, errMsg)
}

// UpdateStatusIfActive - 아직 종료되지 않은 Job만 상태 변경
// 이미 종료된 경우 false 반환 (취소된 Job을 completed로 덮어쓰지 않기 위함)
func (r *MemoryJobRepository) UpdateStatusIfActive(ctx context.Context, id string, status model.JobStatus, errMsg string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, exists := r.jobs[id]
	if !exists {
		return false, &apperr.NotFoundError{Kind: "job", ID: id}
	}
	if job.Status.Terminal() {
		return false, nil
	}
	return true, r.updateStatusLocked(id, status, errMsg)
}

func (r *MemoryJobRepository) updateStatusLocked(id string, status model.JobStatus, errMsg string) error {
	job, exists := r.jobs[id]
	if !exists {
		return &apperr.NotFoundError{Kind: "job", ID: id}
	}

	now := time.Now()
	job.Status = status
	job.UpdatedAt = now
	if errMsg != "" {
		job.Error = errMsg
	}
	if status.Terminal() && job.CompletedAt == nil {
		t := now
		job.CompletedAt = &t
	}
	return nil
}

// SetCurrentStep - 진행 단계 표시 업데이트
func (r *MemoryJobRepository) SetCurrentStep(ctx context.Context, id string, step string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, exists := r.jobs[id]
	if !exists {
		return &apperr.NotFoundError{Kind: "job", ID: id}
	}
	job.CurrentStep = step
	job.UpdatedAt = time.Now()
	return nil
}

// AttachImages - 스크래핑 완료 시점에 이미지 목록을 붙이고 progress.total 고정
// 이미 종료된 Job(동시 취소 등)에는 붙이지 않음
func (r *MemoryJobRepository) AttachImages(ctx context.Context, jobID string, images []model.Image) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, exists := r.jobs[jobID]
	if !exists {
		return &apperr.NotFoundError{Kind: "job", ID: jobID}
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %s is already %s", jobID, job.Status)
	}

	job.Images = make([]model.Image, len(images))
	for i := range images {
		job.Images[i] = *images[i].Clone()
	}
	job.Progress = model.Progress{Total: len(images)}
	job.UpdatedAt = time.Now()
	return nil
}

// UpdateImage - Job 내 이미지 하나 교체 + 진행 카운터 재계산
// 같은 락 안에서 read-modify-write 하므로 동시 이미지 완료가 카운터를 깨지 않음
func (r *MemoryJobRepository) UpdateImage(ctx context.Context, jobID string, img *model.Image) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, exists := r.jobs[jobID]
	if !exists {
		return &apperr.NotFoundError{Kind: "job", ID: jobID}
	}
	// terminal 이후 늦게 도착한 이미지 업데이트는 버림 - 취소/완료 시점의 스냅샷 고정
	if job.Status.Terminal() {
		return nil
	}

	for i := range job.Images {
		if job.Images[i].ID == img.ID {
			updated := img.Clone()
			updated.UpdatedAt = time.Now()
			job.Images[i] = *updated
			job.RecountProgress()
			job.UpdatedAt = updated.UpdatedAt
			return nil
		}
	}
	return &apperr.NotFoundError{Kind: "image", ID: img.ID}
}

// Delete - 멱등 삭제 (없는 ID도 에러 아님)
func (r *MemoryJobRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[id]; !exists {
		return nil
	}
	delete(r.jobs, id)
	for i, jobID := range r.order {
		if jobID == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// FindByStatus - 해당 상태의 Job 전체, 삽입 순서대로
func (r *MemoryJobRepository) FindByStatus(ctx context.Context, status model.JobStatus) ([]*model.OptimizationJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.OptimizationJob
	for _, id := range r.order {
		if job := r.jobs[id]; job != nil && job.Status == status {
			out = append(out, job.Clone())
		}
	}
	return out, nil
}

// FindExpiredJobs - olderThan 이전에 생성됐고 아직 살아있는(종료 전) Job
// 종료된 Job은 나이와 무관하게 만료 대상이 아님
func (r *MemoryJobRepository) FindExpiredJobs(ctx context.Context, olderThan time.Time) ([]*model.OptimizationJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.OptimizationJob
	for _, id := range r.order {
		job := r.jobs[id]
		if job == nil || job.Status.Terminal() {
			continue
		}
		if job.CreatedAt.Before(olderThan) {
			out = append(out, job.Clone())
		}
	}
	return out, nil
}
