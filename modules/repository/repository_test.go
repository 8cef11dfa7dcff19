package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listing-optimizer-server/modules/common/apperr"
	"listing-optimizer-server/modules/common/model"
)

func newJob(id string) *model.OptimizationJob {
	now := time.Now()
	return &model.OptimizationJob{
		ID:         id,
		ListingURL: "https://example.com/listings/" + id,
		Status:     model.JobPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestCreateAndFindByID(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryJobRepository()

	created, err := repo.Create(ctx, newJob("job-1"))
	require.NoError(t, err)
	assert.Equal(t, "job-1", created.ID)

	found, err := repo.FindByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobPending, found.Status)

	_, err = repo.FindByID(ctx, "missing")
	assert.True(t, apperr.IsNotFound(err))
}

func TestCreateDuplicateID(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryJobRepository()

	_, err := repo.Create(ctx, newJob("job-1"))
	require.NoError(t, err)

	_, err = repo.Create(ctx, newJob("job-1"))
	require.Error(t, err)
	var dup *apperr.DuplicateIDError
	assert.ErrorAs(t, err, &dup)
}

// 반환된 스냅샷을 수정해도 저장소 내부 상태가 바뀌면 안 됨
func TestFindByIDReturnsDefensiveCopy(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryJobRepository()

	job := newJob("job-1")
	job.Images = []model.Image{{ID: "img-1", Status: model.ImagePending}}
	_, err := repo.Create(ctx, job)
	require.NoError(t, err)

	snapshot, err := repo.FindByID(ctx, "job-1")
	require.NoError(t, err)
	snapshot.Status = model.JobFailed
	snapshot.Images[0].Status = model.ImageFailed

	fresh, err := repo.FindByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobPending, fresh.Status)
	assert.Equal(t, model.ImagePending, fresh.Images[0].Status)
}

// Create에 넘긴 원본을 이후에 수정해도 저장된 상태는 보존되어야 함
func TestCreateCopiesInput(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryJobRepository()

	job := newJob("job-1")
	_, err := repo.Create(ctx, job)
	require.NoError(t, err)

	job.Status = model.JobCancelled

	fresh, err := repo.FindByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobPending, fresh.Status)
}

func TestUpdateStatusSetsCompletedAt(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryJobRepository()
	_, err := repo.Create(ctx, newJob("job-1"))
	require.NoError(t, err)

	require.NoError(t, repo.UpdateStatus(ctx, "job-1", model.JobScraping, ""))
	job, _ := repo.FindByID(ctx, "job-1")
	assert.Nil(t, job.CompletedAt)

	require.NoError(t, repo.UpdateStatus(ctx, "job-1", model.JobCompleted, ""))
	job, _ = repo.FindByID(ctx, "job-1")
	require.NotNil(t, job.CompletedAt)
	assert.False(t, job.CompletedAt.IsZero())
}

// 종료 상태에 도달한 Job은 이후 상태 전이를 받지 않음
func TestUpdateStatusIfActiveGuardsTerminal(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryJobRepository()
	_, err := repo.Create(ctx, newJob("job-1"))
	require.NoError(t, err)

	changed, err := repo.UpdateStatusIfActive(ctx, "job-1", model.JobCancelled, "cancelled by user")
	require.NoError(t, err)
	assert.True(t, changed)

	// 파이프라인이 뒤늦게 완료 처리를 시도해도 cancelled 유지
	changed, err = repo.UpdateStatusIfActive(ctx, "job-1", model.JobCompleted, "")
	require.NoError(t, err)
	assert.False(t, changed)

	job, _ := repo.FindByID(ctx, "job-1")
	assert.Equal(t, model.JobCancelled, job.Status)
	assert.Equal(t, "cancelled by user", job.Error)
}

func TestAttachImagesFixesTotal(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryJobRepository()
	_, err := repo.Create(ctx, newJob("job-1"))
	require.NoError(t, err)

	images := []model.Image{
		{ID: "img-1", Status: model.ImagePending},
		{ID: "img-2", Status: model.ImagePending},
		{ID: "img-3", Status: model.ImagePending},
	}
	require.NoError(t, repo.AttachImages(ctx, "job-1", images))

	job, _ := repo.FindByID(ctx, "job-1")
	assert.Len(t, job.Images, 3)
	assert.Equal(t, 3, job.Progress.Total)
	assert.Equal(t, 0, job.Progress.Completed)
	assert.Equal(t, 0, job.Progress.Failed)
}

func TestAttachImagesRefusesTerminalJob(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryJobRepository()
	_, err := repo.Create(ctx, newJob("job-1"))
	require.NoError(t, err)
	require.NoError(t, repo.UpdateStatus(ctx, "job-1", model.JobCancelled, ""))

	err = repo.AttachImages(ctx, "job-1", []model.Image{{ID: "img-1"}})
	assert.Error(t, err)
}

// UpdateImage는 이미지 교체와 progress 재계산을 한 번에 수행
func TestUpdateImageRecountsProgress(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryJobRepository()
	_, err := repo.Create(ctx, newJob("job-1"))
	require.NoError(t, err)
	require.NoError(t, repo.AttachImages(ctx, "job-1", []model.Image{
		{ID: "img-1", Status: model.ImagePending},
		{ID: "img-2", Status: model.ImagePending},
	}))

	require.NoError(t, repo.UpdateImage(ctx, "job-1", &model.Image{ID: "img-1", Status: model.ImageCompleted}))
	job, _ := repo.FindByID(ctx, "job-1")
	assert.Equal(t, model.Progress{Total: 2, Completed: 1, Failed: 0}, job.Progress)

	require.NoError(t, repo.UpdateImage(ctx, "job-1", &model.Image{ID: "img-2", Status: model.ImageFailed, Error: "boom"}))
	job, _ = repo.FindByID(ctx, "job-1")
	assert.Equal(t, model.Progress{Total: 2, Completed: 1, Failed: 1}, job.Progress)

	err = repo.UpdateImage(ctx, "job-1", &model.Image{ID: "missing"})
	assert.True(t, apperr.IsNotFound(err))
}

// 취소된 Job에 뒤늦게 도착한 이미지 업데이트는 버려지고 스냅샷은 고정됨
func TestUpdateImageIgnoredAfterTerminal(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryJobRepository()
	_, err := repo.Create(ctx, newJob("job-1"))
	require.NoError(t, err)
	require.NoError(t, repo.AttachImages(ctx, "job-1", []model.Image{
		{ID: "img-1", Status: model.ImagePending},
		{ID: "img-2", Status: model.ImageOptimizing},
	}))
	require.NoError(t, repo.UpdateImage(ctx, "job-1", &model.Image{ID: "img-1", Status: model.ImageCompleted}))
	require.NoError(t, repo.UpdateStatus(ctx, "job-1", model.JobCancelled, "cancelled by user"))

	// 진행 중이던 최적화가 취소 이후에 완료를 보고해도 무시
	require.NoError(t, repo.UpdateImage(ctx, "job-1", &model.Image{ID: "img-2", Status: model.ImageCompleted}))

	job, _ := repo.FindByID(ctx, "job-1")
	assert.Equal(t, model.JobCancelled, job.Status)
	assert.Equal(t, model.ImageOptimizing, job.Images[1].Status)
	assert.Equal(t, model.Progress{Total: 2, Completed: 1, Failed: 0}, job.Progress)
}

// 동시 이미지 완료가 카운터를 깨지 않는지
func TestUpdateImageConcurrent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryJobRepository()
	_, err := repo.Create(ctx, newJob("job-1"))
	require.NoError(t, err)

	const n = 50
	images := make([]model.Image, n)
	for i := range images {
		images[i] = model.Image{ID: fmt.Sprintf("img-%d", i), Status: model.ImagePending}
	}
	require.NoError(t, repo.AttachImages(ctx, "job-1", images))

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := model.ImageCompleted
			if i%2 == 1 {
				status = model.ImageFailed
			}
			err := repo.UpdateImage(ctx, "job-1", &model.Image{ID: fmt.Sprintf("img-%d", i), Status: status})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	job, err := repo.FindByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, n, job.Progress.Total)
	assert.Equal(t, n/2, job.Progress.Completed)
	assert.Equal(t, n/2, job.Progress.Failed)
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryJobRepository()
	_, err := repo.Create(ctx, newJob("job-1"))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "job-1"))
	require.NoError(t, repo.Delete(ctx, "job-1"))

	_, err = repo.FindByID(ctx, "job-1")
	assert.True(t, apperr.IsNotFound(err))
}

func TestFindByStatusPreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryJobRepository()

	for _, id := range []string{"a", "b", "c"} {
		_, err := repo.Create(ctx, newJob(id))
		require.NoError(t, err)
	}
	require.NoError(t, repo.UpdateStatus(ctx, "b", model.JobCompleted, ""))

	pending, err := repo.FindByStatus(ctx, model.JobPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a", pending[0].ID)
	assert.Equal(t, "c", pending[1].ID)
}

// 만료 조회는 활성 Job만 대상, 종료 상태 Job은 오래됐어도 제외
func TestFindExpiredJobs(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryJobRepository()

	old := newJob("old-active")
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	_, err := repo.Create(ctx, old)
	require.NoError(t, err)

	oldDone := newJob("old-done")
	oldDone.CreatedAt = time.Now().Add(-48 * time.Hour)
	_, err = repo.Create(ctx, oldDone)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateStatus(ctx, "old-done", model.JobCompleted, ""))

	_, err = repo.Create(ctx, newJob("fresh"))
	require.NoError(t, err)

	expired, err := repo.FindExpiredJobs(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "old-active", expired[0].ID)
}
