package optimize

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"listing-optimizer-server/modules/batch"
	"listing-optimizer-server/modules/common/apperr"
	"listing-optimizer-server/modules/common/model"
	redisutil "listing-optimizer-server/modules/common/redis"
	"listing-optimizer-server/modules/repository"
	"listing-optimizer-server/modules/roomtype"
	"listing-optimizer-server/modules/scraper"
)

// Options - 파이프라인 동작 설정
type Options struct {
	ImageConcurrency int           // individual 경로 동시 처리 상한
	RetryAttempts    int           // 일시적 에러 재시도 횟수
	RetryBaseDelay   time.Duration // 지수 백오프 기준 간격
}

// DefaultOptions - 기본값
func DefaultOptions() Options {
	return Options{
		ImageConcurrency: 4,
		RetryAttempts:    3,
		RetryBaseDelay:   time.Second,
	}
}

// Service - Job 파이프라인 오케스트레이터
// 스크래핑 → 분류 → 최적화를 하나의 Job으로 묶어서 끝까지 끌고 간다
type Service struct {
	repo       repository.JobRepository
	scraper    scraper.Scraper
	classifier Classifier
	optimizer  Optimizer
	store      ContentStore
	batches    *batch.Manager
	rdb        *redis.Client // nil이면 큐 없이 goroutine으로 직접 실행
	opts       Options

	mu      sync.Mutex
	cancels map[string]context.CancelFunc // 진행 중 파이프라인 취소 신호
}

// NewService - 오케스트레이터 생성 (collaborator는 전부 명시적으로 주입)
func NewService(
	repo repository.JobRepository,
	scr scraper.Scraper,
	classifier Classifier,
	optimizer Optimizer,
	store ContentStore,
	batches *batch.Manager,
	rdb *redis.Client,
	opts Options,
) *Service {
	if opts.ImageConcurrency < 1 {
		opts.ImageConcurrency = DefaultOptions().ImageConcurrency
	}
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = DefaultOptions().RetryAttempts
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = DefaultOptions().RetryBaseDelay
	}
	return &Service{
		repo:       repo,
		scraper:    scr,
		classifier: classifier,
		optimizer:  optimizer,
		store:      store,
		batches:    batches,
		rdb:        rdb,
		opts:       opts,
		cancels:    make(map[string]context.CancelFunc),
	}
}

// SubmitJob - URL 검증 후 Job 생성, 파이프라인은 비동기로 시작
// 검증 실패 시 Job은 저장되지 않음
// 큐를 사용하지 않는 구성에서는 queuePosition이 0
func (s *Service) SubmitJob(ctx context.Context, rawURL string) (string, int64, error) {
	normalized, err := normalizeListingURL(rawURL)
	if err != nil {
		return "", 0, err
	}

	now := time.Now()
	job := &model.OptimizationJob{
		ID:          uuid.New().String(),
		ListingURL:  normalized,
		Status:      model.JobPending,
		CurrentStep: "queued",
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if _, err := s.repo.Create(ctx, job); err != nil {
		return "", 0, err
	}

	log.Printf("📥 Job %s created for listing: %s", job.ID, normalized)

	var queuePos int64
	if s.rdb != nil {
		pos, err := redisutil.Enqueue(ctx, s.rdb, job.ID)
		if err != nil {
			log.Printf("⚠️ Enqueue failed for job %s, running inline: %v", job.ID, err)
			go s.RunJob(context.Background(), job.ID)
		} else {
			queuePos = pos
			log.Printf("✅ Job %s enqueued (position: %d)", job.ID, pos)
		}
	} else {
		go s.RunJob(context.Background(), job.ID)
	}

	return job.ID, queuePos, nil
}

// GetJobSnapshot - repository의 현재 상태 그대로 스냅샷 반환
func (s *Service) GetJobSnapshot(ctx context.Context, jobID string) (*JobProgress, error) {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &JobProgress{
		JobID:       job.ID,
		ListingURL:  job.ListingURL,
		Status:      job.Status,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		Error:       job.Error,
		Images:      job.Images,
		ImagePairs:  job.ImagePairs(),
		CreatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	}, nil
}

// CancelJob - 진행 중 Job 취소. 이미 종료된 Job이면 false
// 완료된 이미지 결과는 보존되고, 남은 작업만 중단된다
func (s *Service) CancelJob(ctx context.Context, jobID string) (bool, error) {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job.Status.Terminal() {
		return false, nil
	}

	log.Printf("🛑 Cancel requested for job: %s (current status: %s)", jobID, job.Status)

	// Redis 취소 플래그 (다른 인스턴스의 worker도 볼 수 있게)
	if s.rdb != nil {
		if err := redisutil.SetJobCancelled(ctx, s.rdb, jobID); err != nil {
			log.Printf("⚠️ Failed to set cancel flag for job %s: %v", jobID, err)
		}
	}

	changed, err := s.repo.UpdateStatusIfActive(ctx, jobID, model.JobCancelled, "cancelled by user")
	if err != nil {
		return false, err
	}

	// 진행 중인 파이프라인에 중단 신호
	s.mu.Lock()
	if cancelFn := s.cancels[jobID]; cancelFn != nil {
		cancelFn()
	}
	s.mu.Unlock()

	return changed, nil
}

// pipelineImage - 파이프라인 내부 작업 단위 (Job 밖으로 공유되지 않음)
type pipelineImage struct {
	img   model.Image
	index int // 소유 Job 이미지 목록 내 위치 (파일명 순번)
	data  []byte
	rt    roomtype.RoomType
	err   error
}

// RunJob - Job 하나의 파이프라인 전체 실행
func (s *Service) RunJob(parent context.Context, jobID string) {
	job, err := s.repo.FindByID(parent, jobID)
	if err != nil {
		log.Printf("❌ Failed to fetch job %s: %v", jobID, err)
		return
	}
	if job.Status.Terminal() {
		log.Printf("⚠️ Job %s already %s, skipping", jobID, job.Status)
		return
	}

	ctx, cancelFn := context.WithCancel(parent)
	s.mu.Lock()
	s.cancels[jobID] = cancelFn
	s.mu.Unlock()
	defer func() {
		cancelFn()
		s.mu.Lock()
		delete(s.cancels, jobID)
		s.mu.Unlock()
	}()

	log.Printf("🚀 Processing job: %s (%s)", jobID, job.ListingURL)

	// Phase 1: 스크래핑
	if _, err := s.repo.UpdateStatusIfActive(ctx, jobID, model.JobScraping, ""); err != nil {
		log.Printf("❌ Failed to update job status: %v", err)
		return
	}
	s.repo.SetCurrentStep(ctx, jobID, "scraping")

	listing, err := s.scraper.ScrapeListing(ctx, job.ListingURL)
	if err != nil {
		log.Printf("❌ Scrape failed for job %s: %v", jobID, err)
		s.failJob(ctx, jobID, err.Error())
		return
	}
	if len(listing.ImageURLs) == 0 {
		s.failJob(ctx, jobID, "scraper returned no images for listing")
		return
	}
	if s.jobCancelled(ctx, jobID) {
		log.Printf("🛑 Job %s cancelled after scraping", jobID)
		return
	}

	log.Printf("📦 Job %s: scraped %d images (metadata room type: %q)",
		jobID, len(listing.ImageURLs), listing.MetadataRoomType)

	// Phase 2: 이미지 레코드 생성 + progress.total 고정
	now := time.Now()
	items := make([]*pipelineImage, len(listing.ImageURLs))
	records := make([]model.Image, len(listing.ImageURLs))
	for i, srcURL := range listing.ImageURLs {
		records[i] = model.Image{
			ID:        uuid.New().String(),
			SourceURL: srcURL,
			Status:    model.ImagePending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		items[i] = &pipelineImage{img: records[i], index: i}
	}

	if err := s.repo.AttachImages(ctx, jobID, records); err != nil {
		log.Printf("❌ Failed to attach images to job %s: %v", jobID, err)
		return
	}
	if _, err := s.repo.UpdateStatusIfActive(ctx, jobID, model.JobProcessing, ""); err != nil {
		log.Printf("❌ Failed to update job status: %v", err)
		return
	}

	// Phase 3: 분류
	s.repo.SetCurrentStep(ctx, jobID, "classifying")
	survivors := s.classifyStage(ctx, jobID, items, listing.MetadataRoomType)
	if s.jobCancelled(ctx, jobID) {
		log.Printf("🛑 Job %s cancelled during classification", jobID)
		return
	}

	// Phase 4: 최적화 (분류를 통과한 이미지만)
	s.repo.SetCurrentStep(ctx, jobID, "optimizing")
	s.optimizeStage(ctx, jobID, survivors)
	if s.jobCancelled(ctx, jobID) {
		log.Printf("🛑 Job %s cancelled during optimization", jobID)
		return
	}

	// Phase 5: 마무리
	s.finishJob(ctx, jobID)
}

// classifyStage - 다운로드 + 분류, 최적화로 넘어갈 이미지 목록 반환
func (s *Service) classifyStage(ctx context.Context, jobID string, items []*pipelineImage, metaLabel string) []*pipelineImage {
	// 전부 analyzing으로 전환
	for _, it := range items {
		it.img.Status = model.ImageAnalyzing
		if err := s.repo.UpdateImage(ctx, jobID, &it.img); err != nil {
			log.Printf("⚠️ Failed to mark image %s analyzing: %v", it.img.ID, err)
		}
	}

	// 원본 다운로드 (bounded concurrency)
	semaphore := make(chan struct{}, s.opts.ImageConcurrency)
	var wg sync.WaitGroup
	for _, it := range items {
		wg.Add(1)
		go func(it *pipelineImage) {
			defer wg.Done()
			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				return
			}
			if ctx.Err() != nil {
				return
			}
			data, err := s.store.FetchImage(ctx, it.img.SourceURL)
			if err != nil {
				it.err = err
				return
			}
			it.data = data
		}(it)
	}
	wg.Wait()

	var live []*pipelineImage
	for _, it := range items {
		switch {
		case it.err != nil:
			s.failImage(ctx, jobID, it, fmt.Sprintf("failed to fetch source image: %v", it.err))
		case it.data != nil:
			live = append(live, it)
			// data도 err도 없는 항목은 취소로 중단된 것 - 그대로 둔다
		}
	}
	if len(live) == 0 || s.jobCancelled(ctx, jobID) {
		return nil
	}

	analyses := make(map[string]*model.ImageAnalysis)
	failures := make(map[string]string)

	strategy := s.batches.DecideStrategy(len(live))
	log.Printf("🔀 Job %s: classification strategy for %d images: %s", jobID, len(live), strategy)

	if strategy == batch.StrategyBatch {
		reqs := make([]batch.Request, 0, len(live))
		for _, it := range live {
			reqs = append(reqs, batch.Request{ID: it.img.ID, Image: it.data})
		}

		results, ok := s.runBatchStage(ctx, jobID, batch.KindClassification, reqs)
		if ok {
			for _, res := range results {
				if res.Error != "" || res.Analysis == nil {
					failures[res.RequestID] = res.Error
				} else {
					analyses[res.RequestID] = res.Analysis
				}
			}
		} else if !s.jobCancelled(ctx, jobID) {
			// 배치 실패 - 전체를 individual 경로로 1회 fallback
			log.Printf("🔁 Job %s: falling back to individual classification for %d images", jobID, len(live))
			s.classifyIndividually(ctx, live, analyses, failures)
		} else {
			return nil
		}
	} else {
		s.classifyIndividually(ctx, live, analyses, failures)
	}

	// 결과 반영
	var survivors []*pipelineImage
	for _, it := range live {
		if s.jobCancelled(ctx, jobID) {
			break
		}

		if analysis, ok := analyses[it.img.ID]; ok {
			rt := roomtype.Resolve(metaLabel, analysis.DetectedRoomType)
			it.rt = rt
			it.img.Analysis = analysis
			it.img.RoomType = string(rt)
			it.img.FileName = roomtype.FileName(rt, it.index)
			it.img.Status = model.ImageOptimizing
			if err := s.repo.UpdateImage(ctx, jobID, &it.img); err != nil {
				log.Printf("⚠️ Failed to update image %s: %v", it.img.ID, err)
				continue
			}
			survivors = append(survivors, it)
		} else if msg, ok := failures[it.img.ID]; ok {
			// 분류는 실패해도 메타데이터가 구체적이면 표시용 타입은 남긴다
			it.img.RoomType = string(roomtype.Resolve(metaLabel, ""))
			s.failImage(ctx, jobID, it, msg)
		}
		// 어느 쪽에도 없으면 취소로 중단된 항목 - 건드리지 않음
	}
	return survivors
}

// classifyIndividually - 이미지별 분류 호출 (bounded concurrency + bounded retry)
func (s *Service) classifyIndividually(ctx context.Context, items []*pipelineImage, analyses map[string]*model.ImageAnalysis, failures map[string]string) {
	semaphore := make(chan struct{}, s.opts.ImageConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, it := range items {
		wg.Add(1)
		go func(it *pipelineImage) {
			defer wg.Done()
			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				return
			}
			if ctx.Err() != nil {
				return
			}

			analysis, err := s.classifyWithRetry(ctx, it.data)
			if err != nil {
				if ctx.Err() != nil {
					return // 취소로 중단 - 결과 기록 안 함
				}
				clsErr := &apperr.ClassificationError{ImageID: it.img.ID, Err: err}
				mu.Lock()
				failures[it.img.ID] = clsErr.Error()
				mu.Unlock()
				return
			}

			mu.Lock()
			analyses[it.img.ID] = analysis
			mu.Unlock()
		}(it)
	}
	wg.Wait()
}

// optimizeStage - 분류를 통과한 이미지 최적화
// 전략은 남은 이미지 개수 기준으로 독립적으로 다시 결정
func (s *Service) optimizeStage(ctx context.Context, jobID string, items []*pipelineImage) {
	if len(items) == 0 {
		return
	}

	strategy := s.batches.DecideStrategy(len(items))
	log.Printf("🔀 Job %s: optimization strategy for %d images: %s", jobID, len(items), strategy)

	if strategy == batch.StrategyBatch {
		reqs := make([]batch.Request, 0, len(items))
		byID := make(map[string]*pipelineImage, len(items))
		for _, it := range items {
			reqs = append(reqs, batch.Request{
				ID:       it.img.ID,
				Image:    it.data,
				RoomType: string(it.rt),
				Analysis: it.img.Analysis,
			})
			byID[it.img.ID] = it
		}

		results, ok := s.runBatchStage(ctx, jobID, batch.KindOptimization, reqs)
		if ok {
			for _, res := range results {
				if s.jobCancelled(ctx, jobID) {
					return
				}
				it := byID[res.RequestID]
				if it == nil {
					continue
				}
				if res.Error != "" || res.Optimized == nil {
					s.failImage(ctx, jobID, it, res.Error)
					continue
				}
				s.completeImage(ctx, jobID, it, res.Optimized)
			}
			return
		}
		if s.jobCancelled(ctx, jobID) {
			return
		}
		// 배치 실패 - individual 경로로 1회 fallback
		log.Printf("🔁 Job %s: falling back to individual optimization for %d images", jobID, len(items))
	}

	s.optimizeIndividually(ctx, jobID, items)
}

// optimizeIndividually - 이미지별 최적화 호출 (bounded concurrency + bounded retry)
func (s *Service) optimizeIndividually(ctx context.Context, jobID string, items []*pipelineImage) {
	semaphore := make(chan struct{}, s.opts.ImageConcurrency)
	var wg sync.WaitGroup

	for _, it := range items {
		wg.Add(1)
		go func(it *pipelineImage) {
			defer wg.Done()
			select {
			case semaphore <- struct{}{}:
				defer func() { <-semaphore }()
			case <-ctx.Done():
				return
			}
			if s.jobCancelled(ctx, jobID) {
				return
			}

			optimized, err := s.optimizeWithRetry(ctx, it.data, it.rt, it.img.Analysis)
			if err != nil {
				if ctx.Err() != nil {
					return // 취소로 중단 - 상태 건드리지 않음
				}
				optErr := &apperr.OptimizationError{ImageID: it.img.ID, Err: err}
				s.failImage(ctx, jobID, it, optErr.Error())
				return
			}

			s.completeImage(ctx, jobID, it, optimized)
		}(it)
	}
	wg.Wait()
}

// runBatchStage - 배치 제출 → 폴링 → 결과 수집까지 한 번에
// 어느 단계든 실패하면 (nil, false) - 호출 측에서 individual로 fallback
func (s *Service) runBatchStage(ctx context.Context, jobID string, kind batch.Kind, reqs []batch.Request) ([]batch.Result, bool) {
	batchID, err := s.batches.RunBatch(ctx, kind, reqs)
	if err != nil {
		log.Printf("⚠️ Job %s: batch submit failed: %v", jobID, err)
		return nil, false
	}

	bj, err := s.batches.PollUntilDone(ctx, batchID)
	if err != nil {
		log.Printf("⚠️ Job %s: batch %s polling aborted: %v", jobID, batchID, err)
		return nil, false
	}
	if bj == nil || bj.Status != batch.StatusCompleted {
		status := batch.Status("unknown")
		if bj != nil {
			status = bj.Status
		}
		log.Printf("⚠️ Job %s: batch %s ended %s", jobID, batchID, status)
		return nil, false
	}

	results, err := s.batches.FetchResults(ctx, batchID)
	if err != nil {
		log.Printf("⚠️ Job %s: failed to fetch batch results: %v", jobID, err)
		return nil, false
	}
	return results, true
}

// classifyWithRetry - 일시적 에러만 지수 백오프로 재시도
func (s *Service) classifyWithRetry(ctx context.Context, image []byte) (*model.ImageAnalysis, error) {
	var lastErr error
	for attempt := 1; attempt <= s.opts.RetryAttempts; attempt++ {
		analysis, err := s.classifier.Classify(ctx, image)
		if err == nil {
			return analysis, nil
		}
		lastErr = err
		if !apperr.Transient(err) || attempt == s.opts.RetryAttempts {
			break
		}
		if !s.backoff(ctx, attempt) {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// optimizeWithRetry - 일시적 에러만 지수 백오프로 재시도
func (s *Service) optimizeWithRetry(ctx context.Context, image []byte, rt roomtype.RoomType, analysis *model.ImageAnalysis) (*model.OptimizedImage, error) {
	var lastErr error
	for attempt := 1; attempt <= s.opts.RetryAttempts; attempt++ {
		optimized, err := s.optimizer.Optimize(ctx, image, rt, analysis)
		if err == nil {
			return optimized, nil
		}
		lastErr = err
		if !apperr.Transient(err) || attempt == s.opts.RetryAttempts {
			break
		}
		if !s.backoff(ctx, attempt) {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// backoff - 취소 가능한 지수 백오프 대기. 취소되면 false
func (s *Service) backoff(ctx context.Context, attempt int) bool {
	delay := s.opts.RetryBaseDelay << (attempt - 1)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// completeImage - 결과물 업로드 후 이미지 completed 처리
func (s *Service) completeImage(ctx context.Context, jobID string, it *pipelineImage, optimized *model.OptimizedImage) {
	ref, size, err := s.store.UploadOptimized(ctx, jobID, it.img.FileName, optimized.Data)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.failImage(ctx, jobID, it, fmt.Sprintf("failed to store optimized image: %v", err))
		return
	}

	it.img.OptimizedRef = ref
	it.img.Enhancements = optimized.Comment
	it.img.Status = model.ImageCompleted
	it.img.Error = ""
	if err := s.repo.UpdateImage(ctx, jobID, &it.img); err != nil {
		log.Printf("⚠️ Failed to mark image %s completed: %v", it.img.ID, err)
		return
	}
	log.Printf("✅ Image %s completed: %s (%d bytes)", it.img.ID, ref, size)
}

// failImage - 이미지 failed 처리 (Job은 계속 진행)
func (s *Service) failImage(ctx context.Context, jobID string, it *pipelineImage, msg string) {
	if msg == "" {
		msg = "processing failed"
	}
	it.img.Status = model.ImageFailed
	it.img.Error = msg
	if err := s.repo.UpdateImage(ctx, jobID, &it.img); err != nil {
		log.Printf("⚠️ Failed to mark image %s failed: %v", it.img.ID, err)
		return
	}
	log.Printf("❌ Image %s failed: %s", it.img.ID, msg)
}

// failJob - 파이프라인 전체 실패 (이미지 진행 전 단계에서만)
func (s *Service) failJob(ctx context.Context, jobID, msg string) {
	if _, err := s.repo.UpdateStatusIfActive(ctx, jobID, model.JobFailed, msg); err != nil {
		log.Printf("❌ Failed to mark job %s failed: %v", jobID, err)
	}
}

// finishJob - 모든 이미지가 종료 상태에 도달한 뒤 Job 완료 처리
// 전부 실패했어도 Completed - Failed는 이미지 진행 전 파이프라인 실패 전용
// 취소된 Job의 상태는 덮어쓰지 않음
func (s *Service) finishJob(ctx context.Context, jobID string) {
	// step을 먼저 기록 - 상태가 terminal이 된 순간부터 스냅샷은 완성본이어야 한다
	s.repo.SetCurrentStep(ctx, jobID, "done")

	changed, err := s.repo.UpdateStatusIfActive(ctx, jobID, model.JobCompleted, "")
	if err != nil {
		log.Printf("❌ Failed to finish job %s: %v", jobID, err)
		return
	}
	if !changed {
		log.Printf("🛑 Job %s already terminal, keeping its status", jobID)
		return
	}

	if job, err := s.repo.FindByID(ctx, jobID); err == nil {
		log.Printf("🏁 Job %s finished: %d/%d completed, %d failed",
			jobID, job.Progress.Completed, job.Progress.Total, job.Progress.Failed)
	}
}

// jobCancelled - 취소 여부 확인 (ctx, Redis 플래그, repository 상태 순)
func (s *Service) jobCancelled(ctx context.Context, jobID string) bool {
	if ctx.Err() != nil {
		return true
	}
	if s.rdb != nil && redisutil.IsJobCancelled(ctx, s.rdb, jobID) {
		// 다른 인스턴스에서 취소된 경우 로컬 상태에도 반영
		s.repo.UpdateStatusIfActive(ctx, jobID, model.JobCancelled, "cancelled by user")
		return true
	}
	job, err := s.repo.FindByID(ctx, jobID)
	return err == nil && job.Status == model.JobCancelled
}

// normalizeListingURL - 입력 URL 검증 + 정규화
// 구체적인 리스팅을 가리키지 않으면 거부 (Job 생성 전에)
func normalizeListingURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &apperr.ValidationError{Reason: "url is required"}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", &apperr.ValidationError{Reason: fmt.Sprintf("malformed url: %v", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &apperr.ValidationError{Reason: "url scheme must be http or https"}
	}
	if u.Host == "" {
		return "", &apperr.ValidationError{Reason: "url host is required"}
	}
	if u.Path == "" || u.Path == "/" {
		return "", &apperr.ValidationError{Reason: "url must point to a specific listing"}
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String(), nil
}
