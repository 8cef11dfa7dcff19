package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"listing-optimizer-server/modules/ai"
	"listing-optimizer-server/modules/batch"
	"listing-optimizer-server/modules/common/config"
	redisutil "listing-optimizer-server/modules/common/redis"
	"listing-optimizer-server/modules/common/storage"
	"listing-optimizer-server/modules/optimize"
	"listing-optimizer-server/modules/repository"
	"listing-optimizer-server/modules/scraper"
	"listing-optimizer-server/modules/sweeper"
)

func main() {
	// 환경변수 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	ctx := context.Background()

	// Job 저장소 (in-memory)
	repo := repository.NewMemoryJobRepository()

	// Supabase storage + 원본 다운로드
	store, err := storage.NewClient(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to init storage client: %v", err)
	}

	// Gemini 분류/최적화 클라이언트 (Classifier와 Optimizer 양쪽을 담당)
	gemini := ai.NewGeminiClient(cfg)

	// 배치 실행 관리자
	backend := ai.NewGeminiBatchBackend(gemini, cfg.ImageConcurrency)
	batches := batch.NewManager(backend, batch.Config{
		SizeThreshold:   cfg.BatchSizeThreshold,
		PollInterval:    cfg.BatchPollInterval,
		MaxPollAttempts: cfg.BatchMaxPollAttempts,
	})

	// 리스팅 스크래퍼
	scr := scraper.NewHTTPScraper(cfg)

	// Redis 연결 (비활성화 시 nil - Job은 goroutine으로 인라인 실행)
	rdb := redisutil.Connect(cfg)

	service := optimize.NewService(repo, scr, gemini, gemini, store, batches, rdb, optimize.Options{
		ImageConcurrency: cfg.ImageConcurrency,
		RetryAttempts:    cfg.RetryAttempts,
		RetryBaseDelay:   time.Second,
	})

	// 큐 worker (Redis 사용 시에만)
	if rdb != nil {
		go optimize.StartWorker(ctx, rdb, service)
	}

	// 만료 Job 정리
	sw := sweeper.New(repo, cfg.JobMaxAge, cfg.SweepInterval)
	go sw.Start(ctx)

	// 라우터
	router := mux.NewRouter()
	handler := optimize.NewHandler(service)
	handler.RegisterRoutes(router)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"listing-optimizer-server"}`))
	}).Methods("GET")

	log.Printf("🚀 Listing optimizer server starting on port %s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatalf("❌ Server failed: %v", err)
	}
}
