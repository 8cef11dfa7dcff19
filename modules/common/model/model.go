package model

import "time"

// JobStatus - 최적화 Job 상태
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobScraping   JobStatus = "scraping"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// Terminal - 종료 상태 여부
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// ImageStatus - 개별 이미지 처리 상태
type ImageStatus string

const (
	ImagePending    ImageStatus = "pending"
	ImageAnalyzing  ImageStatus = "analyzing"
	ImageOptimizing ImageStatus = "optimizing"
	ImageCompleted  ImageStatus = "completed"
	ImageFailed     ImageStatus = "failed"
)

// Terminal - 이미지가 더 이상 진행되지 않는 상태인지
func (s ImageStatus) Terminal() bool {
	return s == ImageCompleted || s == ImageFailed
}

// Progress - Job 진행 카운터 (total은 스크래핑 완료 후 고정)
type Progress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// ImageAnalysis - AI 분류 결과
type ImageAnalysis struct {
	DetectedRoomType string   `json:"detected_room_type"`
	Lighting         string   `json:"lighting,omitempty"`
	Quality          string   `json:"quality,omitempty"`
	Issues           []string `json:"issues,omitempty"`
}

// Clone - 깊은 복사
func (a *ImageAnalysis) Clone() *ImageAnalysis {
	if a == nil {
		return nil
	}
	out := *a
	if a.Issues != nil {
		out.Issues = make([]string, len(a.Issues))
		copy(out.Issues, a.Issues)
	}
	return &out
}

// OptimizedImage - 최적화 호출 결과 (바이너리 + 적용된 보정 요약)
type OptimizedImage struct {
	Data    []byte `json:"-"`
	Comment string `json:"comment,omitempty"`
}

// Image - Job이 소유하는 이미지 한 장
type Image struct {
	ID           string         `json:"id"`
	SourceURL    string         `json:"source_url"`
	RawRef       string         `json:"raw_ref,omitempty"`
	OptimizedRef string         `json:"optimized_ref,omitempty"`
	Analysis     *ImageAnalysis `json:"analysis,omitempty"`
	RoomType     string         `json:"room_type,omitempty"`
	FileName     string         `json:"file_name,omitempty"`
	Status       ImageStatus    `json:"status"`
	Error        string         `json:"error,omitempty"`
	Enhancements string         `json:"enhancements,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Clone - 깊은 복사
func (img *Image) Clone() *Image {
	out := *img
	out.Analysis = img.Analysis.Clone()
	return &out
}

// ImagePair - 원본/최적화 이미지 읽기 모델 (저장하지 않고 조회 시 재구성)
type ImagePair struct {
	ImageID      string      `json:"image_id"`
	OriginalURL  string      `json:"original_url"`
	OptimizedRef string      `json:"optimized_ref,omitempty"`
	RoomType     string      `json:"room_type,omitempty"`
	FileName     string      `json:"file_name,omitempty"`
	Status       ImageStatus `json:"status"`
}

// OptimizationJob - 리스팅 하나에 대한 end-to-end 최적화 Job
type OptimizationJob struct {
	ID          string     `json:"job_id"`
	ListingURL  string     `json:"listing_url"`
	Status      JobStatus  `json:"status"`
	CurrentStep string     `json:"current_step,omitempty"`
	Images      []Image    `json:"images"`
	Progress    Progress   `json:"progress"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone - 깊은 복사 (repository가 내부 상태를 노출하지 않기 위한 핵심 수단)
func (j *OptimizationJob) Clone() *OptimizationJob {
	out := *j
	if j.Images != nil {
		out.Images = make([]Image, len(j.Images))
		for i := range j.Images {
			out.Images[i] = *j.Images[i].Clone()
		}
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// ImagePairs - 현재 이미지 상태에서 pair 읽기 모델 재구성
func (j *OptimizationJob) ImagePairs() []ImagePair {
	pairs := make([]ImagePair, 0, len(j.Images))
	for i := range j.Images {
		img := &j.Images[i]
		pairs = append(pairs, ImagePair{
			ImageID:      img.ID,
			OriginalURL:  img.SourceURL,
			OptimizedRef: img.OptimizedRef,
			RoomType:     img.RoomType,
			FileName:     img.FileName,
			Status:       img.Status,
		})
	}
	return pairs
}

// RecountProgress - 이미지 상태 기준으로 completed/failed 카운터 재계산
// (total은 건드리지 않음 - 스크래핑 완료 시점에 고정)
func (j *OptimizationJob) RecountProgress() {
	completed, failed := 0, 0
	for i := range j.Images {
		switch j.Images[i].Status {
		case ImageCompleted:
			completed++
		case ImageFailed:
			failed++
		}
	}
	j.Progress.Completed = completed
	j.Progress.Failed = failed
}
