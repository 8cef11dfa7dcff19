package apperr

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError - 잘못된 입력 (Job 생성 전에 거부됨)
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// NotFoundError - 존재하지 않는 Job/이미지 조회
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// DuplicateIDError - repository invariant 위반 (실전에서는 발생하면 안 됨)
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate job id: %s", e.ID)
}

// ScrapeError - 스크래핑 실패 (파이프라인 전체 실패)
type ScrapeError struct {
	URL    string
	Reason string
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("scrape failed for %s: %s", e.URL, e.Reason)
}

// ClassificationError - 이미지 단위 분류 실패 (Job은 계속 진행)
type ClassificationError struct {
	ImageID string
	Err     error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification failed for image %s: %v", e.ImageID, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// OptimizationError - 이미지 단위 최적화 실패 (Job은 계속 진행)
type OptimizationError struct {
	ImageID string
	Err     error
}

func (e *OptimizationError) Error() string {
	return fmt.Sprintf("optimization failed for image %s: %v", e.ImageID, e.Err)
}

func (e *OptimizationError) Unwrap() error { return e.Err }

// BatchTimeoutError - 배치 폴링 횟수 초과 (individual 경로로 fallback 유발)
type BatchTimeoutError struct {
	BatchID  string
	Attempts int
}

func (e *BatchTimeoutError) Error() string {
	return fmt.Sprintf("batch %s expired after %d poll attempts", e.BatchID, e.Attempts)
}

// IsValidation - ValidationError 여부
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound - NotFoundError 여부
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// transientError - 재시도 가능 표시용 래퍼
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// MarkTransient - 일시적 에러로 표시 (bounded retry 대상)
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Transient - 재시도해볼 만한 에러인지 판단
// 명시적 마킹 외에 timeout/429/5xx 계열 에러 문자열도 인식
func Transient(err error) bool {
	if err == nil {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{
		"429", "rate limit", "quota",
		"timeout", "deadline exceeded",
		"connection refused", "connection reset",
		"500", "502", "503", "504",
		"unavailable", "overloaded",
	} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
