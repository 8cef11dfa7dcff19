package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"listing-optimizer-server/modules/common/apperr"
	"listing-optimizer-server/modules/common/config"
)

// ListingData - 스크래퍼가 돌려주는 리스팅 정보
type ListingData struct {
	ImageURLs        []string `json:"image_urls"`
	MetadataRoomType string   `json:"metadata_room_type,omitempty"`
	Title            string   `json:"title,omitempty"`
}

// Scraper - 리스팅 스크래핑 collaborator 계약
type Scraper interface {
	ScrapeListing(ctx context.Context, url string) (*ListingData, error)
}

// HTTPScraper - 외부 스크래퍼 서비스 호출 클라이언트
type HTTPScraper struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPScraper - 설정에서 클라이언트 생성
func NewHTTPScraper(cfg *config.Config) *HTTPScraper {
	return &HTTPScraper{
		endpoint: cfg.ScraperAPIURL,
		apiKey:   cfg.ScraperAPIKey,
		client: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// ScrapeListing - 리스팅 URL에서 이미지 URL 목록 + 메타데이터 라벨 수집
func (s *HTTPScraper) ScrapeListing(ctx context.Context, url string) (*ListingData, error) {
	reqBody, err := json.Marshal(map[string]string{"url": url})
	if err != nil {
		return nil, &apperr.ScrapeError{URL: url, Reason: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.endpoint, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, &apperr.ScrapeError{URL: url, Reason: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &apperr.ScrapeError{URL: url, Reason: fmt.Sprintf("scraper service unreachable: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &apperr.ScrapeError{
			URL:    url,
			Reason: fmt.Sprintf("scraper returned status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var data ListingData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, &apperr.ScrapeError{URL: url, Reason: fmt.Sprintf("invalid scraper response: %v", err)}
	}

	return &data, nil
}
