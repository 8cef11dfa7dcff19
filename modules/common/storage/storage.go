package storage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // JPEG 디코더 등록
	_ "image/png"  // PNG 디코더 등록
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	"github.com/supabase-community/supabase-go"

	"listing-optimizer-server/modules/common/config"
)

// Client - 원본 다운로드 + 최적화 결과 업로드 담당
type Client struct {
	supabase *supabase.Client
	bucket   string
	http     *http.Client
}

// NewClient - Storage 클라이언트 생성
func NewClient(cfg *config.Config) (*Client, error) {
	supabaseClient, err := supabase.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}

	return &Client{
		supabase: supabaseClient,
		bucket:   cfg.StorageBucket,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

// FetchImage - 이미지 URL에서 바이너리 다운로드
func (c *Client) FetchImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to download image: status %d, body: %s", resp.StatusCode, string(body))
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	log.Printf("✅ Image downloaded successfully: %d bytes", len(imageData))
	return imageData, nil
}

// UploadOptimized - 최적화 결과를 WebP로 변환해서 Supabase Storage에 업로드
// 반환값은 storage 내 경로와 업로드된 크기
func (c *Client) UploadOptimized(ctx context.Context, jobID, fileName string, data []byte) (string, int64, error) {
	webpData, err := convertToWebP(data, 90.0)
	if err != nil {
		return "", 0, fmt.Errorf("failed to convert image to WebP: %w", err)
	}

	webpName := strings.TrimSuffix(fileName, ".jpg") + ".webp"
	filePath := fmt.Sprintf("optimized/%s/%s", jobID, webpName)

	log.Printf("📤 Uploading WebP image to storage: %s", filePath)

	_, err = c.supabase.Storage.UploadFile(c.bucket, filePath, bytes.NewReader(webpData))
	if err != nil {
		return "", 0, fmt.Errorf("failed to upload optimized image: %w", err)
	}

	webpSize := int64(len(webpData))
	log.Printf("✅ WebP image uploaded successfully: %s (%d bytes)", filePath, webpSize)
	return filePath, webpSize, nil
}

// convertToWebP - PNG/JPEG 바이너리를 WebP로 변환
func convertToWebP(data []byte, quality float32) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, quality)
	if err != nil {
		return nil, fmt.Errorf("failed to create WebP encoder options: %w", err)
	}

	var webpBuffer bytes.Buffer
	if err := webp.Encode(&webpBuffer, img, options); err != nil {
		return nil, fmt.Errorf("failed to encode WebP: %w", err)
	}

	webpData := webpBuffer.Bytes()
	log.Printf("🔄 Converted %s to WebP: %d bytes → %d bytes", format, len(data), len(webpData))
	return webpData, nil
}
