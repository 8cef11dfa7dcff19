package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"

	"listing-optimizer-server/modules/common/apperr"
	"listing-optimizer-server/modules/common/config"
	"listing-optimizer-server/modules/common/model"
	"listing-optimizer-server/modules/roomtype"
)

// GeminiClient - 분류/최적화 양쪽을 담당하는 Gemini 클라이언트
type GeminiClient struct {
	apiKeys []string
	model   string
}

// NewGeminiClient - 설정에서 클라이언트 생성
func NewGeminiClient(cfg *config.Config) *GeminiClient {
	return &GeminiClient{
		apiKeys: cfg.GeminiAPIKeys,
		model:   cfg.GeminiModel,
	}
}

// Classify - 이미지 한 장의 방 종류/품질 분석
func (c *GeminiClient) Classify(ctx context.Context, image []byte) (*model.ImageAnalysis, error) {
	content := &genai.Content{
		Parts: []*genai.Part{
			genai.NewPartFromText(classificationPrompt),
			genai.NewPartFromBytes(image, "image/jpeg"),
		},
	}

	result, err := generateContentWithRetry(ctx, c.apiKeys, c.model, []*genai.Content{content}, nil)
	if err != nil {
		if is429Error(err) {
			return nil, apperr.MarkTransient(err)
		}
		return nil, fmt.Errorf("Gemini classification call failed: %w", err)
	}

	text := extractText(result)
	if text == "" {
		return nil, fmt.Errorf("no text in classification response")
	}

	analysis, err := parseAnalysis(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse classification response: %w", err)
	}

	return analysis, nil
}

// Optimize - 이미지 한 장 보정 (보정된 바이너리 + 적용 요약 반환)
func (c *GeminiClient) Optimize(ctx context.Context, image []byte, rt roomtype.RoomType, analysis *model.ImageAnalysis) (*model.OptimizedImage, error) {
	prompt := optimizationPrompt(rt, analysis)

	content := &genai.Content{
		Parts: []*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(image, "image/jpeg"),
		},
	}

	result, err := generateContentWithRetry(ctx, c.apiKeys, c.model, []*genai.Content{content}, nil)
	if err != nil {
		if is429Error(err) {
			return nil, apperr.MarkTransient(err)
		}
		return nil, fmt.Errorf("Gemini optimization call failed: %w", err)
	}

	// 이미지는 InlineData로 반환됨
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				log.Printf("✅ Received optimized image from Gemini: %d bytes", len(part.InlineData.Data))
				return &model.OptimizedImage{
					Data:    part.InlineData.Data,
					Comment: enhancementsComment(rt, analysis),
				}, nil
			}
		}
	}

	return nil, fmt.Errorf("no image data in optimization response")
}

// extractText - 응답에서 첫 텍스트 파트 추출
func extractText(result *genai.GenerateContentResponse) string {
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				return part.Text
			}
		}
	}
	return ""
}

// parseAnalysis - 모델이 마크다운 펜스를 붙여 보내는 경우까지 처리해서 JSON 파싱
func parseAnalysis(text string) (*model.ImageAnalysis, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	// 앞뒤에 설명이 섞여 와도 중괄호 구간만 잘라냄
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response: %.80s", cleaned)
	}

	var analysis model.ImageAnalysis
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}
