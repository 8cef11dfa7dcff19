package ai

import (
	"fmt"
	"strings"

	"listing-optimizer-server/modules/common/model"
	"listing-optimizer-server/modules/roomtype"
)

// classificationPrompt - 방 종류/품질 분석용 프롬프트 (JSON 응답 강제)
const classificationPrompt = `Analyze this real estate listing photo and respond with ONLY a JSON object, no markdown, no explanation:
{
  "detected_room_type": one of "bedroom", "kitchen", "bathroom", "living_room", "exterior", "other",
  "lighting": short description of the lighting conditions,
  "quality": one of "low", "medium", "high",
  "issues": array of short strings describing visual problems (dark corners, clutter, tilt, color cast), empty array if none
}`

// roomEnhancementMap - 방 종류별 보정 지시문
var roomEnhancementMap = map[roomtype.RoomType]string{
	roomtype.Bedroom:    "Brighten the room, make the bedding look crisp and inviting, warm neutral white balance",
	roomtype.Kitchen:    "Increase clarity on countertops and appliances, neutral white balance, remove color casts",
	roomtype.Bathroom:   "Brighten whites and tiles, reduce glare on mirrors and fixtures",
	roomtype.LivingRoom: "Balanced exposure, open and airy feel, natural window light preserved",
	roomtype.Exterior:   "Vivid but natural sky, balanced shadows, straighten verticals",
	roomtype.Other:      "Balanced exposure and natural color correction",
}

// optimizationPrompt - 최적화 요청 프롬프트 생성
func optimizationPrompt(rt roomtype.RoomType, analysis *model.ImageAnalysis) string {
	var sb strings.Builder
	sb.WriteString("Enhance this real estate listing photo for marketing use. ")
	sb.WriteString(roomEnhancementMap[rt])
	sb.WriteString(". Keep the scene photorealistic, do not add or remove objects, do not change the layout.")

	if analysis != nil && len(analysis.Issues) > 0 {
		sb.WriteString(" Known issues to correct: ")
		sb.WriteString(strings.Join(analysis.Issues, "; "))
		sb.WriteString(".")
	}
	return sb.String()
}

// enhancementsComment - 사용자에게 보여줄 적용 보정 요약
func enhancementsComment(rt roomtype.RoomType, analysis *model.ImageAnalysis) string {
	comment := fmt.Sprintf("Applied %s enhancements: %s", rt, roomEnhancementMap[rt])
	if analysis != nil && len(analysis.Issues) > 0 {
		comment += fmt.Sprintf(" (corrected: %s)", strings.Join(analysis.Issues, ", "))
	}
	return comment
}
