package roomtype

import (
	"fmt"
	"strings"
)

// RoomType - 인식 가능한 공간 분류
type RoomType string

const (
	Bedroom    RoomType = "bedroom"
	Kitchen    RoomType = "kitchen"
	Bathroom   RoomType = "bathroom"
	LivingRoom RoomType = "living_room"
	Exterior   RoomType = "exterior"
	Other      RoomType = "other"
)

// 라벨 → RoomType 매핑 (공백/하이픈 표기 변형 포함)
var labelMap = map[string]RoomType{
	"bedroom":     Bedroom,
	"kitchen":     Kitchen,
	"bathroom":    Bathroom,
	"living_room": LivingRoom,
	"livingroom":  LivingRoom,
	"living room": LivingRoom,
	"living-room": LivingRoom,
	"exterior":    Exterior,
	"other":       Other,
}

// Normalize - 자유 형식 라벨을 RoomType으로 변환 시도
func Normalize(label string) (RoomType, bool) {
	key := strings.ToLower(strings.TrimSpace(label))
	rt, ok := labelMap[key]
	return rt, ok
}

// Resolve - 스크래핑 메타데이터 라벨과 AI 감지 라벨을 하나로 합침
// 우선순위:
//  1. 메타데이터 라벨이 인식 가능한 타입이면 그대로 사용
//  2. 아니면 AI 감지 라벨이 있고 other가 아니면 그 매핑값 사용
//  3. 둘 다 아니면 other
//
// "entire rental unit" 같은 범용 메타데이터 라벨이 구체적인 AI 감지 결과를
// 가리지 않도록 하는 것이 핵심
func Resolve(scraped, detected string) RoomType {
	if rt, ok := Normalize(scraped); ok {
		return rt
	}
	if rt, ok := Normalize(detected); ok && rt != Other {
		return rt
	}
	return Other
}

// FileName - 최적화 결과물 파일명 ({타입}_{순번}.jpg, 순번은 1부터)
func FileName(rt RoomType, index int) string {
	return fmt.Sprintf("%s_%d.jpg", rt, index+1)
}
