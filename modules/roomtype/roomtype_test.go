package roomtype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		label string
		want  RoomType
		ok    bool
	}{
		{"bedroom", Bedroom, true},
		{"Bedroom", Bedroom, true},
		{"  KITCHEN  ", Kitchen, true},
		{"living room", LivingRoom, true},
		{"living-room", LivingRoom, true},
		{"livingroom", LivingRoom, true},
		{"bathroom", Bathroom, true},
		{"exterior", Exterior, true},
		{"other", Other, true},
		{"master suite", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := Normalize(tt.label)
		assert.Equal(t, tt.ok, ok, "label %q", tt.label)
		if tt.ok {
			assert.Equal(t, tt.want, got, "label %q", tt.label)
		}
	}
}

func TestResolve(t *testing.T) {
	// 메타데이터 라벨이 인식되면 AI 결과와 달라도 메타데이터 우선
	assert.Equal(t, Kitchen, Resolve("kitchen", "bedroom"))
	assert.Equal(t, LivingRoom, Resolve("Living Room", "bathroom"))

	// 인식 불가 라벨은 AI 결과로
	assert.Equal(t, Bedroom, Resolve("master suite", "bedroom"))
	assert.Equal(t, Bathroom, Resolve("", "bathroom"))

	// AI가 other거나 비어있으면 other
	assert.Equal(t, Other, Resolve("unknown label", "other"))
	assert.Equal(t, Other, Resolve("", ""))
	assert.Equal(t, Other, Resolve("", "hallway"))
}

func TestFileName(t *testing.T) {
	// 파일명 순번은 1부터
	assert.Equal(t, "bedroom_1.jpg", FileName(Bedroom, 0))
	assert.Equal(t, "kitchen_3.jpg", FileName(Kitchen, 2))
	assert.Equal(t, "living_room_10.jpg", FileName(LivingRoom, 9))
	assert.Equal(t, "other_1.jpg", FileName(Other, 0))
}
