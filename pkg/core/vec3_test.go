package core

import (
	"math"
	"testing"
)

func TestVec3_Clamp(t *testing.T) {
	v := NewVec3(-0.5, 0.25, 3).Clamp(0, 1)
	if !v.Equals(NewVec3(0, 0.25, 1)) {
		t.Errorf("Expected (0, 0.25, 1), got %v", v)
	}
}

func TestVec3_Luminance(t *testing.T) {
	tests := []struct {
		name     string
		color    Vec3
		expected float64
	}{
		{"White", White, 1},
		{"Black", NewVec3(0, 0, 0), 0},
		{"Pure red", NewVec3(1, 0, 0), 0.299},
		{"Pure green", NewVec3(0, 1, 0), 0.587},
		{"Pure blue", NewVec3(0, 0, 1), 0.114},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.color.Luminance(); math.Abs(got-tt.expected) > 1e-12 {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestVec3_MultiplyVecTints(t *testing.T) {
	tint := White.MultiplyVec(NewVec3(0.5, 1, 0)).MultiplyVec(NewVec3(0.5, 0.5, 1))
	if !tint.ApproxEquals(NewVec3(0.25, 0.5, 0), 1e-12) {
		t.Errorf("Unexpected throughput %v", tint)
	}
	if !NewVec3(0, 0, 0).IsBlack() || tint.IsBlack() {
		t.Error("IsBlack mismatch")
	}
}
