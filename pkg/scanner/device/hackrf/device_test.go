package hackrf

import "testing"

func TestSplitGain(t *testing.T) {
	tests := []struct {
		db       int
		lna, vga int
	}{
		{0, 0, 0},
		{-5, 0, 0},
		{17, 16, 0},
		{30, 24, 6},
		{40, 40, 0},
		{120, 40, 62},
	}
	for _, tt := range tests {
		lna, vga := splitGain(tt.db)
		if lna != tt.lna || vga != tt.vga {
			t.Errorf("splitGain(%d) = %d, %d, want %d, %d", tt.db, lna, vga, tt.lna, tt.vga)
		}
	}
}
