package workflow

import "testing"

func TestSeedreamSize(t *testing.T) {
	tests := []struct {
		ratio, resolution, want string
	}{
		{"1:1", "1k", "2048*2048"},
		{"16:9", "1k", "2560*1440"},
		{"9:16", "1k", "1440*2560"},
		{"3:2", "2k", "3584*2389"},
		{"16:9", "4k", "3840*2160"},
		{"3:4", "2k", "2688*3584"},
		{"5:4", "1k", "1024*1024"},
		{"", "", "1024*1024"},
	}

	for _, tt := range tests {
		t.Run(tt.ratio+"_"+tt.resolution, func(t *testing.T) {
			if got := SeedreamSize(tt.ratio, tt.resolution); got != tt.want {
				t.Errorf("SeedreamSize(%q, %q) = %q, want %q", tt.ratio, tt.resolution, got, tt.want)
			}
		})
	}
}

func TestWan26Size(t *testing.T) {
	tests := []struct {
		ratio, resolution, want string
	}{
		{"1:1", "1k", "1024*1024"},
		{"1:1", "2k", "1024*1024"},
		{"16:9", "1k", "1365*768"},
		{"16:9", "2k", "1440*810"},
		{"9:16", "1k", "768*1365"},
		{"9:16", "2k", "810*1440"},
		{"4:3", "1k", "1024*768"},
		{"21:9", "1k", "1440*768"},
	}

	for _, tt := range tests {
		t.Run(tt.ratio+"_"+tt.resolution, func(t *testing.T) {
			got, err := Wan26Size(tt.ratio, tt.resolution)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Wan26Size(%q, %q) = %q, want %q", tt.ratio, tt.resolution, got, tt.want)
			}
		})
	}
}

func TestWan26Size_InvalidRatio(t *testing.T) {
	for _, ratio := range []string{"", "16", "a:b", "0:1", "16:9:1"} {
		if _, err := Wan26Size(ratio, "1k"); err == nil {
			t.Errorf("Wan26Size(%q) expected error", ratio)
		}
	}
}
