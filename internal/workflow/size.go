package workflow

import (
	"fmt"
	"strconv"
	"strings"
)

var seedreamSizes1K = map[string]string{
	"1:1":  "2048*2048",
	"4:3":  "2688*2016",
	"3:2":  "2688*1792",
	"16:9": "2560*1440",
	"9:16": "1440*2560",
	"3:4":  "2016*2688",
}

var seedreamSizesHigh = map[string]string{
	"1:1":  "4096*4096",
	"4:3":  "3584*2688",
	"3:2":  "3584*2389",
	"16:9": "3840*2160",
	"9:16": "2160*3840",
	"3:4":  "2688*3584",
}

// SeedreamSize maps an aspect ratio and resolution to a seedream output size.
// Any resolution other than 1k uses the high table; unknown ratios get 1024*1024.
func SeedreamSize(aspectRatio, resolution string) string {
	table := seedreamSizesHigh
	if resolution == "1k" {
		table = seedreamSizes1K
	}
	if size, ok := table[aspectRatio]; ok {
		return size
	}
	return "1024*1024"
}

const (
	wanMinSide = 768
	wanMaxSide = 1440
)

// Wan26Size computes a wan2.6 output size whose sides stay within [768, 1440].
// The short side targets 768 for 1k and 1024 otherwise.
func Wan26Size(aspectRatio, resolution string) (string, error) {
	w, h, err := parseRatio(aspectRatio)
	if err != nil {
		return "", err
	}

	target := 1024
	if resolution == "1k" {
		target = wanMinSide
	}

	var width, height int
	switch {
	case w == h:
		width = min(max(target, 1024), wanMaxSide)
		height = width
	case w < h:
		width = target
		height = target * h / w
		if height > wanMaxSide {
			height = wanMaxSide
			width = height * w / h
		}
		if width < wanMinSide {
			width = wanMinSide
			height = width * h / w
			if height > wanMaxSide {
				height = wanMaxSide
				width = height * w / h
			}
		}
	default:
		height = target
		width = target * w / h
		if width > wanMaxSide {
			width = wanMaxSide
			height = width * h / w
		}
		if height < wanMinSide {
			height = wanMinSide
			width = height * w / h
			if width > wanMaxSide {
				width = wanMaxSide
				height = width * h / w
			}
		}
	}

	width = max(wanMinSide, min(wanMaxSide, width))
	height = max(wanMinSide, min(wanMaxSide, height))
	return fmt.Sprintf("%d*%d", width, height), nil
}

func parseRatio(s string) (int, int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid aspect ratio %q", s)
	}
	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || w <= 0 {
		return 0, 0, fmt.Errorf("invalid aspect ratio %q", s)
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || h <= 0 {
		return 0, 0, fmt.Errorf("invalid aspect ratio %q", s)
	}
	return w, h, nil
}
