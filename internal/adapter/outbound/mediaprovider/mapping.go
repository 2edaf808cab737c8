package mediaprovider

import (
	"strings"

	"github.com/canvasflow/server/internal/model"
)

// valueTable maps caller-level values to provider-accepted values.
// Auto and unmapped values resolve to fallback.
type valueTable struct {
	values   map[string]string
	fallback string
}

func (t valueTable) lookup(v string) string {
	if model.IsAuto(v) {
		return t.fallback
	}
	if pv, ok := t.values[strings.ToLower(strings.TrimSpace(v))]; ok {
		return pv
	}
	return t.fallback
}

// Gemini / Veo.
var (
	geminiAspect = valueTable{
		values: map[string]string{
			"1:1": "1:1", "2:3": "2:3", "3:2": "3:2", "3:4": "3:4", "4:3": "4:3",
			"4:5": "4:5", "5:4": "5:4", "9:16": "9:16", "16:9": "16:9", "21:9": "21:9",
		},
		fallback: "1:1",
	}
	geminiImageSize = valueTable{
		values:   map[string]string{"1k": "1K", "2k": "2K", "4k": "4K"},
		fallback: "1K",
	}
	veoAspect = valueTable{
		values:   map[string]string{"16:9": "16:9", "9:16": "9:16", "1:1": "16:9", "4:3": "16:9", "3:4": "9:16"},
		fallback: "16:9",
	}
	veoResolution = valueTable{
		values:   map[string]string{"720p": "720p", "1080p": "1080p", "4k": "1080p"},
		fallback: "720p",
	}
	veoModels = map[string]string{
		"veo-3.1":      "veo-3.1-generate-preview",
		"veo-3.1-fast": "veo-3.1-fast-generate-preview",
		"veo-3":        "veo-3.0-generate-001",
		"veo-3-fast":   "veo-3.0-fast-generate-001",
		"veo-2":        "veo-2.0-generate-001",
	}
)

// veoTopModel supports last frames and reference images.
const veoTopModel = "veo-3.1-generate-preview"

// veoDuration keeps 4, 6 and 8 seconds and snaps everything else to 8.
func veoDuration(seconds int) int {
	switch seconds {
	case 4, 6, 8:
		return seconds
	default:
		return 8
	}
}

// Kling.
var (
	klingVideoAspect = valueTable{
		values:   map[string]string{"16:9": "16:9", "9:16": "9:16", "1:1": "1:1"},
		fallback: "16:9",
	}
	klingImageAspect = valueTable{
		values: map[string]string{
			"16:9": "16:9", "9:16": "9:16", "1:1": "1:1", "4:3": "4:3",
			"3:4": "3:4", "3:2": "3:2", "2:3": "2:3", "21:9": "21:9",
		},
		fallback: "1:1",
	}
	klingImageResolution = valueTable{
		values:   map[string]string{"1k": "1k", "2k": "2k", "4k": "2k"},
		fallback: "1k",
	}
	// klingProOnly lists models that only run in pro mode.
	klingProOnly = map[string]bool{
		"kling-v2-1-master": true,
		"kling-v2-5-turbo":  true,
		"kling-v2-6":        true,
	}
)

const (
	klingModeStd = "std"
	klingModePro = "pro"
)

// klingDuration maps to Kling's 5 or 10 second clips.
func klingDuration(seconds int) string {
	if seconds > 5 {
		return "10"
	}
	return "5"
}

// Hailuo.
var (
	hailuoResolution = valueTable{
		values:   map[string]string{"512p": "512P", "720p": "768P", "768p": "768P", "1080p": "1080P"},
		fallback: "768P",
	}
	hailuoImageAspect = valueTable{
		values: map[string]string{
			"1:1": "1:1", "16:9": "16:9", "4:3": "4:3", "3:2": "3:2",
			"2:3": "2:3", "3:4": "3:4", "9:16": "9:16", "21:9": "21:9",
		},
		fallback: "1:1",
	}
	hailuoModels = map[string]string{
		"hailuo-02":       "MiniMax-Hailuo-02",
		"hailuo-2.3":      "MiniMax-Hailuo-2.3",
		"hailuo-2.3-fast": "MiniMax-Hailuo-2.3-Fast",
		"hailuo-image-01": "image-01",
	}
)

// hailuoInterpolationModel is the only Hailuo model accepting first and last frames.
const hailuoInterpolationModel = "MiniMax-Hailuo-02"

// OpenAI.
var (
	openAISize = valueTable{
		values: map[string]string{
			"1:1": "1024x1024", "16:9": "1536x1024", "3:2": "1536x1024", "4:3": "1536x1024",
			"9:16": "1024x1536", "2:3": "1024x1536", "3:4": "1024x1536",
		},
		fallback: "auto",
	}
	openAIQuality = valueTable{
		values:   map[string]string{"1k": "medium", "2k": "high", "4k": "high"},
		fallback: "auto",
	}
	dallESize = valueTable{
		values: map[string]string{
			"1:1": "1024x1024", "16:9": "1792x1024", "3:2": "1792x1024", "4:3": "1792x1024",
			"9:16": "1024x1792", "2:3": "1024x1792", "3:4": "1024x1792",
		},
		fallback: "1024x1024",
	}
	dallEQuality = valueTable{
		values:   map[string]string{"2k": "hd", "4k": "hd"},
		fallback: "standard",
	}
)

// Fal.
var (
	falImageSize = valueTable{
		values: map[string]string{
			"1:1": "square_hd", "16:9": "landscape_16_9", "9:16": "portrait_16_9",
			"4:3": "landscape_4_3", "3:4": "portrait_4_3",
		},
		fallback: "square_hd",
	}
	falAspect = valueTable{
		values:   map[string]string{"1:1": "1:1", "16:9": "16:9", "9:16": "9:16", "4:3": "4:3", "3:4": "3:4", "3:2": "3:2", "2:3": "2:3"},
		fallback: "1:1",
	}
	falVideoAspect = valueTable{
		values:   map[string]string{"16:9": "16:9", "9:16": "9:16", "1:1": "1:1"},
		fallback: "16:9",
	}
)

// falDuration maps to the 5 or 10 second clips of Fal video endpoints.
func falDuration(seconds int) string {
	if seconds > 5 {
		return "10"
	}
	return "5"
}

// Kie.
var (
	kieGrokImageAspect = valueTable{
		values:   map[string]string{"2:3": "2:3", "3:2": "3:2", "1:1": "1:1", "9:16": "9:16", "16:9": "16:9"},
		fallback: "1:1",
	}
	kieGrokVideoAspect = valueTable{
		values:   map[string]string{"2:3": "2:3", "3:2": "3:2", "1:1": "1:1", "9:16": "9:16", "16:9": "16:9"},
		fallback: "16:9",
	}
	kieVeoAspect = valueTable{
		values:   map[string]string{"16:9": "16:9", "9:16": "9:16"},
		fallback: "16:9",
	}
	kieVeoModels = map[string]string{
		"kie-veo3":      "veo3",
		"kie-veo3-fast": "veo3_fast",
	}
)

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
