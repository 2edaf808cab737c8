package mediaprovider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canvasflow/server/internal/model"
)

func TestValueTable_Lookup(t *testing.T) {
	tables := map[string]valueTable{
		"geminiAspect":    geminiAspect,
		"veoAspect":       veoAspect,
		"veoResolution":   veoResolution,
		"klingVideo":      klingVideoAspect,
		"klingImage":      klingImageAspect,
		"hailuo":          hailuoResolution,
		"openAISize":      openAISize,
		"openAIQuality":   openAIQuality,
		"falImageSize":    falImageSize,
		"kieGrokVideo":    kieGrokVideoAspect,
		"kieVeoAspect":    kieVeoAspect,
		"dallEQuality":    dallEQuality,
		"hailuoImage":     hailuoImageAspect,
		"klingResolution": klingImageResolution,
	}

	for name, table := range tables {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, table.fallback, table.lookup(""))
			assert.Equal(t, table.fallback, table.lookup("auto"))
			assert.Equal(t, table.fallback, table.lookup("AUTO"))
			assert.Equal(t, table.fallback, table.lookup("not-a-value"))
		})
	}
}

func TestValueTable_CaseInsensitive(t *testing.T) {
	assert.Equal(t, "1080p", veoResolution.lookup("1080P"))
	assert.Equal(t, "768P", hailuoResolution.lookup("720p"))
	assert.Equal(t, "2K", geminiImageSize.lookup("2k"))
}

func TestVeoAspectMapping(t *testing.T) {
	assert.Equal(t, "16:9", veoAspect.lookup("1:1"))
	assert.Equal(t, "16:9", veoAspect.lookup("4:3"))
	assert.Equal(t, "9:16", veoAspect.lookup("3:4"))
	assert.Equal(t, "1080p", veoResolution.lookup("4k"))
}

func TestVeoDuration(t *testing.T) {
	tests := map[int]int{0: 8, 4: 4, 5: 8, 6: 6, 8: 8, 10: 8}
	for in, want := range tests {
		assert.Equal(t, want, veoDuration(in), "duration %d", in)
	}
}

func TestMapVeoParams(t *testing.T) {
	req := adapterRequest(model.MediaKindVideo, "veo-3-fast", model.ModeText, nil)
	req.Duration = 10
	p := mapVeoParams(req)
	assert.Equal(t, "veo-3.0-fast-generate-001", p.Model)
	assert.Equal(t, 8, p.Duration)
	assert.Equal(t, "16:9", p.AspectRatio)
	assert.Equal(t, "720p", p.Resolution)

	req = adapterRequest(model.MediaKindVideo, "veo-3-fast", model.ModeFrameInterpolation, nil)
	assert.Equal(t, veoTopModel, mapVeoParams(req).Model)

	req = adapterRequest(model.MediaKindVideo, "veo-2", model.ModeReferences, nil)
	req.AspectRatio = "9:16"
	req.Duration = 4
	p = mapVeoParams(req)
	assert.Equal(t, veoTopModel, p.Model)
	assert.Equal(t, "16:9", p.AspectRatio)
	assert.Equal(t, 8, p.Duration)

	req = adapterRequest(model.MediaKindVideo, "veo-3.1", model.ModeText, nil)
	req.Resolution = "1080p"
	req.Duration = 4
	p = mapVeoParams(req)
	assert.Equal(t, "1080p", p.Resolution)
	assert.Equal(t, 8, p.Duration)
}

func TestMapVeoParams_AutoIsIdempotent(t *testing.T) {
	auto := adapterRequest(model.MediaKindVideo, "veo-3.1", model.ModeText, nil)
	auto.AspectRatio = "auto"
	auto.Resolution = "auto"
	first := mapVeoParams(auto)

	again := adapterRequest(model.MediaKindVideo, "veo-3.1", model.ModeText, nil)
	again.AspectRatio = first.AspectRatio
	again.Resolution = first.Resolution
	again.Duration = first.Duration
	assert.Equal(t, first, mapVeoParams(again))
}

func TestKlingMode(t *testing.T) {
	tests := []struct {
		name       string
		modelID    string
		mode       model.GenerationMode
		resolution string
		want       string
	}{
		{"text std", "kling-v2-1", model.ModeText, "", klingModeStd},
		{"1080p pro", "kling-v2-1", model.ModeText, "1080p", klingModePro},
		{"interpolation pro", "kling-v2-1", model.ModeFrameInterpolation, "720p", klingModePro},
		{"motion pro", "kling-motion-control", model.ModeMotionControl, "", klingModePro},
		{"master pro", "kling-v2-1-master", model.ModeText, "", klingModePro},
		{"turbo pro", "kling-v2-5-turbo", model.ModeSingleImage, "720p", klingModePro},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := adapterRequest(model.MediaKindVideo, tt.modelID, tt.mode, nil)
			req.Resolution = tt.resolution
			assert.Equal(t, tt.want, klingMode(req))
		})
	}
}

func TestKlingDuration(t *testing.T) {
	assert.Equal(t, "5", klingDuration(0))
	assert.Equal(t, "5", klingDuration(5))
	assert.Equal(t, "10", klingDuration(6))
	assert.Equal(t, "10", klingDuration(10))
}

func TestKlingEndpoint(t *testing.T) {
	tests := []struct {
		kind model.MediaKind
		mode model.GenerationMode
		want string
	}{
		{model.MediaKindVideo, model.ModeText, "/v1/videos/text2video"},
		{model.MediaKindVideo, model.ModeSingleImage, "/v1/videos/image2video"},
		{model.MediaKindVideo, model.ModeFrameInterpolation, "/v1/videos/image2video"},
		{model.MediaKindVideo, model.ModeReferences, "/v1/videos/multi-image2video"},
		{model.MediaKindImage, model.ModeText, "/v1/images/generations"},
		{model.MediaKindImage, model.ModeSingleImage, "/v1/images/generations"},
		{model.MediaKindImage, model.ModeReferences, "/v1/images/multi-image2image"},
	}
	for _, tt := range tests {
		got, ok := klingEndpoint(tt.kind, tt.mode)
		require.True(t, ok)
		assert.Equal(t, tt.want, got)
	}

	_, ok := klingEndpoint(model.MediaKindImage, model.ModeFrameInterpolation)
	assert.False(t, ok)
}

func TestMapHailuoVideo(t *testing.T) {
	req := adapterRequest(model.MediaKindVideo, "hailuo-2.3", model.ModeFrameInterpolation, nil)
	req.Resolution = "768p"
	req.Duration = 10
	p := mapHailuoVideo(req)
	assert.Equal(t, hailuoInterpolationModel, p.Model)
	assert.Equal(t, "1080P", p.Resolution)
	assert.Equal(t, 6, p.Duration)

	req = adapterRequest(model.MediaKindVideo, "hailuo-02", model.ModeText, nil)
	req.Duration = 10
	p = mapHailuoVideo(req)
	assert.Equal(t, "768P", p.Resolution)
	assert.Equal(t, 10, p.Duration)

	req = adapterRequest(model.MediaKindVideo, "hailuo-02", model.ModeText, nil)
	req.Resolution = "1080p"
	req.Duration = 10
	p = mapHailuoVideo(req)
	assert.Equal(t, 6, p.Duration)

	req = adapterRequest(model.MediaKindVideo, "hailuo-2.3-fast", model.ModeText, nil)
	assert.Equal(t, hailuoStandardModel, mapHailuoVideo(req).Model)

	req = adapterRequest(model.MediaKindVideo, "hailuo-2.3-fast", model.ModeSingleImage, nil)
	assert.Equal(t, hailuoFastModel, mapHailuoVideo(req).Model)
}

func TestMapKieVeo(t *testing.T) {
	req := adapterRequest(model.MediaKindVideo, "kie-veo3-fast", model.ModeText, nil)
	p := mapKieVeo(req)
	assert.Equal(t, "veo3_fast", p.Model)
	assert.Equal(t, kieTextToVideo, p.GenerationType)

	req = adapterRequest(model.MediaKindVideo, "kie-veo3-fast", model.ModeFrameInterpolation, nil)
	p = mapKieVeo(req)
	assert.Equal(t, "veo3", p.Model)
	assert.Equal(t, kieFramesToVideo, p.GenerationType)

	req = adapterRequest(model.MediaKindVideo, "kie-veo3", model.ModeReferences, nil)
	req.AspectRatio = "9:16"
	p = mapKieVeo(req)
	assert.Equal(t, "veo3_fast", p.Model)
	assert.Equal(t, "16:9", p.AspectRatio)
	assert.Equal(t, kieReferenceToVideo, p.GenerationType)
}

func TestFalEndpoint(t *testing.T) {
	endpoint, _, err := falEndpoint("fal-kling-video", model.MediaKindVideo, model.ModeFrameInterpolation)
	require.NoError(t, err)
	assert.Contains(t, endpoint, "/pro/")

	endpoint, _, err = falEndpoint("fal-kling-video", model.MediaKindVideo, model.ModeText)
	require.NoError(t, err)
	assert.Equal(t, "fal-ai/kling-video/v2.1/standard/text-to-video", endpoint)

	_, _, err = falEndpoint("fal-flux-pro", model.MediaKindImage, model.ModeReferences)
	assert.ErrorIs(t, err, model.ErrUnsupportedCombination)

	_, _, err = falEndpoint("fal-flux-dev", model.MediaKindVideo, model.ModeText)
	assert.ErrorIs(t, err, model.ErrUnsupportedCombination)

	_, _, err = falEndpoint("fal-unknown", model.MediaKindImage, model.ModeText)
	assert.ErrorIs(t, err, model.ErrUnsupportedCombination)
}

func TestKieMarketModel(t *testing.T) {
	m, ok := kieMarketModel(kieFamilyGrok, model.MediaKindImage, model.ModeSingleImage)
	require.True(t, ok)
	assert.Equal(t, "grok-imagine/image-to-image", m)

	m, ok = kieMarketModel(kieFamilyGrok, model.MediaKindVideo, model.ModeText)
	require.True(t, ok)
	assert.Equal(t, "grok-imagine/text-to-video", m)

	_, ok = kieMarketModel(kieFamilyGrok, model.MediaKindImage, model.ModeReferences)
	assert.False(t, ok)

	m, ok = kieMarketModel(kieFamilyNanoBanana, model.MediaKindImage, model.ModeReferences)
	require.True(t, ok)
	assert.Equal(t, "google/nano-banana-edit", m)
}

func TestBuildOpenAIImageRequest(t *testing.T) {
	req := adapterRequest(model.MediaKindImage, "gpt-image-1", model.ModeText, nil)
	req.AspectRatio = "16:9"
	req.Resolution = "2k"
	req.Variations = 3
	body := buildOpenAIImageRequest(req)
	assert.Equal(t, "1536x1024", body.Size)
	assert.Equal(t, "high", body.Quality)
	assert.Equal(t, 3, body.N)
	assert.Empty(t, body.ResponseFormat)

	req = adapterRequest(model.MediaKindImage, "dall-e-3", model.ModeText, nil)
	req.Variations = 4
	body = buildOpenAIImageRequest(req)
	assert.Equal(t, 1, body.N)
	assert.Equal(t, "b64_json", body.ResponseFormat)
	assert.Equal(t, "standard", body.Quality)
}
