package media

import (
	"fmt"
	"sort"
	"strings"

	"github.com/canvasflow/server/internal/model"
)

// Variant marks routes that lead to a dedicated sub-flow of a provider.
type Variant string

const (
	VariantDefault       Variant = ""
	VariantExtend        Variant = "extend"
	VariantMotionControl Variant = "motion_control"
)

// Route maps a model id pattern to a provider.
type Route struct {
	Pattern  string
	Exact    bool
	Provider model.ProviderKind
	Variant  Variant
}

// DefaultRoutes returns the routing table for the supported providers.
func DefaultRoutes() []Route {
	return []Route{
		{Pattern: "kie-veo3-extend", Exact: true, Provider: model.ProviderKie, Variant: VariantExtend},
		{Pattern: "kling-motion-control", Exact: true, Provider: model.ProviderKling, Variant: VariantMotionControl},
		{Pattern: "gemini-", Provider: model.ProviderGemini},
		{Pattern: "veo-", Provider: model.ProviderGemini},
		{Pattern: "kling-", Provider: model.ProviderKling},
		{Pattern: "hailuo-", Provider: model.ProviderHailuo},
		{Pattern: "gpt-image-", Provider: model.ProviderOpenAI},
		{Pattern: "dall-e-", Provider: model.ProviderOpenAI},
		{Pattern: "fal-", Provider: model.ProviderFal},
		{Pattern: "kie-", Provider: model.ProviderKie},
		{Pattern: "grok-imagine", Provider: model.ProviderKie},
	}
}

// RoutingTable resolves model ids. Exact patterns win over prefixes,
// and among prefixes the longest match wins.
type RoutingTable struct {
	exact    map[string]Route
	prefixes []Route
}

// NewRoutingTable validates routes and builds a table. Duplicate patterns,
// unknown providers, and a prefix that shadows another provider's prefix are rejected.
func NewRoutingTable(routes []Route) (*RoutingTable, error) {
	t := &RoutingTable{exact: make(map[string]Route)}
	seen := make(map[string]bool)

	for _, r := range routes {
		if r.Pattern == "" {
			return nil, fmt.Errorf("route for %s has an empty pattern", r.Provider)
		}
		if !r.Provider.Valid() {
			return nil, fmt.Errorf("route %q names unknown provider %q", r.Pattern, r.Provider)
		}
		key := fmt.Sprintf("%t:%s", r.Exact, r.Pattern)
		if seen[key] {
			return nil, fmt.Errorf("duplicate route %q", r.Pattern)
		}
		seen[key] = true

		if r.Exact {
			t.exact[r.Pattern] = r
			continue
		}
		for _, other := range t.prefixes {
			if other.Provider == r.Provider {
				continue
			}
			if strings.HasPrefix(r.Pattern, other.Pattern) || strings.HasPrefix(other.Pattern, r.Pattern) {
				return nil, fmt.Errorf("route %q (%s) shadows %q (%s)", r.Pattern, r.Provider, other.Pattern, other.Provider)
			}
		}
		t.prefixes = append(t.prefixes, r)
	}

	sort.SliceStable(t.prefixes, func(i, j int) bool {
		return len(t.prefixes[i].Pattern) > len(t.prefixes[j].Pattern)
	})
	return t, nil
}

// Match returns the route for a model id.
func (t *RoutingTable) Match(modelID string) (Route, error) {
	if r, ok := t.exact[modelID]; ok {
		return r, nil
	}
	for _, r := range t.prefixes {
		if strings.HasPrefix(modelID, r.Pattern) {
			return r, nil
		}
	}
	return Route{}, fmt.Errorf("%w: no provider serves model %q", model.ErrUnsupportedProvider, modelID)
}

// SelectMode picks the generation mode from the populated reference fields.
// Incompatible combinations are rejected before any priority applies:
// motion control, then frame interpolation, then references, then single image, then text.
func SelectMode(req *model.GenerationRequest, route Route) (model.GenerationMode, error) {
	m := &req.Media
	hasFirst := !m.FirstFrame.IsZero()
	hasLast := !m.LastFrame.IsZero()
	hasMotion := !m.MotionVideo.IsZero()
	hasSource := !m.SourceVideo.IsZero()
	refs := len(m.References)

	if route.Variant == VariantExtend {
		switch {
		case req.Kind != model.MediaKindVideo:
			return "", model.UnsupportedCombination("%s only produces video", route.Pattern)
		case !hasSource:
			return "", model.UnsupportedCombination("%s requires source_video", route.Pattern)
		case hasFirst || hasLast || hasMotion || refs > 0:
			return "", model.UnsupportedCombination("source_video cannot be combined with other reference media")
		}
		return model.ModeExtend, nil
	}
	if hasSource {
		return "", model.UnsupportedCombination("source_video is only accepted by the extend model")
	}

	if req.Kind == model.MediaKindImage {
		if hasMotion {
			return "", model.UnsupportedCombination("motion_video requires a video request")
		}
		if hasLast {
			return "", model.UnsupportedCombination("last_frame requires a video request")
		}
	}
	if hasLast && !hasFirst {
		return "", model.UnsupportedCombination("last_frame requires first_frame")
	}
	if hasLast && refs > 0 {
		return "", model.UnsupportedCombination("last_frame cannot be combined with reference_images")
	}

	if route.Variant == VariantMotionControl && !hasMotion {
		return "", model.UnsupportedCombination("%s requires motion_video", route.Pattern)
	}
	if hasMotion {
		switch {
		case route.Variant != VariantMotionControl:
			return "", model.UnsupportedCombination("motion_video is not accepted by %s", req.ModelID)
		case hasLast:
			return "", model.UnsupportedCombination("motion_video cannot be combined with last_frame")
		case refs >= 2:
			return "", model.UnsupportedCombination("motion_video cannot be combined with multiple reference_images")
		case !hasFirst && refs != 1:
			return "", model.UnsupportedCombination("motion_video requires a character image in first_frame or reference_images")
		}
		return model.ModeMotionControl, nil
	}

	switch {
	case hasFirst && hasLast:
		return model.ModeFrameInterpolation, nil
	case len(m.Ingredients()) >= 2:
		return model.ModeReferences, nil
	case m.SingleSource() != nil:
		return model.ModeSingleImage, nil
	default:
		return model.ModeText, nil
	}
}
