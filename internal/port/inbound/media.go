package inbound

import (
	"context"

	"github.com/canvasflow/server/internal/model"
	"github.com/gin-gonic/gin"
)

// --- Request/Response Types ---

// GenerationInput is the JSON body of an image or video generation request.
// Media fields accept an absolute URL, a local content path or a data URI.
type GenerationInput struct {
	Model           string   `json:"model" binding:"required"`
	Prompt          string   `json:"prompt"`
	NegativePrompt  string   `json:"negative_prompt,omitempty"`
	AspectRatio     string   `json:"aspect_ratio,omitempty"`
	Resolution      string   `json:"resolution,omitempty"`
	Duration        int      `json:"duration,omitempty"`
	Variations      int      `json:"variations,omitempty"`
	CorrelationID   string   `json:"correlation_id,omitempty"`
	FirstFrame      string   `json:"first_frame,omitempty"`
	LastFrame       string   `json:"last_frame,omitempty"`
	ReferenceImages []string `json:"reference_images,omitempty"`
	MotionVideo     string   `json:"motion_video,omitempty"`
	SourceVideo     string   `json:"source_video,omitempty"`
}

// ToRequest converts the input into a generation request of the given kind.
func (in *GenerationInput) ToRequest(kind model.MediaKind) *model.GenerationRequest {
	req := &model.GenerationRequest{
		Kind:           kind,
		ModelID:        in.Model,
		Prompt:         in.Prompt,
		NegativePrompt: in.NegativePrompt,
		AspectRatio:    in.AspectRatio,
		Resolution:     in.Resolution,
		Duration:       in.Duration,
		Variations:     in.Variations,
		CorrelationID:  in.CorrelationID,
		Media: model.ReferenceMedia{
			FirstFrame:  refOf(in.FirstFrame),
			LastFrame:   refOf(in.LastFrame),
			MotionVideo: refOf(in.MotionVideo),
			SourceVideo: refOf(in.SourceVideo),
		},
	}
	for _, u := range in.ReferenceImages {
		if u != "" {
			req.Media.References = append(req.Media.References, model.MediaRef{URL: u})
		}
	}
	return req
}

func refOf(u string) *model.MediaRef {
	if u == "" {
		return nil
	}
	return &model.MediaRef{URL: u}
}

// --- Domain Interface ---

// MediaDomain defines the generation dispatch and recovery operations.
type MediaDomain interface {
	// GenerateImage dispatches an image generation and materializes its result.
	GenerateImage(ctx context.Context, req *model.GenerationRequest) (*model.GenerationOutput, error)

	// GenerateVideo dispatches a video generation and materializes its result.
	GenerateVideo(ctx context.Context, req *model.GenerationRequest) (*model.GenerationOutput, error)

	// CheckGenerationStatus reports whether a correlation id has a materialized result.
	CheckGenerationStatus(ctx context.Context, id string) (*model.StatusReport, error)

	// DeleteGeneration removes a record and its blob.
	DeleteGeneration(ctx context.Context, id string) error
}

// --- HTTP Handler Interface ---

// MediaHttpPort defines generation HTTP handlers.
type MediaHttpPort interface {
	// GenerateImage handles image generation requests.
	GenerateImage(c *gin.Context)

	// GenerateVideo handles video generation requests.
	GenerateVideo(c *gin.Context)

	// GetGenerationStatus handles status recovery requests.
	GetGenerationStatus(c *gin.Context)

	// DeleteGeneration handles deletion requests.
	DeleteGeneration(c *gin.Context)
}
