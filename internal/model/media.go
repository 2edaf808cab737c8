package model

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// MediaKind represents the kind of content a generation produces.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// Valid reports whether the kind is a known media kind.
func (k MediaKind) Valid() bool {
	return k == MediaKindImage || k == MediaKindVideo
}

// Dir returns the content directory name for the kind.
func (k MediaKind) Dir() string {
	if k == MediaKindVideo {
		return "videos"
	}
	return "images"
}

// MediaKinds lists every media kind in lookup order.
func MediaKinds() []MediaKind {
	return []MediaKind{MediaKindImage, MediaKindVideo}
}

// ProviderKind identifies one of the supported generation providers.
type ProviderKind string

const (
	ProviderGemini ProviderKind = "gemini"
	ProviderKling  ProviderKind = "kling"
	ProviderHailuo ProviderKind = "hailuo"
	ProviderOpenAI ProviderKind = "openai"
	ProviderFal    ProviderKind = "fal"
	ProviderKie    ProviderKind = "kie"
)

// ProviderKinds returns the closed set of provider kinds.
func ProviderKinds() []ProviderKind {
	return []ProviderKind{ProviderGemini, ProviderKling, ProviderHailuo, ProviderOpenAI, ProviderFal, ProviderKie}
}

// Valid reports whether the provider kind is part of the closed set.
func (p ProviderKind) Valid() bool {
	for _, k := range ProviderKinds() {
		if k == p {
			return true
		}
	}
	return false
}

// GenerationMode is the adapter mode selected from the populated reference media.
type GenerationMode string

const (
	ModeText               GenerationMode = "text"
	ModeSingleImage        GenerationMode = "single_image"
	ModeFrameInterpolation GenerationMode = "frame_interpolation"
	ModeReferences         GenerationMode = "references"
	ModeMotionControl      GenerationMode = "motion_control"
	ModeExtend             GenerationMode = "extend"
)

// Auto is the caller-level sentinel meaning "let the adapter pick".
const Auto = "auto"

// IsAuto reports whether a caller value should fall back to the adapter default.
func IsAuto(v string) bool {
	return v == "" || strings.EqualFold(v, Auto)
}

// MediaRef points at one media input. Exactly one of URL or Data is set.
// URL may be an absolute http(s) URL, a local content path or a data URI.
type MediaRef struct {
	URL      string `json:"url,omitempty"`
	Data     []byte `json:"-"`
	MimeType string `json:"mime_type,omitempty"`
}

// IsZero reports whether the ref carries nothing.
func (r *MediaRef) IsZero() bool {
	return r == nil || (r.URL == "" && len(r.Data) == 0)
}

// IsDataURI reports whether the ref is an inline data URI.
func (r *MediaRef) IsDataURI() bool {
	return r != nil && strings.HasPrefix(r.URL, "data:")
}

// IsRemote reports whether the ref is an absolute http(s) URL.
func (r *MediaRef) IsRemote() bool {
	return r != nil && (strings.HasPrefix(r.URL, "http://") || strings.HasPrefix(r.URL, "https://"))
}

// String renders the ref for logs without media bytes.
func (r *MediaRef) String() string {
	switch {
	case r.IsZero():
		return "<none>"
	case len(r.Data) > 0:
		return fmt.Sprintf("inline(%s, %d bytes)", r.MimeType, len(r.Data))
	case r.IsDataURI():
		return fmt.Sprintf("data-uri(%d chars)", len(r.URL))
	default:
		return r.URL
	}
}

// ReferenceMedia groups every optional conditioning input of a request.
type ReferenceMedia struct {
	FirstFrame  *MediaRef
	LastFrame   *MediaRef
	References  []MediaRef
	MotionVideo *MediaRef
	SourceVideo *MediaRef
}

// HasAny reports whether any reference field is populated.
func (m *ReferenceMedia) HasAny() bool {
	return !m.FirstFrame.IsZero() || !m.LastFrame.IsZero() || len(m.References) > 0 ||
		!m.MotionVideo.IsZero() || !m.SourceVideo.IsZero()
}

// SingleSource returns the image used by single-image modes: the first frame,
// else the only reference image.
func (m *ReferenceMedia) SingleSource() *MediaRef {
	if !m.FirstFrame.IsZero() {
		return m.FirstFrame
	}
	if len(m.References) > 0 {
		return &m.References[0]
	}
	return nil
}

// Ingredients returns the ordered images of references mode. A first frame leads the list.
func (m *ReferenceMedia) Ingredients() []MediaRef {
	out := make([]MediaRef, 0, len(m.References)+1)
	if !m.FirstFrame.IsZero() {
		out = append(out, *m.FirstFrame)
	}
	return append(out, m.References...)
}

// GenerationRequest is constructed per call and never persisted.
type GenerationRequest struct {
	Kind           MediaKind
	ModelID        string
	Prompt         string
	NegativePrompt string
	Media          ReferenceMedia
	AspectRatio    string
	Resolution     string
	Duration       int // seconds, 0 means Auto
	Variations     int
	CorrelationID  string
}

// VariationCount returns the requested variation count, at least one.
func (r *GenerationRequest) VariationCount() int {
	if r.Variations < 1 {
		return 1
	}
	return r.Variations
}

// ProviderTask is the handle of an in-flight asynchronous provider job.
type ProviderTask struct {
	TaskID      string
	Provider    ProviderKind
	SubmittedAt time.Time
}

// Asset is one generated output, either inline bytes or a fetchable URL.
type Asset struct {
	Data     []byte
	URL      string
	MimeType string
}

// GenerationResult is returned by an adapter and consumed by the materializer.
type GenerationResult struct {
	Assets []Asset
	// ProviderTaskID is set only when the provider can chain follow-on work from this result.
	ProviderTaskID string
}

// GenerationRecord is the durable sidecar written next to a content blob.
type GenerationRecord struct {
	ID             string    `json:"id"`
	Filename       string    `json:"filename"`
	Prompt         string    `json:"prompt"`
	ModelID        string    `json:"modelId"`
	AspectRatio    string    `json:"aspectRatio"`
	Resolution     string    `json:"resolution"`
	CreatedAt      time.Time `json:"createdAt"`
	Type           MediaKind `json:"type"`
	ProviderTaskID string    `json:"providerTaskId,omitempty"`
}

// GenerationStatus is the recovery status of a correlation id.
type GenerationStatus string

const (
	GenerationStatusPending   GenerationStatus = "pending"
	GenerationStatusSucceeded GenerationStatus = "succeeded"
)

// StatusReport answers a status recovery lookup.
type StatusReport struct {
	Status     GenerationStatus `json:"status"`
	ContentURL string           `json:"contentUrl,omitempty"`
	Type       MediaKind        `json:"type,omitempty"`
	CreatedAt  *time.Time       `json:"createdAt,omitempty"`
}

// GenerationOutput is returned to callers once a result is materialized.
type GenerationOutput struct {
	ID          string   `json:"id"`
	ContentURL  string   `json:"contentUrl"`
	ContentURLs []string `json:"contentUrls,omitempty"`
}

// Capabilities lists the modes an adapter supports per media kind.
type Capabilities map[MediaKind][]GenerationMode

// Supports reports whether the mode is available for the kind.
func (c Capabilities) Supports(kind MediaKind, mode GenerationMode) bool {
	for _, m := range c[kind] {
		if m == mode {
			return true
		}
	}
	return false
}

// Credentials holds resolved key material by credential name.
type Credentials map[string]string

// Get returns the named credential or an empty string.
func (c Credentials) Get(name string) string {
	return c[name]
}

// Credential names understood by the credential store.
const (
	CredentialGeminiAPIKey   = "gemini_api_key"
	CredentialKlingAccessKey = "kling_access_key"
	CredentialKlingSecretKey = "kling_secret_key"
	CredentialHailuoAPIKey   = "hailuo_api_key"
	CredentialOpenAIAPIKey   = "openai_api_key"
	CredentialFalAPIKey      = "fal_api_key"
	CredentialKieAPIKey      = "kie_api_key"
)

// AdapterRequest is what the dispatcher hands to a provider adapter.
type AdapterRequest struct {
	*GenerationRequest
	Mode        GenerationMode
	Credentials Credentials
	// SourceTaskID is the provider task a chained request continues from.
	SourceTaskID string
}

// NormalizedMedia is the output of the media normalizer.
type NormalizedMedia struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int
}

// LoadedMedia is a media ref resolved to bytes.
type LoadedMedia struct {
	Data     []byte
	MimeType string
}

// Base64 returns the standard base64 encoding of the bytes.
func (m *LoadedMedia) Base64() string {
	return base64.StdEncoding.EncodeToString(m.Data)
}

// DataURI returns the bytes as a base64 data URI.
func (m *LoadedMedia) DataURI() string {
	mime := m.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + m.Base64()
}

var generationIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidGenerationID reports whether id is usable as a record id and sidecar stem.
func ValidGenerationID(id string) bool {
	return generationIDPattern.MatchString(id)
}
