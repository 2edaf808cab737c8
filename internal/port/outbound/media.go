package outbound

import (
	"context"

	"github.com/canvasflow/server/internal/model"
)

// MediaVendorAdapterPort defines a generation provider adapter.
// Every adapter exposes the same contract whatever its completion protocol.
type MediaVendorAdapterPort interface {
	// Provider returns the provider kind served by the adapter.
	Provider() model.ProviderKind

	// Capabilities returns the modes supported per media kind.
	Capabilities() model.Capabilities

	// RequiredCredentials returns the credential names the adapter needs.
	RequiredCredentials() []string

	// SubmitImage runs an image generation to completion.
	SubmitImage(ctx context.Context, req *model.AdapterRequest) (*model.GenerationResult, error)

	// SubmitVideo runs a video generation to completion.
	SubmitVideo(ctx context.Context, req *model.AdapterRequest) (*model.GenerationResult, error)
}

// MediaVendorRegistryPort defines adapter lookup by provider kind.
type MediaVendorRegistryPort interface {
	// Register registers an adapter.
	Register(adapter MediaVendorAdapterPort)

	// Get returns the adapter for a provider.
	Get(provider model.ProviderKind) (MediaVendorAdapterPort, error)

	// All returns all registered adapters.
	All() []MediaVendorAdapterPort
}

// CredentialStorePort exposes per-provider key material by name.
type CredentialStorePort interface {
	// Lookup returns the credential and whether it is present.
	Lookup(ctx context.Context, name string) (string, bool)
}

// MediaNormalizerPort crops, resizes and re-encodes images for providers
// that require specific input dimensions.
type MediaNormalizerPort interface {
	Normalize(ctx context.Context, data []byte, aspectRatio, resolution string) (*model.NormalizedMedia, error)
}

// MediaLoaderPort turns a media ref into bytes.
type MediaLoaderPort interface {
	// Load resolves a single ref.
	Load(ctx context.Context, ref *model.MediaRef) (*model.LoadedMedia, error)

	// LoadAll resolves refs concurrently, preserving order.
	LoadAll(ctx context.Context, refs []model.MediaRef) ([]*model.LoadedMedia, error)
}

// PublicURLResolverPort turns a media ref into a publicly fetchable URL.
type PublicURLResolverPort interface {
	Resolve(ctx context.Context, ref *model.MediaRef) (string, error)
}

// DownloaderPort fetches provider result URLs.
type DownloaderPort interface {
	Download(ctx context.Context, url string) (*model.LoadedMedia, error)
}

// ContentStorePort persists content blobs and their sidecar records.
type ContentStorePort interface {
	// WriteBlob writes a content blob under the kind's directory.
	WriteBlob(ctx context.Context, kind model.MediaKind, filename string, data []byte) error

	// ReadBlob reads a content blob.
	ReadBlob(ctx context.Context, kind model.MediaKind, filename string) ([]byte, error)

	// DeleteBlob removes a content blob.
	DeleteBlob(ctx context.Context, kind model.MediaKind, filename string) error

	// WriteRecord writes the sidecar for a record, replacing any previous one.
	WriteRecord(ctx context.Context, record *model.GenerationRecord) error

	// ReadRecord reads a sidecar by id. Returns model.ErrRecordNotFound if absent.
	ReadRecord(ctx context.Context, kind model.MediaKind, id string) (*model.GenerationRecord, error)

	// DeleteRecord removes a sidecar by id.
	DeleteRecord(ctx context.Context, kind model.MediaKind, id string) error

	// ListRecords returns every sidecar of a kind.
	ListRecords(ctx context.Context, kind model.MediaKind) ([]*model.GenerationRecord, error)

	// ContentURL returns the stable URL a blob is served under.
	ContentURL(kind model.MediaKind, filename string) string

	// ParseContentURL maps a content URL or path back to its kind and filename.
	ParseContentURL(ref string) (model.MediaKind, string, bool)
}

// RecordIndexPort maps content filenames to their records.
type RecordIndexPort interface {
	// Put indexes a record by its filename.
	Put(ctx context.Context, record *model.GenerationRecord) error

	// Lookup returns the record for a filename. Returns model.ErrRecordNotFound if absent.
	Lookup(ctx context.Context, filename string) (*model.GenerationRecord, error)

	// Remove drops a filename from the index.
	Remove(ctx context.Context, filename string) error
}
