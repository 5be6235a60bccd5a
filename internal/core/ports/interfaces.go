//go:generate mockgen -destination=../../mocks/ports.go -package=mocks . Extractor,ObjectStore

package ports

import (
	"context"
	"io"
	"os"
)

// Listing is what the extractor reports for a listing page.
type Listing struct {
	// IsCollection is false when the URL already points at a single item.
	IsCollection bool
	// WebpageURL is the canonical URL of the page itself.
	WebpageURL string
	// Entries are item page URLs in listing order. An empty string marks an
	// unavailable entry; it still occupies its position.
	Entries []string
}

// Format is one candidate encoding of a media item.
type Format struct {
	FormatID string
	URL      string
	Ext      string
	Protocol string
	Height   int
	Bitrate  float64 // kbit/s
}

// MediaInfo is the raw item metadata reported by the extractor.
type MediaInfo struct {
	ID       string
	Title    string
	Duration *float64
	// URL and Ext are set when the extractor already picked a single direct format.
	URL     string
	Ext     string
	Formats []Format
}

// Extractor defines the contract of the listing/media extraction capability.
type Extractor interface {
	// ResolveListing enumerates at most limit item URLs of the listing page.
	ResolveListing(ctx context.Context, listingURL string, limit int) (*Listing, error)

	// ResolveMedia fetches metadata and candidate encodings for one item page.
	ResolveMedia(ctx context.Context, itemURL string) (*MediaInfo, error)
}

// Stream is an open origin transfer. The caller must close Body.
type Stream struct {
	Body        io.ReadCloser
	Size        int64 // -1 when unknown
	ContentType string
}

// Downloader defines the contract for opening media transfers.
type Downloader interface {
	// Download opens a streamed read of the given transfer URL.
	Download(ctx context.Context, transferURL string) (*Stream, error)
}

// ObjectStore defines the contract for the durable blob store.
type ObjectStore interface {
	// Put streams r under key, overwriting any previous object, and returns its public URL.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)

	// PutFile uploads a local file under key and returns its public URL.
	PutFile(ctx context.Context, key, path, contentType string) (string, error)

	// Remove deletes the object at key. Missing objects are not an error.
	Remove(ctx context.Context, key string) error

	// PublicURL derives the public locator for key without a round trip.
	PublicURL(key string) string
}

// StagingArea is one job's exclusive local scratch space.
type StagingArea interface {
	// Dir is the directory holding staged item files.
	Dir() string

	// ArchivePath is where the job's archive is written.
	ArchivePath() string

	// Create opens a new file named name inside Dir and registers it for cleanup.
	Create(name string) (*os.File, error)

	// Discard removes one staged file.
	Discard(path string) error

	// Close removes every staged file, the directory and the archive.
	Close() error
}

// Storage defines the contract for creating job staging areas.
type Storage interface {
	// InitJob creates the staging area for jobID.
	InitJob(ctx context.Context, jobID string) (StagingArea, error)
}

// Packager defines the contract for archive creation.
type Packager interface {
	// Pack writes every regular file under srcDir into archivePath and returns the member count.
	Pack(ctx context.Context, srcDir, archivePath string) (int, error)
}
