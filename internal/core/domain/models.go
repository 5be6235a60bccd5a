package domain

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"
)

// DeliveryMode selects how transferred media reaches the object store.
type DeliveryMode string

const (
	// DeliveryDirect streams each item from origin straight into the object store.
	DeliveryDirect DeliveryMode = "direct"
	// DeliveryArchive stages items locally, packs them into one zip and uploads that.
	DeliveryArchive DeliveryMode = "archive"
)

// ParseDeliveryMode maps user input to a DeliveryMode. Empty input yields fallback.
func ParseDeliveryMode(raw string, fallback DeliveryMode) (DeliveryMode, error) {
	switch DeliveryMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		return fallback, nil
	case DeliveryDirect:
		return DeliveryDirect, nil
	case DeliveryArchive:
		return DeliveryArchive, nil
	}
	return "", fmt.Errorf("%w: unknown delivery mode %q", ErrInvalidInput, raw)
}

// ListingReference is a validated absolute http(s) URL of a collection page.
type ListingReference struct {
	raw string
}

// NewListingReference validates raw and returns an immutable reference.
func NewListingReference(raw string) (ListingReference, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ListingReference{}, fmt.Errorf("%w: listing_url is required", ErrInvalidInput)
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return ListingReference{}, fmt.Errorf("%w: listing_url is not a valid URL: %v", ErrInvalidInput, err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ListingReference{}, fmt.Errorf("%w: listing_url must be an absolute http(s) URL", ErrInvalidInput)
	}
	return ListingReference{raw: trimmed}, nil
}

// String returns the URL.
func (l ListingReference) String() string { return l.raw }

// PageWindow selects one slice of a listing. PageIndex is 1-based.
type PageWindow struct {
	PageSize  int `json:"page_size"`
	PageIndex int `json:"page_index"`
}

// WindowLimits are the deployment caps on a requested window.
type WindowLimits struct {
	// MaxPageSize caps PageSize.
	MaxPageSize int
	// MaxListingItems caps TotalNeeded, the number of entries the listing
	// must enumerate. Zero means only int overflow is rejected.
	MaxListingItems int
}

// NewPageWindow validates size and index against limits.
func NewPageWindow(pageSize, pageIndex int, limits WindowLimits) (PageWindow, error) {
	if pageSize < 1 || pageSize > limits.MaxPageSize {
		return PageWindow{}, fmt.Errorf("%w: page_size must be between 1 and %d", ErrInvalidInput, limits.MaxPageSize)
	}
	if pageIndex < 1 {
		return PageWindow{}, fmt.Errorf("%w: page_index must be >= 1", ErrInvalidInput)
	}
	maxItems := limits.MaxListingItems
	if maxItems <= 0 {
		maxItems = math.MaxInt
	}
	if pageIndex > maxItems/pageSize {
		return PageWindow{}, fmt.Errorf("%w: page_index must be <= %d for page_size %d", ErrInvalidInput, maxItems/pageSize, pageSize)
	}
	return PageWindow{PageSize: pageSize, PageIndex: pageIndex}, nil
}

// Offset is the number of listing entries preceding the window.
func (w PageWindow) Offset() int { return (w.PageIndex - 1) * w.PageSize }

// TotalNeeded is the number of entries the listing must yield to cover the window.
func (w PageWindow) TotalNeeded() int { return w.PageIndex * w.PageSize }

// Slice returns the part of refs covered by the window, with indices renumbered.
// refs are expected to start at global index 1.
func (w PageWindow) Slice(refs []ItemReference) []ItemReference {
	start := w.Offset()
	if start >= len(refs) {
		return nil
	}
	end := min(start+w.PageSize, len(refs))
	out := make([]ItemReference, 0, end-start)
	for i, ref := range refs[start:end] {
		out = append(out, ItemReference{
			URL:            ref.URL,
			GlobalIndex:    start + i + 1,
			PageLocalIndex: i + 1,
		})
	}
	return out
}

// ItemReference locates one listing entry.
type ItemReference struct {
	URL            string `json:"item_reference"`
	GlobalIndex    int    `json:"global_index"`
	PageLocalIndex int    `json:"page_local_index"`
}

// MediaDescriptor is a resolved, directly fetchable transfer target.
// TransferURL may expire quickly and must not be cached.
type MediaDescriptor struct {
	TransferURL     string
	ContainerFormat string
	StableID        string
	Title           *string
	DurationSeconds *float64
}

// ItemResult is the outcome of one attempted item. Optional fields are only set on success.
type ItemResult struct {
	GlobalIndex     int      `json:"global_index"`
	PageLocalIndex  int      `json:"page_local_index"`
	ItemReference   string   `json:"item_reference"`
	Success         bool     `json:"success"`
	Error           *string  `json:"error"`
	StorageKey      *string  `json:"storage_key"`
	PublicURL       *string  `json:"public_url"`
	Title           *string  `json:"title"`
	DurationSeconds *float64 `json:"duration_seconds"`
}

// JobState is the terminal state of a job that produced at least one item.
type JobState string

const (
	JobCompletedFull    JobState = "completed-full"
	JobCompletedPartial JobState = "completed-partial"
)

// ArchiveResult describes the uploaded archive in archive delivery mode.
type ArchiveResult struct {
	StorageKey  string `json:"storage_key"`
	PublicURL   string `json:"public_url"`
	MemberCount int    `json:"member_count"`
}

// JobResult aggregates all item outcomes of one job.
type JobResult struct {
	JobID          string         `json:"job_id"`
	ListingURL     string         `json:"listing_url"`
	PageIndex      int            `json:"page_index"`
	PageSize       int            `json:"page_size"`
	Mode           DeliveryMode   `json:"mode"`
	State          JobState       `json:"state"`
	SuccessCount   int            `json:"success_count"`
	TotalAttempted int            `json:"total_attempted"`
	Items          []ItemResult   `json:"items"`
	Archive        *ArchiveResult `json:"archive,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    time.Time      `json:"completed_at"`
}

// ListResult is the outcome of a list-only request.
type ListResult struct {
	ListingURL string          `json:"listing_url"`
	PageIndex  int             `json:"page_index"`
	PageSize   int             `json:"page_size"`
	Items      []ItemReference `json:"items"`
}
