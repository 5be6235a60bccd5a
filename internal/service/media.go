package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"mediabatch/internal/core/domain"
	"mediabatch/internal/core/ports"
)

const (
	// DefaultPreferredFormat is the container favored by format selection.
	DefaultPreferredFormat = "mp4"

	defaultResolveAttempts = 3
	defaultRetryBackoff    = time.Second
)

// manifestProtocols cannot be fetched with a single streamed GET.
var manifestProtocols = map[string]bool{
	"m3u8":               true,
	"m3u8_native":        true,
	"http_dash_segments": true,
	"f4m":                true,
	"ism":                true,
	"mhtml":              true,
	"websocket_frag":     true,
}

// MediaResolver turns one item reference into a MediaDescriptor.
type MediaResolver struct {
	extractor       ports.Extractor
	preferredFormat string
	attempts        int
	backoff         time.Duration
	logger          *slog.Logger
}

// NewMediaResolver creates a resolver. attempts bounds extractor calls per item.
func NewMediaResolver(extractor ports.Extractor, preferredFormat string, attempts int, backoff time.Duration, logger *slog.Logger) *MediaResolver {
	if preferredFormat == "" {
		preferredFormat = DefaultPreferredFormat
	}
	if attempts <= 0 {
		attempts = defaultResolveAttempts
	}
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MediaResolver{
		extractor:       extractor,
		preferredFormat: preferredFormat,
		attempts:        attempts,
		backoff:         backoff,
		logger:          logger,
	}
}

// Resolve fetches item metadata, retrying extractor failures, and selects a transfer target.
func (r *MediaResolver) Resolve(ctx context.Context, item domain.ItemReference) (domain.MediaDescriptor, error) {
	if strings.TrimSpace(item.URL) == "" {
		return domain.MediaDescriptor{}, fmt.Errorf("%w: listing entry %d is unavailable", domain.ErrResolution, item.GlobalIndex)
	}
	info, err := r.resolveWithRetry(ctx, item)
	if err != nil {
		return domain.MediaDescriptor{}, err
	}

	desc := domain.MediaDescriptor{
		StableID:        strings.TrimSpace(info.ID),
		DurationSeconds: info.Duration,
	}
	if desc.StableID == "" {
		desc.StableID = fmt.Sprintf("video%03d", item.PageLocalIndex)
	}
	if title := strings.TrimSpace(info.Title); title != "" {
		desc.Title = &title
	}

	// The extractor already picked a single direct format.
	if info.URL != "" && info.Ext != "" {
		desc.TransferURL = info.URL
		desc.ContainerFormat = info.Ext
		return desc, nil
	}

	format, err := SelectFormat(info.Formats, r.preferredFormat)
	if err != nil {
		return domain.MediaDescriptor{}, fmt.Errorf("%s: %w", item.URL, err)
	}
	desc.TransferURL = format.URL
	desc.ContainerFormat = format.Ext
	return desc, nil
}

func (r *MediaResolver) resolveWithRetry(ctx context.Context, item domain.ItemReference) (*ports.MediaInfo, error) {
	var lastErr error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			// Backoff delay
			delay := time.Duration(1<<uint(attempt-1)) * r.backoff
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %s: %w", domain.ErrResolution, item.URL, ctx.Err())
			}
			r.logger.Debug("retrying media resolution",
				slog.String("item_reference", item.URL),
				slog.Int("attempt", attempt+1))
		}

		info, err := r.extractor.ResolveMedia(ctx, item.URL)
		if err == nil && info != nil {
			return info, nil
		}
		if err == nil {
			err = errors.New("extractor returned nothing")
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%w: %s: %w", domain.ErrResolution, item.URL, lastErr)
}

// SelectFormat picks the best candidate: preferred-container formats with a
// usable URL, else any format with a usable URL, ordered by height then
// bitrate, both descending, ties kept in encounter order.
func SelectFormat(formats []ports.Format, preferred string) (ports.Format, error) {
	var usable, matching []ports.Format
	for _, f := range formats {
		if !isUsable(f) {
			continue
		}
		usable = append(usable, f)
		if strings.EqualFold(f.Ext, preferred) {
			matching = append(matching, f)
		}
	}

	candidates := matching
	if len(candidates) == 0 {
		candidates = usable
	}
	if len(candidates) == 0 {
		return ports.Format{}, domain.ErrNoUsableEncoding
	}

	slices.SortStableFunc(candidates, func(a, b ports.Format) int {
		if c := cmp.Compare(b.Height, a.Height); c != 0 {
			return c
		}
		return cmp.Compare(b.Bitrate, a.Bitrate)
	})
	return candidates[0], nil
}

func isUsable(f ports.Format) bool {
	u := strings.TrimSpace(f.URL)
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return false
	}
	return !manifestProtocols[strings.ToLower(f.Protocol)]
}
