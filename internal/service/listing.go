package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"mediabatch/internal/core/domain"
	"mediabatch/internal/core/ports"
)

// ListingResolver turns a listing page into ordered item references.
type ListingResolver struct {
	extractor ports.Extractor
	logger    *slog.Logger
}

// NewListingResolver creates a new ListingResolver.
func NewListingResolver(extractor ports.Extractor, logger *slog.Logger) *ListingResolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ListingResolver{extractor: extractor, logger: logger}
}

// Resolve asks the extractor for exactly totalNeeded entries and returns at
// most that many references, numbered from 1. An empty listing is not an error.
func (r *ListingResolver) Resolve(ctx context.Context, listing domain.ListingReference, totalNeeded int) ([]domain.ItemReference, error) {
	if totalNeeded < 1 {
		return nil, fmt.Errorf("%w: totalNeeded must be positive", domain.ErrInvalidInput)
	}

	res, err := r.extractor.ResolveListing(ctx, listing.String(), totalNeeded)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %w", domain.ErrResolution, listing, err)
	}
	if res == nil {
		return nil, fmt.Errorf("%w: listing %s: extractor returned nothing", domain.ErrResolution, listing)
	}

	entries := res.Entries
	if !res.IsCollection {
		self := strings.TrimSpace(res.WebpageURL)
		if self == "" {
			self = listing.String()
		}
		entries = []string{self}
	}
	if len(entries) > totalNeeded {
		r.logger.Debug("listing over-returned, truncating",
			slog.String("listing_url", listing.String()),
			slog.Int("returned", len(entries)),
			slog.Int("requested", totalNeeded))
		entries = entries[:totalNeeded]
	}

	refs := make([]domain.ItemReference, 0, len(entries))
	for i, entry := range entries {
		refs = append(refs, domain.ItemReference{
			URL:            entry,
			GlobalIndex:    i + 1,
			PageLocalIndex: i + 1,
		})
	}
	return refs, nil
}
