package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"mediabatch/internal/core/domain"
	"mediabatch/internal/core/ports"
	"mediabatch/internal/mocks"
)

func mustListing(t *testing.T, raw string) domain.ListingReference {
	t.Helper()
	ref, err := domain.NewListingReference(raw)
	require.NoError(t, err)
	return ref
}

func TestListingResolver_RequestsExactlyTotalNeededAndTruncates(t *testing.T) {
	ctrl := gomock.NewController(t)
	ext := mocks.NewMockExtractor(ctrl)
	ext.EXPECT().ResolveListing(gomock.Any(), "https://m.example.com/list", 2).Return(&ports.Listing{
		IsCollection: true,
		Entries:      []string{"https://m.example.com/1", "https://m.example.com/2", "https://m.example.com/3"},
	}, nil)

	refs, err := NewListingResolver(ext, nil).Resolve(context.Background(), mustListing(t, "https://m.example.com/list"), 2)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, domain.ItemReference{URL: "https://m.example.com/2", GlobalIndex: 2, PageLocalIndex: 2}, refs[1])
}

func TestListingResolver_UnavailableEntriesKeepPosition(t *testing.T) {
	ctrl := gomock.NewController(t)
	ext := mocks.NewMockExtractor(ctrl)
	ext.EXPECT().ResolveListing(gomock.Any(), gomock.Any(), 3).Return(&ports.Listing{
		IsCollection: true,
		Entries:      []string{"https://m.example.com/1", "", "https://m.example.com/3"},
	}, nil)

	refs, err := NewListingResolver(ext, nil).Resolve(context.Background(), mustListing(t, "https://m.example.com/list"), 3)
	require.NoError(t, err)
	assert.Equal(t, []domain.ItemReference{
		{URL: "https://m.example.com/1", GlobalIndex: 1, PageLocalIndex: 1},
		{URL: "", GlobalIndex: 2, PageLocalIndex: 2},
		{URL: "https://m.example.com/3", GlobalIndex: 3, PageLocalIndex: 3},
	}, refs)
}

func TestListingResolver_SingleItemPage(t *testing.T) {
	ctrl := gomock.NewController(t)
	ext := mocks.NewMockExtractor(ctrl)
	ext.EXPECT().ResolveListing(gomock.Any(), gomock.Any(), 5).Return(&ports.Listing{
		IsCollection: false,
		WebpageURL:   "https://m.example.com/watch/abc",
	}, nil)

	refs, err := NewListingResolver(ext, nil).Resolve(context.Background(), mustListing(t, "https://m.example.com/watch/abc?t=1"), 5)
	require.NoError(t, err)
	assert.Equal(t, []domain.ItemReference{{URL: "https://m.example.com/watch/abc", GlobalIndex: 1, PageLocalIndex: 1}}, refs)
}

func TestListingResolver_EmptyIsNotAnError(t *testing.T) {
	ctrl := gomock.NewController(t)
	ext := mocks.NewMockExtractor(ctrl)
	ext.EXPECT().ResolveListing(gomock.Any(), gomock.Any(), gomock.Any()).Return(&ports.Listing{IsCollection: true}, nil)

	refs, err := NewListingResolver(ext, nil).Resolve(context.Background(), mustListing(t, "https://m.example.com/list"), 3)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestListingResolver_ExtractorFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	ext := mocks.NewMockExtractor(ctrl)
	ext.EXPECT().ResolveListing(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("unsupported URL"))

	_, err := NewListingResolver(ext, nil).Resolve(context.Background(), mustListing(t, "https://m.example.com/list"), 3)
	require.ErrorIs(t, err, domain.ErrResolution)
	assert.Contains(t, err.Error(), "unsupported URL")
}

func TestListingResolver_InvalidTotal(t *testing.T) {
	ctrl := gomock.NewController(t)
	ext := mocks.NewMockExtractor(ctrl)

	_, err := NewListingResolver(ext, nil).Resolve(context.Background(), mustListing(t, "https://m.example.com/list"), 0)
	require.ErrorIs(t, err, domain.ErrInvalidInput)
}
