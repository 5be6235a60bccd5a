package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"mediabatch/internal/core/domain"
	"mediabatch/internal/core/ports"
	"mediabatch/internal/mocks"
)

func TestSelectFormat(t *testing.T) {
	tests := []struct {
		name      string
		formats   []ports.Format
		wantID    string
		wantError error
	}{
		{
			name: "preferred container wins over higher bitrate webm",
			formats: []ports.Format{
				{FormatID: "720-mp4", URL: "https://cdn/1", Ext: "mp4", Height: 720, Bitrate: 1000},
				{FormatID: "1080-mp4", URL: "https://cdn/2", Ext: "mp4", Height: 1080, Bitrate: 800},
				{FormatID: "1080-webm", URL: "https://cdn/3", Ext: "webm", Height: 1080, Bitrate: 1200},
			},
			wantID: "1080-mp4",
		},
		{
			name: "bitrate breaks height ties",
			formats: []ports.Format{
				{FormatID: "a", URL: "https://cdn/a", Ext: "mp4", Height: 720, Bitrate: 900},
				{FormatID: "b", URL: "https://cdn/b", Ext: "mp4", Height: 720, Bitrate: 1500},
			},
			wantID: "b",
		},
		{
			name: "full ties keep encounter order",
			formats: []ports.Format{
				{FormatID: "first", URL: "https://cdn/a", Ext: "mp4", Height: 480, Bitrate: 700},
				{FormatID: "second", URL: "https://cdn/b", Ext: "mp4", Height: 480, Bitrate: 700},
			},
			wantID: "first",
		},
		{
			name: "falls back to any usable format",
			formats: []ports.Format{
				{FormatID: "webm-low", URL: "https://cdn/a", Ext: "webm", Height: 360},
				{FormatID: "mp4-nourl", Ext: "mp4", Height: 1080},
				{FormatID: "webm-high", URL: "https://cdn/b", Ext: "webm", Height: 720},
			},
			wantID: "webm-high",
		},
		{
			name: "manifest protocols are not usable",
			formats: []ports.Format{
				{FormatID: "hls", URL: "https://cdn/x.m3u8", Ext: "mp4", Protocol: "m3u8_native", Height: 1080},
				{FormatID: "progressive", URL: "https://cdn/p.mp4", Ext: "mp4", Protocol: "https", Height: 360},
			},
			wantID: "progressive",
		},
		{
			name: "no usable url",
			formats: []ports.Format{
				{FormatID: "a", Ext: "mp4"},
				{FormatID: "b", URL: "rtmp://cdn/b", Ext: "flv"},
			},
			wantError: domain.ErrNoUsableEncoding,
		},
		{
			name:      "no formats",
			wantError: domain.ErrNoUsableEncoding,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectFormat(tt.formats, "mp4")
			if tt.wantError != nil {
				require.ErrorIs(t, err, tt.wantError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, got.FormatID)
		})
	}
}

func TestMediaResolver_TopLevelURL(t *testing.T) {
	ctrl := gomock.NewController(t)
	ext := mocks.NewMockExtractor(ctrl)
	duration := 42.0
	ext.EXPECT().ResolveMedia(gomock.Any(), "https://m.example.com/v/1").Return(&ports.MediaInfo{
		ID: "vid1", Title: "Clip", Duration: &duration,
		URL: "https://cdn/direct.webm", Ext: "webm",
		Formats: []ports.Format{{URL: "https://cdn/other.mp4", Ext: "mp4", Height: 2160}},
	}, nil)

	r := NewMediaResolver(ext, "", 0, 0, nil)
	desc, err := r.Resolve(context.Background(), domain.ItemReference{URL: "https://m.example.com/v/1", GlobalIndex: 1, PageLocalIndex: 1})
	require.NoError(t, err)

	assert.Equal(t, "https://cdn/direct.webm", desc.TransferURL)
	assert.Equal(t, "webm", desc.ContainerFormat)
	assert.Equal(t, "vid1", desc.StableID)
	require.NotNil(t, desc.Title)
	assert.Equal(t, "Clip", *desc.Title)
	assert.Equal(t, &duration, desc.DurationSeconds)
}

func TestMediaResolver_PlaceholderIDAndNilTitle(t *testing.T) {
	ctrl := gomock.NewController(t)
	ext := mocks.NewMockExtractor(ctrl)
	ext.EXPECT().ResolveMedia(gomock.Any(), gomock.Any()).Return(&ports.MediaInfo{
		Formats: []ports.Format{{URL: "https://cdn/a.mp4", Ext: "mp4", Height: 720}},
	}, nil)

	r := NewMediaResolver(ext, "mp4", 1, time.Millisecond, nil)
	desc, err := r.Resolve(context.Background(), domain.ItemReference{URL: "https://m.example.com/v/7", GlobalIndex: 7, PageLocalIndex: 2})
	require.NoError(t, err)
	assert.Equal(t, "video002", desc.StableID)
	assert.Nil(t, desc.Title)
	assert.Nil(t, desc.DurationSeconds)
	assert.Equal(t, "https://cdn/a.mp4", desc.TransferURL)
}

func TestMediaResolver_RetriesThenSucceeds(t *testing.T) {
	ctrl := gomock.NewController(t)
	ext := mocks.NewMockExtractor(ctrl)
	gomock.InOrder(
		ext.EXPECT().ResolveMedia(gomock.Any(), gomock.Any()).Return(nil, errors.New("HTTP Error 429")),
		ext.EXPECT().ResolveMedia(gomock.Any(), gomock.Any()).Return(nil, errors.New("HTTP Error 429")),
		ext.EXPECT().ResolveMedia(gomock.Any(), gomock.Any()).Return(&ports.MediaInfo{ID: "x", URL: "https://cdn/x.mp4", Ext: "mp4"}, nil),
	)

	r := NewMediaResolver(ext, "mp4", 3, time.Millisecond, nil)
	desc, err := r.Resolve(context.Background(), domain.ItemReference{URL: "https://m.example.com/v/x", PageLocalIndex: 1})
	require.NoError(t, err)
	assert.Equal(t, "x", desc.StableID)
}

func TestMediaResolver_GivesUpAfterAttempts(t *testing.T) {
	ctrl := gomock.NewController(t)
	ext := mocks.NewMockExtractor(ctrl)
	ext.EXPECT().ResolveMedia(gomock.Any(), gomock.Any()).Return(nil, errors.New("unavailable")).Times(3)

	r := NewMediaResolver(ext, "mp4", 3, time.Millisecond, nil)
	_, err := r.Resolve(context.Background(), domain.ItemReference{URL: "https://m.example.com/v/x"})
	require.ErrorIs(t, err, domain.ErrResolution)
	assert.Contains(t, err.Error(), "unavailable")
}

func TestMediaResolver_NoUsableEncodingIsNotRetried(t *testing.T) {
	ctrl := gomock.NewController(t)
	ext := mocks.NewMockExtractor(ctrl)
	ext.EXPECT().ResolveMedia(gomock.Any(), gomock.Any()).Return(&ports.MediaInfo{
		ID:      "x",
		Formats: []ports.Format{{Ext: "mp4"}},
	}, nil).Times(1)

	r := NewMediaResolver(ext, "mp4", 3, time.Millisecond, nil)
	_, err := r.Resolve(context.Background(), domain.ItemReference{URL: "https://m.example.com/v/x"})
	require.ErrorIs(t, err, domain.ErrNoUsableEncoding)
}

func TestMediaResolver_UnavailableEntry(t *testing.T) {
	ctrl := gomock.NewController(t)
	ext := mocks.NewMockExtractor(ctrl)

	r := NewMediaResolver(ext, "mp4", 3, time.Millisecond, nil)
	_, err := r.Resolve(context.Background(), domain.ItemReference{GlobalIndex: 5, PageLocalIndex: 2})
	require.ErrorIs(t, err, domain.ErrResolution)
	assert.Contains(t, err.Error(), "listing entry 5 is unavailable")
}

func TestMediaResolver_StopsOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	ext := mocks.NewMockExtractor(ctrl)
	ctx, cancel := context.WithCancel(context.Background())
	ext.EXPECT().ResolveMedia(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, string) (*ports.MediaInfo, error) {
			cancel()
			return nil, context.Canceled
		}).Times(1)

	r := NewMediaResolver(ext, "mp4", 3, time.Hour, nil)
	_, err := r.Resolve(ctx, domain.ItemReference{URL: "https://m.example.com/v/x"})
	require.ErrorIs(t, err, domain.ErrResolution)
	assert.ErrorIs(t, err, context.Canceled)
}
