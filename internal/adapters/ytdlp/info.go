package ytdlp

import (
	"strings"

	"mediabatch/internal/core/ports"
)

// infoJSON is the subset of the yt-dlp info dict we read.
type infoJSON struct {
	Type        string       `json:"_type"`
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Duration    *float64     `json:"duration"`
	WebpageURL  string       `json:"webpage_url"`
	OriginalURL string       `json:"original_url"`
	URL         string       `json:"url"`
	Ext         string       `json:"ext"`
	Formats     []formatJSON `json:"formats"`
	Entries     []*entryJSON `json:"entries"`
}

type formatJSON struct {
	FormatID string   `json:"format_id"`
	URL      string   `json:"url"`
	Ext      string   `json:"ext"`
	Protocol string   `json:"protocol"`
	Height   *int     `json:"height"`
	TBR      *float64 `json:"tbr"`
}

// entryJSON is a flat-playlist entry. Unavailable entries arrive as null.
type entryJSON struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	WebpageURL string `json:"webpage_url"`
}

func (i *infoJSON) toListing(requested string) *ports.Listing {
	self := firstNonEmpty(i.WebpageURL, i.OriginalURL, requested)
	if i.Type != "playlist" && i.Type != "multi_video" {
		return &ports.Listing{
			IsCollection: false,
			WebpageURL:   self,
			Entries:      []string{self},
		}
	}

	// Unusable entries keep their slot as "" so later entries keep their position.
	entries := make([]string, 0, len(i.Entries))
	for _, e := range i.Entries {
		if e == nil {
			entries = append(entries, "")
			continue
		}
		entries = append(entries, firstAbsoluteHTTP(e.URL, e.WebpageURL))
	}
	return &ports.Listing{
		IsCollection: true,
		WebpageURL:   self,
		Entries:      entries,
	}
}

func (i *infoJSON) toMediaInfo() *ports.MediaInfo {
	info := &ports.MediaInfo{
		ID:       i.ID,
		Title:    i.Title,
		Duration: i.Duration,
		URL:      i.URL,
		Ext:      i.Ext,
		Formats:  make([]ports.Format, 0, len(i.Formats)),
	}
	for _, f := range i.Formats {
		format := ports.Format{
			FormatID: f.FormatID,
			URL:      f.URL,
			Ext:      f.Ext,
			Protocol: f.Protocol,
		}
		if f.Height != nil {
			format.Height = *f.Height
		}
		if f.TBR != nil {
			format.Bitrate = *f.TBR
		}
		info.Formats = append(info.Formats, format)
	}
	return info
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func firstAbsoluteHTTP(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); isAbsoluteHTTP(s) {
			return s
		}
	}
	return ""
}

func isAbsoluteHTTP(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
