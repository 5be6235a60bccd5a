package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"mediabatch/internal/core/domain"
	"mediabatch/internal/core/ports"
)

// removeTimeout bounds the cleanup of a partial remote object after a failed put.
const removeTimeout = 30 * time.Second

// Transfer moves media bytes from origin to a destination without buffering
// the whole payload.
type Transfer struct {
	downloader ports.Downloader
	store      ports.ObjectStore
	logger     *slog.Logger
}

// NewTransfer creates a new Transfer.
func NewTransfer(downloader ports.Downloader, store ports.ObjectStore, logger *slog.Logger) *Transfer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Transfer{downloader: downloader, store: store, logger: logger}
}

// ToStore streams the media into the object store under key and returns its public URL.
// On failure no object is left at key.
func (t *Transfer) ToStore(ctx context.Context, desc domain.MediaDescriptor, key string) (string, int64, error) {
	stream, err := t.downloader.Download(ctx, desc.TransferURL)
	if err != nil {
		return "", 0, wrapTransfer(err)
	}
	defer func() { _ = stream.Body.Close() }()

	body := &countingReader{r: stream.Body}
	publicURL, err := t.store.Put(ctx, key, body, stream.Size, contentType(desc, stream))
	if err == nil && stream.Size >= 0 && body.n != stream.Size {
		err = fmt.Errorf("short read: got %d of %d bytes", body.n, stream.Size)
	}
	if err != nil {
		t.discardRemote(ctx, key)
		return "", body.n, wrapTransfer(err)
	}

	t.logger.Debug("streamed to object store",
		slog.String("storage_key", key),
		slog.Int64("bytes", body.n),
		slog.String("size", humanize.Bytes(uint64(body.n))))
	return publicURL, body.n, nil
}

// ToStaging writes the media into a new file named name inside area and returns its path.
// On failure the partial file is removed.
func (t *Transfer) ToStaging(ctx context.Context, desc domain.MediaDescriptor, area ports.StagingArea, name string) (string, int64, error) {
	stream, err := t.downloader.Download(ctx, desc.TransferURL)
	if err != nil {
		return "", 0, wrapTransfer(err)
	}
	defer func() { _ = stream.Body.Close() }()

	file, err := area.Create(name)
	if err != nil {
		return "", 0, wrapTransfer(err)
	}
	path := file.Name()

	n, err := io.Copy(file, stream.Body)
	if err == nil && stream.Size >= 0 && n != stream.Size {
		err = fmt.Errorf("short read: got %d of %d bytes", n, stream.Size)
	}
	if err == nil {
		err = file.Sync()
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		if discardErr := area.Discard(path); discardErr != nil {
			t.logger.Warn("failed to discard partial file",
				slog.String("path", path), slog.String("error", discardErr.Error()))
		}
		return "", n, wrapTransfer(err)
	}

	t.logger.Debug("staged locally",
		slog.String("path", path),
		slog.Int64("bytes", n),
		slog.String("size", humanize.Bytes(uint64(n))))
	return path, n, nil
}

// discardRemote removes a possibly partial object even when ctx is already cancelled.
func (t *Transfer) discardRemote(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), removeTimeout)
	defer cancel()
	if err := t.store.Remove(ctx, key); err != nil {
		t.logger.Warn("failed to remove partial object",
			slog.String("storage_key", key), slog.String("error", err.Error()))
	}
}

func contentType(desc domain.MediaDescriptor, stream *ports.Stream) string {
	if ct := mime.TypeByExtension("." + desc.ContainerFormat); ct != "" {
		return ct
	}
	return stream.ContentType
}

func wrapTransfer(err error) error {
	if errors.Is(err, domain.ErrTransfer) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrTransfer, err)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// stagedName builds the flat file name used for an item in storage and archives.
func stagedName(globalIndex int, stableID, ext string) string {
	if ext == "" {
		ext = DefaultPreferredFormat
	}
	return fmt.Sprintf("%03d_%s.%s", globalIndex, sanitizeName(stableID), sanitizeName(filepath.Base(ext)))
}

func sanitizeName(s string) string {
	const maxLen = 80
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
		if len(out) == maxLen {
			break
		}
	}
	if len(out) == 0 {
		return "item"
	}
	return string(out)
}
