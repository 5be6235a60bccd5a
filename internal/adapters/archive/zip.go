// Package archive packs staged media files into a single zip archive.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mholt/archives"

	"mediabatch/internal/core/domain"
)

// Packager creates flat zip archives from a staging directory.
type Packager struct{}

// NewPackager creates a new Packager instance.
func NewPackager() *Packager {
	return &Packager{}
}

// Pack writes every regular file found under srcDir into archivePath, each
// stored under its base name. Unreadable files fail the whole archive.
func (p *Packager) Pack(ctx context.Context, srcDir, archivePath string) (int, error) {
	members, err := collectMembers(srcDir)
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, fmt.Errorf("%w: no files under %s", domain.ErrPackaging, srcDir)
	}

	archiveFiles, err := archives.FilesFromDisk(ctx, nil, members)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read files from disk: %v", domain.ErrPackaging, err)
	}

	file, err := os.OpenFile(archivePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to create output file %s: %v", domain.ErrPackaging, archivePath, err)
	}

	// Media is already compressed; SelectiveCompression stores it as-is.
	format := archives.Zip{
		Compression:          zip.Deflate,
		SelectiveCompression: true,
	}
	if err := format.Archive(ctx, file, archiveFiles); err != nil {
		_ = file.Close()
		_ = os.Remove(archivePath)
		return 0, fmt.Errorf("%w: failed to create archive: %v", domain.ErrPackaging, err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(archivePath)
		return 0, fmt.Errorf("%w: failed to sync archive: %v", domain.ErrPackaging, err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(archivePath)
		return 0, fmt.Errorf("%w: failed to close archive: %v", domain.ErrPackaging, err)
	}
	return len(members), nil
}

// collectMembers maps each regular file's path to its flattened name in the archive.
func collectMembers(srcDir string) (map[string]string, error) {
	members := make(map[string]string)
	seen := make(map[string]string)
	walkFn := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		name := filepath.Base(path)
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("duplicate member name %q (%s and %s)", name, prev, path)
		}
		seen[name] = path
		members[path] = name
		return nil
	}
	if err := filepath.WalkDir(srcDir, walkFn); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPackaging, err)
	}
	return members, nil
}
