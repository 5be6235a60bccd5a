package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"mediabatch/internal/core/ports"
)

const (
	defaultTimeout   = 2 * time.Minute
	defaultRateLimit = 2.0
	defaultRateBurst = 4
)

// CommandRunner executes the binary and returns its stdout.
type CommandRunner func(ctx context.Context, binary string, args ...string) ([]byte, error)

// Options configures a YtDlpExtractor. Zero values fall back to defaults.
type Options struct {
	BinaryPath string
	Timeout    time.Duration
	RateLimit  float64 // calls per second shared by all jobs
	RateBurst  int
	Runner     CommandRunner
}

// YtDlpExtractor implements ports.Extractor on top of the yt-dlp binary.
type YtDlpExtractor struct {
	binaryPath string
	timeout    time.Duration
	limiter    *rate.Limiter
	run        CommandRunner
}

// NewYtDlpExtractor creates a new extractor.
func NewYtDlpExtractor(opts Options) *YtDlpExtractor {
	if opts.BinaryPath == "" {
		opts.BinaryPath = "yt-dlp" // Assumes yt-dlp is in PATH
		// Check if yt-dlp.exe exists in current directory
		if _, err := os.Stat("yt-dlp.exe"); err == nil {
			opts.BinaryPath = ".\\yt-dlp.exe"
		}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = defaultRateLimit
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = defaultRateBurst
	}
	if opts.Runner == nil {
		opts.Runner = execRunner
	}
	return &YtDlpExtractor{
		binaryPath: opts.BinaryPath,
		timeout:    opts.Timeout,
		limiter:    rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
		run:        opts.Runner,
	}
}

// ResolveListing enumerates up to limit entries without resolving each one.
func (e *YtDlpExtractor) ResolveListing(ctx context.Context, listingURL string, limit int) (*ports.Listing, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	// --flat-playlist: do not resolve entries
	// --playlist-end: stop enumerating after limit entries
	info, err := e.dump(ctx, listingURL,
		"--flat-playlist", "--playlist-end", strconv.Itoa(limit))
	if err != nil {
		return nil, err
	}
	return info.toListing(listingURL), nil
}

// ResolveMedia fetches metadata and all formats of a single item page.
func (e *YtDlpExtractor) ResolveMedia(ctx context.Context, itemURL string) (*ports.MediaInfo, error) {
	info, err := e.dump(ctx, itemURL, "--no-playlist")
	if err != nil {
		return nil, err
	}
	return info.toMediaInfo(), nil
}

func (e *YtDlpExtractor) dump(ctx context.Context, target string, extra ...string) (*infoJSON, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("yt-dlp rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// -J: dump a single JSON document
	// --no-warnings: keep stderr to real failures
	args := append([]string{"-J", "--no-warnings"}, extra...)
	args = append(args, "--", target)

	out, err := e.run(ctx, e.binaryPath, args...)
	if err != nil {
		return nil, err
	}

	var info infoJSON
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("yt-dlp returned invalid JSON: %w", err)
	}
	return &info, nil
}

func execRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)

	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("yt-dlp failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("yt-dlp returned empty output")
	}
	return out.Bytes(), nil
}
