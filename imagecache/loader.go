package imagecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"
)

// maxImageBytes caps a single download.
const maxImageBytes = 20 << 20

// downloadTimeout bounds a shared download once no caller's context applies.
const downloadTimeout = time.Minute

// Policy decides whether fetched bytes are kept on disk.
type Policy int

const (
	CacheAll Policy = iota
	CacheNone
)

func (p Policy) String() string {
	switch p {
	case CacheAll:
		return "all"
	case CacheNone:
		return "none"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

type Request struct {
	Placeholder Image
	Error       Image
	Policy      Policy
}

type Loader struct {
	dir    string
	maxAge time.Duration
	client *http.Client
	logger *slog.Logger
	group  singleflight.Group
}

// NewLoader returns a loader caching under dir. An empty dir disables the disk
// cache; maxAge <= 0 keeps entries forever.
func NewLoader(dir string, maxAge time.Duration, client *http.Client, logger *slog.Logger) (*Loader, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create image cache dir: %w", err)
		}
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		dir:    dir,
		maxAge: maxAge,
		client: client,
		logger: logger.With("component", "imagecache"),
	}, nil
}

// Load shows the placeholder on target, then the image at rawURL, or the error
// image if it cannot be fetched or decoded.
func (l *Loader) Load(ctx context.Context, rawURL string, target Target, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !req.Placeholder.Empty() {
		target.SetImage(req.Placeholder)
	}

	img, err := l.Fetch(ctx, rawURL, req.Policy)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.logger.Warn("image load failed", "url", cacheKey(rawURL), "error", err)
		if !req.Error.Empty() {
			target.SetImage(req.Error)
		}
		return err
	}
	// A target whose request was dropped gets no more images
	if err := ctx.Err(); err != nil {
		return err
	}
	target.SetImage(img)
	return nil
}

// Fetch returns the decoded image at rawURL, from disk when policy allows.
func (l *Loader) Fetch(ctx context.Context, rawURL string, policy Policy) (Image, error) {
	key := cacheKey(rawURL)
	if policy == CacheAll {
		if data, ok := l.readCache(key); ok {
			if img, err := Decode(rawURL, data); err == nil {
				return img, nil
			}
		}
	}

	// The shared download outlives any one caller; each caller only stops
	// waiting on its own ctx.
	ch := l.group.DoChan(key, func() (any, error) {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), downloadTimeout)
		defer cancel()
		return l.download(dctx, rawURL)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return Image{}, ctx.Err()
	}
	if res.Err != nil {
		return Image{}, res.Err
	}
	data := res.Val.([]byte)

	img, err := Decode(rawURL, data)
	if err != nil {
		return Image{}, err
	}
	if policy == CacheAll {
		l.writeCache(key, data)
	}
	return img, nil
}

func (l *Loader) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, errors.New("image exceeds size limit")
	}
	return data, nil
}

func (l *Loader) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(l.dir, hex.EncodeToString(sum[:]))
}

func (l *Loader) readCache(key string) ([]byte, bool) {
	if l.dir == "" {
		return nil, false
	}
	p := l.path(key)
	info, err := os.Stat(p)
	if err != nil {
		return nil, false
	}
	if l.maxAge > 0 && time.Since(info.ModTime()) > l.maxAge {
		return nil, false
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (l *Loader) writeCache(key string, data []byte) {
	if l.dir == "" {
		return
	}
	p := l.path(key)
	tmp, err := os.CreateTemp(l.dir, ".img-*")
	if err != nil {
		l.logger.Warn("image cache write failed", "error", err)
		return
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		l.logger.Warn("image cache write failed", "error", err)
		return
	}
	tmp.Close()
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		l.logger.Warn("image cache write failed", "error", err)
	}
}

// Purge removes every cached file older than the max age.
func (l *Loader) Purge() (int, error) {
	if l.dir == "" || l.maxAge <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || e.IsDir() {
			continue
		}
		if time.Since(info.ModTime()) > l.maxAge {
			if os.Remove(filepath.Join(l.dir, e.Name())) == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// cacheKey drops the query string, which for signed URLs changes on every
// resolution while the object stays the same.
func cacheKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
