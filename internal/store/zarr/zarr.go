// Package zarr reads zarr-v2 style chunked array stores over HTTP or from a
// local directory. It covers the subset the reanalysis datasets use: C-order
// arrays of little-endian float32/float64, raw or zlib/gzip compressed
// chunks, consolidated metadata when present.
package zarr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNotFound reports a missing key: unknown array, or a chunk object the
	// store does not hold.
	ErrNotFound = errors.New("zarr: key not found")
)

const fetchTimeout = 30 * time.Second

// ArrayMeta mirrors a .zarray document.
type ArrayMeta struct {
	Shape      []int           `json:"shape"`
	Chunks     []int           `json:"chunks"`
	DType      string          `json:"dtype"`
	Compressor *CompressorMeta `json:"compressor"`
	FillValue  json.RawMessage `json:"fill_value"`
	Order      string          `json:"order"`
	ZarrFormat int             `json:"zarr_format"`
}

// CompressorMeta is the compressor section of a .zarray document.
type CompressorMeta struct {
	ID string `json:"id"`
}

// Store is a handle to one array store. Open once, read many arrays.
type Store struct {
	fetcher fetcher
	base    string
	logger  *zap.SugaredLogger

	// consolidated .zmetadata, when the store carries one
	consolidated map[string]json.RawMessage
}

// fetcher retrieves one key from the store.
type fetcher interface {
	fetch(ctx context.Context, key string) ([]byte, error)
}

// Open connects to a store by base URL (http:// or https://) or local
// directory path and reads consolidated metadata when available.
func Open(ctx context.Context, base string, logger *zap.SugaredLogger) (*Store, error) {
	var f fetcher
	if strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://") {
		f = &httpFetcher{
			base:   strings.TrimRight(base, "/"),
			client: &http.Client{Timeout: fetchTimeout},
		}
	} else {
		f = &fileFetcher{dir: base}
	}

	s := &Store{fetcher: f, base: base, logger: logger}

	raw, err := f.fetch(ctx, ".zmetadata")
	switch {
	case err == nil:
		var doc struct {
			Metadata map[string]json.RawMessage `json:"metadata"`
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parsing consolidated metadata from %s: %v", base, err)
		}
		s.consolidated = doc.Metadata
		logger.Debugf("opened store %s with consolidated metadata (%d keys)", base, len(doc.Metadata))
	case errors.Is(err, ErrNotFound):
		logger.Debugf("store %s has no consolidated metadata, will read per-array documents", base)
	default:
		return nil, fmt.Errorf("opening store %s: %v", base, err)
	}

	return s, nil
}

// Array looks up an array by name and returns a handle for reading it.
func (s *Store) Array(ctx context.Context, name string) (*Array, error) {
	raw, err := s.metaDoc(ctx, name+"/.zarray")
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("array %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("reading metadata for array %q: %v", name, err)
	}

	var meta ArrayMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("parsing .zarray for %q: %v", name, err)
	}
	if err := validateMeta(name, &meta); err != nil {
		return nil, err
	}

	attrs := map[string]interface{}{}
	if rawAttrs, err := s.metaDoc(ctx, name+"/.zattrs"); err == nil {
		// Attributes are optional; a malformed document is not fatal.
		if err := json.Unmarshal(rawAttrs, &attrs); err != nil {
			s.logger.Warnf("ignoring malformed .zattrs for array %q: %v", name, err)
		}
	}

	return &Array{store: s, name: name, meta: meta, attrs: attrs}, nil
}

// metaDoc returns a metadata document from the consolidated index if present,
// falling back to a direct fetch.
func (s *Store) metaDoc(ctx context.Context, key string) (json.RawMessage, error) {
	if s.consolidated != nil {
		if raw, ok := s.consolidated[key]; ok {
			return raw, nil
		}
		return nil, ErrNotFound
	}
	raw, err := s.fetcher.fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(raw), nil
}

func validateMeta(name string, m *ArrayMeta) error {
	if len(m.Shape) == 0 || len(m.Shape) != len(m.Chunks) {
		return fmt.Errorf("array %q: shape/chunks mismatch (%d vs %d dims)", name, len(m.Shape), len(m.Chunks))
	}
	for i := range m.Shape {
		if m.Shape[i] <= 0 || m.Chunks[i] <= 0 {
			return fmt.Errorf("array %q: non-positive extent in dim %d", name, i)
		}
	}
	switch m.DType {
	case "<f4", "<f8":
	default:
		return fmt.Errorf("array %q: unsupported dtype %q", name, m.DType)
	}
	if m.Order != "" && m.Order != "C" {
		return fmt.Errorf("array %q: unsupported order %q", name, m.Order)
	}
	if m.Compressor != nil {
		switch m.Compressor.ID {
		case "zlib", "gzip":
		default:
			return fmt.Errorf("array %q: unsupported compressor %q", name, m.Compressor.ID)
		}
	}
	return nil
}

// httpFetcher reads keys relative to a base URL.
type httpFetcher struct {
	base   string
	client *http.Client
}

func (h *httpFetcher) fetch(ctx context.Context, key string) ([]byte, error) {
	url := h.base + "/" + key
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %v", url, err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %v", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		// S3-style stores answer 403 for absent keys when listing is disabled.
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetching %s: unexpected status %s", url, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body of %s: %v", url, err)
	}
	return body, nil
}

// fileFetcher reads keys from a local directory.
type fileFetcher struct {
	dir string
}

func (f *fileFetcher) fetch(_ context.Context, key string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(f.dir, filepath.FromSlash(key)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}
