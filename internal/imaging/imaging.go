// Package imaging converts image sources into the transport-neutral encoded
// form consumed by the oracle: base64 data plus a declared media type.
package imaging

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/meowtion/sensor/internal/apperr"
	"github.com/meowtion/sensor/internal/checksum"
)

// EncodedImage is binary image content in an ASCII-safe form.
type EncodedImage struct {
	Data      string `json:"data"`
	MediaType string `json:"mediaType"`
}

// Bytes decodes the base64 payload back into raw image bytes.
func (img EncodedImage) Bytes() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(img.Data)
	if err != nil {
		return nil, &apperr.EncodingError{Reason: "data is not valid base64"}
	}
	return raw, nil
}

// Source is anything resolvable to image bytes plus a declared media type.
type Source interface {
	// Key is a stable identity for caching and log correlation.
	Key() string
	open(ctx context.Context, e *Encoder) (data []byte, mediaType string, err error)
}

// BlobSource wraps in-memory bytes, e.g. a user upload.
type BlobSource struct {
	Bytes     []byte
	MediaType string
}

func (s BlobSource) Key() string { return "blob:" + checksum.Sum(s.Bytes) }

func (s BlobSource) open(_ context.Context, _ *Encoder) ([]byte, string, error) {
	return s.Bytes, s.MediaType, nil
}

// FileSource reads a reference image asset from disk.
type FileSource struct {
	Path string
}

func (s FileSource) Key() string { return "file:" + s.Path }

func (s FileSource) open(_ context.Context, _ *Encoder) ([]byte, string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, "", &apperr.FetchError{URL: s.Path, Err: err}
	}
	return data, mime.TypeByExtension(strings.ToLower(filepath.Ext(s.Path))), nil
}

// URLSource fetches a reference image over HTTP.
type URLSource struct {
	URL string
}

func (s URLSource) Key() string { return "url:" + s.URL }

func (s URLSource) open(ctx context.Context, e *Encoder) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, "", &apperr.FetchError{URL: s.URL, Err: err}
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, "", &apperr.FetchError{URL: s.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", &apperr.FetchError{URL: s.URL, Status: resp.StatusCode}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &apperr.FetchError{URL: s.URL, Err: err}
	}
	mediaType := resp.Header.Get("Content-Type")
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	return data, mediaType, nil
}

// Encoder resolves sources into EncodedImages. Reference images are cached
// by content-independent source key; user uploads are encoded per call.
type Encoder struct {
	client *http.Client

	cache *cache
}

// NewEncoder creates an Encoder with a default HTTP client.
func NewEncoder() *Encoder {
	return &Encoder{
		client: &http.Client{Timeout: 30 * time.Second},
		cache:  newCache(),
	}
}

// Encode resolves src and returns its encoded form.
func (e *Encoder) Encode(ctx context.Context, src Source) (EncodedImage, error) {
	data, declared, err := src.open(ctx, e)
	if err != nil {
		return EncodedImage{}, err
	}
	return encode(data, declared)
}

// EncodeCached is Encode with a per-key cache. Intended for reference
// images, which are static for the life of the process unless the asset
// watcher invalidates them.
func (e *Encoder) EncodeCached(ctx context.Context, src Source) (EncodedImage, error) {
	if img, ok := e.cache.get(src.Key()); ok {
		return img, nil
	}
	img, err := e.Encode(ctx, src)
	if err != nil {
		return EncodedImage{}, err
	}
	e.cache.put(src.Key(), img)
	return img, nil
}

// Invalidate drops any cached encoding whose key matches path-suffix or
// exact key. Used by the asset watcher when a reference image changes.
func (e *Encoder) Invalidate(key string) {
	e.cache.invalidate(key)
}

// InvalidateAll clears the reference-image cache.
func (e *Encoder) InvalidateAll() {
	e.cache.clear()
}

func encode(data []byte, declared string) (EncodedImage, error) {
	if len(data) == 0 {
		return EncodedImage{}, &apperr.EncodingError{Reason: "empty image content"}
	}
	mediaType := declared
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return EncodedImage{}, &apperr.EncodingError{Reason: fmt.Sprintf("unsupported media type %q", mediaType)}
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	if encoded == "" {
		return EncodedImage{}, &apperr.EncodingError{Reason: "empty encoded payload"}
	}
	return EncodedImage{Data: encoded, MediaType: mediaType}, nil
}
