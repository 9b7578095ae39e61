// Package testutil provides shared test helpers: tiny valid images, asset
// directories, and a scriptable oracle stub.
package testutil

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/meowtion/sensor/internal/oracle"
)

// pngPixel is a complete, valid 1x1 transparent PNG.
var pngPixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89,
	0x00, 0x00, 0x00, 0x0a, 0x49, 0x44, 0x41, 0x54,
	0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00, 0x05,
	0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4,
	0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44,
	0xae, 0x42, 0x60, 0x82,
}

// PNG returns the bytes of a small valid PNG image.
func PNG() []byte {
	out := make([]byte, len(pngPixel))
	copy(out, pngPixel)
	return out
}

// PNGBase64 returns the PNG test image as standard base64.
func PNGBase64() string {
	return base64.StdEncoding.EncodeToString(pngPixel)
}

// AssetDir creates a temp directory populated with the named PNG assets.
func AssetDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), PNG(), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// OracleStub is a scriptable oracle.Client. Respond receives each request
// and returns the raw JSON the fake oracle answers with. Generate may be
// called from concurrent fan-out goroutines, so the call counter is atomic.
type OracleStub struct {
	Respond func(parts []oracle.Part, schema *oracle.Schema) ([]byte, error)

	calls atomic.Int64
}

// Generate implements oracle.Client.
func (s *OracleStub) Generate(_ context.Context, parts []oracle.Part, schema *oracle.Schema) ([]byte, error) {
	s.calls.Add(1)
	return s.Respond(parts, schema)
}

// Calls returns the number of Generate invocations so far.
func (s *OracleStub) Calls() int {
	return int(s.calls.Load())
}
