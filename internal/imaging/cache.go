package imaging

import (
	"strings"
	"sync"
)

// cache is a small concurrency-safe map of source key to encoded image.
type cache struct {
	mu      sync.RWMutex
	entries map[string]EncodedImage
}

func newCache() *cache {
	return &cache{entries: make(map[string]EncodedImage)}
}

func (c *cache) get(key string) (EncodedImage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	img, ok := c.entries[key]
	return img, ok
}

func (c *cache) put(key string, img EncodedImage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = img
}

// invalidate removes the exact key, or any file-backed entry whose path
// ends with key (watcher events carry absolute paths).
func (c *cache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		return
	}
	for k := range c.entries {
		if strings.HasPrefix(k, "file:") && strings.HasSuffix(k, key) {
			delete(c.entries, k)
		}
	}
}

func (c *cache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]EncodedImage)
}
