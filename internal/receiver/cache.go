package receiver

import (
	"sort"
	"sync"
)

// ResourceCache はバージョン付きのインメモリリソースキャッシュ。
// バージョンごとにパスからリソース本文への対応を保持する。
type ResourceCache struct {
	// mu はversionsへの並行アクセスを保護するミューテックス。
	mu sync.RWMutex
	// versions はバージョン名からキャッシュ内容への対応。
	versions map[string]map[string][]byte
}

// NewResourceCache は新しいResourceCacheを生成する。
func NewResourceCache() *ResourceCache {
	return &ResourceCache{
		versions: make(map[string]map[string][]byte),
	}
}

// Put は指定バージョンのキャッシュにリソースを格納する。
func (c *ResourceCache) Put(version, path string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.versions[version] == nil {
		c.versions[version] = make(map[string][]byte)
	}
	c.versions[version][path] = body
}

// Get は指定バージョンのキャッシュからリソースを取得する。
func (c *ResourceCache) Get(version, path string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	body, ok := c.versions[version][path]
	return body, ok
}

// Prune はkeep以外のバージョンのキャッシュを全て削除し、
// 削除したバージョン名をソート済みで返す。
func (c *ResourceCache) Prune(keep string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []string
	for version := range c.versions {
		if version != keep {
			delete(c.versions, version)
			removed = append(removed, version)
		}
	}
	sort.Strings(removed)
	return removed
}

// Versions は保持中のバージョン名をソート済みで返す。
func (c *ResourceCache) Versions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	versions := make([]string, 0, len(c.versions))
	for v := range c.versions {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}
