// Package jipcache holds the process-wide JIP (join-in-progress) Segment
// Cache: the true, post-renumbering model.SegmentMeta for every segment of a
// block currently airing, so a viewer joining mid-block can be told what
// segment index and asset they actually landed on rather than what the
// original schedule predicted.
package jipcache

import "sync"

// Cache is safe for concurrent use by the playout path (writer) and the
// HLS/viewer-facing path (readers).
type Cache struct {
	mu     sync.RWMutex
	blocks map[string][]Entry // blockID -> ordered segment metadata
}

// Entry pairs a cache row with its originating segment index, since JIP
// renumbering means the slice index and SegmentIndex may diverge.
type Entry struct {
	SegmentIndex int
	Meta         SegmentMeta
}

// SegmentMeta mirrors model.SegmentMeta; duplicated here (rather than
// imported) so this package has no dependency on the wider model package —
// it is a narrow, high-churn cache, not a store of record.
type SegmentMeta struct {
	SegmentType string
	AssetURI    string
	Title       string
}

// New builds an empty Cache.
func New() *Cache {
	return &Cache{blocks: make(map[string][]Entry)}
}

// PrepopulateBlockSegmentCache installs segments as blockID's cache
// contents, replacing whatever was there before.
func (c *Cache) PrepopulateBlockSegmentCache(blockID string, segments []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := append([]Entry(nil), segments...)
	c.blocks[blockID] = cp
}

// Lookup returns the metadata for (blockID, segmentIndex), if cached.
func (c *Cache) Lookup(blockID string, segmentIndex int) (SegmentMeta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.blocks[blockID] {
		if e.SegmentIndex == segmentIndex {
			return e.Meta, true
		}
	}
	return SegmentMeta{}, false
}

// ClearBlockSegmentCache evicts blockID's cache once the block has fenced.
func (c *Cache) ClearBlockSegmentCache(blockID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.blocks, blockID)
}
