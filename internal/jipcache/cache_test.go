package jipcache

import "testing"

func TestPrepopulateAndLookup(t *testing.T) {
	c := New()
	c.PrepopulateBlockSegmentCache("blk-1", []Entry{
		{SegmentIndex: 0, Meta: SegmentMeta{SegmentType: "content", AssetURI: "file:///a.mp4", Title: "A"}},
		{SegmentIndex: 1, Meta: SegmentMeta{SegmentType: "filler", AssetURI: "file:///f.mp4"}},
	})

	got, ok := c.Lookup("blk-1", 1)
	if !ok {
		t.Fatal("expected segment 1 to be cached")
	}
	if got.AssetURI != "file:///f.mp4" {
		t.Fatalf("unexpected asset: %s", got.AssetURI)
	}

	if _, ok := c.Lookup("blk-1", 99); ok {
		t.Fatal("expected miss for unknown segment index")
	}
}

func TestClearBlockSegmentCache(t *testing.T) {
	c := New()
	c.PrepopulateBlockSegmentCache("blk-1", []Entry{{SegmentIndex: 0, Meta: SegmentMeta{AssetURI: "file:///a.mp4"}}})
	c.ClearBlockSegmentCache("blk-1")

	if _, ok := c.Lookup("blk-1", 0); ok {
		t.Fatal("expected cache to be empty after clear")
	}
}

func TestPrepopulateReplacesPriorContents(t *testing.T) {
	c := New()
	c.PrepopulateBlockSegmentCache("blk-1", []Entry{{SegmentIndex: 0, Meta: SegmentMeta{AssetURI: "file:///old.mp4"}}})
	c.PrepopulateBlockSegmentCache("blk-1", []Entry{{SegmentIndex: 0, Meta: SegmentMeta{AssetURI: "file:///new.mp4"}}})

	got, ok := c.Lookup("blk-1", 0)
	if !ok || got.AssetURI != "file:///new.mp4" {
		t.Fatalf("expected replaced contents, got %+v ok=%v", got, ok)
	}
}
