package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"deckview/internal/database"
	"deckview/internal/fingerprint"
)

func live(fps ...string) []LiveSource {
	out := make([]LiveSource, 0, len(fps))
	for _, fp := range fps {
		out = append(out, LiveSource{Path: "/library/" + fp, Fingerprint: fingerprint.Fingerprint(fp)})
	}
	return out
}

func TestSweepRemovesStaleAndOrphaned(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	keep := commit(t, c, pdfKey("keep01"), "a")
	stale := commit(t, c, pdfKey("stale1"), "b")
	commit(t, c, Key{Fingerprint: "stale1", Kind: Thumbnail(1, "small", "png")}, "c")

	result := c.Sweep(ctx, live("keep01"))
	if result.Removed != 1 || result.Errors != 0 {
		t.Errorf("Sweep() = %+v, want 1 removed", result)
	}

	if _, err := os.Stat(keep.PayloadPath); err != nil {
		t.Errorf("Live artifact removed: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(stale.PayloadPath)); !os.IsNotExist(err) {
		t.Error("Expected stale artifact directory to be removed")
	}
	if _, ok := c.Lookup(ctx, pdfKey("stale1")); ok {
		t.Error("Expected stale ledger rows to be removed")
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	commit(t, c, pdfKey("keep01"), "a")
	commit(t, c, pdfKey("gone01"), "b")

	first := c.Sweep(ctx, live("keep01"))
	second := c.Sweep(ctx, live("keep01"))

	if first.Removed != 1 {
		t.Errorf("first Sweep() removed %d, want 1", first.Removed)
	}
	if second.Removed != 0 || second.Errors != 0 {
		t.Errorf("second Sweep() = %+v, want nothing to do", second)
	}
}

func TestSweepSkipsPending(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	commit(t, c, pdfKey("busy01"), "pdf")
	h, err := c.Begin(ctx, Key{Fingerprint: "busy01", Kind: Thumbnail(2, "large", "png")}, "/a.pptx")
	if err != nil {
		t.Fatal(err)
	}

	result := c.Sweep(ctx, nil)
	if result.Skipped != 1 || result.Removed != 0 {
		t.Errorf("Sweep() = %+v, want pending fingerprint skipped", result)
	}
	if _, ok := c.Lookup(ctx, pdfKey("busy01")); !ok {
		t.Error("Expected artifacts of a pending fingerprint to survive")
	}

	if _, err := h.Commit(ctx, []byte("png")); err != nil {
		t.Fatal(err)
	}
	if result := c.Sweep(ctx, nil); result.Removed != 1 {
		t.Errorf("Sweep() after job = %+v, want 1 removed", result)
	}
}

func TestSweepRemovesDiskOrphans(t *testing.T) {
	c, _ := newTestCache(t)

	orphan := filepath.Join(c.Root(), "de", "deadbeef")
	if err := os.MkdirAll(orphan, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(orphan, "pdf.pdf"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	result := c.Sweep(context.Background(), nil)
	if result.Removed != 1 {
		t.Errorf("Sweep() = %+v, want orphan removed", result)
	}
	if _, err := os.Stat(filepath.Join(c.Root(), "de")); !os.IsNotExist(err) {
		t.Error("Expected empty prefix directory to be removed")
	}
	if _, err := os.Stat(c.StagingDir()); err != nil {
		t.Errorf("Staging directory must survive sweeps: %v", err)
	}
}

func TestSweepNeverTouchesSources(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	source := filepath.Join(t.TempDir(), "deck.pptx")
	if err := os.WriteFile(source, []byte("source"), 0o644); err != nil {
		t.Fatal(err)
	}

	// A corrupted ledger row pointing outside the cache root.
	if err := c.db.PutArtifact(ctx, &database.ArtifactRecord{
		Fingerprint: "bad", Kind: "pdf", Type: TypePDF, SourcePath: source,
		PayloadPath: source, Size: 6, Status: database.StatusReady,
		CreatedAt: time.Unix(1, 0), LastAccess: time.Unix(1, 0),
	}); err != nil {
		t.Fatal(err)
	}

	result, err := c.EnforceLimit(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if result.Evicted != 0 {
		t.Errorf("EnforceLimit() evicted a row pointing outside the cache: %+v", result)
	}
	c.Sweep(ctx, nil)

	if _, err := os.Stat(source); err != nil {
		t.Errorf("Source file must never be deleted: %v", err)
	}
}

func TestEnforceLimitEvictsLeastRecentlyUsed(t *testing.T) {
	c, clock := newTestCache(t)
	ctx := context.Background()

	oldest := commit(t, c, pdfKey("aaa111"), "0123456789")
	clock.Advance(time.Second)
	middle := commit(t, c, pdfKey("bbb222"), "0123456789")
	clock.Advance(time.Second)
	newest := commit(t, c, pdfKey("ccc333"), "0123456789")
	clock.Advance(time.Second)

	// Reading the oldest makes it the most recently used.
	if _, ok := c.Lookup(ctx, pdfKey("aaa111")); !ok {
		t.Fatal("Expected hit")
	}

	result, err := c.EnforceLimit(ctx, 15)
	if err != nil {
		t.Fatalf("EnforceLimit() error = %v", err)
	}
	if result.Evicted != 2 || result.TotalBytes != 10 || result.FreedBytes != 20 {
		t.Errorf("EnforceLimit() = %+v, want 2 evicted leaving 10 bytes", result)
	}

	if _, err := os.Stat(oldest.PayloadPath); err != nil {
		t.Error("Recently read artifact should survive")
	}
	for _, e := range []*Entry{middle, newest} {
		if _, err := os.Stat(e.PayloadPath); !os.IsNotExist(err) {
			t.Errorf("Expected %s evicted", e.Key)
		}
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.LastEviction.IsZero() {
		t.Error("Stats should report the eviction time")
	}
}

func TestEnforceLimitDisabled(t *testing.T) {
	c, _ := newTestCache(t)
	commit(t, c, pdfKey("aaa111"), "0123456789")

	result, err := c.EnforceLimit(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if result.Evicted != 0 || result.TotalBytes != 10 {
		t.Errorf("EnforceLimit(0) = %+v, want no eviction", result)
	}
}

func TestEnforceLimitSkipsPending(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	commit(t, c, pdfKey("aaa111"), "0123456789")
	if _, err := c.Begin(ctx, Key{Fingerprint: "aaa111", Kind: Thumbnail(1, "small", "png")}, "/a"); err != nil {
		t.Fatal(err)
	}

	result, err := c.EnforceLimit(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if result.Evicted != 0 {
		t.Errorf("Expected the PDF of a fingerprint with pending work to survive, got %+v", result)
	}
}

func TestStatsAndClear(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	commit(t, c, pdfKey("aaa111"), "0123456789")
	commit(t, c, Key{Fingerprint: "aaa111", Kind: Thumbnail(1, "medium", "png")}, "png")
	commit(t, c, pdfKey("bbb222"), "01234")

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.ByType[TypePDF].Count != 2 || stats.ByType[TypePDF].Bytes != 15 {
		t.Errorf("Unexpected pdf stats %+v", stats.ByType[TypePDF])
	}
	if stats.ByType[TypeThumbnail].Count != 1 {
		t.Errorf("Unexpected thumbnail stats %+v", stats.ByType[TypeThumbnail])
	}
	if stats.TotalCount != 3 || stats.TotalBytes != 18 {
		t.Errorf("Unexpected totals %d/%d", stats.TotalCount, stats.TotalBytes)
	}

	result, err := c.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if result.Removed != 2 {
		t.Errorf("Clear() removed %d, want 2", result.Removed)
	}

	stats, _ = c.Stats(ctx)
	if stats.TotalCount != 0 {
		t.Errorf("Expected empty cache after Clear, got %d entries", stats.TotalCount)
	}
}
