package artifacts

import (
	"context"
	"os"
	"path/filepath"

	"deckview/internal/filesystem"
	"deckview/internal/fingerprint"
	"deckview/internal/metrics"
)

const evictionBatch = 64

// Sweep deletes every artifact whose fingerprint is not in live: orphans of
// deleted sources and stale versions of changed ones. Fingerprints with
// pending work are skipped. Per-entry failures are logged and counted.
// Running Sweep twice with the same live set removes nothing the second time.
func (c *Cache) Sweep(ctx context.Context, live []LiveSource) SweepResult {
	metrics.CacheSweepsTotal.Inc()

	keep := make(map[fingerprint.Fingerprint]struct{}, len(live))
	for _, src := range live {
		keep[src.Fingerprint] = struct{}{}
	}

	var result SweepResult
	seen := make(map[fingerprint.Fingerprint]struct{})

	fps, err := c.db.ListFingerprints(ctx)
	if err != nil {
		c.log.Error("Sweep could not list ledger: %v", err)
		result.Errors++
	}
	for _, s := range fps {
		fp := fingerprint.Fingerprint(s)
		seen[fp] = struct{}{}
		if _, ok := keep[fp]; ok {
			continue
		}
		c.removeFingerprint(ctx, fp, &result)
	}

	// Directories without ledger rows: crashes between rename and ledger
	// write, or a ledger that was reset.
	for _, fp := range c.diskFingerprints() {
		if _, ok := seen[fp]; ok {
			continue
		}
		if _, ok := keep[fp]; ok {
			continue
		}
		c.removeFingerprint(ctx, fp, &result)
	}

	if err := c.db.SetLastSweep(ctx, c.now()); err != nil {
		c.log.Debug("Failed to record sweep time: %v", err)
	}

	metrics.CacheSweepRemovedTotal.Add(float64(result.Removed))
	metrics.CacheSweepErrorsTotal.Add(float64(result.Errors))
	if result.Removed > 0 || result.Errors > 0 {
		c.log.Info("Sweep removed %d artifact sets (%d skipped, %d errors)",
			result.Removed, result.Skipped, result.Errors)
	}
	return result
}

func (c *Cache) removeFingerprint(ctx context.Context, fp fingerprint.Fingerprint, result *SweepResult) {
	if c.IsPending(fp) {
		result.Skipped++
		return
	}

	if err := filesystem.RemoveWithin(c.root, c.fingerprintDir(fp)); err != nil {
		c.log.Warn("Failed to remove artifacts for %s: %v", fp.Short(), err)
		result.Errors++
		return
	}
	if _, err := c.db.DeleteFingerprint(ctx, string(fp)); err != nil {
		c.log.Warn("Failed to delete ledger rows for %s: %v", fp.Short(), err)
		result.Errors++
		return
	}
	c.removeEmptyPrefix(fp)
	result.Removed++
}

// diskFingerprints lists <root>/<xx>/<fp> directories.
func (c *Cache) diskFingerprints() []fingerprint.Fingerprint {
	prefixes, err := os.ReadDir(c.root)
	if err != nil {
		c.log.Warn("Failed to read cache root: %v", err)
		return nil
	}

	var fps []fingerprint.Fingerprint
	for _, prefix := range prefixes {
		if !prefix.IsDir() || prefix.Name() == stagingDirName {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(c.root, prefix.Name()))
		if err != nil {
			c.log.Warn("Failed to read cache directory %s: %v", prefix.Name(), err)
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				fps = append(fps, fingerprint.Fingerprint(e.Name()))
			}
		}
	}
	return fps
}

func (c *Cache) removeEmptyPrefix(fp fingerprint.Fingerprint) {
	dir := filepath.Dir(c.fingerprintDir(fp))
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		_ = filesystem.RemoveWithin(c.root, dir)
	}
}

// EnforceLimit evicts ready artifacts, least recently used first, until the
// total payload size is at most maxBytes. maxBytes <= 0 disables the limit.
// Fingerprints with pending work are never evicted.
func (c *Cache) EnforceLimit(ctx context.Context, maxBytes int64) (EvictResult, error) {
	var result EvictResult

	total, err := c.db.TotalReadySize(ctx)
	if err != nil {
		return result, err
	}
	result.TotalBytes = total
	if maxBytes <= 0 || total <= maxBytes {
		return result, nil
	}

	skipped := make(map[string]bool)
	for result.TotalBytes > maxBytes {
		candidates, err := c.db.LRUCandidates(ctx, evictionBatch+len(skipped))
		if err != nil {
			return result, err
		}

		progressed := false
		for i := range candidates {
			if result.TotalBytes <= maxBytes {
				break
			}
			rec := &candidates[i]
			id := rec.Fingerprint + "/" + rec.Kind
			fp := fingerprint.Fingerprint(rec.Fingerprint)
			if skipped[id] {
				continue
			}
			if c.IsPending(fp) {
				skipped[id] = true
				continue
			}

			if err := filesystem.RemoveWithin(c.root, rec.PayloadPath); err != nil {
				c.log.Warn("Failed to evict %s/%s: %v", fp.Short(), rec.Kind, err)
				skipped[id] = true
				continue
			}
			if err := c.db.DeleteArtifact(ctx, rec.Fingerprint, rec.Kind); err != nil {
				c.log.Warn("Failed to delete evicted row %s/%s: %v", fp.Short(), rec.Kind, err)
				skipped[id] = true
				continue
			}

			result.Evicted++
			result.FreedBytes += rec.Size
			result.TotalBytes -= rec.Size
			progressed = true
		}

		if !progressed {
			break
		}
	}

	metrics.CacheEvictionsTotal.Add(float64(result.Evicted))
	if result.Evicted > 0 {
		c.log.Info("Evicted %d artifacts (%d bytes freed, %d bytes cached, limit %d)",
			result.Evicted, result.FreedBytes, result.TotalBytes, maxBytes)
		if err := c.db.SetLastEviction(ctx, c.now()); err != nil {
			c.log.Warn("Failed to record eviction time: %v", err)
		}
	}
	return result, nil
}
