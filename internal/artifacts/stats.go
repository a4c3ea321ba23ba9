package artifacts

import (
	"context"

	"deckview/internal/fingerprint"
)

// Stats returns counts and sizes of ready artifacts per type.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	byType, err := c.db.ArtifactStats(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Root:    c.root,
		ByType:  make(map[string]TypeStats, len(byType)),
		Pending: c.PendingCount(),
	}
	for _, t := range []string{TypePDF, TypeThumbnail} {
		stats.ByType[t] = TypeStats{}
	}
	for typ, s := range byType {
		stats.ByType[typ] = TypeStats{Count: s.Count, Bytes: s.Bytes}
		stats.TotalCount += s.Count
		stats.TotalBytes += s.Bytes
	}

	if last, err := c.db.GetLastSweep(ctx); err == nil {
		stats.LastSweep = last
	}
	if last, err := c.db.GetLastEviction(ctx); err == nil {
		stats.LastEviction = last
	}
	return stats, nil
}

// Clear removes every artifact set that has no pending work.
func (c *Cache) Clear(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	fps, err := c.db.ListFingerprints(ctx)
	if err != nil {
		return result, err
	}

	seen := make(map[fingerprint.Fingerprint]struct{}, len(fps))
	for _, s := range fps {
		fp := fingerprint.Fingerprint(s)
		seen[fp] = struct{}{}
		c.removeFingerprint(ctx, fp, &result)
	}
	for _, fp := range c.diskFingerprints() {
		if _, ok := seen[fp]; !ok {
			c.removeFingerprint(ctx, fp, &result)
		}
	}

	c.log.Info("Cleared %d artifact sets (%d skipped, %d errors)", result.Removed, result.Skipped, result.Errors)
	return result, nil
}
