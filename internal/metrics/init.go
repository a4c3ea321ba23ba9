package metrics

// InitializeMetrics pre-populates expected label combinations so every
// series is exported from the first scrape. Call once at startup.
func InitializeMetrics() {
	for _, file := range []string{"main", "wal", "shm"} {
		DBSizeBytes.WithLabelValues(file)
	}

	volumes := []string{"content", "cache", "data", "unknown"}
	for _, vol := range volumes {
		for _, op := range []string{"stat", "open", "write", "remove"} {
			FilesystemOperationDuration.WithLabelValues(vol, op)
			FilesystemOperationErrors.WithLabelValues(vol, op)
		}
		for _, op := range []string{"stat", "open"} {
			FilesystemRetryAttempts.WithLabelValues(op, vol)
			FilesystemRetrySuccess.WithLabelValues(op, vol)
			FilesystemRetryFailures.WithLabelValues(op, vol)
			FilesystemStaleErrors.WithLabelValues(op, vol)
		}
	}

	for _, t := range []string{"pdf", "thumbnail"} {
		for _, result := range []string{"hit", "miss", "pending", "failed"} {
			CacheLookupsTotal.WithLabelValues(t, result)
		}
		CacheJobsJoinedTotal.WithLabelValues(t)
		CacheEntries.WithLabelValues(t)
		CacheSizeBytes.WithLabelValues(t)
	}

	for _, status := range []string{"success", "failed", "timeout", "unavailable"} {
		ConversionsTotal.WithLabelValues(status)
	}

	for _, res := range []string{"small", "medium", "large"} {
		for _, status := range []string{"success", "failed", "timeout"} {
			ThumbnailRendersTotal.WithLabelValues(res, status)
		}
	}

	for _, trigger := range []string{"startup", "watcher", "periodic", "manual"} {
		IndexerRunsTotal.WithLabelValues(trigger)
	}

	for _, kind := range []string{"slide-deck", "word-document", "pdf", "markdown"} {
		LibraryFilesTotal.WithLabelValues(kind)
	}

	for _, ev := range []string{"create", "write", "remove", "rename"} {
		WatcherEventsTotal.WithLabelValues(ev)
	}
	for _, status := range []string{"success", "error"} {
		WatcherRescansTotal.WithLabelValues(status)
	}

	HubEventsPublishedTotal.WithLabelValues("tree_changed")

	for _, op := range []string{"initialize_schema", "get_artifact", "put_artifact", "delete_artifact",
		"touch_artifact", "list_artifacts", "lru_candidates", "artifact_stats", "delete_fingerprint"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}
