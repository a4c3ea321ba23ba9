package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gorilla/mux"

	"deckview/internal/converter"
	"deckview/internal/doctypes"
	"deckview/internal/filesystem"
	"deckview/internal/fingerprint"
	"deckview/internal/hub"
	"deckview/internal/indexer"
	"deckview/internal/streaming"
	"deckview/internal/thumbnail"
)

// MaxContentBytes bounds a Markdown save.
const MaxContentBytes = 10 << 20

// ThumbnailLink points at one page image.
type ThumbnailLink struct {
	Page int    `json:"page"`
	URL  string `json:"url"`
}

// FileInfo is the response of GET /api/library/files/{id}.
type FileInfo struct {
	indexer.SourceFile
	Status     string          `json:"status"`
	Reason     string          `json:"reason,omitempty"`
	PDFURL     string          `json:"pdf_url,omitempty"`
	PageCount  *int            `json:"page_count"`
	Thumbnails []ThumbnailLink `json:"thumbnails,omitempty"`
}

func fileURL(id fingerprint.LogicalID, suffix string) string {
	return "/api/library/files/" + string(id) + suffix
}

func sourceOf(f indexer.SourceFile) converter.Source {
	return converter.Source{Path: f.AbsPath, Kind: f.Kind}
}

// lookupFile resolves the {id} route variable. It writes a 404 and returns
// false when the id is not in the current index.
func (h *Handlers) lookupFile(w http.ResponseWriter, r *http.Request) (indexer.SourceFile, bool) {
	id := fingerprint.LogicalID(mux.Vars(r)["id"])
	f, ok := h.idx.File(id)
	if !ok {
		writeJSONError(w, "file not found", http.StatusNotFound)
		return indexer.SourceFile{}, false
	}
	return f, true
}

// GetTree returns the library tree. With refresh=true the library is
// rescanned first.
func (h *Handlers) GetTree(w http.ResponseWriter, r *http.Request) {
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		res, err := h.idx.Scan(r.Context())
		switch {
		case err == nil:
			if res.Changed {
				h.hub.Publish(hub.TreeChanged())
			}
		case errors.Is(err, context.Canceled):
			return
		case errors.Is(err, indexer.ErrRootUnavailable):
			h.log.Warn("Refresh failed: %v", err)
			writeJSONError(w, err.Error(), http.StatusServiceUnavailable)
			return
		default:
			h.log.Error("Refresh failed: %v", err)
			writeJSONError(w, "failed to scan library", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, h.idx.Tree())
}

// GetStats returns file counts of the current index.
func (h *Handlers) GetStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, h.idx.Stats())
}

// GetCacheStats returns artifact counts and sizes.
func (h *Handlers) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cache.Stats(r.Context())
	if err != nil {
		h.log.Error("Cache stats failed: %v", err)
		writeJSONError(w, "failed to read cache statistics", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, stats)
}

// TriggerReindex starts a rescan in the background.
func (h *Handlers) TriggerReindex(w http.ResponseWriter, _ *http.Request) {
	if h.idx.IsScanning() {
		writeJSONStatus(w, "already_running", "Indexing is already in progress")
		return
	}

	go func() {
		res, err := h.idx.Rescan(context.Background(), indexer.TriggerManual)
		if err != nil {
			h.log.Error("Manual reindex failed: %v", err)
			return
		}
		if res.Changed {
			h.hub.Publish(hub.TreeChanged())
		}
	}()

	writeJSONStatus(w, "started", "Re-indexing started")
}

// GetFileInfo describes one file and where its conversion stands. It never
// starts a conversion.
func (h *Handlers) GetFileInfo(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookupFile(w, r)
	if !ok {
		return
	}

	info := FileInfo{SourceFile: f, Status: converter.StateCompleted}

	if f.Kind.Renderable() {
		src := sourceOf(f)
		state, err := h.pdfs.Peek(r.Context(), src)
		if err != nil {
			h.writePipelineError(w, r, err)
			return
		}
		info.Status = state.Status
		info.Reason = state.Reason

		if state.Status == converter.StateCompleted && state.Result != nil {
			info.PDFURL = fileURL(f.ID, "/pdf")
			// Counted from the rendition Peek found; an eviction since then
			// costs the page count, never a conversion.
			if n, err := h.thumbs.PageCountOf(state.Result); err != nil {
				h.log.Warn("Page count of %s failed: %v", f.RelPath, err)
			} else {
				info.PageCount = &n
				info.Thumbnails = make([]ThumbnailLink, n)
				for i := range info.Thumbnails {
					page := i + 1
					info.Thumbnails[i] = ThumbnailLink{Page: page, URL: fileURL(f.ID, "/thumbnails/"+strconv.Itoa(page))}
				}
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, info)
}

// GetPDF serves the PDF rendition of a file, converting it on first use.
// Range requests are honored.
func (h *Handlers) GetPDF(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookupFile(w, r)
	if !ok {
		return
	}

	res, err := h.pdfs.EnsurePDF(r.Context(), sourceOf(f))
	if err != nil {
		h.writePipelineError(w, r, err)
		return
	}

	name := strings.TrimSuffix(f.Name, filepath.Ext(f.Name)) + ".pdf"
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))
	h.serveArtifact(w, r, res.PDFPath, name)
}

// GetThumbnail serves one page image. The size query parameter selects the
// resolution class.
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookupFile(w, r)
	if !ok {
		return
	}

	page, err := strconv.Atoi(mux.Vars(r)["page"])
	if err != nil {
		writeJSONError(w, "invalid page number", http.StatusBadRequest)
		return
	}
	resolution, err := thumbnail.ParseResolution(r.URL.Query().Get("size"))
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.thumbs.EnsureThumbnail(r.Context(), sourceOf(f), page, resolution)
	if err != nil {
		h.writePipelineError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	h.serveArtifact(w, r, res.Path, "")
}

// serveArtifact serves a file produced by the pipeline. The artifact can be
// evicted between resolution and open, which is reported as 503 so the
// client retries.
func (h *Handlers) serveArtifact(w http.ResponseWriter, r *http.Request, path, name string) {
	file, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		h.log.Warn("Artifact %s vanished before it could be served: %v", path, err)
		w.Header().Del("Cache-Control")
		w.Header().Del("Content-Disposition")
		writeJSONError(w, "artifact is being regenerated, retry shortly", http.StatusServiceUnavailable)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		h.log.Error("Stat of %s failed: %v", path, err)
		writeJSONError(w, "failed to read artifact", http.StatusInternalServerError)
		return
	}

	http.ServeContent(w, r, name, info.ModTime(), file)
}

// GetContent returns the raw text of a Markdown file.
func (h *Handlers) GetContent(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookupFile(w, r)
	if !ok {
		return
	}
	if f.Kind != doctypes.KindMarkdown {
		writeJSONError(w, "only Markdown files have raw content", http.StatusBadRequest)
		return
	}

	file, err := filesystem.OpenWithRetry(f.AbsPath, filesystem.DefaultRetryConfig())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			writeJSONError(w, "file not found", http.StatusNotFound)
			return
		}
		h.log.Error("Open %s failed: %v", f.AbsPath, err)
		writeJSONError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if err := streaming.StreamWithTimeout(r.Context(), w, file, streaming.DefaultTimeoutWriterConfig()); err != nil {
		h.log.Debug("Streaming %s ended early: %v", f.RelPath, err)
	}
}

// PutContent replaces the text of a Markdown file. The body must be valid
// UTF-8 and at most MaxContentBytes long.
func (h *Handlers) PutContent(w http.ResponseWriter, r *http.Request) {
	f, ok := h.lookupFile(w, r)
	if !ok {
		return
	}
	if f.Kind != doctypes.KindMarkdown {
		writeJSONError(w, "only Markdown files can be edited", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxContentBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, fmt.Sprintf("content exceeds %d MB", MaxContentBytes>>20), http.StatusRequestEntityTooLarge)
			return
		}
		writeJSONError(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if !utf8.Valid(data) {
		writeJSONError(w, "content must be UTF-8 encoded", http.StatusBadRequest)
		return
	}

	perm := os.FileMode(0o644)
	if info, err := os.Stat(f.AbsPath); err == nil {
		perm = info.Mode().Perm()
	}

	if err := filesystem.WriteFileAtomic(filepath.Dir(f.AbsPath), f.AbsPath, data, perm); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			writeJSONError(w, "no permission to write file", http.StatusForbidden)
			return
		}
		h.log.Error("Save %s failed: %v", f.RelPath, err)
		writeJSONError(w, "failed to save file", http.StatusInternalServerError)
		return
	}

	h.log.Info("Saved %s (%d bytes)", f.RelPath, len(data))
	writeJSONStatus(w, "success", "saved")
}
