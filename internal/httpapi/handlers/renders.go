package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pagepress/internal/auth"
	"pagepress/internal/export"
	"pagepress/internal/httpkit"
	apperrors "pagepress/internal/pkg/errors"
	"pagepress/internal/pkg/middleware"
	"pagepress/internal/ports"
	"pagepress/internal/render"
	"pagepress/internal/repositories"
)

// PostRender renders the posted URL and streams the PDF back. Once the
// first byte is out the status is fixed, so a later failure aborts the
// connection instead of writing an error body.
func (h *Handler) PostRender(w http.ResponseWriter, r *http.Request) {
	user, err := auth.CurrentPrincipal(r)
	if err != nil {
		middleware.HandleError(w, r, h.log, err)
		return
	}

	body, err := httpkit.ReadBody(r, h.maxBody)
	if err != nil {
		middleware.HandleError(w, r, h.log, apperrors.InvalidInput("could not read request body").WithField("reason", err.Error()))
		return
	}
	req, err := render.ParseRequest(body)
	if err != nil {
		middleware.HandleError(w, r, h.log, err)
		return
	}

	sink := newResponseSink(w)
	if _, err := h.renderer.Generate(r.Context(), user.ID, req.URL, sink); err != nil {
		if !sink.Started() {
			sink.discard()
			middleware.HandleError(w, r, h.log, err)
			return
		}
		panic(http.ErrAbortHandler)
	}
}

type renderItem struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// ListRenders returns the principal's records, newest first.
func (h *Handler) ListRenders(w http.ResponseWriter, r *http.Request) error {
	user, err := auth.CurrentPrincipal(r)
	if err != nil {
		return err
	}

	limit := repositories.DefaultListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			return apperrors.InvalidInputf("limit must be a positive integer, got %q", raw).WithField("field", "limit")
		}
		limit = min(v, repositories.MaxListLimit)
	}

	recs, err := h.records.ListByOwner(r.Context(), user.ID, limit)
	if err != nil {
		return apperrors.Wrap(err, "handlers.ListRenders", "failed to list renders")
	}

	items := make([]renderItem, 0, len(recs))
	for _, rec := range recs {
		items = append(items, renderItem{
			ID:        rec.ID,
			URL:       rec.SourceURL,
			Path:      export.DownloadPath(rec.ID),
			CreatedAt: rec.CreatedAt,
		})
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"items": items, "limit": limit})
	return nil
}

// GetRenderContent streams a stored PDF owned by the principal.
func (h *Handler) GetRenderContent(w http.ResponseWriter, r *http.Request) error {
	user, err := auth.CurrentPrincipal(r)
	if err != nil {
		return err
	}
	id := chi.URLParam(r, "renderId")

	rec, err := h.records.GetForOwner(r.Context(), user.ID, id)
	if errors.Is(err, repositories.ErrRecordNotFound) {
		return apperrors.NotFound("render", id)
	}
	if err != nil {
		return apperrors.Wrap(err, "handlers.GetRenderContent", "failed to load render")
	}

	rc, info, err := h.sp.Open(r.Context(), rec.StoragePath)
	if errors.Is(err, ports.ErrObjectNotFound) {
		return apperrors.NotFound("render content", id)
	}
	if err != nil {
		return apperrors.Wrapf(err, "handlers.GetRenderContent", "failed to open render %s", id)
	}
	defer rc.Close()

	ct := info.ContentType
	if ct == "" {
		ct = render.ContentType
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.pdf"`)
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if _, err := io.Copy(w, rc); err != nil {
		h.log.FromContext(r.Context()).Warn("render download interrupted", "render_id", id, "error", err.Error())
	}
	return nil
}

// ExportRenders returns the principal's history as an XLSX workbook.
func (h *Handler) ExportRenders(w http.ResponseWriter, r *http.Request) error {
	user, err := auth.CurrentPrincipal(r)
	if err != nil {
		return err
	}

	b, err := h.exporter.RenderHistoryXLSX(r.Context(), user.ID)
	if err != nil {
		return apperrors.Wrap(err, "handlers.ExportRenders", "failed to export renders")
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="renders.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
	return nil
}
