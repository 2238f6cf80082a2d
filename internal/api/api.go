// Package api serves the derived tables as JSON under /api/v1.
package api

import (
	"net/http"
	"strconv"

	"enigh/internal/errors"
	"enigh/internal/integration"
	"enigh/internal/logging"
	"enigh/internal/report"
	"enigh/internal/tablecache"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"
)

// Handler holds the API dependencies.
type Handler struct {
	reports  *report.Service
	fallback *tablecache.Cache
	logger   zerolog.Logger
}

// NewHandler creates the API handler. Requests without a session cache in
// their context read through fallback.
func NewHandler(reports *report.Service, fallback *tablecache.Cache) *Handler {
	if fallback == nil {
		fallback = tablecache.New(nil, nil)
	}
	return &Handler{
		reports:  reports,
		fallback: fallback,
		logger:   logging.Component("api"),
	}
}

// Routes returns the API router, relative to its mount point.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/tables", h.listTables)
	r.Get("/tables/{file}/summary", h.tableSummary)
	r.Get("/centrality/top", h.topCentrality)
	r.Get("/family/distribution", h.familyDistribution)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.fail(w, r, errors.NotFound(r.URL.Path))
	})
	return r
}

func (h *Handler) source(r *http.Request) report.Source {
	if c, ok := tablecache.FromContext(r.Context()); ok {
		return c
	}
	return h.fallback
}

func (h *Handler) listTables(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"year":   h.reports.Settings().Year,
		"tables": h.reports.KnownOutputs(),
	})
}

func (h *Handler) tableSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reports.Summarize(h.source(r), chi.URLParam(r, "file"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, summary)
}

func (h *Handler) topCentrality(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	metric, ok := report.ParseMetric(q.Get("metric"))
	if !ok && q.Get("metric") != "" {
		h.fail(w, r, errors.InvalidInput("metric must be one of grado, betweenness, closeness"))
		return
	}

	n := report.TopN
	if raw := q.Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			h.fail(w, r, errors.InvalidInput("n must be a positive integer"))
			return
		}
		if v < n {
			n = v
		}
	}

	top, err := h.reports.TopCentrality(h.source(r), metric, n)
	if err != nil {
		h.fail(w, r, asNotFound(err, report.CentralityFile))
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"metric": metric,
		"top":    top,
	})
}

func (h *Handler) familyDistribution(w http.ResponseWriter, r *http.Request) {
	table, opt, err := h.reports.MasterTable(h.source(r), report.DatasetSummary)
	if err != nil {
		h.fail(w, r, asNotFound(err, opt.File))
		return
	}
	dist, err := integration.DistributionOf(table)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"year":         h.reports.Settings().Year,
		"file":         opt.File,
		"distribution": dist,
	})
}

// asNotFound maps a missing or unusable backing file to NOT_FOUND.
func asNotFound(err error, file string) error {
	if errors.HasCode(err, errors.CodeInvalidInput) {
		return err
	}
	return errors.WithCode(errors.CodeNotFound, errors.Wrapf(err, "%s unavailable", file))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("api request failed")
	}
	render.Status(r, status)
	render.JSON(w, r, map[string]string{
		"error": err.Error(),
		"code":  errors.GetCode(err),
	})
}

func statusOf(err error) int {
	switch errors.GetCode(err) {
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
