// Package api exposes HTTP handlers for the swim activity service.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"example.com/swimlog/internal/auth"
	"example.com/swimlog/internal/domain"
	"example.com/swimlog/internal/export"
	"example.com/swimlog/internal/fitimport"
	"example.com/swimlog/internal/observability"
	"example.com/swimlog/internal/persistence"
)

const (
	defaultFeedLimit = 20
	maxImportBody    = 10 << 20
	maxFITBody       = 20 << 20
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service  *domain.Service
	logger   *slog.Logger
	location *time.Location
	now      func() time.Time
	printer  *message.Printer
}

// Option customises a Handler.
type Option func(*Handler)

// WithLogger overrides the handler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithLocation sets the zone FIT uploads are dated in.
func WithLocation(loc *time.Location) Option {
	return func(h *Handler) {
		if loc != nil {
			h.location = loc
		}
	}
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, opts ...Option) *Handler {
	h := &Handler{
		service:  service,
		logger:   slog.Default().With("component", "api"),
		location: time.Local,
		now:      time.Now,
		printer:  message.NewPrinter(language.English),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/activities", h.activities)
	mux.HandleFunc("/v1/activities/", h.activitySubtree)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listActivities(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) activitySubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/activities/")
	switch rest {
	case "":
		writeError(w, http.StatusBadRequest, "invalid_request", "missing activity id")
	case "feed":
		h.onlyGet(w, r, h.feed)
	case "summary":
		h.onlyGet(w, r, h.summary)
	case "weekly":
		h.onlyGet(w, r, h.weekly)
	case "export.parquet":
		h.onlyGet(w, r, h.exportParquet)
	case "import":
		h.onlyPost(w, r, h.importRecords)
	case "import/fit":
		h.onlyPost(w, r, h.importFIT)
	default:
		if strings.Contains(rest, "/") {
			writeError(w, http.StatusNotFound, "not_found", "unknown route")
			return
		}
		switch r.Method {
		case http.MethodGet:
			h.getActivity(w, r, rest)
		case http.MethodDelete:
			h.deleteActivity(w, r, rest)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		}
	}
}

func (h *Handler) onlyGet(w http.ResponseWriter, r *http.Request, fn http.HandlerFunc) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	fn(w, r)
}

func (h *Handler) onlyPost(w http.ResponseWriter, r *http.Request, fn http.HandlerFunc) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	fn(w, r)
}

// authorize resolves the caller and checks scope. Write access implies read access.
func authorize(w http.ResponseWriter, r *http.Request, scope string) (domain.Owner, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return domain.Owner{}, false
	}
	allowed := claims.HasScope(scope)
	if scope == auth.ScopeActivitiesRead {
		allowed = allowed || claims.HasScope(auth.ScopeActivitiesWrite)
	}
	if !allowed {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return domain.Owner{}, false
	}
	return auth.Owner(claims), true
}

func (h *Handler) historyQuery(w http.ResponseWriter, r *http.Request) (domain.HistoryQuery, bool) {
	params := r.URL.Query()
	feeling, err := domain.ParseFeelingFilter(params.Get("feeling"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return domain.HistoryQuery{}, false
	}
	return domain.HistoryQuery{
		Search:  params.Get("q"),
		Feeling: feeling,
		Sort:    domain.ParseSortKey(params.Get("sort")),
	}, true
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	owner, ok := authorize(w, r, auth.ScopeActivitiesRead)
	if !ok {
		return
	}
	query, ok := h.historyQuery(w, r)
	if !ok {
		return
	}

	activities, err := h.service.History(r.Context(), owner, query)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	items := make([]ActivityView, 0, len(activities))
	for _, a := range activities {
		items = append(items, toActivityView(a))
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{Items: items, Count: len(items)})
}

func (h *Handler) feed(w http.ResponseWriter, r *http.Request) {
	owner, ok := authorize(w, r, auth.ScopeActivitiesRead)
	if !ok {
		return
	}

	limit := defaultFeedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	activities, next, err := h.service.ListPage(r.Context(), owner, cursor, limit)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	items := make([]ActivityView, 0, len(activities))
	for _, a := range activities {
		items = append(items, toActivityView(a))
	}
	writeJSON(w, http.StatusOK, FeedResponse{Items: items, NextCursor: persistence.EncodeCursor(next)})
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request, id string) {
	owner, ok := authorize(w, r, auth.ScopeActivitiesRead)
	if !ok {
		return
	}
	activity, err := h.service.GetActivity(r.Context(), owner, id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) deleteActivity(w http.ResponseWriter, r *http.Request, id string) {
	owner, ok := authorize(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}
	if err := h.service.DeleteActivity(r.Context(), owner, id); err != nil {
		h.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	owner, ok := authorize(w, r, auth.ScopeActivitiesRead)
	if !ok {
		return
	}
	summary, err := h.service.Summary(r.Context(), owner)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SummaryResponse{
		Summary:            summary,
		TotalDurationLabel: domain.FormatMinutes(summary.TotalDurationMinutes),
	})
}

func (h *Handler) weekly(w http.ResponseWriter, r *http.Request) {
	owner, ok := authorize(w, r, auth.ScopeActivitiesRead)
	if !ok {
		return
	}
	report, err := h.service.Weekly(r.Context(), owner, h.now())
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, WeeklyResponse{
		WeeklyReport: report,
		Label:        h.weeklyLabel(report),
	})
}

// weeklyLabel renders e.g. "2,500 of 5,000 m (50.0%), 1h 15m of 2h".
func (h *Handler) weeklyLabel(report domain.WeeklyReport) string {
	distance := h.printer.Sprintf("%d m", report.Stats.TotalDistance)
	if report.Target.TargetDistance > 0 {
		distance = h.printer.Sprintf("%d of %d m (%.1f%%)", report.Stats.TotalDistance, report.Target.TargetDistance, report.DistanceProgress)
	}
	duration := domain.FormatMinutes(report.Stats.TotalDurationMinutes)
	if targetMinutes := int(report.Target.TargetTimeHours * 60); targetMinutes > 0 {
		duration = fmt.Sprintf("%s of %s", duration, domain.FormatMinutes(targetMinutes))
	}
	return distance + ", " + duration
}

func (h *Handler) exportParquet(w http.ResponseWriter, r *http.Request) {
	owner, ok := authorize(w, r, auth.ScopeActivitiesRead)
	if !ok {
		return
	}
	query, ok := h.historyQuery(w, r)
	if !ok {
		return
	}
	activities, err := h.service.History(r.Context(), owner, query)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	data, err := export.Parquet(activities)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="swimlog-activities.parquet"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ImportRequest is the payload for POST /v1/activities/import.
type ImportRequest struct {
	Activities []domain.Record `json:"activities"`
}

func (h *Handler) importRecords(w http.ResponseWriter, r *http.Request) {
	owner, ok := authorize(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxImportBody))
	dec.UseNumber()
	var req ImportRequest
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if len(req.Activities) == 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "activities must not be empty")
		return
	}

	h.runImport(w, r, "api", owner, req.Activities)
}

func (h *Handler) importFIT(w http.ResponseWriter, r *http.Request) {
	owner, ok := authorize(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFITBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "invalid_request", "fit file too large")
		return
	}
	record, err := fitimport.Decode(bytes.NewReader(body), h.location)
	switch {
	case errors.Is(err, fitimport.ErrNotSwimming), errors.Is(err, fitimport.ErrNoSession):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	h.runImport(w, r, "fit", owner, []domain.Record{record})
}

func (h *Handler) runImport(w http.ResponseWriter, r *http.Request, source string, owner domain.Owner, records []domain.Record) {
	result, err := h.service.ImportRecords(r.Context(), owner, records)
	observability.RecordImport(source, len(result.Imported), result.RejectionReasons(), h.now())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	resp := ImportResponse{
		Imported:   len(result.Imported),
		Activities: make([]ActivityView, 0, len(result.Imported)),
		Rejected:   make([]RejectionView, 0, len(result.Rejected)),
	}
	for _, a := range result.Imported {
		resp.Activities = append(resp.Activities, toActivityView(a))
	}
	for _, rej := range result.Rejected {
		resp.Rejected = append(resp.Rejected, RejectionView{
			Index:  rej.Index,
			Reason: domain.RejectionReason(rej.Err),
			Detail: rej.Err.Error(),
		})
	}

	status := http.StatusCreated
	if resp.Imported == 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

// handleError maps service errors onto responses; anything unexpected is a 500 and goes to Sentry.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrActivityNotFound):
		writeError(w, http.StatusNotFound, "not_found", "activity not found")
	case errors.Is(err, domain.ErrInvalidOwner):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		observability.CaptureError(err, r, map[string]string{"component": "api"})
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

// ActivityView is an activity with its derived display values.
type ActivityView struct {
	domain.Activity
	Pace          string `json:"pace"`
	DurationLabel string `json:"duration_label"`
}

// ListActivitiesResponse packages history results.
type ListActivitiesResponse struct {
	Items []ActivityView `json:"items"`
	Count int            `json:"count"`
}

// FeedResponse is one page of the activity feed.
type FeedResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// SummaryResponse wraps the aggregate with a readable total.
type SummaryResponse struct {
	domain.Summary
	TotalDurationLabel string `json:"total_duration_label"`
}

// WeeklyResponse wraps the weekly report with a readable progress line.
type WeeklyResponse struct {
	domain.WeeklyReport
	Label string `json:"label"`
}

// RejectionView describes one record the import could not use.
type RejectionView struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
	Detail string `json:"detail"`
}

// ImportResponse reports the outcome of an import.
type ImportResponse struct {
	Imported   int             `json:"imported"`
	Activities []ActivityView  `json:"activities"`
	Rejected   []RejectionView `json:"rejected"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toActivityView(a domain.Activity) ActivityView {
	return ActivityView{
		Activity:      a,
		Pace:          a.Pace(),
		DurationLabel: domain.FormatMinutes(a.DurationMinutes),
	}
}
