package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wuzuhao/regions-data/internal/region"
	"github.com/wuzuhao/regions-data/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// Handler serves region lookups from the dataset held in storage.
type Handler struct {
	storage storage.Storage
	clock   func() time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(store storage.Storage, opts ...HandlerOption) *Handler {
	h := &Handler{
		storage: store,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	if updated := h.storage.UpdatedAt(); !updated.IsZero() {
		resp.DatasetUpdatedAt = &updated
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleProvinces(w http.ResponseWriter, r *http.Request) {
	ds, ok := h.dataset(w)
	if !ok {
		return
	}
	_ = r

	writeJSON(w, http.StatusOK, toRegionResponses(ds, ds.Provinces()))
}

func (h *Handler) handleChildren(w http.ResponseWriter, r *http.Request) {
	code, ok := parseCodeParam(w, r.PathValue("parentCode"))
	if !ok {
		return
	}
	ds, ok := h.dataset(w)
	if !ok {
		return
	}

	parent, err := ds.Lookup(code)
	if err != nil {
		writeLookupError(w, err)
		return
	}
	children, adapted, err := ds.AdaptedChildren(code)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	resp := childrenResponse{
		Parent:   toRegionResponse(ds, parent),
		Adapted:  adapted,
		Children: toRegionResponses(ds, children),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRegion(w http.ResponseWriter, r *http.Request) {
	code, ok := parseCodeParam(w, r.PathValue("code"))
	if !ok {
		return
	}
	ds, ok := h.dataset(w)
	if !ok {
		return
	}

	path, err := ds.Path(code)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	resp := regionDetailResponse{
		Region: toRegionResponse(ds, path[len(path)-1]),
		Path:   toRegionResponses(ds, path),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "Invalid request", "query parameter q is required")
		return
	}

	limit := defaultSearchLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid request", "limit must be a positive integer")
			return
		}
		limit = min(value, maxSearchLimit)
	}

	ds, ok := h.dataset(w)
	if !ok {
		return
	}

	resp := searchResponse{
		Query:   query,
		Results: toRegionResponses(ds, ds.Search(query, limit)),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	_ = r
	ds, ok := h.dataset(w)
	if !ok {
		return
	}

	stats := ds.Stats()
	resp := statsResponse{
		Provinces: stats.Provinces,
		Cities:    stats.Cities,
		Counties:  stats.Counties,
		Towns:     stats.Towns,
		Villages:  stats.Villages,
		Total:     stats.Total,
		UpdatedAt: h.storage.UpdatedAt(),
	}
	writeJSON(w, http.StatusOK, resp)
}

// dataset fetches the dataset in service, writing an error response when
// none is available.
func (h *Handler) dataset(w http.ResponseWriter) (*region.Dataset, bool) {
	ds, err := h.storage.Current()
	if err != nil {
		if errors.Is(err, storage.ErrNotLoaded) {
			writeError(w, http.StatusServiceUnavailable, "Data unavailable", err.Error(), "Retry once the region dataset has been loaded")
			return nil, false
		}
		writeInternalError(w, err)
		return nil, false
	}
	return ds, true
}

func parseCodeParam(w http.ResponseWriter, raw string) (region.Code, bool) {
	code, err := region.ParseCode(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid region code", err.Error(), "Use a 6, 9 or 12 digit division code such as 110000")
		return "", false
	}
	return code, true
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, region.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Region not found", err.Error())
		return
	}
	writeInternalError(w, err)
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type regionResponse struct {
	Code           string       `json:"code"`
	Name           string       `json:"name"`
	Level          region.Level `json:"level"`
	ParentCode     string       `json:"parentCode,omitempty"`
	IsMunicipality bool         `json:"isMunicipality,omitempty"`
	Leaf           bool         `json:"leaf"`
}

type childrenResponse struct {
	Parent   regionResponse   `json:"parent"`
	Adapted  bool             `json:"adapted"`
	Children []regionResponse `json:"children"`
}

type regionDetailResponse struct {
	Region regionResponse   `json:"region"`
	Path   []regionResponse `json:"path"`
}

type searchResponse struct {
	Query   string           `json:"query"`
	Results []regionResponse `json:"results"`
}

type statsResponse struct {
	Provinces int       `json:"provinces"`
	Cities    int       `json:"cities"`
	Counties  int       `json:"counties"`
	Towns     int       `json:"towns"`
	Villages  int       `json:"villages"`
	Total     int       `json:"total"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type healthResponse struct {
	Status           string     `json:"status"`
	Timestamp        time.Time  `json:"timestamp"`
	DatasetUpdatedAt *time.Time `json:"datasetUpdatedAt,omitempty"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func toRegionResponse(ds *region.Dataset, reg region.Region) regionResponse {
	resp := regionResponse{
		Code:           reg.Code.Short(),
		Name:           reg.Name,
		Level:          reg.Level,
		IsMunicipality: reg.Code.IsMunicipality(),
		Leaf:           !ds.HasChildren(reg.Code),
	}
	if reg.ParentCode != "" {
		resp.ParentCode = reg.ParentCode.Short()
	}
	return resp
}

func toRegionResponses(ds *region.Dataset, regions []region.Region) []regionResponse {
	out := make([]regionResponse, 0, len(regions))
	for _, reg := range regions {
		out = append(out, toRegionResponse(ds, reg))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
