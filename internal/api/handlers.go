package api

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/meowtion/sensor/internal/apperr"
	"github.com/meowtion/sensor/internal/checksum"
	"github.com/meowtion/sensor/internal/imaging"
	"github.com/meowtion/sensor/internal/match"
	"github.com/meowtion/sensor/internal/oracle"
	"github.com/meowtion/sensor/internal/roster"
	"github.com/meowtion/sensor/internal/sightings"
	"github.com/meowtion/sensor/internal/sse"
)

const maxImageBody = 15 << 20

// Handler holds API route handlers.
type Handler struct {
	matcher *match.Matcher
	oracle  oracle.Client
	encoder *imaging.Encoder
	roster  *roster.Roster
	store   *sightings.Store
	broker  *sse.Broker
}

// NewHandler creates a new Handler.
func NewHandler(matcher *match.Matcher, client oracle.Client, encoder *imaging.Encoder, r *roster.Roster, store *sightings.Store, broker *sse.Broker) *Handler {
	return &Handler{
		matcher: matcher,
		oracle:  client,
		encoder: encoder,
		roster:  r,
		store:   store,
		broker:  broker,
	}
}

// decodeImageBody validates a base64 payload + declared MIME type and
// returns the raw bytes. Malformed input is the caller's fault, so any
// failure here maps to a 400.
func decodeImageBody(data, mimeType string) ([]byte, bool) {
	if data == "" || mimeType == "" {
		return nil, false
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil || len(raw) == 0 {
		return nil, false
	}
	return raw, true
}

// upstreamStatus maps a pipeline failure to a transport status. Internal
// detail is logged server-side; the caller only sees a short stable
// message, never raw oracle payloads.
func (h *Handler) writePipelineError(w http.ResponseWriter, op string, err error) {
	slog.Error(op+" failed", slog.String("error", err.Error()))
	if apperr.IsUpstream(err) {
		writeJSON(w, http.StatusBadGateway, errorBody("upstream AI service failure"))
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}

// Match handles POST /api/match: runs the full known-cat matching pipeline
// against the submitted image.
func (h *Handler) Match(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBody)
	var req MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	raw, ok := decodeImageBody(req.UserImageBase64, req.UserImageMimeType)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("userImageBase64 and userImageMimeType are required and must decode"))
		return
	}

	img, err := h.encoder.Encode(r.Context(), imaging.BlobSource{Bytes: raw, MediaType: req.UserImageMimeType})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("unsupported image content"))
		return
	}
	result, err := h.matcher.FindMatchEncoded(r.Context(), img)
	if err != nil {
		h.writePipelineError(w, "match", err)
		return
	}
	if result.IsMatch {
		h.broker.Publish(sse.Event{Type: "match.completed", Data: map[string]any{
			"matchedCatName": result.MatchedCatName,
			"confidence":     result.Confidence,
		}})
	}
	writeJSON(w, http.StatusOK, result)
}

// Identify handles POST /api/identify: single-shot breed classification.
func (h *Handler) Identify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBody)
	var req IdentifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	raw, ok := decodeImageBody(req.ImageBase64, req.ImageMimeType)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("imageBase64 and imageMimeType are required and must decode"))
		return
	}

	img, err := h.encoder.Encode(r.Context(), imaging.BlobSource{Bytes: raw, MediaType: req.ImageMimeType})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("unsupported image content"))
		return
	}
	analysis, err := oracle.IdentifyBreed(r.Context(), h.oracle, img)
	if err != nil {
		h.writePipelineError(w, "identify", err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// ListCats handles GET /api/cats.
func (h *Handler) ListCats(w http.ResponseWriter, _ *http.Request) {
	cats := h.roster.Cats()
	out := make([]CatSummary, len(cats))
	for i, c := range cats {
		out[i] = CatSummary{Name: c.Name, ImageCount: len(c.Images)}
	}
	writeJSON(w, http.StatusOK, CatListResponse{Cats: out})
}

// CreateSighting handles POST /api/sightings.
func (h *Handler) CreateSighting(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBody)
	var req CreateSightingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Caption == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("caption is required"))
		return
	}
	if req.CatName != "" {
		cat, known := h.roster.Find(req.CatName)
		if !known {
			writeJSON(w, http.StatusBadRequest, errorBody("unknown cat name"))
			return
		}
		// Store the roster casing so map-pin refreshes join on it.
		req.CatName = cat.Name
	}
	if (req.Lat == nil) != (req.Lng == nil) {
		writeJSON(w, http.StatusBadRequest, errorBody("lat and lng must be provided together"))
		return
	}

	sg := sightings.Sighting{
		CatName:    req.CatName,
		UserName:   req.UserName,
		Caption:    req.Caption,
		Lat:        req.Lat,
		Lng:        req.Lng,
		Confidence: req.Confidence,
	}
	if req.ImageBase64 != "" {
		raw, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil || len(raw) == 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("imageBase64 must be valid base64"))
			return
		}
		// The image itself is not stored; the digest links the post to the
		// upload for dedupe on the client side.
		sg.ImageChecksum = checksum.Sum(raw)
	}
	created, err := h.store.Add(sg)
	if err != nil {
		slog.Error("create sighting failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	h.broker.PublishSighting(created.CatName, created.Lat != nil && created.Lng != nil)
	writeJSON(w, http.StatusCreated, created)
}

// ListSightings handles GET /api/sightings.
func (h *Handler) ListSightings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.store.List(limit, offset)
	if err != nil {
		slog.Error("list sightings failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, SightingListResponse{Sightings: items, Total: total})
}

// Locations handles GET /api/locations.
func (h *Handler) Locations(w http.ResponseWriter, _ *http.Request) {
	locs, err := h.store.Locations()
	if err != nil {
		slog.Error("locations failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if locs == nil {
		locs = []sightings.Location{}
	}
	writeJSON(w, http.StatusOK, LocationListResponse{Locations: locs})
}
