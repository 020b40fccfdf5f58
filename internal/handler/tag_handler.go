package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Siddarth2230/tag-registry/internal/models"
	"github.com/Siddarth2230/tag-registry/internal/service"
	"github.com/Siddarth2230/tag-registry/pkg/tagcodec"
)

type TagHandler struct {
	service *service.TagService
	logger  *slog.Logger
}

func NewTagHandler(svc *service.TagService, logger *slog.Logger) *TagHandler {
	return &TagHandler{service: svc, logger: logger}
}

// Register mounts the tag routes on r.
func (h *TagHandler) Register(r *mux.Router) {
	r.HandleFunc("/encode/{id}", h.Encode).Methods(http.MethodGet)
	r.HandleFunc("/decode/{name}", h.Decode).Methods(http.MethodGet)
	r.HandleFunc("/tags", h.Reserve).Methods(http.MethodPost)
	r.HandleFunc("/tags", h.List).Methods(http.MethodGet)
	r.HandleFunc("/tags/{name}", h.Lookup).Methods(http.MethodGet)
	r.HandleFunc("/tags/{name}", h.Release).Methods(http.MethodDelete)
}

// GET /encode/{id} - id is decimal or 0x-prefixed hex
func (h *TagHandler) Encode(w http.ResponseWriter, r *http.Request) {
	id, err := tagcodec.ParseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tag id")
		return
	}

	name, err := h.service.Encode(id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.TagResponse{TagID: uint32(id), TagName: name})
}

// GET /decode/{name}
func (h *TagHandler) Decode(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	id, err := h.service.Decode(name)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.TagResponse{TagID: uint32(id), TagName: name})
}

// POST /tags
func (h *TagHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	var req models.ReserveRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	tag, created, err := h.service.Reserve(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	writeJSON(w, status, tag.Record())
}

// GET /tags?component=
func (h *TagHandler) List(w http.ResponseWriter, r *http.Request) {
	tags, err := h.service.List(r.Context(), r.URL.Query().Get("component"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	records := make([]models.TagRecord, 0, len(tags))
	for i := range tags {
		records = append(records, tags[i].Record())
	}
	writeJSON(w, http.StatusOK, records)
}

// GET /tags/{name}
func (h *TagHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	tag, err := h.service.Lookup(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tag.Record())
}

// DELETE /tags/{name}
func (h *TagHandler) Release(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Release(r.Context(), mux.Vars(r)["name"]); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps service errors to HTTP responses
func (h *TagHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tagcodec.ErrMalformedTagName):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tagcodec.ErrInvalidBitPattern):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrInvalidComponent):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "tag not registered")
	case errors.Is(err, service.ErrGenExhausted):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// helper: write JSON response
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	// the status line is already out, nothing useful to do with an error
	_ = json.NewEncoder(w).Encode(v)
}

// helper: write an error message in JSON form { "error": "msg" }
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
