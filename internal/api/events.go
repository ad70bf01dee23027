package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Priya8975/capi-relay/internal/commerce"
	"github.com/Priya8975/capi-relay/internal/domain"
	"github.com/Priya8975/capi-relay/internal/tracker"
)

type EventHandler struct {
	tracker *tracker.Tracker
}

func NewEventHandler(t *tracker.Tracker) *EventHandler {
	return &EventHandler{tracker: t}
}

// sendOptions are the per-call fields shared by the event and commerce
// endpoints.
type sendOptions struct {
	EventID       string           `json:"event_id,omitempty"`
	TestEventCode string           `json:"test_event_code,omitempty"`
	Source        string           `json:"source,omitempty"`
	UserData      *domain.UserData `json:"user_data,omitempty"`
	Context       visitorContext   `json:"context"`
}

func (o sendOptions) options() tracker.SendOptions {
	return tracker.SendOptions{EventID: o.EventID, TestCode: o.TestEventCode, Source: o.Source}
}

type trackEventRequest struct {
	EventName  string            `json:"event_name"`
	CustomData domain.CustomData `json:"custom_data"`
	sendOptions
}

type trackEventResponse struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}

type validateRequest struct {
	EventName  string            `json:"event_name"`
	CustomData domain.CustomData `json:"custom_data"`
}

type validateResponse struct {
	Valid bool   `json:"valid"`
	Field string `json:"field,omitempty"`
	Error string `json:"error,omitempty"`
}

type eventIDRequest struct {
	EventName string `json:"event_name"`
}

type eventIDResponse struct {
	EventID string `json:"event_id"`
}

// Track normalizes and sends one event. By default the send happens in the
// background and the call returns 202 with the event id; ?sync=true waits
// and returns the DispatchResult.
func (h *EventHandler) Track(w http.ResponseWriter, r *http.Request) {
	var req trackEventRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EventName == "" {
		respondError(w, http.StatusBadRequest, "event_name is required")
		return
	}

	rc := req.Context.resolve(r)
	if wantsSync(r) {
		result, err := h.tracker.NormalizeAndSend(r.Context(), rc, req.EventName, req.CustomData, req.UserData, req.options())
		respondResult(w, result, err, true)
		return
	}

	result, err := h.tracker.Enqueue(r.Context(), rc, req.EventName, req.CustomData, req.UserData, req.options())
	respondResult(w, result, err, false)
}

// Validate reports whether an event would be accepted without sending it.
func (h *EventHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.tracker.Validate(req.EventName, req.CustomData); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			respondJSON(w, http.StatusOK, validateResponse{Field: verr.Field, Error: verr.Error()})
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to validate event")
		return
	}

	respondJSON(w, http.StatusOK, validateResponse{Valid: true})
}

// NewEventID mints an id to share between the browser Pixel and the server
// copy of an event.
func (h *EventHandler) NewEventID(w http.ResponseWriter, r *http.Request) {
	var req eventIDRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := h.tracker.NewEventID(req.EventName)
	if err != nil {
		respondValidation(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, eventIDResponse{EventID: id})
}

func wantsSync(r *http.Request) bool {
	sync, _ := strconv.ParseBool(r.URL.Query().Get("sync"))
	return sync
}

// respondResult maps a tracker outcome to a response. Send failures are not
// HTTP errors: sync callers get the DispatchResult as-is.
func respondResult(w http.ResponseWriter, result domain.DispatchResult, err error, sync bool) {
	switch {
	case errors.Is(err, commerce.ErrNoItems):
		// nothing to track for an empty cart or order
		respondJSON(w, http.StatusOK, trackEventResponse{Status: "skipped"})
		return
	case errors.Is(err, domain.ErrAlreadyTracked):
		respondError(w, http.StatusConflict, err.Error())
		return
	case domain.IsValidation(err):
		respondValidation(w, err)
		return
	case err != nil:
		respondError(w, http.StatusInternalServerError, "failed to track event")
		return
	}

	if sync {
		respondJSON(w, http.StatusOK, result)
		return
	}

	switch result.ErrorKind {
	case domain.ErrorKindDuplicate:
		respondJSON(w, http.StatusOK, trackEventResponse{EventID: result.EventID, Status: "duplicate"})
	case domain.ErrorKindDropped:
		respondJSON(w, http.StatusServiceUnavailable, trackEventResponse{EventID: result.EventID, Status: "dropped"})
	default:
		respondJSON(w, http.StatusAccepted, trackEventResponse{EventID: result.EventID, Status: "queued"})
	}
}

func respondValidation(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		respondJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: verr.Error(), Field: verr.Field})
		return
	}
	respondError(w, http.StatusUnprocessableEntity, err.Error())
}
