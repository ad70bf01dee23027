package api

import (
	"net/http"

	"github.com/Priya8975/capi-relay/internal/commerce"
	"github.com/Priya8975/capi-relay/internal/domain"
	"github.com/Priya8975/capi-relay/internal/tracker"
)

// CommerceHandler turns storefront objects into standard events.
type CommerceHandler struct {
	tracker *tracker.Tracker
}

func NewCommerceHandler(t *tracker.Tracker) *CommerceHandler {
	return &CommerceHandler{tracker: t}
}

type productRequest struct {
	Product  commerce.Product `json:"product"`
	Quantity int              `json:"quantity"`
	Currency string           `json:"currency"`
	sendOptions
}

type checkoutRequest struct {
	EventName string        `json:"event_name"`
	Cart      commerce.Cart `json:"cart"`
	Currency  string        `json:"currency"`
	sendOptions
}

type purchaseRequest struct {
	Order commerce.Order `json:"order"`
	sendOptions
}

type searchRequest struct {
	Query string `json:"query"`
	sendOptions
}

func (h *CommerceHandler) ViewContent(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	data, err := commerce.ViewContent(req.Product, req.Currency)
	h.send(w, r, "ViewContent", data, err, req.sendOptions)
}

func (h *CommerceHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	data, err := commerce.AddToCart(req.Product, req.Quantity, req.Currency)
	h.send(w, r, "AddToCart", data, err, req.sendOptions)
}

// Checkout tracks InitiateCheckout (the default) or AddPaymentInfo.
func (h *CommerceHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EventName == "" {
		req.EventName = "InitiateCheckout"
	}

	data, err := commerce.Checkout(req.EventName, req.Cart, req.Currency)
	h.send(w, r, req.EventName, data, err, req.sendOptions)
}

// Purchase tracks a completed order once. Repeats answer 409.
func (h *CommerceHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sync := wantsSync(r)
	result, err := h.tracker.TrackPurchase(r.Context(), req.Context.resolve(r), req.Order, req.options(), !sync)
	respondResult(w, result, err, sync)
}

func (h *CommerceHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	data, err := commerce.Search(req.Query)
	h.send(w, r, "Search", data, err, req.sendOptions)
}

// send forwards built custom data to the tracker.
func (h *CommerceHandler) send(w http.ResponseWriter, r *http.Request, name string, data domain.CustomData, buildErr error, opts sendOptions) {
	if buildErr != nil {
		respondResult(w, domain.DispatchResult{}, buildErr, false)
		return
	}

	rc := opts.Context.resolve(r)
	if wantsSync(r) {
		result, err := h.tracker.NormalizeAndSend(r.Context(), rc, name, data, opts.UserData, opts.options())
		respondResult(w, result, err, true)
		return
	}
	result, err := h.tracker.Enqueue(r.Context(), rc, name, data, opts.UserData, opts.options())
	respondResult(w, result, err, false)
}
