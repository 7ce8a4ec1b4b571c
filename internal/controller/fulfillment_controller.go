package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/charityng-backend/internal/service"
)

// FulfillmentController serves pledges and their message threads. The
// sender of a message is always the authenticated principal; sender fields
// in request bodies are not read.
type FulfillmentController struct {
	Fulfillments *service.FulfillmentService
}

func (c *FulfillmentController) CreatePledge(w http.ResponseWriter, r *http.Request) {
	var body service.PledgeInput
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	f, err := c.Fulfillments.CreatePledge(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "id"), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (c *FulfillmentController) CreateSinglePledge(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Quantity int    `json:"quantity"`
		Message  string `json:"message"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	f, err := c.Fulfillments.CreateSinglePledge(r.Context(), PrincipalFrom(r.Context()),
		chi.URLParam(r, "id"), chi.URLParam(r, "resourceId"), body.Quantity, body.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (c *FulfillmentController) ListMine(w http.ResponseWriter, r *http.Request) {
	list, err := c.Fulfillments.ListByUser(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (c *FulfillmentController) ListMineByCampaign(w http.ResponseWriter, r *http.Request) {
	list, err := c.Fulfillments.ListOwnByCampaign(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (c *FulfillmentController) ListByResource(w http.ResponseWriter, r *http.Request) {
	list, err := c.Fulfillments.ListByResource(r.Context(), PrincipalFrom(r.Context()),
		chi.URLParam(r, "id"), chi.URLParam(r, "resourceId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (c *FulfillmentController) Get(w http.ResponseWriter, r *http.Request) {
	f, err := c.Fulfillments.Get(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (c *FulfillmentController) SendMessage(w http.ResponseWriter, r *http.Request) {
	var body service.MessageInput
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	m, err := c.Fulfillments.SendMessage(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "id"), body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (c *FulfillmentController) MarkRead(w http.ResponseWriter, r *http.Request) {
	n, err := c.Fulfillments.MarkRead(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"marked": n})
}

func (c *FulfillmentController) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body statusBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	status, err := body.value()
	if err != nil {
		writeError(w, r, err)
		return
	}

	f, err := c.Fulfillments.UpdateStatus(r.Context(), PrincipalFrom(r.Context()), chi.URLParam(r, "id"), status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}
