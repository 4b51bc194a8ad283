package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/thoughtnest/pkg/contact"
	"github.com/platinummonkey/thoughtnest/pkg/httputil"
)

// ContactHandlers handles the public contact form
type ContactHandlers struct {
	contact  ContactService
	limit    limitFunc
	maxBytes int64
}

// RegisterRoutes registers the contact route
func (h *ContactHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/api/contact", h.limit.apply(scopeContact, jsonBody(h.maxBytes, h.submit))).Methods(http.MethodPost)
}

// submit handles POST /api/contact
func (h *ContactHandlers) submit(w http.ResponseWriter, r *http.Request) {
	var req contact.Request
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if _, err := h.contact.Submit(r.Context(), req); err != nil {
		httputil.WriteAppError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, "Message sent successfully", nil)
}
