package service

import (
	"net/http"

	"github.com/cadiot/hub/mail-gateway/mailbox"
)

type subscriptionsView struct {
	Count int                    `json:"count"`
	Items []mailbox.Subscription `json:"items"`
}

// ListSubscriptions returns the provider subscriptions owned by this
// gateway.
func (h *RequestHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.subs.ListSubscriptions(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "provider_unreachable")
		return
	}
	if subs == nil {
		subs = []mailbox.Subscription{}
	}
	writeJSON(w, http.StatusOK, subscriptionsView{Count: len(subs), Items: subs})
}
