package service

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/patrickmn/go-cache"

	"github.com/cadiot/hub/mail-gateway/events"
	"github.com/cadiot/hub/mail-gateway/uri"
	"github.com/cadiot/hub/pkg/log"
)

const (
	auditWebhookEmptyBody   = "empty_body"
	auditWebhookInvalidJSON = "invalid_json"
	auditLifecycleEvent     = "lifecycle_event"
	auditMissingIDs         = "missing_ids"
	auditSkipNonMessage     = "skip_non_message"
)

type okBody struct {
	OK bool `json:"ok"`
}

// writeValidationToken completes the provider's handshake: status 200,
// plain text, the exact token as the body. It short-circuits all other
// processing and must finish well under the provider's handshake timeout.
func writeValidationToken(w http.ResponseWriter, token string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(token)); err != nil {
		log.Errorf("failed to write validation token: %v", err)
	}
}

// Notifications is the webhook endpoint called by the mailbox provider.
// It never returns a server error: providers disable a subscription after
// repeated failed deliveries, so unexpected failures are converted to a 200
// response carrying an error marker.
func (h *RequestHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	if token := r.URL.Query().Get(uri.ValidationTokenQueryKey); token != "" {
		writeValidationToken(w, token)
		return
	}

	// Buffer the whole body once; it serves both the handshake fallback and
	// the main processing.
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Errorf("cannot read webhook body: %v", err)
		body = nil
	}

	if len(body) == 0 {
		h.sink.Record(auditWebhookEmptyBody, nil)
		writeError(w, http.StatusBadRequest, auditWebhookEmptyBody)
		return
	}

	var notification events.NotificationBody
	if err := json.Unmarshal(body, &notification); err != nil {
		h.sink.Record(auditWebhookInvalidJSON, map[string]interface{}{
			"error": err.Error(),
		})
		writeError(w, http.StatusBadRequest, auditWebhookInvalidJSON)
		return
	}

	if notification.ValidationToken != "" {
		writeValidationToken(w, notification.ValidationToken)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("webhook processing panicked: %v", rec)
			writeJSON(w, http.StatusOK, errorBody{OK: false, Error: fmt.Sprintf("%v", rec)})
		}
	}()

	h.processBatch(r, notification.Value)
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

// processBatch handles notification items independently: one bad item never
// aborts the batch. Items dispatch concurrently, bounded by the pool.
func (h *RequestHandler) processBatch(r *http.Request, items []events.Notification) {
	var wg sync.WaitGroup
	for _, item := range items {
		item := item
		if item.LifecycleEvent != "" {
			h.sink.Record(auditLifecycleEvent, map[string]interface{}{
				"event":          item.LifecycleEvent,
				"subscriptionId": item.SubscriptionID,
			})
			continue
		}

		resolution := item.Resolve(h.config.Dispatch.DefaultMailbox)
		switch resolution.Status {
		case events.NonMessage:
			h.sink.Record(auditSkipNonMessage, map[string]interface{}{
				"resource": item.Resource,
			})
			continue
		case events.MissingIDs:
			h.sink.Record(auditMissingIDs, map[string]interface{}{
				"resource": item.Resource,
			})
			continue
		case events.Resolved:
		}

		dedupKey := item.SubscriptionID + ":" + resolution.Ref.MessageID
		if err := h.seen.Add(dedupKey, struct{}{}, cache.DefaultExpiration); err != nil {
			log.Debugf("suppressing duplicate delivery of %v", resolution.Ref.MessageID)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.dispatchPool.Acquire(r.Context(), 1); err != nil {
				return
			}
			defer h.dispatchPool.Release(1)
			h.executor.Execute(r.Context(), resolution.Ref)
		}()
	}
	wg.Wait()
}
