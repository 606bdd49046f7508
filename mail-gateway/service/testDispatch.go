package service

import (
	"net/http"
	"strconv"

	"github.com/cadiot/hub/mail-gateway/uri"
)

type testDispatchView struct {
	DeviceID string `json:"deviceId"`
	Via      string `json:"via"`
	Status   int    `json:"status"`
}

// TestDispatch triggers a device without a mailbox event. Gated by a
// feature flag; resolves the target from ?deviceId= or the ?relay=1|2|3
// shorthand.
func (h *RequestHandler) TestDispatch(w http.ResponseWriter, r *http.Request) {
	if !h.config.Dispatch.TestEndpointEnabled {
		writeError(w, http.StatusForbidden, "test_dispatch_disabled")
		return
	}

	deviceID := r.URL.Query().Get(uri.DeviceIDQueryKey)
	if deviceID == "" {
		if n, err := strconv.Atoi(r.URL.Query().Get(uri.RelayQueryKey)); err == nil {
			deviceID, _ = h.executor.Routes().ResolveRelayNumber(n)
		}
	}
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "no_device_resolvable")
		return
	}

	result, err := h.executor.TriggerDevice(r.Context(), deviceID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "dispatch_failed")
		return
	}
	writeJSON(w, http.StatusOK, testDispatchView{
		DeviceID: deviceID,
		Via:      string(result.Transport),
		Status:   result.Status,
	})
}
