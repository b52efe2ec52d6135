package dispatcher

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

const maxCallbackBytes = 4 << 20

// HTTPHandler accepts gateway callbacks posted to the client's callback URL.
// It replies 202 when a pending handler ran, 200 with dispatched=false for an
// unknown correlation identifier and 400 for a payload it cannot decode.
func (d *Dispatcher) HTTPHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBytes))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		ack := d.HandleCallback(IngressHTTP, body)
		status := http.StatusOK
		switch {
		case !ack.Ok:
			status = http.StatusBadRequest
		case ack.Dispatched:
			status = http.StatusAccepted
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(ack); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to encode acknowledgement: %v", logPrefix, err))
		}
	})
}
