package controller

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"tailscale.com/tsweb"

	"github.com/banshee-data/hilsim/internal/httputil"
	"github.com/banshee-data/hilsim/internal/transport"
)

// AttachAdminRoutes attaches debugging endpoints to mux under /debug/. The
// tsweb debugger only admits loopback and Tailscale clients.
func (c *Controller) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("hil-status", "HIL controller status (JSON)", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w, http.MethodGet)
			return
		}
		httputil.WriteJSONOK(w, c.Status())
	})

	// Writes hex-encoded bytes straight to the device.
	debug.HandleSilentFunc("send-raw-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w, http.MethodPost)
			return
		}
		raw := strings.Join(strings.Fields(r.FormValue("hex")), "")
		if raw == "" {
			httputil.WriteJSONError(w, http.StatusBadRequest, "Missing hex payload")
			return
		}
		payload, err := hex.DecodeString(raw)
		if err != nil {
			httputil.WriteJSONError(w, http.StatusBadRequest, "Invalid hex payload")
			return
		}
		if err := c.SendRaw(payload); err != nil {
			if errors.Is(err, transport.ErrNotConnected) {
				httputil.WriteJSONError(w, http.StatusServiceUnavailable, "Not connected")
				return
			}
			httputil.WriteJSONError(w, http.StatusInternalServerError, "Failed to write payload")
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote %d bytes", len(payload)))
	})

	debug.HandleSilentFunc("control-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w, http.MethodPost)
			return
		}
		switch action := r.FormValue("action"); action {
		case "start":
			c.Start()
		case "stop":
			c.Stop()
		case "reset-stats":
			c.session.ResetStats()
		default:
			httputil.WriteJSONError(w, http.StatusBadRequest, fmt.Sprintf("Unknown action %q", action))
			return
		}
		httputil.WriteJSONOK(w, c.Status())
	})

	// Server-sent events, one JSON telemetry record per tick.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w, http.MethodGet)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			httputil.WriteJSONError(w, http.StatusInternalServerError, "Streaming unsupported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		id, ch := c.Subscribe()
		defer c.Unsubscribe(id)

		io.WriteString(w, ": ping\n\n")
		flusher.Flush()

		for {
			select {
			case tel, ok := <-ch:
				if !ok {
					return
				}
				// NaN accelerations from a zero-length tick cannot be encoded.
				data, err := json.Marshal(tel)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
