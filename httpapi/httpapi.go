// Package httpapi implements the thin HTTP control-plane façade:
// GET/POST /{device}/{name} triggers a lighting scene or reads a DHT
// sensor, always answering in JSON. It is glue onto hub.Hub, not part of
// the protocol core.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/GoAethereal/cancel"
	"github.com/blackdog70/SimpleDude/hub"
	"github.com/blackdog70/SimpleDude/logging"
)

// Handler serves the device routes over h.
type Handler struct {
	hub *hub.Hub
	log logging.Logger
}

// New returns a Handler backed by h. If log is nil, errors are
// discarded.
func New(h *hub.Hub, log logging.Logger) *Handler {
	if log == nil {
		log = logging.Discard{}
	}
	return &Handler{hub: h, log: log}
}

// ServeHTTP dispatches GET and POST /{device}/{name}; every other method
// or path shape is a 4xx.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	device, name, ok := splitPath(r.URL.Path)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown device or scene")
		return
	}
	switch r.Method {
	case http.MethodGet, http.MethodPost:
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	hasLight, hasDHT, known := h.hub.Capabilities(device)
	if !known {
		writeError(w, http.StatusNotFound, "unknown device")
		return
	}

	switch {
	case hasLight:
		h.serveScene(w, r, device, name)
	case hasDHT:
		h.serveDHT(w, device)
	default:
		writeError(w, http.StatusNotFound, "device has neither LIGHT nor DHT capability")
	}
}

// sceneResponse is the {"state": bool} body of a scene trigger.
type sceneResponse struct {
	State bool `json:"state"`
}

// dhtResponse is the {"temperature": ..., "humidity": ...} body of a
// sensor read.
type dhtResponse struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

func (h *Handler) serveScene(w http.ResponseWriter, r *http.Request, device, scene string) {
	ctx := cancel.New()
	defer ctx.Cancel()

	overlap, ok, err := h.hub.TriggerScene(ctx, device, scene)
	if err != nil {
		h.log.Errorf("httpapi: trigger %s/%s: %v", device, scene, err)
		writeError(w, http.StatusBadGateway, "device did not respond")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "unknown scene")
		return
	}
	writeJSON(w, http.StatusOK, sceneResponse{State: overlap})
}

func (h *Handler) serveDHT(w http.ResponseWriter, device string) {
	temp, humidity, ok := h.hub.ReadDHT(device)
	if !ok {
		writeError(w, http.StatusNotFound, "no DHT reading yet")
		return
	}
	writeJSON(w, http.StatusOK, dhtResponse{Temperature: temp, Humidity: humidity})
}

// splitPath parses "/{device}/{name}" into its two segments; a path with
// any other shape is rejected.
func splitPath(path string) (device, name string, ok bool) {
	trimmed := strings.Trim(path, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
