// Package apigen is the REST-API generator collaborator named in spec.md
// §6: given one device's ActionInventory, it builds an http.Handler with
// one POST route per SoapAction plus the fixed `/init`, `/status`,
// `/actions` routes, delegating every invocation to the Control Engine.
// A Server struct holds its collaborators and wires them into a
// chi.Router, with a shared writeJSON helper for every response.
package apigen

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/upnp-cli/upnptoolkit/internal/control"
	"github.com/upnp-cli/upnptoolkit/internal/upnpmodel"
)

// Invoker is the subset of *control.Engine that Generate needs, so tests
// can substitute a stub instead of standing up a full Engine.
type Invoker interface {
	Invoke(ctx context.Context, req control.Request) control.Result
}

// Server generates and serves the REST facade over one device's action
// inventory.
type Server struct {
	device    upnpmodel.Device
	match     upnpmodel.ProfileMatch
	inventory upnpmodel.ActionInventory
	engine    Invoker
	status    string
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Generate builds the REST handler for a single device: `POST
// /{service}/{action}` per SoapAction in inventory, plus `/init` (moves the
// status from "ready" to "initialized" and returns the device summary),
// `/status` (health probe),
// and `/actions` (lists the full inventory), per SPEC_FULL.md §6.
func Generate(device upnpmodel.Device, match upnpmodel.ProfileMatch, inventory upnpmodel.ActionInventory, engine Invoker) http.Handler {
	s := &Server{device: device, match: match, inventory: inventory, engine: engine, status: "ready"}

	r := chi.NewRouter()
	r.Get("/status", s.handleStatus)
	r.Post("/init", s.handleInit)
	r.Get("/actions", s.handleActions)

	for serviceName, actions := range inventory {
		for actionName := range actions {
			route := "/" + serviceName + "/" + actionName
			r.Post(route, s.handleAction(serviceName, actionName))
		}
	}

	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           s.status,
		"friendly_name":    s.device.FriendlyName,
		"primary_protocol": string(primaryProtocolName(s.match)),
	})
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	s.status = "initialized"
	writeJSON(w, http.StatusOK, map[string]any{
		"device": s.device,
		"status": s.status,
	})
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.inventory)
}

func (s *Server) handleAction(serviceName, actionName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var args map[string]string
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
				return
			}
		}

		req := control.Request{
			Device:       s.device,
			ProfileMatch: s.match,
			ActionName:   serviceName + "#" + actionName,
			Arguments:    args,
		}
		result := s.engine.Invoke(r.Context(), req)

		// Per spec.md §6, the response body is a JSON object keyed by
		// output argument names; failures report the error object instead.
		if result.Status == control.StatusFailed {
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": result.Error})
			return
		}
		writeJSON(w, http.StatusOK, result.Outputs)
	}
}

func primaryProtocolName(match upnpmodel.ProfileMatch) upnpmodel.Protocol {
	if match.Profile == nil {
		return upnpmodel.ProtocolUnknown
	}
	switch {
	case match.Profile.Cast != nil:
		return upnpmodel.ProtocolCast
	case match.Profile.WAM != nil:
		return upnpmodel.ProtocolWAM
	case match.Profile.ECP != nil:
		return upnpmodel.ProtocolECP
	default:
		return upnpmodel.ProtocolUPnP
	}
}
