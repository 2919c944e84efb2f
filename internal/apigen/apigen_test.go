package apigen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/upnp-cli/upnptoolkit/internal/control"
	"github.com/upnp-cli/upnptoolkit/internal/upnpmodel"
)

type stubInvoker struct {
	lastReq control.Request
	result  control.Result
}

func (s *stubInvoker) Invoke(ctx context.Context, req control.Request) control.Result {
	s.lastReq = req
	return s.result
}

func testInventory() upnpmodel.ActionInventory {
	return upnpmodel.ActionInventory{
		"renderingcontrol": {
			"SetVolume": upnpmodel.SoapAction{Name: "SetVolume"},
		},
	}
}

func TestGenerateRoutesActionToInvoker(t *testing.T) {
	invoker := &stubInvoker{result: control.Result{Status: control.StatusOK, Outputs: map[string]string{}}}
	handler := Generate(upnpmodel.Device{FriendlyName: "Living Room"}, upnpmodel.ProfileMatch{}, testInventory(), invoker)

	body := `{"InstanceID":"0","DesiredVolume":"30"}`
	req := httptest.NewRequest(http.MethodPost, "/renderingcontrol/SetVolume", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if invoker.lastReq.ActionName != "renderingcontrol#SetVolume" {
		t.Fatalf("expected qualified action name, got %q", invoker.lastReq.ActionName)
	}
	if invoker.lastReq.Arguments["DesiredVolume"] != "30" {
		t.Fatalf("expected decoded argument, got %+v", invoker.lastReq.Arguments)
	}
}

func TestGenerateReturnsOutputArgumentsAsResponseBody(t *testing.T) {
	invoker := &stubInvoker{result: control.Result{Status: control.StatusOK, Outputs: map[string]string{"CurrentVolume": "30"}}}
	handler := Generate(upnpmodel.Device{}, upnpmodel.ProfileMatch{}, testInventory(), invoker)

	req := httptest.NewRequest(http.MethodPost, "/renderingcontrol/SetVolume", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var out map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	if out["CurrentVolume"] != "30" {
		t.Fatalf("expected output arguments keyed body, got %+v", out)
	}
}

func TestGenerateMapsFailedStatusToBadGateway(t *testing.T) {
	invoker := &stubInvoker{result: control.Result{Status: control.StatusFailed, Error: &upnpmodel.Error{Kind: upnpmodel.KindTimeout}}}
	handler := Generate(upnpmodel.Device{}, upnpmodel.ProfileMatch{}, testInventory(), invoker)

	req := httptest.NewRequest(http.MethodPost, "/renderingcontrol/SetVolume", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestStatusRouteReportsReady(t *testing.T) {
	handler := Generate(upnpmodel.Device{FriendlyName: "Kitchen"}, upnpmodel.ProfileMatch{}, testInventory(), &stubInvoker{})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding status body: %v", err)
	}
	if out["status"] != "ready" {
		t.Fatalf("expected status ready before /init, got %v", out["status"])
	}
}

func TestActionsRouteListsInventory(t *testing.T) {
	handler := Generate(upnpmodel.Device{}, upnpmodel.ProfileMatch{}, testInventory(), &stubInvoker{})

	req := httptest.NewRequest(http.MethodGet, "/actions", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var out upnpmodel.ActionInventory
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding actions body: %v", err)
	}
	if _, ok := out["renderingcontrol"]["SetVolume"]; !ok {
		t.Fatalf("expected SetVolume in listed inventory, got %+v", out)
	}
}
