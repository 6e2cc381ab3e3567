package fakeserve

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"servecheck/pkg/types"
)

func do(t *testing.T, h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	h.ServeHTTP(rr, req)
	return rr
}

func TestPing(t *testing.T) {
	s := New(Options{})
	rr := do(t, s.InferenceHandler(), http.MethodGet, "/ping", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("ping status=%d", rr.Code)
	}
	var st types.StatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil || st.Status != "Healthy" {
		t.Fatalf("unexpected ping body %q err=%v", rr.Body.String(), err)
	}
}

func TestRegisterListUnregister(t *testing.T) {
	s := New(Options{})
	mgmt := s.ManagementHandler()

	if rr := do(t, mgmt, http.MethodPost, "/models", nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing url: status=%d", rr.Code)
	}
	if rr := do(t, mgmt, http.MethodPost, "/models?url=resnet50.mar&initial_workers=1&synchronous=true", nil); rr.Code != http.StatusOK {
		t.Fatalf("register status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr := do(t, mgmt, http.MethodPost, "/models?url=resnet50.mar", nil); rr.Code != http.StatusConflict {
		t.Fatalf("duplicate register status=%d", rr.Code)
	}

	rr := do(t, mgmt, http.MethodGet, "/models/", nil)
	var list types.ModelsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Models) != 1 || list.Models[0].ModelName != "resnet50" || list.Models[0].ModelURL != "resnet50.mar" {
		t.Fatalf("unexpected list %+v", list)
	}
	if got := testutil.ToFloat64(registeredModels); got != 1 {
		t.Fatalf("registered_models=%v", got)
	}

	if rr := do(t, mgmt, http.MethodDelete, "/models/resnet50", nil); rr.Code != http.StatusOK {
		t.Fatalf("unregister status=%d", rr.Code)
	}
	if rr := do(t, mgmt, http.MethodDelete, "/models/resnet50", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("second unregister status=%d", rr.Code)
	}
	if len(s.Models()) != 0 {
		t.Fatalf("expected no models, got %+v", s.Models())
	}
}

func TestManagement_ForcedStatuses(t *testing.T) {
	s := New(Options{RegisterStatus: http.StatusConflict, UnregisterStatus: http.StatusInternalServerError})
	mgmt := s.ManagementHandler()
	if rr := do(t, mgmt, http.MethodPost, "/models?url=resnet50.mar", nil); rr.Code != http.StatusConflict {
		t.Fatalf("register status=%d", rr.Code)
	}
	if len(s.Models()) != 0 {
		t.Fatalf("rejected registration must not be stored")
	}
	if rr := do(t, mgmt, http.MethodDelete, "/models/resnet50", nil); rr.Code != http.StatusInternalServerError {
		t.Fatalf("unregister status=%d", rr.Code)
	}
}

func TestRegister_CustomServedName(t *testing.T) {
	s := New(Options{ServedName: func(string) string { return "squeezenet1_1" }})
	mgmt := s.ManagementHandler()
	if rr := do(t, mgmt, http.MethodPost, "/models?url=squeezenet-v2.mar", nil); rr.Code != http.StatusOK {
		t.Fatalf("register status=%d", rr.Code)
	}
	if rr := do(t, mgmt, http.MethodPost, "/models?url=other.mar&model_name=explicit", nil); rr.Code != http.StatusOK {
		t.Fatalf("register status=%d", rr.Code)
	}
	models := s.Models()
	if len(models) != 2 || models[0].ModelName != "explicit" || models[1].ModelName != "squeezenet1_1" {
		t.Fatalf("unexpected models %+v", models)
	}
}

func TestPredict(t *testing.T) {
	s := New(Options{Predict: func(model string, body []byte) (int, []byte) {
		if strings.Contains(string(body), "bad") {
			return http.StatusInternalServerError, []byte(`{"code":500}`)
		}
		return http.StatusOK, []byte(`{"label":"cat"}`)
	}})
	inf := s.InferenceHandler()
	if rr := do(t, inf, http.MethodPost, "/predictions/resnet50", []byte("img")); rr.Code != http.StatusNotFound {
		t.Fatalf("unregistered predict status=%d", rr.Code)
	}
	do(t, s.ManagementHandler(), http.MethodPost, "/models?url=resnet50.mar", nil)
	before := testutil.ToFloat64(predictionsTotal.WithLabelValues("resnet50", "200"))
	rr := do(t, inf, http.MethodPost, "/predictions/resnet50", []byte("img"))
	if rr.Code != http.StatusOK || rr.Body.String() != `{"label":"cat"}` {
		t.Fatalf("predict status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr := do(t, inf, http.MethodPost, "/predictions/resnet50", []byte("bad")); rr.Code != http.StatusInternalServerError {
		t.Fatalf("failing predict status=%d", rr.Code)
	}
	if got := testutil.ToFloat64(predictionsTotal.WithLabelValues("resnet50", "200")) - before; got != 1 {
		t.Fatalf("predictions_total delta=%v", got)
	}
	preds := s.Predictions()
	if len(preds) != 3 || preds[1].Bytes != 3 || preds[2].Status != http.StatusInternalServerError {
		t.Fatalf("unexpected predictions %+v", preds)
	}
}

func TestReset(t *testing.T) {
	s := New(Options{})
	do(t, s.ManagementHandler(), http.MethodPost, "/models?url=a.mar", nil)
	s.Reset()
	if len(s.Models()) != 0 {
		t.Fatalf("expected reset to drop models")
	}
}

func TestDefaultServedName(t *testing.T) {
	cases := map[string]string{
		"resnet50.mar":                     "resnet50",
		"https://host/models/densenet.mar": "densenet",
		"noext":                            "noext",
	}
	for in, want := range cases {
		if got := DefaultServedName(in); got != want {
			t.Fatalf("DefaultServedName(%q)=%q want %q", in, got, want)
		}
	}
}

func TestMetricsHandler_UsesRoutePattern(t *testing.T) {
	s := New(Options{})
	do(t, s.ManagementHandler(), http.MethodDelete, "/models/ghost", nil)
	rr := do(t, s.MetricsHandler(), http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status=%d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "servestub_http_requests_total") {
		t.Fatalf("expected request counter in metrics output")
	}
	if !strings.Contains(body, `path="/models/{name}"`) {
		t.Fatalf("expected route pattern label, not raw path")
	}
}
