package fakeserve

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestRequestLevel(t *testing.T) {
	cases := []struct {
		url    string
		header string
		want   zerolog.Level
	}{
		{"/ping", "", zerolog.DebugLevel},
		{"/ping?log=1", "", zerolog.InfoLevel},
		{"/ping?log=warn", "", zerolog.WarnLevel},
		{"/ping?log=off", "", zerolog.Disabled},
		{"/ping", "error", zerolog.ErrorLevel},
		{"/ping?log=bogus", "", zerolog.DebugLevel},
	}
	for _, c := range cases {
		r := httptest.NewRequest(http.MethodGet, c.url, nil)
		if c.header != "" {
			r.Header.Set("X-Log-Level", c.header)
		}
		if got := requestLevel(r, zerolog.DebugLevel); got != c.want {
			t.Fatalf("%s header=%q: got %v want %v", c.url, c.header, got, c.want)
		}
	}
}

func TestAccessLog_WritesRequestLine(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.InfoLevel)
	s := New(Options{Log: log})
	h := s.InferenceHandler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if buf.Len() != 0 {
		t.Fatalf("debug access line should be filtered at info: %s", buf.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping?log=info", nil))
	out := buf.String()
	if !strings.Contains(out, `"path":"/ping"`) || !strings.Contains(out, `"status":200`) {
		t.Fatalf("missing access line: %s", out)
	}
}
