package fakeserve

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// requestLevel picks the level an access line is logged at. A request may raise
// or silence its own line with ?log=<level> or the X-Log-Level header.
func requestLevel(r *http.Request, def zerolog.Level) zerolog.Level {
	v := r.URL.Query().Get("log")
	if v == "" {
		v = r.Header.Get("X-Log-Level")
	}
	if v == "" {
		return def
	}
	if v == "1" {
		return zerolog.InfoLevel
	}
	if v == "off" {
		return zerolog.Disabled
	}
	lvl, err := zerolog.ParseLevel(v)
	if err != nil {
		return def
	}
	return lvl
}

// accessLog writes one line per request at debug level, or at the level the
// request asked for.
func accessLog(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			lvl := requestLevel(r, zerolog.DebugLevel)
			if lvl == zerolog.Disabled {
				return
			}
			log.WithLevel(lvl).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(start)).
				Msg("request")
		})
	}
}
