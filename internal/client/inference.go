package client

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// DefaultInferTimeout bounds a single prediction call.
const DefaultInferTimeout = 120 * time.Second

// InferenceOutcome is the result of one sample.
type InferenceOutcome struct {
	SamplePath string
	Status     int
	Body       []byte
	Err        error
}

// InferenceClient calls the prediction endpoint.
type InferenceClient struct {
	baseURL string
	hc      *http.Client
	timeout time.Duration
	log     zerolog.Logger
}

// NewInferenceClient constructs a client for the inference endpoint. A zero
// timeout uses DefaultInferTimeout.
func NewInferenceClient(baseURL string, timeout time.Duration, log zerolog.Logger) *InferenceClient {
	if timeout <= 0 {
		timeout = DefaultInferTimeout
	}
	return &InferenceClient{
		baseURL: baseURL,
		hc:      newHTTPClient(),
		timeout: timeout,
		log:     log.With().Str("component", "inference").Logger(),
	}
}

// Infer posts the sample file as the request body to /predictions/{servedName}.
// Any non-200 answer or transport failure is returned as an *InferenceError; the
// outcome is filled in either way.
func (c *InferenceClient) Infer(ctx context.Context, servedName, samplePath string) (InferenceOutcome, error) {
	out := InferenceOutcome{SamplePath: samplePath}
	data, err := os.ReadFile(samplePath)
	if err != nil {
		out.Err = &InferenceError{ServedName: servedName, SamplePath: samplePath, Err: err}
		return out, out.Err
	}
	u, err := joinURL(c.baseURL, "/predictions/"+url.PathEscape(servedName), nil)
	if err != nil {
		out.Err = &InferenceError{ServedName: servedName, SamplePath: samplePath, Err: err}
		return out, out.Err
	}
	c.log.Debug().Str("model", servedName).Str("sample", samplePath).Int("bytes", len(data)).Msg("running inference")
	status, body, err := do(ctx, c.hc, c.timeout, http.MethodPost, u, bytes.NewReader(data), "application/octet-stream")
	out.Status = status
	out.Body = body
	if err != nil {
		out.Err = &InferenceError{ServedName: servedName, SamplePath: samplePath, Status: status, Err: err}
		return out, out.Err
	}
	if status != http.StatusOK {
		out.Err = &InferenceError{ServedName: servedName, SamplePath: samplePath, Status: status, Body: excerpt(body)}
		return out, out.Err
	}
	return out, nil
}

// Ping probes the inference endpoint's /ping.
func (c *InferenceClient) Ping(ctx context.Context, timeout time.Duration) bool {
	return Ping(ctx, c.hc, c.baseURL, timeout)
}
