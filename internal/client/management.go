package client

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"servecheck/internal/registry"
	"servecheck/pkg/types"
)

// ParamsSource resolves registration parameters for a model name.
// *registry.Registry satisfies it (including a nil registry).
type ParamsSource interface {
	ServingParams(name string) registry.ServingParams
}

// RegistrationResult names the model as the server serves it.
type RegistrationResult struct {
	ServedName string
	ArchiveID  string
}

// ManagementClient drives the serving process's management API.
type ManagementClient struct {
	baseURL string
	hc      *http.Client
	timeout time.Duration
	params  ParamsSource
	log     zerolog.Logger
}

// NewManagementClient constructs a client for the management endpoint.
func NewManagementClient(baseURL string, timeout time.Duration, params ParamsSource, log zerolog.Logger) *ManagementClient {
	return &ManagementClient{
		baseURL: baseURL,
		hc:      newHTTPClient(),
		timeout: timeout,
		params:  params,
		log:     log.With().Str("component", "management").Logger(),
	}
}

// Register registers archiveID synchronously using the registry's serving
// parameters for modelName. The served name is assumed to be modelName; callers
// serving a pre-built archive resolve it with ResolveServedName.
func (c *ManagementClient) Register(ctx context.Context, modelName, archiveID string) (RegistrationResult, error) {
	p := registry.DefaultServingParams()
	if c.params != nil {
		p = c.params.ServingParams(modelName)
	}
	q := url.Values{}
	q.Set("url", archiveID)
	q.Set("initial_workers", strconv.Itoa(p.InitialWorkers))
	q.Set("batch_size", strconv.Itoa(p.BatchSize))
	q.Set("max_batch_delay", strconv.FormatInt(p.MaxBatchDelay.Milliseconds(), 10))
	q.Set("response_timeout", strconv.Itoa(ceilSeconds(p.ResponseTimeout)))
	q.Set("synchronous", "true")
	u, err := joinURL(c.baseURL, "/models", q)
	if err != nil {
		return RegistrationResult{}, &RegistrationError{ModelName: modelName, Err: err}
	}
	c.log.Info().Str("model", modelName).Str("archive", archiveID).Int("workers", p.InitialWorkers).Int("batch_size", p.BatchSize).Msg("registering model")
	timeout := c.timeout
	if p.ResponseTimeout > timeout {
		timeout = p.ResponseTimeout
	}
	status, body, err := do(ctx, c.hc, timeout, http.MethodPost, u, nil, "")
	if err != nil {
		return RegistrationResult{}, &RegistrationError{ModelName: modelName, Err: err}
	}
	if status != http.StatusOK {
		return RegistrationResult{}, &RegistrationError{ModelName: modelName, Status: status, Body: excerpt(body)}
	}
	return RegistrationResult{ServedName: modelName, ArchiveID: archiveID}, nil
}

// ListModels returns a map from archive identifier to served model name. Paginated
// listings are followed to the end.
func (c *ManagementClient) ListModels(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	token := ""
	for {
		var q url.Values
		if token != "" {
			q = url.Values{"next_page_token": []string{token}}
		}
		u, err := joinURL(c.baseURL, "/models/", q)
		if err != nil {
			return nil, err
		}
		status, body, err := do(ctx, c.hc, c.timeout, http.MethodGet, u, nil, "")
		if err != nil {
			return nil, fmt.Errorf("list models: %w", err)
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("list models: http %d: %s", status, excerpt(body))
		}
		var resp types.ModelsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("decode model list: %w", err)
		}
		for _, m := range resp.Models {
			out[m.ModelURL] = m.ModelName
		}
		if resp.NextPageToken == "" || resp.NextPageToken == token {
			return out, nil
		}
		token = resp.NextPageToken
	}
}

// ResolveServedName finds the name the server registered archiveID under.
func (c *ManagementClient) ResolveServedName(ctx context.Context, modelName, archiveID string) (string, error) {
	models, err := c.ListModels(ctx)
	if err != nil {
		return "", &RegistrationError{ModelName: modelName, Err: err}
	}
	if name, ok := models[archiveID]; ok {
		return name, nil
	}
	// Servers may report the full URL or path the archive was loaded from.
	for u, name := range models {
		if path.Base(u) == archiveID {
			return name, nil
		}
	}
	return "", &RegistrationError{ModelName: modelName, Err: fmt.Errorf("archive %s not found in served models", archiveID)}
}

// Unregister removes servedName from the server. A failure comes back as an
// *UnregistrationWarning.
func (c *ManagementClient) Unregister(ctx context.Context, servedName string) error {
	u, err := joinURL(c.baseURL, "/models/"+url.PathEscape(servedName), nil)
	if err != nil {
		return &UnregistrationWarning{ServedName: servedName, Err: err}
	}
	c.log.Info().Str("model", servedName).Msg("unregistering model")
	status, _, err := do(ctx, c.hc, c.timeout, http.MethodDelete, u, nil, "")
	if err != nil {
		return &UnregistrationWarning{ServedName: servedName, Err: err}
	}
	if status != http.StatusOK {
		return &UnregistrationWarning{ServedName: servedName, Status: status}
	}
	return nil
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}
