package fakeserve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"servecheck/internal/supervisor"
)

// Launcher runs a Server in-process behind the supervisor's Launcher interface.
// Start fails when either address cannot be bound, like a real server would.
type Launcher struct {
	Server         *Server
	InferenceAddr  string
	ManagementAddr string

	mu      sync.Mutex
	servers []*http.Server
	starts  int
	stops   int
}

var _ supervisor.Launcher = (*Launcher)(nil)

// NewLauncher binds srv to the host:port of the given endpoint URLs.
func NewLauncher(srv *Server, inferenceURL, managementURL string) (*Launcher, error) {
	inf, err := addrOf(inferenceURL)
	if err != nil {
		return nil, err
	}
	mgmt, err := addrOf(managementURL)
	if err != nil {
		return nil, err
	}
	return &Launcher{Server: srv, InferenceAddr: inf, ManagementAddr: mgmt}, nil
}

func addrOf(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse endpoint %q: %w", raw, err)
	}
	if u.Port() == "" {
		return "", fmt.Errorf("endpoint %q needs an explicit port", raw)
	}
	return u.Host, nil
}

func (l *Launcher) Start(_ context.Context, spec supervisor.LaunchSpec) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.servers) > 0 {
		return errors.New("server is already running")
	}
	infL, err := net.Listen("tcp", l.InferenceAddr)
	if err != nil {
		return fmt.Errorf("bind inference address: %w", err)
	}
	mgmtL, err := net.Listen("tcp", l.ManagementAddr)
	if err != nil {
		_ = infL.Close()
		return fmt.Errorf("bind management address: %w", err)
	}
	l.Server.Reset()
	inf := &http.Server{Handler: l.Server.InferenceHandler(), ReadHeaderTimeout: 5 * time.Second}
	mgmt := &http.Server{Handler: l.Server.ManagementHandler(), ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = inf.Serve(infL) }()
	go func() { _ = mgmt.Serve(mgmtL) }()
	l.servers = []*http.Server{inf, mgmt}
	l.starts++
	if spec.LogFile != "" {
		if f, err := os.OpenFile(spec.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			fmt.Fprintf(f, "%s stub server started store=%s gpus=%d inference=%s management=%s\n",
				time.Now().Format(time.RFC3339), spec.StoreDir, spec.GPUs, l.InferenceAddr, l.ManagementAddr)
			_ = f.Close()
		}
	}
	return nil
}

func (l *Launcher) Stop(ctx context.Context) error {
	l.mu.Lock()
	servers := l.servers
	l.servers = nil
	l.mu.Unlock()
	if len(servers) == 0 {
		return errors.New("server is not running")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var errs []error
	for _, s := range servers {
		if err := s.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	l.mu.Lock()
	l.stops++
	l.mu.Unlock()
	return errors.Join(errs...)
}

// Counts reports how many times Start and Stop succeeded in launching/stopping.
func (l *Launcher) Counts() (starts, stops int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.starts, l.stops
}
