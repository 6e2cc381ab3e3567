package cli

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"servecheck/internal/client"
)

func freeURL(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return "http://" + l.Addr().String()
}

func hostOf(u string) string { return strings.TrimPrefix(u, "http://") }

func pingOK(u string) bool {
	return client.Ping(context.Background(), nil, u, 200*time.Millisecond)
}
