package main_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// findFreePort picks an available TCP port on localhost.
func findFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func projectRoot(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	// <root>/cmd/servecheck/blackbox_test.go
	return filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
}

func buildBinary(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("builds the binary")
	}
	bin := filepath.Join(t.TempDir(), "servecheck")
	cmd := exec.Command("go", "build", "-o", bin, "./cmd/servecheck")
	cmd.Dir = projectRoot(t)
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(out))
	}
	return bin
}

func do(t *testing.T, method, url string, body []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func TestBlackbox_StubFlow(t *testing.T) {
	bin := buildBinary(t)
	inf := fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
	mgmt := fmt.Sprintf("127.0.0.1:%d", findFreePort(t))
	cmd := exec.Command(bin, "stub", "--inference-addr", inf, "--management-addr", mgmt, "--metrics-addr", "")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start stub: %v", err)
	}
	t.Cleanup(func() { _ = cmd.Process.Kill(); _ = cmd.Wait() })

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get("http://" + inf + "/ping")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("stub did not answer /ping in time")
		}
		time.Sleep(50 * time.Millisecond)
	}

	resp, body := do(t, http.MethodPost, "http://"+mgmt+"/models?url=resnet50.mar&initial_workers=1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register %d %s", resp.StatusCode, string(body))
	}
	resp, body = do(t, http.MethodGet, "http://"+mgmt+"/models", nil)
	var models struct {
		Models []struct {
			ModelName string `json:"modelName"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &models); err != nil || len(models.Models) != 1 || models.Models[0].ModelName != "resnet50" {
		t.Fatalf("list models: status=%d err=%v body=%s", resp.StatusCode, err, string(body))
	}
	resp, body = do(t, http.MethodPost, "http://"+inf+"/predictions/resnet50", []byte("jpeg bytes"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("predict %d %s", resp.StatusCode, string(body))
	}
	resp, body = do(t, http.MethodDelete, "http://"+mgmt+"/models/resnet50", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unregister %d %s", resp.StatusCode, string(body))
	}
	resp, _ = do(t, http.MethodDelete, "http://"+mgmt+"/models/resnet50", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second unregister expected 404, got %d", resp.StatusCode)
	}
}

func runBinary(t *testing.T, bin, dir string, args ...string) (int, string) {
	t.Helper()
	cmd := exec.Command(bin, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	var ee *exec.ExitError
	switch {
	case err == nil:
		return 0, out.String()
	case errors.As(err, &ee):
		return ee.ExitCode(), out.String()
	default:
		t.Fatalf("run %v: %v", args, err)
		return -1, ""
	}
}

func TestBlackbox_DryRun(t *testing.T) {
	bin := buildBinary(t)
	dir := t.TempDir()
	files := map[string]string{
		"models/model_config.json":           `{"resnet50":{"weights":"ResNet50_Weights.DEFAULT","model_arch_file":"arch.py","class_map":"index_to_name.json","handler":"image_classifier"}}`,
		"models/resnet50/arch.py":            "pass\n",
		"models/resnet50/index_to_name.json": "{}",
		"samples/kitten.jpg":                 "kitten",
	}
	for rel, content := range files {
		p := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	base := []string{"run", "--dry-run",
		"--registry", "models/model_config.json",
		"--data", "samples",
		"--inference-url", fmt.Sprintf("http://127.0.0.1:%d", findFreePort(t)),
		"--management-url", fmt.Sprintf("http://127.0.0.1:%d", findFreePort(t)),
	}

	code, out := runBinary(t, bin, dir, append(base, "--model-name", "resnet50")...)
	if code != 0 || !strings.Contains(out, "Inference Run Successful") {
		t.Fatalf("dry run: exit=%d\n%s", code, out)
	}
	if _, err := os.Stat(filepath.Join(dir, "gen")); !os.IsNotExist(err) {
		t.Fatalf("generated directory should be removed, stat err=%v", err)
	}

	code, out = runBinary(t, bin, dir, append(base, "--model-name", "vgg16")...)
	if code != 1 || !strings.Contains(out, "Error found - Unsuccessful") {
		t.Fatalf("unknown model: exit=%d\n%s", code, out)
	}
}

func TestBlackbox_NoArgsExit2(t *testing.T) {
	bin := buildBinary(t)
	code, out := runBinary(t, bin, t.TempDir())
	if code != 2 || !strings.Contains(out, "Usage") {
		t.Fatalf("exit=%d\n%s", code, out)
	}
}
