package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestExpandHome(t *testing.T) {
	// Set a deterministic HOME for the duration of this test so we never skip.
	origHome, hadHome := os.LookupEnv("HOME")
	origUserProfile, hadUserProfile := os.LookupEnv("USERPROFILE")
	t.Cleanup(func() {
		if hadHome {
			_ = os.Setenv("HOME", origHome)
		} else {
			_ = os.Unsetenv("HOME")
		}
		if hadUserProfile {
			_ = os.Setenv("USERPROFILE", origUserProfile)
		} else {
			_ = os.Unsetenv("USERPROFILE")
		}
	})

	home := t.TempDir()
	// Configure both env vars for cross-platform behavior of os.UserHomeDir.
	_ = os.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		_ = os.Setenv("USERPROFILE", home)
	}
	// raw path unaffected
	if got, err := ExpandHome("/tmp"); err != nil || got != "/tmp" {
		t.Fatalf("got %q err=%v", got, err)
	}
	// empty path
	if got, err := ExpandHome(""); err != nil || got != "" {
		t.Fatalf("got %q err=%v", got, err)
	}
	// ~ expansion
	p, err := ExpandHome("~")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if p != home {
		t.Fatalf("expected %q, got %q", home, p)
	}
	// ~/subdir
	sub := "test-sub"
	exp, err := ExpandHome("~/" + sub)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if runtime.GOOS == "windows" {
		if filepath.Base(exp) != sub {
			t.Fatalf("unexpected expanded path: %q", exp)
		}
	} else {
		expected := filepath.Join(home, sub)
		if exp != expected {
			t.Fatalf("expected %q, got %q", expected, exp)
		}
	}
}

func TestResolve_RelativeJoinsBase(t *testing.T) {
	base := t.TempDir()
	got, err := Resolve(base, "arch.py")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != filepath.Join(base, "arch.py") {
		t.Fatalf("unexpected path %q", got)
	}
	abs := filepath.Join(base, "x", "y")
	if got, _ := Resolve("/elsewhere", abs); got != abs {
		t.Fatalf("absolute path should be kept, got %q", got)
	}
	if got, _ := Resolve(base, ""); got != "" {
		t.Fatalf("empty path should stay empty, got %q", got)
	}
}

func TestListFiles_SortedAndSkipsDirs(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"dog.jpg", "cat.jpg", "bird.png"} {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	files, err := ListFiles(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"bird.png", "cat.jpg", "dog.jpg"}
	if len(files) != len(want) {
		t.Fatalf("expected %d files, got %v", len(want), files)
	}
	for i, w := range want {
		if filepath.Base(files[i]) != w {
			t.Fatalf("index %d: expected %s, got %s", i, w, files[i])
		}
	}
}

func TestRemoveDir_MissingIsNoop(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "gen")
	if err := RemoveDir(dir); err != nil {
		t.Fatalf("remove missing: %v", err)
	}
	if err := EnsureDirs(filepath.Join(dir, "logs")); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := RemoveDir(dir); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if PathExists(dir) {
		t.Fatalf("dir still present")
	}
	if err := RemoveDir("/"); err == nil {
		t.Fatalf("expected refusal for root")
	}
}

func TestRemovePaths_LeavesSiblings(t *testing.T) {
	dir := t.TempDir()
	keep := filepath.Join(dir, "data", "cat.jpg")
	if err := EnsureDirs(filepath.Join(dir, "data"), filepath.Join(dir, "logs")); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	for _, p := range []string{keep, filepath.Join(dir, "mar_config.json")} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := RemovePaths(filepath.Join(dir, "logs"), filepath.Join(dir, "mar_config.json"), filepath.Join(dir, "missing")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if PathExists(filepath.Join(dir, "logs")) || PathExists(filepath.Join(dir, "mar_config.json")) {
		t.Fatalf("generated entries still present")
	}
	if !IsFile(keep) {
		t.Fatalf("sibling file removed")
	}
	if err := RemovePaths(""); err == nil {
		t.Fatalf("expected refusal for empty path")
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.mar")
	if err := os.WriteFile(src, []byte("archive"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	dst := filepath.Join(dir, "b.mar")
	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("copy: %v", err)
	}
	b, err := os.ReadFile(dst)
	if err != nil || string(b) != "archive" {
		t.Fatalf("unexpected copy: %q err=%v", b, err)
	}
	if !IsFile(dst) || IsFile(dir) {
		t.Fatalf("IsFile mismatch")
	}
}
