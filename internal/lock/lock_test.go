package lock

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
)

func TestAcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "emrattach.lock")

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	held, pid, err := IsHeld(path)
	if err != nil {
		t.Fatal(err)
	}
	if !held || pid != os.Getpid() {
		t.Errorf("IsHeld = %v, %d", held, pid)
	}
	if l.Path() != path {
		t.Errorf("Path = %q", l.Path())
	}

	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if held, _, _ := IsHeld(path); held {
		t.Error("lock should be released")
	}
	if err := l.Release(); err != nil {
		t.Errorf("double release should succeed: %v", err)
	}
}

func TestAcquireHeldByOtherProcess(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start helper process: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})

	path := filepath.Join(t.TempDir(), "emrattach.lock")
	if err := os.WriteFile(path, []byte(strconv.Itoa(cmd.Process.Pid)), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Acquire(path)
	var held *HeldError
	if !errors.As(err, &held) {
		t.Fatalf("expected HeldError, got %v", err)
	}
	if held.PID != cmd.Process.Pid {
		t.Errorf("PID = %d", held.PID)
	}
}

func TestAcquireStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emrattach.lock")
	// PIDs this large are not handed out on Linux.
	if err := os.WriteFile(path, []byte("99999999"), 0o644); err != nil {
		t.Fatal(err)
	}

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("stale lock should be taken over: %v", err)
	}
	defer l.Release()

	_, pid, _ := IsHeld(path)
	if pid != os.Getpid() {
		t.Errorf("lock pid = %d", pid)
	}
}

func TestIsHeldGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emrattach.lock")
	if err := os.WriteFile(path, []byte("not-a-pid"), 0o644); err != nil {
		t.Fatal(err)
	}
	held, _, err := IsHeld(path)
	if err != nil || held {
		t.Errorf("IsHeld = %v, %v", held, err)
	}
}
