package state

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsFreshState(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "state.json"))

	st, err := store.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if st.AttemptsToday != 0 {
		t.Fatalf("AttemptsToday = %d, want 0", st.AttemptsToday)
	}
	if st.Flag(OpFetch) || st.Flag(OpDesktopSet) || st.Flag(OpFTVDeliver) {
		t.Fatal("fresh state has a true operation flag")
	}
}

func TestLoadEmptyFileReturnsFreshState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	st, err := NewStore(path).Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if st.LastRunDate != "" {
		t.Fatalf("LastRunDate = %q, want empty", st.LastRunDate)
	}
}

func TestLoadCorruptFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := NewStore(path).Load(); err == nil {
		t.Fatal("Load accepted corrupt state file")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "state.json"))

	now := time.Date(2025, 11, 3, 9, 15, 0, 0, time.UTC)
	st := New()
	st.LastRunDate = DateOf(now)
	st.LastResetDate = DateOf(now)
	st.AttemptsToday = 3
	st.LastAttemptTime = now.Format(time.RFC3339)
	st.SetFlag(OpFetch, true, "")
	st.SetFlag(OpFTVDeliver, false, "connection refused")
	st.DeliveryMode = "network"

	if err := store.Save(st); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.LastRunDate != st.LastRunDate {
		t.Fatalf("LastRunDate = %q, want %q", loaded.LastRunDate, st.LastRunDate)
	}
	if loaded.AttemptsToday != 3 {
		t.Fatalf("AttemptsToday = %d, want 3", loaded.AttemptsToday)
	}
	if !loaded.Flag(OpFetch) {
		t.Fatal("fetch flag lost in round trip")
	}
	if loaded.Flag(OpFTVDeliver) {
		t.Fatal("ftv_deliver flag should be false")
	}
	if len(loaded.FailureReasons) != 1 || loaded.FailureReasons[0] != "ftv_deliver: connection refused" {
		t.Fatalf("FailureReasons = %v", loaded.FailureReasons)
	}
	if loaded.DeliveryMode != "network" {
		t.Fatalf("DeliveryMode = %q, want %q", loaded.DeliveryMode, "network")
	}
}

func TestSaveIsAtomic(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "state.json"))

	if err := store.Save(New()); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != "state.json" {
			t.Fatalf("leftover temp file %q after Save", e.Name())
		}
	}
}

func TestAcquireConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	first := NewStore(path)
	if err := first.Acquire(); err != nil {
		t.Fatalf("first Acquire returned error: %v", err)
	}
	defer first.Release()

	second := NewStore(path)
	err := second.Acquire()
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("second Acquire = %v, want ErrLocked", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}
	if err := second.Acquire(); err != nil {
		t.Fatalf("Acquire after release returned error: %v", err)
	}
	second.Release()
}

func TestResetDailyPreservesSuccessHistory(t *testing.T) {
	st := New()
	st.LastSuccessDate = "2025-11-02"
	st.LastSuccessTime = "2025-11-02T09:00:00Z"
	st.AttemptsToday = 5
	st.SetFlag(OpFetch, true, "")
	st.SetFlag(OpDesktopSet, false, "no display")
	st.DeliveryMode = "usb"

	st.ResetDaily("2025-11-03")

	if st.AttemptsToday != 0 {
		t.Fatalf("AttemptsToday = %d, want 0", st.AttemptsToday)
	}
	if st.Flag(OpFetch) {
		t.Fatal("fetch flag survived reset")
	}
	if len(st.FailureReasons) != 0 {
		t.Fatalf("FailureReasons = %v, want empty", st.FailureReasons)
	}
	if st.DeliveryMode != "" {
		t.Fatalf("DeliveryMode = %q, want empty", st.DeliveryMode)
	}
	if st.LastSuccessDate != "2025-11-02" {
		t.Fatalf("LastSuccessDate = %q, want preserved", st.LastSuccessDate)
	}
	if st.LastResetDate != "2025-11-03" {
		t.Fatalf("LastResetDate = %q, want 2025-11-03", st.LastResetDate)
	}
}
