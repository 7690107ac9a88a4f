package snapshots

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/BubbatheVTOG/b404.be-sub000/internal/steptree"
)

func sampleEnvelope(description string) steptree.WireEnvelope {
	title := "vrb_build"
	fileID := "fil_1"
	done := false
	async := false
	return steptree.WireEnvelope{
		WorkflowID: "wfl_1",
		Steps: []steptree.WireStep{
			{Title: &title, Subtitle: description, UUID: "stp_a", FileID: &fileID, Completed: &done, Asynchronous: &async},
		},
	}
}

func TestRecordAndHistory(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	first, err := svc.Record("wfl_1", sampleEnvelope("initial"), "Avery", "Create workflow")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if first.Hash == "" {
		t.Fatal("expected commit hash")
	}
	if _, err := os.Stat(filepath.Join(tempDir, "wfl_1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}

	second, err := svc.Record("wfl_1", sampleEnvelope("revised"), "Avery", "Replace steps")
	if err != nil {
		t.Fatalf("Record() second error = %v", err)
	}

	history, err := svc.History("wfl_1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Hash != second.Hash {
		t.Fatalf("newest commit = %s, want %s", history[0].Hash, second.Hash)
	}

	env, err := svc.GetByHash("wfl_1", first.Hash)
	if err != nil {
		t.Fatalf("GetByHash() error = %v", err)
	}
	if len(env.Steps) != 1 || env.Steps[0].Subtitle != "initial" {
		t.Fatalf("unexpected snapshot content: %+v", env)
	}
}

func TestHistoryWithoutRepoIsEmpty(t *testing.T) {
	svc := New(t.TempDir())
	history, err := svc.History("wfl_missing", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history, got %d entries", len(history))
	}
}

func TestConcurrentRecordsSameWorkflow(t *testing.T) {
	svc := New(t.TempDir())

	const writers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			env := sampleEnvelope(fmt.Sprintf("revision-%02d", idx))
			if _, err := svc.Record("wfl_1", env, "Avery", fmt.Sprintf("Replace steps %02d", idx)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("Record() concurrent error = %v", err)
	}

	history, err := svc.History("wfl_1", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != writers {
		t.Fatalf("history length = %d, want %d", len(history), writers)
	}
}
