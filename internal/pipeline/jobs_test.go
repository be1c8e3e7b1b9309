package pipeline

import (
	"errors"
	"testing"
	"time"
)

func TestContentHashHex_Consistency(t *testing.T) {
	data := []byte("hello world")
	h1 := ContentHashHex(data)
	h2 := ContentHashHex(data)
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %q and %q", h1, h2)
	}
	// SHA-256 of "hello world" is well-known.
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if h1 != want {
		t.Errorf("expected hash %q, got %q", want, h1)
	}
}

func TestNewJob(t *testing.T) {
	a := NewJob("a.md")
	b := NewFileJob("/tmp/b.md", true)
	if a.ID == "" || len(a.ID) != 20 {
		t.Errorf("unexpected job id %q", a.ID)
	}
	if a.ID == b.ID {
		t.Error("expected distinct job ids")
	}
	if a.Status != StatusQueued {
		t.Errorf("expected queued, got %q", a.Status)
	}
	if b.Path != "/tmp/b.md" || !b.Write {
		t.Errorf("file job fields not set: %+v", b.Snapshot())
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := NewJob("doc.md")

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusReading, "reading"},
		{StatusNormalizing, "normalizing"},
		{StatusWriting, "writing"},
		{StatusCompleted, "done"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		// Small sleep to ensure time difference is detectable.
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		if job.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, job.Status)
		}
		if job.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, job.Phase)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}

	select {
	case <-job.Done():
	default:
		t.Fatal("expected Done to be closed after completion")
	}
}

func TestJob_TerminalIsFinal(t *testing.T) {
	job := NewJob("doc.md")
	job.SetStatus(StatusCompleted, "done")
	job.SetStatus(StatusFailed, "late")
	if job.Status != StatusCompleted {
		t.Errorf("expected status to stay %q, got %q", StatusCompleted, job.Status)
	}
}

func TestJob_Fail(t *testing.T) {
	job := NewJob("doc.md")
	cause := errors.New("disk on fire")
	job.Fail("reading", cause)

	if !errors.Is(job.Err(), cause) {
		t.Errorf("expected Err to return cause, got %v", job.Err())
	}
	snap := job.Snapshot()
	if snap.Status != StatusFailed || snap.Phase != "reading" {
		t.Errorf("unexpected state %q/%q", snap.Status, snap.Phase)
	}
	if len(snap.Progress.Errors) != 1 || snap.Progress.Errors[0] != "disk on fire" {
		t.Errorf("unexpected errors %v", snap.Progress.Errors)
	}
	select {
	case <-job.Done():
	default:
		t.Fatal("expected Done to be closed after failure")
	}
}

func TestJob_AddError(t *testing.T) {
	job := NewJob("err-test")
	job.AddError("line 3: bad")
	job.AddError("line 7: bad")

	snap := job.Snapshot()
	if len(snap.Progress.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(snap.Progress.Errors))
	}
	if snap.Progress.Errors[0] != "line 3: bad" {
		t.Errorf("expected first error %q, got %q", "line 3: bad", snap.Progress.Errors[0])
	}
}

func TestJob_SetCounts(t *testing.T) {
	job := NewJob("counts")
	job.SetCounts(3, 2, 1)

	p := job.Snapshot().Progress
	if p.Eligible != 3 || p.Rewritten != 2 || p.NestedFailures != 1 {
		t.Errorf("unexpected progress %+v", p)
	}
}

func TestJob_InputOutput(t *testing.T) {
	job := NewJob("io")
	job.SetInput([]byte("* a\n"))
	job.SetOutput("* a\n")
	if job.Changed {
		t.Error("identical output reported as changed")
	}
	job.SetOutput("- a\n")
	if !job.Changed {
		t.Error("different output reported as unchanged")
	}
	if string(job.Input()) != "* a\n" || job.Output() != "- a\n" {
		t.Errorf("unexpected input/output %q/%q", job.Input(), job.Output())
	}
}

func TestJob_SnapshotOutputOnlyWhenCompleted(t *testing.T) {
	job := NewJob("snap")
	job.SetOutput("- a\n")
	if job.Snapshot().Output != "" {
		t.Error("output exposed before completion")
	}
	job.SetStatus(StatusCompleted, "done")
	if job.Snapshot().Output != "- a\n" {
		t.Error("output missing after completion")
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	// Snapshot should always return non-nil errors slice.
	job := NewJob("snap-test")
	snap := job.Snapshot()
	if snap.Progress.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
	if len(snap.Progress.Errors) != 0 {
		t.Errorf("expected empty errors, got %d", len(snap.Progress.Errors))
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := NewJob("store-1")
	store.Put(job)

	got := store.Get(job.ID)
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if got != job {
		t.Error("expected the same job back")
	}
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	expired := NewJob("old")
	expired.SetStatus(StatusCompleted, "done")
	running := NewJob("running")
	running.SetStatus(StatusNormalizing, "normalizing")
	store.Put(expired)
	store.Put(running)

	// Wait for the TTL to pass.
	time.Sleep(100 * time.Millisecond)

	fresh := NewJob("new")
	store.Put(fresh)

	store.Cleanup()

	if store.Get(expired.ID) != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get(running.ID) == nil {
		t.Error("expected unfinished job to survive cleanup")
	}
	if store.Get(fresh.ID) == nil {
		t.Error("expected fresh job to survive cleanup")
	}
	if store.Len() != 2 {
		t.Errorf("expected 2 jobs left, got %d", store.Len())
	}
}
