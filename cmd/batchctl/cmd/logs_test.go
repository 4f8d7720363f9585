package cmd

import (
	"context"
	"strings"
	"testing"
	"time"

	"batchplane/internal/batch"

	"github.com/google/uuid"
)

func TestLogsCommand_Success(t *testing.T) {
	s := useMemoryStore(t)
	id := uuid.New()
	_ = s.AddLogEntry(context.Background(), id, "Log line 1\nLog line 2")
	_ = s.AddLogEntry(context.Background(), id, "Log line 3\n")
	_ = s.AddLogEntry(context.Background(), uuid.New(), "someone else")

	out, err := execute(t, "logs", id.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"Log line 1", "Log line 2", "Log line 3"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q, got: %s", want, out)
		}
	}
	if strings.Contains(out, "someone else") {
		t.Errorf("printed logs of another execution: %s", out)
	}
}

func TestLogsCommand_Paginates(t *testing.T) {
	s := useMemoryStore(t)
	id := uuid.New()
	for i := 0; i < logsPageSize+5; i++ {
		_ = s.AddLogEntry(context.Background(), id, "line")
	}

	out, err := execute(t, "logs", id.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.Count(out, "line"); got != logsPageSize+5 {
		t.Errorf("got %d lines, want %d", got, logsPageSize+5)
	}
}

func TestLogsCommand_FollowStopsWhenExecutionEnds(t *testing.T) {
	s := useMemoryStore(t)
	orig := logsPollInterval
	logsPollInterval = 10 * time.Millisecond
	t.Cleanup(func() { logsPollInterval = orig })

	def := createCommandDefinition(t, s, "hello", "true")
	e := batch.NewJobExecution(def, nil)
	e.Status = batch.StatusRunning
	s.PutExecution(e)
	_ = s.AddLogEntry(context.Background(), e.ID, "first")

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = s.AddLogEntry(context.Background(), e.ID, "second")
		finished := e.Clone()
		finished.Status = batch.StatusCompleted
		s.PutExecution(finished)
	}()

	done := make(chan struct{})
	var out string
	var err error
	go func() {
		defer close(done)
		out, err = execute(t, "logs", e.ID.String(), "--follow")
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("logs --follow did not return after the execution ended")
	}
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "first") || !strings.Contains(out, "second") {
		t.Errorf("expected both lines, got %q", out)
	}
}

func TestLogsCommand_InvalidID(t *testing.T) {
	useMemoryStore(t)

	if _, err := execute(t, "logs", "nope"); err == nil {
		t.Error("expected error for an invalid execution id")
	}
}
