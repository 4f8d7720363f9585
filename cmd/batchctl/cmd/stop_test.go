package cmd

import (
	"context"
	"strings"
	"testing"

	"batchplane/internal/batch"

	"github.com/google/uuid"
)

func TestStopCommand_Success(t *testing.T) {
	s := useMemoryStore(t)
	def := createCommandDefinition(t, s, "hello", "sleep 60")
	e := batch.NewJobExecution(def, nil)
	e.Status = batch.StatusRunning
	s.PutExecution(e)

	out, err := execute(t, "stop", e.ID.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Stop requested") {
		t.Errorf("unexpected output %q", out)
	}

	stored, _ := s.FindExecution(context.Background(), e.ID)
	if stored.Status != batch.StatusStopping {
		t.Errorf("got status %s, want STOPPING", stored.Status)
	}
}

func TestStopCommand_Errors(t *testing.T) {
	s := useMemoryStore(t)
	def := createCommandDefinition(t, s, "hello", "true")
	done := batch.NewJobExecution(def, nil)
	done.Status = batch.StatusCompleted
	s.PutExecution(done)

	tests := []struct {
		name    string
		id      string
		wantErr string
	}{
		{"malformed id", "nope", "invalid execution id"},
		{"unknown execution", uuid.NewString(), "not found"},
		{"finished execution", done.ID.String(), "cannot be stopped"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, "stop", tt.id)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("got error %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
