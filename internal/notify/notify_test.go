package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"batchplane/internal/batch"
	"batchplane/pkg/api"

	"github.com/wneessen/go-mail"
)

func finishedExecution() (*batch.JobDefinition, *batch.JobExecution) {
	def := &batch.JobDefinition{Code: "csv_import", JobName: "command", Type: "import"}
	e := batch.NewJobExecution(def, nil)
	e.Status = batch.StatusCompleted
	e.ExitStatus = batch.NewExitStatus(batch.ExitCompleted)
	step := e.AddStepExecution("load")
	step.Status = batch.StatusCompleted
	step.AddWarning(batch.Warning{Reason: "row 3 skipped"})
	return def, e
}

type recordingNotifier struct {
	recipient string
	calls     int
	err       error
}

func (r *recordingNotifier) SetRecipientEmail(address string) { r.recipient = address }

func (r *recordingNotifier) Notify(ctx context.Context, definition *batch.JobDefinition, execution *batch.JobExecution) error {
	r.calls++
	return r.err
}

func TestMulti(t *testing.T) {
	ok := &recordingNotifier{}
	broken := &recordingNotifier{err: errors.New("unreachable")}
	m := Multi{broken, ok}

	m.SetRecipientEmail("ops@example.com")
	def, e := finishedExecution()
	err := m.Notify(context.Background(), def, e)

	if err == nil || !strings.Contains(err.Error(), "unreachable") {
		t.Errorf("expected joined error, got %v", err)
	}
	if ok.calls != 1 || broken.calls != 1 {
		t.Errorf("every notifier must be called, got %d and %d", ok.calls, broken.calls)
	}
	if ok.recipient != "ops@example.com" {
		t.Errorf("recipient not propagated, got %q", ok.recipient)
	}
}

func TestMailNotifier_NoRecipient(t *testing.T) {
	n := NewMailNotifier(MailConfig{Host: "smtp.example.com"}, nil)
	sent := false
	n.send = func(ctx context.Context, msg *mail.Msg) error {
		sent = true
		return nil
	}

	def, e := finishedExecution()
	if err := n.Notify(context.Background(), def, e); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if sent {
		t.Error("no mail should be sent without a recipient")
	}
}

func TestMailNotifier_NoHost(t *testing.T) {
	n := NewMailNotifier(MailConfig{}, nil)
	n.SetRecipientEmail("ops@example.com")
	n.send = func(ctx context.Context, msg *mail.Msg) error {
		t.Error("no mail should be sent without an SMTP host")
		return nil
	}

	def, e := finishedExecution()
	if err := n.Notify(context.Background(), def, e); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
}

func TestMailNotifier_SendsReport(t *testing.T) {
	n := NewMailNotifier(MailConfig{Host: "smtp.example.com", From: "batch@example.com"}, nil)
	n.SetRecipientEmail("ops@example.com")

	var raw bytes.Buffer
	n.send = func(ctx context.Context, msg *mail.Msg) error {
		_, err := msg.WriteTo(&raw)
		return err
	}

	def, e := finishedExecution()
	if err := n.Notify(context.Background(), def, e); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	out := raw.String()
	for _, want := range []string{"ops@example.com", "batch@example.com", "Import csv_import: COMPLETED", "Warnings:   1", "load: COMPLETED"} {
		if !strings.Contains(out, want) {
			t.Errorf("mail is missing %q:\n%s", want, out)
		}
	}
}

func TestMailNotifier_SendError(t *testing.T) {
	n := NewMailNotifier(MailConfig{Host: "smtp.example.com"}, nil)
	n.SetRecipientEmail("ops@example.com")
	n.send = func(ctx context.Context, msg *mail.Msg) error { return errors.New("connection refused") }

	def, e := finishedExecution()
	if err := n.Notify(context.Background(), def, e); err == nil {
		t.Error("expected send error")
	}
}

func TestWebhookNotifier_Success(t *testing.T) {
	var event api.ExecutionEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		_ = json.NewDecoder(r.Body).Decode(&event)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, 2*time.Second, 0)
	def, e := finishedExecution()
	if err := n.Notify(context.Background(), def, e); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if event.ExecutionID != e.ID.String() || event.Status != "COMPLETED" || event.Warnings != 1 {
		t.Errorf("unexpected event %+v", event)
	}
}

func TestWebhookNotifier_RetryThenSuccess(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, 2*time.Second, 5)
	n.baseBackoff = 10 * time.Millisecond
	def, e := finishedExecution()
	if err := n.Notify(context.Background(), def, e); err != nil {
		t.Fatalf("expected eventual success, got error: %v", err)
	}
	if atomic.LoadInt32(&hits) != 3 {
		t.Errorf("expected 3 attempts, got %d", hits)
	}
}

func TestWebhookNotifier_ExhaustRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, 500*time.Millisecond, 2)
	n.baseBackoff = 10 * time.Millisecond
	def, e := finishedExecution()
	if err := n.Notify(context.Background(), def, e); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if atomic.LoadInt32(&hits) != 3 {
		t.Errorf("expected 3 attempts, got %d", hits)
	}
}

func TestWebhookNotifier_ContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, 5*time.Second, 3)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	def, e := finishedExecution()
	if err := n.Notify(ctx, def, e); err == nil {
		t.Fatal("expected context timeout error")
	}
}

type fakePublisher struct {
	subject string
	data    []byte
	flushed bool
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subject, f.data = subject, data
	return nil
}

func (f *fakePublisher) FlushWithContext(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("context has no deadline")
	}
	f.flushed = true
	return nil
}

func TestNATSNotifier_PublishesEvent(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNATSNotifier(pub, "")

	def, e := finishedExecution()
	if err := n.Notify(context.Background(), def, e); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	if pub.subject != DefaultSubject {
		t.Errorf("got subject %q, want %q", pub.subject, DefaultSubject)
	}
	if !pub.flushed {
		t.Error("expected a flush after publishing")
	}
	var event api.ExecutionEvent
	if err := json.Unmarshal(pub.data, &event); err != nil {
		t.Fatalf("invalid event payload: %v", err)
	}
	if event.Code != "csv_import" || event.Type != "import" {
		t.Errorf("unexpected event %+v", event)
	}
}

func TestConnectNATS_Unreachable(t *testing.T) {
	if _, err := ConnectNATS("nats://127.0.0.1:1", ""); err == nil {
		t.Error("expected connection error")
	}
}

func TestNew_DefaultsToMailOnly(t *testing.T) {
	notifiers, closeFn := New(Options{WebhookURL: "http://localhost:9/hook"}, nil)
	defer closeFn()

	if len(notifiers) != 2 {
		t.Fatalf("got %d notifiers, want 2", len(notifiers))
	}
	if _, ok := notifiers[0].(*MailNotifier); !ok {
		t.Errorf("expected the mail notifier first, got %T", notifiers[0])
	}
}

func TestNew_UnreachableNATSIsSkipped(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	notifiers, closeFn := New(Options{NATSURL: "nats://127.0.0.1:1"}, logger)
	defer closeFn()

	if len(notifiers) != 1 {
		t.Fatalf("got %d notifiers, want only the mail notifier", len(notifiers))
	}
	if !strings.Contains(buf.String(), "NATS notifier disabled") {
		t.Errorf("expected a warning, got %q", buf.String())
	}
}

func TestSubject_MultiByteType(t *testing.T) {
	def, e := finishedExecution()
	def.Type = "élagage"

	want := "[batchplane] Élagage csv_import: COMPLETED"
	if got := subject(def, e); got != want {
		t.Errorf("subject() = %q, want %q", got, want)
	}
}
