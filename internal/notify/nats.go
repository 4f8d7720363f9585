package notify

import (
	"context"
	"encoding/json"
	"time"

	"batchplane/internal/batch"
	"batchplane/pkg/api"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is used when no NATS subject is configured.
const DefaultSubject = "batchplane.executions.finished"

// publisher is the part of *nats.Conn the notifier needs.
type publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// NATSNotifier publishes an api.ExecutionEvent on a subject.
type NATSNotifier struct {
	conn    publisher
	nc      *nats.Conn
	subject string
}

// ConnectNATS connects to url and returns a notifier publishing on subject.
func ConnectNATS(url, subject string) (*NATSNotifier, error) {
	nc, err := nats.Connect(url,
		nats.Name("batchplane"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, err
	}
	n := NewNATSNotifier(nc, subject)
	n.nc = nc
	return n, nil
}

func NewNATSNotifier(conn publisher, subject string) *NATSNotifier {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSNotifier{conn: conn, subject: subject}
}

func (n *NATSNotifier) SetRecipientEmail(string) {}

// Notify publishes the event and flushes, so the message has left the
// process before the CLI exits.
func (n *NATSNotifier) Notify(ctx context.Context, definition *batch.JobDefinition, execution *batch.JobExecution) error {
	data, err := json.Marshal(api.NewExecutionEvent(execution))
	if err != nil {
		return err
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return err
	}
	// FlushWithContext refuses contexts without a deadline.
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	return n.conn.FlushWithContext(ctx)
}

func (n *NATSNotifier) Close() {
	if n.nc != nil {
		_ = n.nc.Drain()
	}
}
