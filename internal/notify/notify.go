// Package notify tells the outside world that an execution finished.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"batchplane/internal/batch"
)

// Notifier is told about every finished execution. Notification failures
// are reported to the caller but must never change the execution outcome.
type Notifier interface {
	// SetRecipientEmail sets the address that receives the report. Notifiers
	// that do not send mail ignore it.
	SetRecipientEmail(address string)
	Notify(ctx context.Context, definition *batch.JobDefinition, execution *batch.JobExecution) error
}

// Multi fans out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) SetRecipientEmail(address string) {
	for _, n := range m {
		n.SetRecipientEmail(address)
	}
}

func (m Multi) Notify(ctx context.Context, definition *batch.JobDefinition, execution *batch.JobExecution) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, definition, execution); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", n, err))
		}
	}
	return errors.Join(errs...)
}

// Options selects the notifiers built by New. Empty settings disable the
// corresponding notifier.
type Options struct {
	Mail        MailConfig
	WebhookURL  string
	NATSURL     string
	NATSSubject string
}

// New builds the configured notifiers. The mail notifier is always present
// so that --email works whenever an SMTP host is configured. A NATS server
// that cannot be reached is logged and left out. The returned close function
// releases connections.
func New(opts Options, logger *slog.Logger) (Multi, func()) {
	if logger == nil {
		logger = slog.Default()
	}

	notifiers := Multi{NewMailNotifier(opts.Mail, logger)}
	closers := []func(){}

	if opts.WebhookURL != "" {
		notifiers = append(notifiers, NewWebhookNotifier(opts.WebhookURL, 0, 3))
	}
	if opts.NATSURL != "" {
		n, err := ConnectNATS(opts.NATSURL, opts.NATSSubject)
		if err != nil {
			logger.Warn("NATS notifier disabled", "url", opts.NATSURL, "error", err)
		} else {
			notifiers = append(notifiers, n)
			closers = append(closers, n.Close)
		}
	}

	return notifiers, func() {
		for _, c := range closers {
			c()
		}
	}
}
