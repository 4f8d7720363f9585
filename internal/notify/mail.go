package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"batchplane/internal/batch"

	"github.com/wneessen/go-mail"
)

// MailConfig holds SMTP settings.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// TLS requires STARTTLS; otherwise TLS is used when offered.
	TLS bool
}

// MailNotifier mails an execution report to the recipient set through
// SetRecipientEmail. Without a recipient or an SMTP host it does nothing.
type MailNotifier struct {
	config    MailConfig
	recipient string
	logger    *slog.Logger
	send      func(ctx context.Context, msg *mail.Msg) error
}

func NewMailNotifier(cfg MailConfig, logger *slog.Logger) *MailNotifier {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.From == "" {
		cfg.From = "batchplane@localhost"
	}
	if logger == nil {
		logger = slog.Default()
	}
	n := &MailNotifier{config: cfg, logger: logger}
	n.send = n.dialAndSend
	return n
}

func (n *MailNotifier) SetRecipientEmail(address string) {
	n.recipient = address
}

func (n *MailNotifier) Notify(ctx context.Context, definition *batch.JobDefinition, execution *batch.JobExecution) error {
	if n.recipient == "" {
		return nil
	}
	if n.config.Host == "" {
		n.logger.Warn("no SMTP host configured, skipping mail notification", "recipient", n.recipient)
		return nil
	}

	msg, err := n.message(definition, execution)
	if err != nil {
		return err
	}
	if err := n.send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", n.recipient, err)
	}
	n.logger.Info("mail notification sent", "recipient", n.recipient, "execution_id", execution.ID)
	return nil
}

func (n *MailNotifier) message(definition *batch.JobDefinition, execution *batch.JobExecution) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(n.config.From); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(n.recipient); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject(definition, execution))
	msg.SetBodyString(mail.TypeTextPlain, body(definition, execution))
	return msg, nil
}

func (n *MailNotifier) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	policy := mail.TLSOpportunistic
	if n.config.TLS {
		policy = mail.TLSMandatory
	}
	opts := []mail.Option{mail.WithPort(n.config.Port), mail.WithTLSPolicy(policy)}
	if n.config.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.config.Username),
			mail.WithPassword(n.config.Password),
		)
	}

	client, err := mail.NewClient(n.config.Host, opts...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}

func subject(definition *batch.JobDefinition, execution *batch.JobExecution) string {
	return fmt.Sprintf("[batchplane] %s %s: %s", definition.DisplayType(), definition.Code, execution.Status)
}

func body(definition *batch.JobDefinition, execution *batch.JobExecution) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job:        %s (%s)\n", definition.Code, definition.JobName)
	fmt.Fprintf(&b, "Execution:  %s\n", execution.ID)
	fmt.Fprintf(&b, "Status:     %s\n", execution.Status)
	fmt.Fprintf(&b, "Exit code:  %s\n", execution.ExitStatus.Code)
	fmt.Fprintf(&b, "Warnings:   %d\n", execution.WarningCount())
	if execution.StartedAt != nil && execution.EndedAt != nil {
		fmt.Fprintf(&b, "Duration:   %s\n", execution.EndedAt.Sub(*execution.StartedAt).Round(time.Millisecond))
	}

	if len(execution.StepExecutions) > 0 {
		b.WriteString("\nSteps:\n")
		for _, s := range execution.StepExecutions {
			fmt.Fprintf(&b, "  - %s: %s (read %d, write %d, warnings %d)\n",
				s.StepName, s.Status, s.ReadCount, s.WriteCount, len(s.Warnings))
		}
	}

	failures := append([]batch.FailureException(nil), execution.FailureExceptions...)
	for _, s := range execution.StepExecutions {
		failures = append(failures, s.FailureExceptions...)
	}
	if len(failures) > 0 {
		b.WriteString("\nFailures:\n")
		for _, f := range failures {
			fmt.Fprintf(&b, "  - %s\n", f.Render())
		}
	}
	return b.String()
}
