package runner

import (
	"fmt"
	"strings"

	"batchplane/internal/batch"

	"github.com/samber/lo"
)

// Classification is the verdict of a finished run.
type Classification string

const (
	Success             Classification = "SUCCESS"
	SuccessWithWarnings Classification = "SUCCESS_WITH_WARNINGS"
	Error               Classification = "ERROR"
)

// Process exit codes. They are a stable contract for calling automation.
const (
	ExitSuccess       = 0
	ExitError         = 1
	ExitWarning       = 2
	ExitPreconditions = 3
)

// ExitCode maps the classification to the process exit code.
func (c Classification) ExitCode() int {
	switch c {
	case Success:
		return ExitSuccess
	case SuccessWithWarnings:
		return ExitWarning
	}
	return ExitError
}

// MessageKind tells the caller how to render a message.
type MessageKind string

const (
	MessageSummary MessageKind = "summary"
	MessageWarning MessageKind = "warning"
	MessageError   MessageKind = "error"
	MessageTrace   MessageKind = "trace"
)

type Message struct {
	Kind MessageKind
	Text string
}

// Outcome is the result of a run that reached the job body.
type Outcome struct {
	Classification Classification
	Messages       []Message
	Execution      *batch.JobExecution
}

func (o *Outcome) ExitCode() int {
	return o.Classification.ExitCode()
}

// Texts returns the text of every message of the given kind.
func (o *Outcome) Texts(kind MessageKind) []string {
	return lo.FilterMap(o.Messages, func(m Message, _ int) (string, bool) {
		return m.Text, m.Kind == kind
	})
}

// Aggregate classifies a finished execution and renders its messages.
//
// A successful run yields one summary line, preceded in verbose mode by one
// line per step warning. A failed run yields a summary line followed by one
// error line per failure exception (job level first, then each step in
// order), each followed by its stack trace in verbose mode.
func Aggregate(definition *batch.JobDefinition, execution *batch.JobExecution, verbose bool) Outcome {
	out := Outcome{Execution: execution}
	if definition == nil {
		definition = execution.Definition
	}
	var code string
	if definition != nil {
		code = definition.Code
	}

	if execution.IsSuccessful() {
		warnings := lo.SumBy(execution.StepExecutions, func(s *batch.StepExecution) int {
			return len(s.Warnings)
		})
		if verbose {
			for _, step := range execution.StepExecutions {
				for _, w := range step.Warnings {
					out.Messages = append(out.Messages, Message{Kind: MessageWarning, Text: w.Text()})
				}
			}
		}

		if warnings == 0 {
			out.Classification = Success
			out.Messages = append(out.Messages, Message{
				Kind: MessageSummary,
				Text: fmt.Sprintf("%s %s has been successfully executed.", definition.DisplayType(), code),
			})
		} else {
			out.Classification = SuccessWithWarnings
			out.Messages = append(out.Messages, Message{
				Kind: MessageSummary,
				Text: fmt.Sprintf("%s %s has been executed with %d warnings.", definition.DisplayType(), code, warnings),
			})
		}
		return out
	}

	out.Classification = Error
	out.Messages = append(out.Messages, Message{
		Kind: MessageSummary,
		Text: fmt.Sprintf("An error occurred during the %s execution.", definition.TypeName()),
	})
	out.Messages = appendFailures(out.Messages, execution.FailureExceptions, verbose)
	for _, step := range execution.StepExecutions {
		out.Messages = appendFailures(out.Messages, step.FailureExceptions, verbose)
	}
	return out
}

func appendFailures(messages []Message, failures []batch.FailureException, verbose bool) []Message {
	for _, f := range failures {
		messages = append(messages, Message{Kind: MessageError, Text: f.Render()})
		if verbose && f.Trace != "" {
			messages = append(messages, Message{Kind: MessageTrace, Text: strings.TrimRight(f.Trace, "\n")})
		}
	}
	return messages
}
