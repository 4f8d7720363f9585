package batch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ConfigurationDecodeError is returned when the override payload is not a
// valid JSON object.
type ConfigurationDecodeError struct {
	Payload string
	Err     error
}

func (e *ConfigurationDecodeError) Error() string {
	return fmt.Sprintf("cannot decode configuration `%s`: %v", e.Payload, e.Err)
}

func (e *ConfigurationDecodeError) Unwrap() error { return e.Err }

// InvalidInvocationError is returned for forbidden option combinations and
// invalid option values.
type InvalidInvocationError struct {
	Reason string
}

func (e *InvalidInvocationError) Error() string { return e.Reason }

// NotFoundError is returned when a job code, execution id or job name does
// not resolve.
type NotFoundError struct {
	Kind       string // "job definition", "job execution", "job"
	Identifier string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("could not find %s %q", e.Kind, e.Identifier)
}

// InvalidExecutionStateError is returned when resuming an execution that is
// neither starting nor stopping.
type InvalidExecutionStateError struct {
	ExecutionID uuid.UUID
	Status      BatchStatus
}

func (e *InvalidExecutionStateError) Error() string {
	return fmt.Sprintf("job execution %q has invalid status: %s", e.ExecutionID, e.Status)
}

// ParameterValidationError carries every constraint violation found for a
// parameter set.
type ParameterValidationError struct {
	Code       string
	JobName    string
	Parameters map[string]any
	Violations []string
}

func (e *ParameterValidationError) Error() string {
	params, err := json.Marshal(e.Parameters)
	if err != nil {
		params = []byte(fmt.Sprintf("%v", e.Parameters))
	}
	var b strings.Builder
	for _, v := range e.Violations {
		b.WriteString("\n  - ")
		b.WriteString(v)
	}
	return fmt.Sprintf("job definition %q running the job %q with parameters %s is invalid because of:%s",
		e.Code, e.JobName, params, b.String())
}
