package batch

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
)

// Warning is a non-fatal problem reported by a step, typically about one item.
type Warning struct {
	Reason           string            `json:"reason"`
	ReasonParameters map[string]string `json:"reason_parameters,omitempty"`
	Item             map[string]any    `json:"item,omitempty"`
}

// Text returns the reason with its parameters interpolated.
func (w Warning) Text() string {
	return interpolate(w.Reason, w.ReasonParameters)
}

// FailureException records an error that made a job or step fail.
type FailureException struct {
	Code              int               `json:"code"`
	Class             string            `json:"class"`
	Message           string            `json:"message"`
	MessageParameters map[string]string `json:"message_parameters,omitempty"`
	Trace             string            `json:"trace,omitempty"`
}

// Coder is implemented by errors that carry a numeric error code.
type Coder interface {
	Code() int
}

// NewFailureException captures err as a failure record, including the
// current goroutine stack.
func NewFailureException(err error) FailureException {
	code := 0
	var c Coder
	if errors.As(err, &c) {
		code = c.Code()
	}
	return FailureException{
		Code:    code,
		Class:   fmt.Sprintf("%T", err),
		Message: err.Error(),
		Trace:   string(debug.Stack()),
	}
}

// RenderedMessage returns the message template with its parameters applied.
func (f FailureException) RenderedMessage() string {
	return interpolate(f.Message, f.MessageParameters)
}

// Render formats the failure as a single error line.
func (f FailureException) Render() string {
	return fmt.Sprintf("Error #%d in class %s: %s", f.Code, f.Class, f.RenderedMessage())
}

// interpolate replaces every parameter key found in template by its value.
// Longer keys are tried first so that "%name%" never shadows "%name_full%".
func interpolate(template string, params map[string]string) string {
	if len(params) == 0 {
		return template
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, k, params[k])
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
