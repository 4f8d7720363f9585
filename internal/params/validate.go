package params

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"batchplane/internal/batch"

	"github.com/go-playground/validator/v10"
)

// Validation groups.
const (
	GroupDefault   = "Default"
	GroupExecution = "Execution"
)

// Schema is the parameter contract a job declares.
type Schema struct {
	Defaults    map[string]any
	Constraints []Constraint
}

// Constraint is a single rule on the parameter set.
//
// Rule is a go-playground/validator tag applied to the value at Key. Check
// runs against the whole set and may consult external state (for instance a
// uniqueness lookup in the Execution group). Both may be set.
type Constraint struct {
	Key     string
	Rule    string
	Groups  []string // empty means Default
	Message string   // replaces the generated message when set
	Check   func(ctx context.Context, p *batch.JobParameters) error
}

func (c Constraint) inGroups(groups []string) bool {
	own := c.Groups
	if len(own) == 0 {
		own = []string{GroupDefault}
	}
	for _, g := range own {
		if slices.Contains(groups, g) {
			return true
		}
	}
	return false
}

// Validator runs schema constraints and collects every violation.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// Validate runs every constraint of schema that belongs to one of groups
// against p. It never stops at the first violation: the returned
// *batch.ParameterValidationError lists all of them.
func (v *Validator) Validate(ctx context.Context, definition *batch.JobDefinition, jobName string, schema Schema, p *batch.JobParameters, groups ...string) error {
	if len(groups) == 0 {
		groups = []string{GroupDefault}
	}

	var violations []string
	for _, c := range schema.Constraints {
		if !c.inGroups(groups) {
			continue
		}
		violations = append(violations, v.check(ctx, c, p)...)
	}

	if len(violations) == 0 {
		return nil
	}

	code := ""
	if definition != nil {
		code = definition.Code
	}
	return &batch.ParameterValidationError{
		Code:       code,
		JobName:    jobName,
		Parameters: p.All(),
		Violations: violations,
	}
}

func (v *Validator) check(ctx context.Context, c Constraint, p *batch.JobParameters) []string {
	var out []string

	if c.Rule != "" {
		value := p.Get(c.Key)
		if value == nil {
			if hasRule(c.Rule, "required") {
				out = append(out, c.message(fmt.Sprintf("%s: this value should not be blank", c.Key)))
			}
		} else if msg := v.checkVar(c.Key, value, c.Rule); msg != "" {
			out = append(out, c.message(msg))
		}
	}

	if c.Check != nil {
		if err := c.Check(ctx, p); err != nil {
			out = append(out, c.message(prefixKey(c.Key, err.Error())))
		}
	}

	return out
}

// checkVar applies rule to value. validator panics when a rule does not
// apply to the value's kind (oneof on a bool, for instance); that is reported
// as a violation like any other.
func (v *Validator) checkVar(key string, value any, rule string) (msg string) {
	defer func() {
		if r := recover(); r != nil {
			msg = fmt.Sprintf("%s: value of type %T cannot be checked against %q", key, value, rule)
		}
	}()
	if err := v.validate.Var(value, rule); err != nil {
		return describe(key, err)
	}
	return ""
}

// ValidateEmail checks an address with the validator "email" rule.
func (v *Validator) ValidateEmail(address string) error {
	if err := v.validate.Var(address, "required,email"); err != nil {
		return fmt.Errorf("email %q is invalid: %s", address, describe("email", err))
	}
	return nil
}

func (c Constraint) message(generated string) string {
	if c.Message != "" {
		return prefixKey(c.Key, c.Message)
	}
	return generated
}

func describe(key string, err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return prefixKey(key, err.Error())
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("failed on rule %q (%s)", fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("failed on rule %q", fe.Tag()))
		}
	}
	return prefixKey(key, strings.Join(parts, ", "))
}

func prefixKey(key, msg string) string {
	if key == "" {
		return msg
	}
	return key + ": " + msg
}

func hasRule(rules, name string) bool {
	for _, r := range strings.Split(rules, ",") {
		if strings.TrimSpace(r) == name {
			return true
		}
	}
	return false
}
