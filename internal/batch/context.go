package batch

import (
	"encoding/json"
	"sort"
)

// ExecutionContext is a free-form key/value bag carrying state across the
// steps of a job execution. It survives resumption.
type ExecutionContext struct {
	values map[string]any
}

// NewExecutionContext returns an empty context.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{values: make(map[string]any)}
}

func (c *ExecutionContext) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

func (c *ExecutionContext) Put(key string, value any) {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = value
}

func (c *ExecutionContext) Remove(key string) {
	delete(c.values, key)
}

// Keys returns the keys in lexical order.
func (c *ExecutionContext) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *ExecutionContext) Len() int { return len(c.values) }

// Clone returns a copy of the context. Values are copied through JSON so
// nested maps and slices are not shared.
func (c *ExecutionContext) Clone() *ExecutionContext {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		clone := NewExecutionContext()
		for k, v := range c.values {
			clone.values[k] = v
		}
		return clone
	}
	clone := NewExecutionContext()
	_ = json.Unmarshal(data, clone)
	return clone
}

func (c *ExecutionContext) MarshalJSON() ([]byte, error) {
	if c.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.values)
}

func (c *ExecutionContext) UnmarshalJSON(data []byte) error {
	values := make(map[string]any)
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	c.values = values
	return nil
}
