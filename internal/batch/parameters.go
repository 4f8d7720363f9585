package batch

import (
	"encoding/json"
	"sort"

	"github.com/spf13/cast"
)

// JobParameters is the resolved configuration passed into a run.
// It is immutable once built: accessors never expose the backing map.
type JobParameters struct {
	values map[string]any
}

// NewJobParameters copies values into a new parameter set.
func NewJobParameters(values map[string]any) *JobParameters {
	p := &JobParameters{values: make(map[string]any, len(values))}
	for k, v := range values {
		p.values[k] = v
	}
	return p
}

func (p *JobParameters) Has(key string) bool {
	if p == nil {
		return false
	}
	_, ok := p.values[key]
	return ok
}

func (p *JobParameters) Get(key string) any {
	if p == nil {
		return nil
	}
	return p.values[key]
}

// All returns a shallow copy of every parameter.
func (p *JobParameters) All() map[string]any {
	out := make(map[string]any)
	if p == nil {
		return out
	}
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// Keys returns the parameter names in lexical order.
func (p *JobParameters) Keys() []string {
	if p == nil {
		return nil
	}
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p *JobParameters) String(key string) string {
	return cast.ToString(p.Get(key))
}

func (p *JobParameters) Int(key string) (int, error) {
	return cast.ToIntE(p.Get(key))
}

func (p *JobParameters) Bool(key string) bool {
	return cast.ToBool(p.Get(key))
}

func (p *JobParameters) StringSlice(key string) []string {
	return cast.ToStringSlice(p.Get(key))
}

func (p *JobParameters) StringMap(key string) map[string]string {
	return cast.ToStringMapString(p.Get(key))
}

// MapSlice returns the value at key as a list of objects, as decoded from
// JSON or YAML.
func (p *JobParameters) MapSlice(key string) ([]map[string]any, error) {
	raw := p.Get(key)
	if raw == nil {
		return nil, nil
	}
	items, err := cast.ToSliceE(raw)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		m, err := cast.ToStringMapE(item)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (p *JobParameters) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.All())
}

func (p *JobParameters) UnmarshalJSON(data []byte) error {
	values := make(map[string]any)
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	p.values = values
	return nil
}
