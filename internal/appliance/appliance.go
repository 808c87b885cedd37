// Package appliance is the single capability the reconciler consumes: run a
// named operation against the firewall appliance, synchronously, and get a
// structured result or an error. Module operations (interface_vlan,
// dnsmasq_range, dnsmasq_host, dnsmasq_general, rule) are structured upserts keyed by
// match fields; raw operations address an arbitrary module/controller/command
// for what the structured layer does not cover.
package appliance

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// OperationName identifies an operation the appliance can run.
type OperationName string

const (
	OpRaw            OperationName = "raw"
	OpInterfaceVLAN  OperationName = "interface_vlan"
	OpDnsmasqRange   OperationName = "dnsmasq_range"
	OpDnsmasqHost    OperationName = "dnsmasq_host"
	OpDnsmasqGeneral OperationName = "dnsmasq_general"
	OpRule           OperationName = "rule"
	OpPing           OperationName = "ping"
)

// Module parameter keys that steer the module layer and are not sent as
// resource fields.
const (
	ParamState       = "state"
	ParamMatchFields = "match_fields"
	ParamReload      = "reload"

	StatePresent = "present"
	StateAbsent  = "absent"
)

// Invoker runs one operation. With dryRun set, reads still happen but no
// write reaches the appliance; Result.Changed reports what would change.
type Invoker interface {
	Invoke(ctx context.Context, name OperationName, params any, dryRun bool) (*Result, error)
}

// HTTP methods used by raw calls.
const (
	MethodGet  = "GET"
	MethodPost = "POST"
)

// RawCall addresses /api/{module}/{controller}/{command}[/{args}...].
type RawCall struct {
	Module     string
	Controller string
	Command    string
	Args       []string
	Method     string
	Data       any
}

// Path returns the API path without the /api prefix.
func (c RawCall) Path() string {
	parts := []string{c.Module, c.Controller, c.Command}
	parts = append(parts, c.Args...)
	return strings.Join(parts, "/")
}

// IsWrite reports whether the call mutates state.
func (c RawCall) IsWrite() bool {
	return c.Method != "" && !strings.EqualFold(c.Method, MethodGet)
}

// Result is the structured outcome of an operation.
type Result struct {
	Changed bool
	Data    map[string]any
}

// Lookup walks nested objects by key.
func (r *Result) Lookup(path ...string) (any, bool) {
	if r == nil {
		return nil, false
	}
	var cur any = r.Data
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the value at path as text, or "".
func (r *Result) String(path ...string) string {
	v, ok := r.Lookup(path...)
	if !ok || v == nil {
		return ""
	}
	return AsString(v)
}

// Rows returns the list of objects at path (default "rows").
func (r *Result) Rows(path ...string) []map[string]any {
	if len(path) == 0 {
		path = []string{"rows"}
	}
	v, ok := r.Lookup(path...)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// AsString renders a decoded JSON scalar as text. Whole floats print
// without a fraction so "tag": 210 and "tag": "210" compare equal.
func AsString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(t)
	}
}

// AsInt parses a decoded JSON scalar as an integer, returning 0 on failure.
func AsInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case float64:
		return int(t)
	case json.Number:
		n, _ := t.Int64()
		return int(n)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// Truthy interprets the appliance's many spellings of a boolean.
func Truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int:
		return t != 0
	case float64:
		return t != 0
	case json.Number:
		return t.String() != "0"
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "yes", "on", "enabled":
			return true
		}
	}
	return false
}

// Selected flattens an option-list field into its value. The appliance
// returns select fields as {"key": {"value": "...", "selected": 1}, ...};
// plain scalars are returned as-is. Multiple selected keys are joined
// with commas.
func Selected(v any) string {
	opts, ok := v.(map[string]any)
	if !ok {
		return AsString(v)
	}
	var keys []string
	for key, raw := range opts {
		opt, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if Truthy(opt["selected"]) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return strings.Join(keys, ",")
}
