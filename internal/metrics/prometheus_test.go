package metrics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/mock"

	"github.com/TAPPaaS/TAPPaaS/internal/appliance"
)

type stubInvoker struct {
	res *appliance.Result
	err error
}

func (s stubInvoker) Invoke(context.Context, appliance.OperationName, any, bool) (*appliance.Result, error) {
	return s.res, s.err
}

type MockInvoker struct {
	mock.Mock
}

func (m *MockInvoker) Invoke(ctx context.Context, name appliance.OperationName, params any, dryRun bool) (*appliance.Result, error) {
	args := m.Called(ctx, name, params, dryRun)
	res, _ := args.Get(0).(*appliance.Result)
	return res, args.Error(1)
}

func counter(t *testing.T, r *Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := r.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			if matchLabels(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(m *dto.Metric, want map[string]string) bool {
	got := map[string]string{}
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestRegistry_RecordOutcome(t *testing.T) {
	r := New()
	r.RecordOutcome("vlan", "created")
	r.RecordOutcome("vlan", "created")
	r.RecordOutcome("dhcp", "error")

	if got := counter(t, r, "zonectl_phase_outcomes_total", map[string]string{"phase": "vlan", "outcome": "created"}); got != 2 {
		t.Errorf("vlan/created = %v, want 2", got)
	}
	if got := counter(t, r, "zonectl_phase_outcomes_total", map[string]string{"phase": "dhcp", "outcome": "error"}); got != 1 {
		t.Errorf("dhcp/error = %v, want 1", got)
	}
}

func TestRegistry_Independent(t *testing.T) {
	a, b := New(), New()
	a.RecordOutcome("vlan", "exists")
	if got := counter(t, b, "zonectl_phase_outcomes_total", map[string]string{"phase": "vlan"}); got != 0 {
		t.Errorf("registries share state: %v", got)
	}
	if Get() != Get() {
		t.Error("Get should return the same registry")
	}
}

func TestInstrument_Labels(t *testing.T) {
	r := New()
	ctx := context.Background()

	tests := []struct {
		inv  stubInvoker
		want string
	}{
		{stubInvoker{res: &appliance.Result{Changed: true}}, "changed"},
		{stubInvoker{res: &appliance.Result{}}, "ok"},
		{stubInvoker{err: &appliance.ConnectionError{Host: "fw", Err: errors.New("refused")}}, "connection_error"},
		{stubInvoker{err: appliance.NewResourceError(appliance.OpRule, "", "tag already exists", nil)}, "duplicate"},
		{stubInvoker{err: errors.New("odd")}, "error"},
	}
	for _, tt := range tests {
		_, _ = r.Instrument(tt.inv).Invoke(ctx, appliance.OpRule, nil, false)
		if got := counter(t, r, "zonectl_appliance_requests_total", map[string]string{"op": "rule", "result": tt.want}); got != 1 {
			t.Errorf("result %s = %v, want 1", tt.want, got)
		}
	}
}

func TestInstrument_PassesThrough(t *testing.T) {
	ctx := context.Background()
	params := map[string]any{"vlan": "210"}
	want := &appliance.Result{Changed: true, Data: map[string]any{"uuid": "u1"}}

	inner := new(MockInvoker)
	inner.On("Invoke", ctx, appliance.OpInterfaceVLAN, params, true).Return(want, nil).Once()
	inner.On("Invoke", ctx, appliance.OpPing, nil, false).Return(nil, errors.New("timeout")).Once()

	inv := New().Instrument(inner)
	got, err := inv.Invoke(ctx, appliance.OpInterfaceVLAN, params, true)
	if err != nil || got != want {
		t.Errorf("Invoke = %v, %v; want the inner result unchanged", got, err)
	}
	if _, err := inv.Invoke(ctx, appliance.OpPing, nil, false); err == nil || err.Error() != "timeout" {
		t.Errorf("inner error not passed through: %v", err)
	}
	inner.AssertExpectations(t)
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.RecordRun(time.Unix(1700000000, 0), 1500*time.Millisecond, 2)
	r.ObservePhase("firewall", 200*time.Millisecond)

	path := filepath.Join(t.TempDir(), "zonectl.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	for _, want := range []string{
		"zonectl_last_run_duration_seconds 1.5",
		"zonectl_last_run_errors 2",
		`zonectl_phase_duration_seconds_count{phase="firewall"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("textfile missing %q", want)
		}
	}
}
