package reconcile

import (
	"sort"
	"time"
)

// Phase names one resource pass of a run.
type Phase string

const (
	PhaseVLAN     Phase = "vlan"
	PhaseDHCP     Phase = "dhcp"
	PhaseBindings Phase = "dnsmasq_interfaces"
	PhaseFirewall Phase = "firewall"
)

// PhaseOrder is the order phases run in.
var PhaseOrder = []Phase{PhaseVLAN, PhaseDHCP, PhaseBindings, PhaseFirewall}

// Outcome is what happened to one zone in one phase.
type Outcome string

const (
	OutcomeCreated         Outcome = "created"
	OutcomeExists          Outcome = "exists"
	OutcomeDeleted         Outcome = "deleted"
	OutcomeNotFound        Outcome = "not_found"
	OutcomeWouldCreate     Outcome = "would_create"
	OutcomeWouldDelete     Outcome = "would_delete"
	OutcomeSkippedManual   Outcome = "skipped_manual"
	OutcomeSkippedUntagged Outcome = "skipped_untagged"
	OutcomeIsolated        Outcome = "isolated"
	OutcomeError           Outcome = "error"

	// Interface bindings and the firewall apply step.
	OutcomeUpdated     Outcome = "updated"
	OutcomeWouldUpdate Outcome = "would_update"
	OutcomeUnchanged   Outcome = "unchanged"
)

// IsWrite reports whether the outcome means the appliance was changed.
func (o Outcome) IsWrite() bool {
	return o == OutcomeCreated || o == OutcomeDeleted || o == OutcomeUpdated
}

// IsPending reports whether the outcome is a dry-run prediction of a write.
func (o Outcome) IsPending() bool {
	return o == OutcomeWouldCreate || o == OutcomeWouldDelete || o == OutcomeWouldUpdate
}

// Sub-steps a zone result can blame.
const (
	StepFetch    = "fetch"
	StepCreate   = "create"
	StepAssign   = "assign"
	StepReload   = "reload"
	StepUnassign = "unassign"
	StepDelete   = "delete"
	StepBind     = "bind"
	StepResolve  = "resolve"
	StepCompile  = "compile"
)

// RuleResult is the outcome for one firewall rule of a zone.
type RuleResult struct {
	Description string  `json:"description"`
	Action      string  `json:"action,omitempty"`
	Destination string  `json:"destination,omitempty"`
	Sequence    int     `json:"sequence,omitempty"`
	Outcome     Outcome `json:"outcome"`
	Message     string  `json:"message,omitempty"`
}

// ZoneResult is the outcome for one zone in one phase.
type ZoneResult struct {
	Zone      string       `json:"zone"`
	Phase     Phase        `json:"phase"`
	Outcome   Outcome      `json:"outcome"`
	Step      string       `json:"step,omitempty"`
	Message   string       `json:"message,omitempty"`
	Detail    string       `json:"detail,omitempty"`
	Interface string       `json:"interface,omitempty"`
	Rules     []RuleResult `json:"rules,omitempty"`
	Warnings  []string     `json:"warnings,omitempty"`
}

// StepResult is the outcome of a run-wide step (interface bindings, apply).
type StepResult struct {
	Outcome    Outcome  `json:"outcome"`
	Interfaces []string `json:"interfaces,omitempty"`
	Message    string   `json:"message,omitempty"`
}

// Report accumulates every outcome of a run.
type Report struct {
	RunID         string                 `json:"run_id"`
	DryRun        bool                   `json:"dry_run"`
	Started       time.Time              `json:"started"`
	Finished      time.Time              `json:"finished"`
	Phases        map[Phase][]ZoneResult `json:"phases"`
	Bindings      *StepResult            `json:"dnsmasq_interfaces,omitempty"`
	FirewallApply *StepResult            `json:"firewall_apply,omitempty"`
}

func newReport(runID string, dryRun bool) *Report {
	return &Report{
		RunID:   runID,
		DryRun:  dryRun,
		Started: time.Now(),
		Phases:  map[Phase][]ZoneResult{},
	}
}

// Outcomes returns the zone results of a phase in the order they happened.
func (r *Report) Outcomes(phase Phase) []ZoneResult {
	return r.Phases[phase]
}

// Zone returns the result for a zone in a phase.
func (r *Report) Zone(phase Phase, name string) (ZoneResult, bool) {
	for _, zr := range r.Phases[phase] {
		if zr.Zone == name {
			return zr, true
		}
	}
	return ZoneResult{}, false
}

// Errors returns every error outcome, phases in run order.
func (r *Report) Errors() []ZoneResult {
	var out []ZoneResult
	for _, p := range PhaseOrder {
		for _, zr := range r.Phases[p] {
			if zr.Outcome == OutcomeError {
				out = append(out, zr)
			}
		}
	}
	return out
}

// HasErrors reports whether any zone or run-wide step failed.
func (r *Report) HasErrors() bool {
	if len(r.Errors()) > 0 {
		return true
	}
	if r.Bindings != nil && r.Bindings.Outcome == OutcomeError {
		return true
	}
	return r.FirewallApply != nil && r.FirewallApply.Outcome == OutcomeError
}

// ErrorCount counts error outcomes including run-wide steps.
func (r *Report) ErrorCount() int {
	n := len(r.Errors())
	if r.Bindings != nil && r.Bindings.Outcome == OutcomeError {
		n++
	}
	if r.FirewallApply != nil && r.FirewallApply.Outcome == OutcomeError {
		n++
	}
	return n
}

// Counts tallies outcomes per phase.
func (r *Report) Counts() map[Phase]map[Outcome]int {
	out := make(map[Phase]map[Outcome]int, len(r.Phases))
	for p, results := range r.Phases {
		m := map[Outcome]int{}
		for _, zr := range results {
			m[zr.Outcome]++
		}
		out[p] = m
	}
	return out
}

// Changed reports whether the run wrote anything.
func (r *Report) Changed() bool {
	for _, results := range r.Phases {
		for _, zr := range results {
			if zr.Outcome.IsWrite() {
				return true
			}
		}
	}
	return r.Bindings != nil && r.Bindings.Outcome.IsWrite()
}

// RunPhases returns the phases that produced results, in run order.
func (r *Report) RunPhases() []Phase {
	var out []Phase
	for _, p := range PhaseOrder {
		if _, ok := r.Phases[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// SortedOutcomes returns a count map's keys in a stable order.
func SortedOutcomes(m map[Outcome]int) []Outcome {
	out := make([]Outcome, 0, len(m))
	for o := range m {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
