package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/TAPPaaS/TAPPaaS/internal/logging"
	"github.com/TAPPaaS/TAPPaaS/internal/policy"
	"github.com/TAPPaaS/TAPPaaS/internal/resource"
	"github.com/TAPPaaS/TAPPaaS/internal/zone"
)

// PendingInterface stands in, during dry-run, for an interface that the
// VLAN phase has not assigned yet.
const PendingInterface = "(pending)"

// ConfigureFirewall removes every "Zone {name} " rule of disabled zones,
// creates the missing compiled rules of enabled zones, removes the rules of
// enabled zones that their policy no longer produces, and commits all
// staged changes with one apply.
//
// Rules are matched by description only. A hand-made rule that reuses a
// synthesized description is treated as existing and never modified.
func (m *Manager) ConfigureFirewall(ctx context.Context) ([]ZoneResult, StepResult) {
	disabled := m.catalog.Disabled()
	enabled := m.catalog.Enabled()
	m.log.Info("configuring firewall rules", "enabled", len(enabled), "disabled", len(disabled))

	rules, err := m.fw.List(ctx)
	if err == nil {
		var assigned []resource.AssignedInterface
		assigned, err = m.vlans.ListAssigned(ctx)
		if err == nil {
			return m.firewallPass(ctx, rules, assigned)
		}
	}

	m.log.Error("cannot fetch firewall rules", "error", err)
	results := fetchFailed(PhaseFirewall, disabled, err)
	results = append(results, fetchFailed(PhaseFirewall, enabled, err)...)
	results = append(results, m.skipped(PhaseFirewall, false)...)
	return results, StepResult{Outcome: OutcomeUnchanged}
}

func (m *Manager) firewallPass(ctx context.Context, rules []resource.FirewallRule, assigned []resource.AssignedInterface) ([]ZoneResult, StepResult) {
	existing := make(map[string]bool, len(rules))
	for _, r := range rules {
		existing[r.Description] = true
	}

	var results []ZoneResult
	changed := false
	for _, z := range m.catalog.Disabled() {
		zr := m.deleteRules(ctx, rules, z)
		if zr.Outcome == OutcomeDeleted || (zr.Outcome == OutcomeError && hasRuleOutcome(zr, OutcomeDeleted)) {
			changed = true
		}
		results = append(results, zr)
	}
	for _, z := range m.catalog.Enabled() {
		zr := m.createRules(ctx, rules, existing, assigned, z)
		if hasRuleOutcome(zr, OutcomeCreated) || hasRuleOutcome(zr, OutcomeDeleted) {
			changed = true
		}
		results = append(results, zr)
	}
	results = append(results, m.skipped(PhaseFirewall, false)...)

	return results, m.applyRules(ctx, changed, results)
}

func (m *Manager) deleteRules(ctx context.Context, rules []resource.FirewallRule, z *zone.Zone) ZoneResult {
	res := ZoneResult{Zone: z.Name, Phase: PhaseFirewall}
	matching := resource.WithPrefix(rules, z.RulePrefix())
	if len(matching) == 0 {
		res.Outcome = OutcomeNotFound
		return res
	}
	res.Detail = fmt.Sprintf("%d rules", len(matching))

	var errs []string
	res.Rules, errs = m.removeRules(ctx, matching)

	switch {
	case len(errs) > 0:
		res.Outcome = OutcomeError
		res.Step = StepDelete
		res.Message = strings.Join(errs, "; ")
	case m.opts.DryRun:
		res.Outcome = OutcomeWouldDelete
	default:
		m.zoneLog(PhaseFirewall, z).Info("deleted rules", "count", len(matching))
		res.Outcome = OutcomeDeleted
	}
	return res
}

// removeRules deletes rules one by one, or in dry-run only reports them.
func (m *Manager) removeRules(ctx context.Context, rules []resource.FirewallRule) ([]RuleResult, []string) {
	var (
		out  []RuleResult
		errs []string
	)
	for _, r := range rules {
		rr := RuleResult{Description: r.Description, Action: r.Action.String(), Destination: r.DestinationNet, Sequence: r.Sequence}
		switch {
		case m.opts.DryRun:
			rr.Outcome = OutcomeWouldDelete
		default:
			if _, err := m.fw.Delete(ctx, r.Description); err != nil {
				rr.Outcome = OutcomeError
				rr.Message = err.Error()
				errs = append(errs, fmt.Sprintf("%s: %v", r.Description, err))
			} else {
				rr.Outcome = OutcomeDeleted
			}
		}
		out = append(out, rr)
	}
	return out, errs
}

// staleRules returns the zone's live rules whose description the compiled
// policy no longer produces.
func staleRules(rules []resource.FirewallRule, z *zone.Zone, compiled []resource.FirewallRule) []resource.FirewallRule {
	keep := make(map[string]bool, len(compiled))
	for _, r := range compiled {
		keep[r.Description] = true
	}
	var out []resource.FirewallRule
	for _, r := range resource.WithPrefix(rules, z.RulePrefix()) {
		if !keep[r.Description] {
			out = append(out, r)
		}
	}
	return out
}

func (m *Manager) createRules(ctx context.Context, rules []resource.FirewallRule, existing map[string]bool, assigned []resource.AssignedInterface, z *zone.Zone) ZoneResult {
	res := ZoneResult{Zone: z.Name, Phase: PhaseFirewall}
	log := m.zoneLog(PhaseFirewall, z)

	if !z.NeedsFirewall() {
		res.Detail = "empty access policy, default deny"
		stale := staleRules(rules, z, nil)
		if len(stale) == 0 {
			res.Outcome = OutcomeIsolated
			return res
		}
		var errs []string
		res.Rules, errs = m.removeRules(ctx, stale)
		return m.ruleOutcome(res, errs, log)
	}

	iface := ZoneInterface(z, assigned)
	if iface == "" && m.opts.DryRun && z.NeedsVLAN() && m.opts.AssignVLANs {
		// The VLAN phase assigns the interface on a real run.
		iface = PendingInterface
	}
	res.Interface = iface
	if iface == "" {
		return failed(res, StepResolve, fmt.Errorf("no assigned interface for vlan %d", z.VLANTag))
	}

	compiled, err := policy.Compile(z, m.catalog, iface)
	if err != nil {
		return failed(res, StepCompile, err)
	}
	for _, w := range compiled.Warnings {
		log.Warn(w.Error())
		res.Warnings = append(res.Warnings, w.Error())
	}
	if m.opts.Metrics != nil {
		m.opts.Metrics.RulesCompiled.WithLabelValues(z.Name).Add(float64(len(compiled.Rules)))
	}

	var errs []string
	for _, r := range compiled.Rules {
		rr := RuleResult{Description: r.Description, Action: r.Action.String(), Destination: r.DestinationNet, Sequence: r.Sequence}
		switch {
		case existing[r.Description]:
			rr.Outcome = OutcomeExists
		case m.opts.DryRun:
			rr.Outcome = OutcomeWouldCreate
		default:
			if _, err := m.fw.CreateOrUpdate(ctx, r); err != nil {
				rr.Outcome = OutcomeError
				rr.Message = err.Error()
				errs = append(errs, fmt.Sprintf("%s: %v", r.Description, err))
			} else {
				rr.Outcome = OutcomeCreated
				existing[r.Description] = true
			}
		}
		res.Rules = append(res.Rules, rr)
	}

	stale, staleErrs := m.removeRules(ctx, staleRules(rules, z, compiled.Rules))
	res.Rules = append(res.Rules, stale...)
	errs = append(errs, staleErrs...)

	res = m.ruleOutcome(res, errs, log)
	res.Detail = fmt.Sprintf("%d rules", len(compiled.Rules))
	return res
}

// ruleOutcome folds the per-rule outcomes of an enabled zone into one.
func (m *Manager) ruleOutcome(res ZoneResult, errs []string, log *logging.Logger) ZoneResult {
	created := countRules(res, OutcomeCreated)
	deleted := countRules(res, OutcomeDeleted)
	if created > 0 || deleted > 0 {
		log.Info("updated rules", "created", created, "deleted", deleted)
	}
	switch {
	case len(errs) > 0:
		res.Outcome = OutcomeError
		res.Step = StepCreate
		res.Message = strings.Join(errs, "; ")
	case created > 0:
		res.Outcome = OutcomeCreated
	case deleted > 0:
		res.Outcome = OutcomeUpdated
	case hasRuleOutcome(res, OutcomeWouldCreate):
		res.Outcome = OutcomeWouldCreate
	case hasRuleOutcome(res, OutcomeWouldDelete):
		res.Outcome = OutcomeWouldUpdate
	default:
		res.Outcome = OutcomeExists
	}
	return res
}

func (m *Manager) applyRules(ctx context.Context, changed bool, results []ZoneResult) StepResult {
	pending := false
	for _, zr := range results {
		if zr.Outcome.IsPending() {
			pending = true
		}
	}
	switch {
	case m.opts.DryRun && pending:
		return StepResult{Outcome: OutcomeWouldUpdate}
	case m.opts.DryRun || !changed:
		return StepResult{Outcome: OutcomeUnchanged}
	}
	if err := m.fw.ApplyChanges(ctx); err != nil {
		m.log.Error("firewall apply failed", "error", err)
		return StepResult{Outcome: OutcomeError, Message: err.Error()}
	}
	m.log.Info("applied firewall changes")
	return StepResult{Outcome: OutcomeUpdated}
}

func hasRuleOutcome(zr ZoneResult, o Outcome) bool {
	return countRules(zr, o) > 0
}

func countRules(zr ZoneResult, o Outcome) int {
	n := 0
	for _, r := range zr.Rules {
		if r.Outcome == o {
			n++
		}
	}
	return n
}
