package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/TAPPaaS/TAPPaaS/internal/resource"
)

// ErrRuleNotFound is returned when no rule has the requested description.
var ErrRuleNotFound = errors.New("firewall rule not found")

// Rules returns live filter rules whose description contains search,
// case-insensitively. An empty search returns every rule.
func (m *Manager) Rules(ctx context.Context, search string) ([]resource.FirewallRule, error) {
	rules, err := m.fw.List(ctx)
	if err != nil {
		return nil, err
	}
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return rules, nil
	}
	var out []resource.FirewallRule
	for _, r := range rules {
		if strings.Contains(strings.ToLower(r.Description), search) {
			out = append(out, r)
		}
	}
	return out, nil
}

// DeleteRule removes one rule by exact description and, with apply set,
// commits the change.
func (m *Manager) DeleteRule(ctx context.Context, description string, apply bool) (RuleResult, error) {
	res := RuleResult{Description: description}
	rules, err := m.fw.List(ctx)
	if err != nil {
		return res, err
	}
	var found *resource.FirewallRule
	for i := range rules {
		if rules[i].Description == description {
			found = &rules[i]
			break
		}
	}
	if found == nil {
		res.Outcome = OutcomeNotFound
		return res, fmt.Errorf("%q: %w", description, ErrRuleNotFound)
	}
	res.Action = found.Action.String()
	res.Destination = found.DestinationNet
	res.Sequence = found.Sequence

	if m.opts.DryRun {
		res.Outcome = OutcomeWouldDelete
		return res, nil
	}
	if _, err := m.fw.Delete(ctx, description); err != nil {
		res.Outcome = OutcomeError
		res.Message = err.Error()
		return res, err
	}
	res.Outcome = OutcomeDeleted
	m.log.Info("deleted rule", "description", description)
	if apply {
		if err := m.ApplyRules(ctx); err != nil {
			return res, err
		}
	}
	return res, nil
}

// ApplyRules commits staged filter changes. In dry-run nothing is sent.
func (m *Manager) ApplyRules(ctx context.Context) error {
	if m.opts.DryRun {
		return nil
	}
	if err := m.fw.ApplyChanges(ctx); err != nil {
		return err
	}
	m.log.Info("applied firewall changes")
	return nil
}
