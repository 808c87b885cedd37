package cmd

import (
	"context"

	"github.com/TAPPaaS/TAPPaaS/internal/report"
)

// RunFirewallList prints live filter rules, optionally filtered by a
// description substring.
func RunFirewallList(ctx context.Context, opts Options, search string) error {
	s, err := opts.connect(ctx, true, false)
	if err != nil {
		return err
	}
	rules, err := s.manager.Rules(ctx, search)
	if err != nil {
		return err
	}
	if opts.JSON {
		return report.JSON(opts.out(), rules)
	}
	opts.writer().FirewallRules(rules)
	return nil
}

// RunFirewallDelete removes one rule by description. Unless noApply is
// set the change is committed right away.
func RunFirewallDelete(ctx context.Context, opts Options, description string, noApply, dryRun bool) error {
	s, err := opts.connect(ctx, dryRun, false)
	if err != nil {
		return err
	}
	res, err := s.manager.DeleteRule(ctx, description, !noApply)
	if err != nil {
		return err
	}
	s.log.Audit("rule_delete", description, map[string]any{
		"outcome": string(res.Outcome),
		"applied": !noApply && !dryRun,
	})
	if opts.JSON {
		return report.JSON(opts.out(), res)
	}
	Printer.Fprintf(opts.out(), "Rule %q: %s\n", description, res.Outcome)
	return nil
}

// RunFirewallApply commits staged filter changes.
func RunFirewallApply(ctx context.Context, opts Options) error {
	s, err := opts.connect(ctx, false, false)
	if err != nil {
		return err
	}
	if err := s.manager.ApplyRules(ctx); err != nil {
		return err
	}
	s.log.Audit("rule_apply", "filter", nil)
	Printer.Fprintf(opts.out(), "Firewall changes applied.\n")
	return nil
}
