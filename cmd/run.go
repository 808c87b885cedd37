package cmd

import (
	"context"
	"fmt"

	"github.com/TAPPaaS/TAPPaaS/internal/reconcile"
	"github.com/TAPPaaS/TAPPaaS/internal/report"
)

// PhaseFlags are the phase selection switches of plan and apply.
type PhaseFlags struct {
	VLANsOnly         bool
	DHCPOnly          bool
	FirewallRulesOnly bool
	NoFirewallRules   bool
	NoAssign          bool
}

// Phases resolves the switches. The -only switches are mutually
// exclusive; DHCP also refreshes the dnsmasq interface bindings.
func (f PhaseFlags) Phases() (reconcile.Phases, error) {
	only := 0
	for _, set := range []bool{f.VLANsOnly, f.DHCPOnly, f.FirewallRulesOnly} {
		if set {
			only++
		}
	}
	switch {
	case only > 1:
		return reconcile.Phases{}, fmt.Errorf("--vlans-only, --dhcp-only and --firewall-rules-only are mutually exclusive")
	case f.VLANsOnly:
		return reconcile.Phases{VLANs: true}, nil
	case f.DHCPOnly:
		return reconcile.Phases{DHCP: true, Bindings: true}, nil
	case f.FirewallRulesOnly:
		return reconcile.Phases{Firewall: true}, nil
	}
	p := reconcile.AllPhases()
	if f.NoFirewallRules {
		p.Firewall = false
	}
	return p, nil
}

// RunPlan shows what apply would change without writing anything.
func RunPlan(ctx context.Context, opts Options, flags PhaseFlags) error {
	rep, _, err := reconcileRun(ctx, opts, flags, true)
	if err != nil {
		return err
	}
	if rep.HasErrors() {
		return ErrRunFailed
	}
	return nil
}

// RunApply converges the appliance to the catalog. With verify set the
// live configuration is listed afterwards.
func RunApply(ctx context.Context, opts Options, flags PhaseFlags, verify bool) error {
	rep, s, err := reconcileRun(ctx, opts, flags, false)
	if err != nil {
		return err
	}
	if verify && !opts.JSON {
		live, err := s.manager.CurrentConfig(ctx)
		if err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}
		fmt.Fprintln(opts.out())
		opts.writer().CurrentConfig(live)
	}
	if rep.HasErrors() {
		return ErrRunFailed
	}
	return nil
}

func reconcileRun(ctx context.Context, opts Options, flags PhaseFlags, dryRun bool) (*reconcile.Report, *session, error) {
	phases, err := flags.Phases()
	if err != nil {
		return nil, nil, err
	}
	s, err := opts.connect(ctx, dryRun, !flags.NoAssign)
	if err != nil {
		return nil, nil, err
	}

	rep, err := s.manager.ConfigureAll(ctx, phases)
	if err != nil {
		return nil, nil, err
	}
	s.writeMetrics()

	s.log.Audit("reconcile", "zones", map[string]any{
		"run_id":  rep.RunID,
		"dry_run": rep.DryRun,
		"errors":  rep.ErrorCount(),
		"changed": rep.Changed(),
	})

	if opts.JSON {
		if err := report.JSON(opts.out(), rep); err != nil {
			return nil, nil, err
		}
		return rep, s, nil
	}
	opts.writer().Results(rep)
	return rep, s, nil
}
