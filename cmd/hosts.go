package cmd

import (
	"context"

	"github.com/TAPPaaS/TAPPaaS/internal/reconcile"
	"github.com/TAPPaaS/TAPPaaS/internal/report"
)

// RunHostList prints the dnsmasq host entries.
func RunHostList(ctx context.Context, opts Options) error {
	s, err := opts.connect(ctx, true, false)
	if err != nil {
		return err
	}
	hosts, err := s.manager.Hosts(ctx)
	if err != nil {
		return err
	}
	if opts.JSON {
		return report.JSON(opts.out(), hosts)
	}
	opts.writer().Hosts(hosts)
	return nil
}

// RunHostAdd creates or updates the DNS entry {host}.{zone domain}.
func RunHostAdd(ctx context.Context, opts Options, req reconcile.HostRequest, dryRun bool) error {
	s, err := opts.connect(ctx, dryRun, false)
	if err != nil {
		return err
	}
	res, err := s.manager.AddHost(ctx, req)
	if err != nil {
		return err
	}
	s.log.Audit("host_add", res.Entry.FQDN(), map[string]any{
		"ip":      res.Entry.IP,
		"outcome": string(res.Outcome),
		"dry_run": dryRun,
	})
	return printHost(opts, res)
}

// RunHostDelete removes the DNS entry for host in a zone or domain.
func RunHostDelete(ctx context.Context, opts Options, host, zoneOrDomain string, dryRun bool) error {
	s, err := opts.connect(ctx, dryRun, false)
	if err != nil {
		return err
	}
	res, err := s.manager.RemoveHost(ctx, host, zoneOrDomain)
	if err != nil {
		return err
	}
	s.log.Audit("host_delete", res.Entry.FQDN(), map[string]any{
		"outcome": string(res.Outcome),
		"dry_run": dryRun,
	})
	return printHost(opts, res)
}

func printHost(opts Options, res reconcile.HostResult) error {
	if opts.JSON {
		return report.JSON(opts.out(), res)
	}
	w := opts.out()
	e := res.Entry
	switch res.Outcome {
	case reconcile.OutcomeExists:
		Printer.Fprintf(w, "Host entry %s -> %s is up to date.\n", e.FQDN(), e.IP)
	case reconcile.OutcomeCreated:
		Printer.Fprintf(w, "Created host entry %s -> %s\n", e.FQDN(), e.IP)
	case reconcile.OutcomeUpdated:
		Printer.Fprintf(w, "Updated host entry %s -> %s (was %s)\n", e.FQDN(), e.IP, res.Previous.IP)
	case reconcile.OutcomeDeleted:
		Printer.Fprintf(w, "Deleted host entry %s (%s)\n", e.FQDN(), e.IP)
	default:
		Printer.Fprintf(w, "Host entry %s: %s\n", e.FQDN(), res.Outcome)
	}
	return nil
}
