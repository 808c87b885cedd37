package cmd

import (
	"fmt"
	"strings"

	"github.com/TAPPaaS/TAPPaaS/internal/policy"
	"github.com/TAPPaaS/TAPPaaS/internal/reconcile"
	"github.com/TAPPaaS/TAPPaaS/internal/report"
	"github.com/TAPPaaS/TAPPaaS/internal/zone"
)

// RunCheck validates the zone catalog without contacting the appliance.
func RunCheck(opts Options, verbose bool) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	cat, err := opts.loadCatalog(cfg, opts.logger(cfg))
	if err != nil {
		return fmt.Errorf("catalog invalid: %w", err)
	}

	w := opts.out()
	Printer.Fprintf(w, "Catalog valid!\n")
	Printer.Fprintf(w, "Zones: %d\n", len(cat.Zones))
	Printer.Fprintf(w, "VLAN zones: %d\n", len(cat.VLANZones()))
	Printer.Fprintf(w, "Firewalled zones: %d\n", len(cat.FirewallZones()))

	results, err := compileAll(cat, "")
	if err != nil {
		return err
	}
	for _, res := range results {
		for _, warn := range res.Warnings {
			Printer.Fprintf(w, "warning: %v\n", warn)
		}
	}

	if verbose {
		Printer.Fprintln(w)
		opts.writer().ZoneSummary(cat)
		Printer.Fprintln(w)
		opts.writer().Rules(results)
	}
	return nil
}

// RunSummary prints the zone table with totals.
func RunSummary(opts Options) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	cat, err := opts.loadCatalog(cfg, opts.logger(cfg))
	if err != nil {
		return err
	}
	if opts.JSON {
		views := make([]zoneView, 0, len(cat.Zones))
		for i := range cat.Zones {
			views = append(views, newZoneView(&cat.Zones[i]))
		}
		return report.JSON(opts.out(), views)
	}
	opts.writer().ZoneSummary(cat)
	return nil
}

type zoneView struct {
	Name      string   `json:"name"`
	State     string   `json:"state"`
	Lifecycle string   `json:"lifecycle"`
	VLANTag   int      `json:"vlan_tag"`
	Network   string   `json:"network"`
	Gateway   string   `json:"gateway"`
	DHCPStart string   `json:"dhcp_start,omitempty"`
	DHCPEnd   string   `json:"dhcp_end,omitempty"`
	Bridge    string   `json:"bridge"`
	AccessTo  []string `json:"access_to"`
}

func newZoneView(z *zone.Zone) zoneView {
	v := zoneView{
		Name:      z.Name,
		State:     z.State,
		Lifecycle: z.Lifecycle().String(),
		VLANTag:   z.VLANTag,
		Network:   z.IPNetwork,
		Gateway:   z.Gateway(),
		Bridge:    z.Bridge,
		AccessTo:  z.AccessTo,
	}
	if z.NeedsVLAN() {
		v.DHCPStart, v.DHCPEnd = z.DHCPStart(), z.DHCPEnd()
	}
	return v
}

// RunRules prints the compiled firewall rules of every enabled zone, or of
// one zone when name is set. With reach set a reachability matrix follows.
func RunRules(opts Options, name string, reach bool) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	cat, err := opts.loadCatalog(cfg, opts.logger(cfg))
	if err != nil {
		return err
	}
	if name != "" {
		if _, ok := cat.Lookup(name); !ok {
			return fmt.Errorf("unknown zone %q", name)
		}
	}

	results, err := compileAll(cat, name)
	if err != nil {
		return err
	}
	opts.writer().Rules(results)
	if reach {
		Printer.Fprintln(opts.out())
		opts.writer().Reachability(results, cat)
	}
	return nil
}

// compileAll compiles enabled zones offline. VLAN zones are bound to the
// pending placeholder since no assignment is known.
func compileAll(cat *zone.Catalog, only string) ([]policy.Result, error) {
	var results []policy.Result
	for _, z := range cat.Enabled() {
		if only != "" && !strings.EqualFold(z.Name, only) {
			continue
		}
		iface := reconcile.ZoneInterface(z, nil)
		if iface == "" {
			iface = reconcile.PendingInterface
		}
		res, err := policy.Compile(z, cat, iface)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}
