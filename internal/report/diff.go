package report

import (
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/TAPPaaS/TAPPaaS/internal/policy"
	"github.com/TAPPaaS/TAPPaaS/internal/reconcile"
	"github.com/TAPPaaS/TAPPaaS/internal/resource"
	"github.com/TAPPaaS/TAPPaaS/internal/zone"
)

// DiffOptions supply the values a run would derive from its configuration.
type DiffOptions struct {
	// Parent maps a zone bridge to its VLAN parent interface.
	Parent    func(bridge string) string
	LeaseTime int
}

// DesiredLines renders the resources the catalog asks for, one canonical
// line each. Manual zones are left out.
func DesiredLines(cat *zone.Catalog, live *reconcile.LiveConfig, opts DiffOptions) []string {
	if opts.LeaseTime == 0 {
		opts.LeaseTime = resource.DefaultLeaseTime
	}
	var vlans, ranges, rules []string
	bindings := []string{reconcile.BaseDHCPIface}

	for _, z := range cat.VLANZones() {
		parent := ""
		if opts.Parent != nil {
			parent = opts.Parent(z.Bridge)
		}
		vlans = append(vlans, vlanLine(z.VLANTag, parent, z.VLANDescription()))

		iface := reconcile.ZoneInterface(z, live.Assigned)
		if iface == "" {
			iface = reconcile.PendingInterface
		} else if !slices.Contains(bindings, iface) {
			bindings = append(bindings, iface)
		}
		ranges = append(ranges, rangeLine(z.DHCPDescription(), z.DHCPStart(), z.DHCPEnd(), iface, z.Domain(), opts.LeaseTime))
	}

	for _, z := range cat.FirewallZones() {
		iface := reconcile.ZoneInterface(z, live.Assigned)
		if iface == "" {
			iface = reconcile.PendingInterface
		}
		res, err := policy.Compile(z, cat, iface)
		if err != nil {
			continue
		}
		for _, r := range res.Rules {
			rules = append(rules, ruleLine(r))
		}
	}

	return assemble(vlans, ranges, rules, bindings)
}

// LiveLines renders the live resources that belong to catalog zones, in
// the same form as DesiredLines.
func LiveLines(cat *zone.Catalog, live *reconcile.LiveConfig) []string {
	tags := map[int]bool{}
	descs := map[string]bool{}
	var prefixes []string
	for i := range cat.Zones {
		z := &cat.Zones[i]
		if z.IsManual() {
			continue
		}
		if z.NeedsVLAN() {
			tags[z.VLANTag] = true
			descs[z.DHCPDescription()] = true
		}
		prefixes = append(prefixes, z.RulePrefix())
	}

	var vlans, ranges, rules []string
	for _, v := range live.VLANs {
		if tags[v.Tag] {
			vlans = append(vlans, vlanLine(v.Tag, v.Parent, v.Description))
		}
	}
	for _, r := range live.Ranges {
		if descs[r.Description] {
			ranges = append(ranges, rangeLine(r.Description, r.StartAddr, r.EndAddr, r.Interface, r.Domain, r.LeaseTime))
		}
	}
	for _, r := range live.Rules {
		for _, p := range prefixes {
			if strings.HasPrefix(r.Description, p) {
				rules = append(rules, ruleLine(r))
				break
			}
		}
	}
	return assemble(vlans, ranges, rules, live.DnsmasqInterfaces)
}

func vlanLine(tag int, parent, desc string) string {
	return fmt.Sprintf("vlan %04d parent=%s description=%q", tag, parent, desc)
}

func rangeLine(desc, start, end, iface, domain string, lease int) string {
	return fmt.Sprintf("dhcp %q %s-%s interface=%s domain=%s lease=%d", desc, start, end, orAny(iface), domain, lease)
}

func ruleLine(r resource.FirewallRule) string {
	return fmt.Sprintf("rule %05d %s on %s from %s to %s %q", r.Sequence, r.Action, r.Interface, r.SourceNet, r.DestinationNet, r.Description)
}

func assemble(vlans, ranges, rules, bindings []string) []string {
	sort.Strings(vlans)
	sort.Strings(ranges)
	sort.Strings(rules)
	b := slices.Clone(bindings)
	sort.Strings(b)

	out := make([]string, 0, len(vlans)+len(ranges)+len(rules)+1)
	out = append(out, vlans...)
	out = append(out, ranges...)
	out = append(out, rules...)
	return append(out, "dnsmasq interfaces="+strings.Join(b, ","))
}

// Diff writes a unified diff from the desired to the live resources and
// reports whether they differ.
func Diff(w io.Writer, cat *zone.Catalog, live *reconcile.LiveConfig, opts DiffOptions) (bool, error) {
	desired := strings.Join(DesiredLines(cat, live, opts), "\n") + "\n"
	running := strings.Join(LiveLines(cat, live), "\n") + "\n"
	if desired == running {
		_, err := fmt.Fprintln(w, "No changes detected.")
		return false, err
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(desired),
		B:        difflib.SplitLines(running),
		FromFile: "Desired",
		ToFile:   "Live",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return true, fmt.Errorf("failed to compute diff: %w", err)
	}
	_, err = io.WriteString(w, text)
	return true, err
}
