// Package report renders catalogs, run reports and live appliance state for
// the terminal, and as JSON for machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/TAPPaaS/TAPPaaS/internal/policy"
	"github.com/TAPPaaS/TAPPaaS/internal/reconcile"
	"github.com/TAPPaaS/TAPPaaS/internal/resource"
	"github.com/TAPPaaS/TAPPaaS/internal/zone"
)

// InternetProbe is the destination used to test internet reachability.
var InternetProbe = netip.MustParseAddr("8.8.8.8")

// Writer renders to one output. Styling degrades to plain text when the
// output is not a terminal.
type Writer struct {
	w  io.Writer
	p  *message.Printer
	st styles
}

// New creates a Writer. A nil printer prints English.
func New(w io.Writer, p *message.Printer) *Writer {
	if p == nil {
		p = message.NewPrinter(language.English)
	}
	return &Writer{w: w, p: p, st: newStyles(lipgloss.NewRenderer(w))}
}

func (rw *Writer) title(key string, args ...any) {
	fmt.Fprintln(rw.w, rw.st.title.Render(rw.p.Sprintf(key, args...)))
}

func (rw *Writer) line(format string, args ...any) {
	fmt.Fprintln(rw.w, rw.p.Sprintf(format, args...))
}

func (rw *Writer) table(headers []string, rows [][]string, cellStyle func(row, col int) lipgloss.Style) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(rw.st.border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return rw.st.header
			}
			if cellStyle != nil {
				return cellStyle(row, col)
			}
			return rw.st.cell
		})
	fmt.Fprintln(rw.w, t.String())
}

// ZoneSummary prints the catalog as a table followed by totals.
func (rw *Writer) ZoneSummary(cat *zone.Catalog) {
	rw.title("Zone Summary")
	rows := make([][]string, 0, len(cat.Zones))
	for i := range cat.Zones {
		z := &cat.Zones[i]
		vlan := "-"
		if z.NeedsVLAN() {
			vlan = strconv.Itoa(z.VLANTag)
		}
		dhcp := "-"
		if z.NeedsVLAN() {
			dhcp = z.DHCPStart() + " - " + z.DHCPEnd()
		}
		access := strings.Join(z.AccessTo, ", ")
		if access == "" {
			access = "(isolated)"
		}
		rows = append(rows, []string{z.Name, z.Lifecycle().String(), vlan, z.IPNetwork, z.Gateway(), dhcp, z.Bridge, access})
	}
	rw.table([]string{"Zone", "State", "VLAN", "Network", "Gateway", "DHCP", "Bridge", "Access"}, rows, func(row, col int) lipgloss.Style {
		if col == 1 {
			switch rows[row][1] {
			case zone.Enabled.String():
				return rw.st.good
			case zone.Manual.String():
				return rw.st.warn
			default:
				return rw.st.muted
			}
		}
		return rw.st.cell
	})
	rw.line("%d zones, %d enabled, %d disabled, %d manual",
		len(cat.Zones), len(cat.Enabled()), len(cat.Disabled()), len(cat.Manual()))
}

// Results prints a run report: one table per phase, the run-wide steps,
// then totals.
func (rw *Writer) Results(rep *reconcile.Report) {
	rw.title("Reconciliation Results")
	sub := "run " + rep.RunID
	if rep.DryRun {
		sub += " (dry run)"
	}
	fmt.Fprintln(rw.w, rw.st.subtitle.Render(sub))

	for _, phase := range rep.RunPhases() {
		results := rep.Outcomes(phase)
		fmt.Fprintln(rw.w)
		fmt.Fprintln(rw.w, rw.st.title.Render(string(phase)))
		if len(results) == 0 {
			fmt.Fprintln(rw.w, rw.st.muted.Render("no zones"))
			continue
		}
		rows := make([][]string, 0, len(results))
		for _, zr := range results {
			rows = append(rows, []string{zr.Zone, string(zr.Outcome), zr.Step, zr.Interface, resultText(zr)})
		}
		rw.table([]string{"Zone", "Outcome", "Step", "Interface", "Detail"}, rows, func(row, col int) lipgloss.Style {
			if col == 1 {
				return rw.st.outcome(results[row].Outcome)
			}
			return rw.st.cell
		})
	}

	if rep.Bindings != nil {
		fmt.Fprintln(rw.w)
		rw.step("dnsmasq interfaces", *rep.Bindings)
	}
	if rep.FirewallApply != nil {
		rw.step("firewall apply", *rep.FirewallApply)
	}

	fmt.Fprintln(rw.w)
	counts := rep.Counts()
	for _, phase := range rep.RunPhases() {
		var parts []string
		for _, o := range reconcile.SortedOutcomes(counts[phase]) {
			parts = append(parts, fmt.Sprintf("%s=%d", o, counts[phase][o]))
		}
		fmt.Fprintf(rw.w, "%-10s %s\n", phase, strings.Join(parts, " "))
	}
	switch {
	case rep.HasErrors():
		fmt.Fprintln(rw.w, rw.st.bad.UnsetPadding().Render(rw.p.Sprintf("%d errors", rep.ErrorCount())))
	case !rep.Changed():
		rw.line("No changes.")
	}
	if rep.DryRun {
		rw.line("Dry run: nothing was written.")
	}
}

func (rw *Writer) step(name string, s reconcile.StepResult) {
	text := rw.st.outcome(s.Outcome).UnsetPadding().Render(string(s.Outcome))
	extra := ""
	if len(s.Interfaces) > 0 {
		extra = " [" + strings.Join(s.Interfaces, ", ") + "]"
	}
	if s.Message != "" {
		extra += ": " + s.Message
	}
	fmt.Fprintf(rw.w, "%s: %s%s\n", name, text, extra)
}

func resultText(zr reconcile.ZoneResult) string {
	text := zr.Detail
	if zr.Message != "" {
		if text != "" {
			text += ": "
		}
		text += zr.Message
	}
	for _, w := range zr.Warnings {
		text += " (warning: " + w + ")"
	}
	return text
}

// CurrentConfig prints the live appliance state managed by zonectl.
func (rw *Writer) CurrentConfig(live *reconcile.LiveConfig) {
	rw.title("Current Configuration")

	fmt.Fprintln(rw.w, rw.st.subtitle.Render("VLANs"))
	var rows [][]string
	for _, v := range live.VLANs {
		rows = append(rows, []string{v.DeviceName(), strconv.Itoa(v.Tag), v.Parent, v.Description})
	}
	rw.table([]string{"Device", "Tag", "Parent", "Description"}, rows, nil)

	fmt.Fprintln(rw.w, rw.st.subtitle.Render("Interfaces"))
	rows = nil
	for _, a := range live.Assigned {
		tag := "-"
		if a.VLANTag > 0 {
			tag = strconv.Itoa(a.VLANTag)
		}
		rows = append(rows, []string{a.Identifier, a.Device, tag, a.Description, strconv.FormatBool(a.Enabled)})
	}
	rw.table([]string{"Interface", "Device", "VLAN", "Description", "Enabled"}, rows, nil)

	fmt.Fprintln(rw.w, rw.st.subtitle.Render("DHCP ranges"))
	rows = nil
	for _, r := range live.Ranges {
		rows = append(rows, []string{r.Description, r.StartAddr + " - " + r.EndAddr, orAny(r.Interface), r.Domain})
	}
	rw.table([]string{"Description", "Range", "Interface", "Domain"}, rows, nil)

	fmt.Fprintln(rw.w, rw.st.subtitle.Render("Firewall rules"))
	rows = nil
	for _, r := range live.Rules {
		rows = append(rows, []string{strconv.Itoa(r.Sequence), r.Action.String(), r.Interface, r.DestinationNet, r.Description})
	}
	rw.table([]string{"Seq", "Action", "Interface", "Destination", "Description"}, rows, nil)

	fmt.Fprintf(rw.w, "dnsmasq interfaces: %s\n", strings.Join(live.DnsmasqInterfaces, ", "))
}

// Hosts prints dnsmasq host entries.
func (rw *Writer) Hosts(hosts []resource.DHCPHost) {
	if len(hosts) == 0 {
		rw.line("No host entries found.")
		return
	}
	rows := make([][]string, 0, len(hosts))
	for _, h := range hosts {
		rows = append(rows, []string{h.FQDN(), h.IP, orNone(h.HardwareAddr), h.Description})
	}
	rw.table([]string{"Host", "IP", "MAC", "Description"}, rows, nil)
}

// FirewallRules prints live filter rules in evaluation order.
func (rw *Writer) FirewallRules(rules []resource.FirewallRule) {
	if len(rules) == 0 {
		rw.line("No firewall rules found.")
		return
	}
	rows := make([][]string, 0, len(rules))
	for _, r := range rules {
		state := "enabled"
		if !r.Enabled {
			state = "disabled"
		}
		rows = append(rows, []string{strconv.Itoa(r.Sequence), r.Action.String(), r.Protocol.String(), r.Interface, r.SourceNet, r.DestinationNet, state, r.Description})
	}
	rw.table([]string{"Seq", "Action", "Proto", "Interface", "Source", "Destination", "State", "Description"}, rows, func(row, col int) lipgloss.Style {
		if col == 1 && rules[row].Action != resource.ActionPass {
			return rw.st.bad
		}
		return rw.st.cell
	})
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func orAny(iface string) string {
	if iface == "" {
		return "(any)"
	}
	return iface
}

// Rules prints the compiled rule set of each zone.
func (rw *Writer) Rules(results []policy.Result) {
	for _, res := range results {
		fmt.Fprintln(rw.w, rw.st.title.Render("Zone "+res.Zone))
		for _, w := range res.Warnings {
			fmt.Fprintln(rw.w, rw.st.warn.UnsetPadding().Render("warning: "+w.Error()))
		}
		if res.Isolated {
			fmt.Fprintln(rw.w, rw.st.muted.UnsetPadding().Render("isolated: no rules, default deny"))
			continue
		}
		rows := make([][]string, 0, len(res.Rules))
		for _, r := range res.Rules {
			rows = append(rows, []string{strconv.Itoa(r.Sequence), r.Action.String(), r.Interface, r.SourceNet, r.DestinationNet, r.Description})
		}
		rw.table([]string{"Seq", "Action", "Interface", "Source", "Destination", "Description"}, rows, func(row, col int) lipgloss.Style {
			if col == 1 && res.Rules[row].Action == resource.ActionBlock {
				return rw.st.bad
			}
			return rw.st.cell
		})
	}
}

// Reachability prints, for every compiled zone, whether traffic may reach
// each other zone's gateway and the internet.
func (rw *Writer) Reachability(results []policy.Result, cat *zone.Catalog) {
	type target struct {
		name string
		addr netip.Addr
	}
	var targets []target
	for _, z := range cat.Enabled() {
		if addr, err := netip.ParseAddr(z.Gateway()); err == nil {
			targets = append(targets, target{z.Name, addr})
		}
	}
	targets = append(targets, target{"internet", InternetProbe})

	headers := []string{"From \\ To"}
	for _, t := range targets {
		headers = append(headers, t.name)
	}
	addrs := make([]netip.Addr, 0, len(targets))
	for _, t := range targets {
		addrs = append(addrs, t.addr)
	}
	rows := make([][]string, 0, len(results))
	for _, res := range results {
		reach := policy.Reachable(res.Rules, addrs...)
		row := []string{res.Zone}
		for _, t := range targets {
			cell := "deny"
			if reach[t.addr] {
				cell = "allow"
			}
			row = append(row, cell)
		}
		rows = append(rows, row)
	}
	rw.table(headers, rows, func(row, col int) lipgloss.Style {
		switch {
		case col == 0:
			return rw.st.cell
		case rows[row][col] == "allow":
			return rw.st.good
		default:
			return rw.st.muted
		}
	})
}

// JSON writes v indented.
func JSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
