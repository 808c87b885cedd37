package report

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/TAPPaaS/TAPPaaS/internal/appliance/appliancetest"
	"github.com/TAPPaaS/TAPPaaS/internal/policy"
	"github.com/TAPPaaS/TAPPaaS/internal/reconcile"
	"github.com/TAPPaaS/TAPPaaS/internal/resource"
	"github.com/TAPPaaS/TAPPaaS/internal/zone"

	_ "github.com/TAPPaaS/TAPPaaS/internal/i18n"
)

const zones = `{
  "mgmt": {"type": "Management", "state": "Mandatory", "vlantag": 0, "ip": "10.0.0.0/24", "bridge": "lan", "access-to": ["all"]},
  "srv":  {"type": "Service", "state": "Active", "vlantag": 210, "ip": "10.21.0.0/24", "description": "Server zone", "access-to": ["internet", "home"]},
  "home": {"type": "Home", "state": "Active", "vlantag": 300, "ip": "10.30.0.0/24", "access-to": []},
  "old":  {"type": "Service", "state": "Inactive", "vlantag": 400, "ip": "10.40.0.0/24", "access-to": ["internet"]},
  "lab":  {"type": "Lab", "state": "Manual", "vlantag": 500, "ip": "10.50.0.0/24", "access-to": ["internet"]}
}`

func testCatalog(t *testing.T) *zone.Catalog {
	t.Helper()
	cat, err := zone.Parse([]byte(zones), "zones.json", zone.FormatJSON)
	require.NoError(t, err)
	return cat
}

// rowFor returns the cells of the table row whose first cell is name.
func rowFor(t *testing.T, out, name string) []string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		var cells []string
		for _, c := range strings.Split(line, "│") {
			if c = strings.TrimSpace(c); c != "" {
				cells = append(cells, c)
			}
		}
		if len(cells) > 0 && cells[0] == name {
			return cells
		}
	}
	t.Fatalf("no row for %q in:\n%s", name, out)
	return nil
}

func TestZoneSummary(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, nil).ZoneSummary(testCatalog(t))
	out := buf.String()

	assert.Contains(t, out, "Zone Summary")
	assert.Contains(t, out, "5 zones, 3 enabled, 1 disabled, 1 manual")
	assert.NotContains(t, out, "\x1b[", "no escape codes for a non-terminal writer")

	srv := rowFor(t, out, "srv")
	assert.Equal(t, []string{"srv", "enabled", "210", "10.21.0.0/24", "10.21.0.1", "10.21.0.50 - 10.21.0.250"}, srv[:6])
	home := rowFor(t, out, "home")
	assert.Equal(t, "(isolated)", home[len(home)-1])
	mgmt := rowFor(t, out, "mgmt")
	assert.Equal(t, "-", mgmt[2])
}

func TestZoneSummary_German(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, message.NewPrinter(language.German)).ZoneSummary(testCatalog(t))
	assert.Contains(t, buf.String(), "Zonenübersicht")
	assert.Contains(t, buf.String(), "5 Zonen, 3 aktiv, 1 deaktiviert, 1 manuell")
}

func applyCatalog(t *testing.T, fake *appliancetest.Fake, dryRun bool) (*reconcile.Manager, *reconcile.Report) {
	t.Helper()
	m := reconcile.New(testCatalog(t), fake, reconcile.Options{AssignVLANs: true, DryRun: dryRun})
	rep, err := m.ConfigureAll(context.Background(), reconcile.AllPhases())
	require.NoError(t, err)
	return m, rep
}

func TestResults(t *testing.T) {
	_, rep := applyCatalog(t, appliancetest.New(), false)

	var buf bytes.Buffer
	New(&buf, nil).Results(rep)
	out := buf.String()

	assert.Contains(t, out, "Reconciliation Results")
	assert.Contains(t, out, "run "+rep.RunID)
	assert.Equal(t, "created", rowFor(t, out, "srv")[1])
	assert.Contains(t, out, "dnsmasq interfaces: updated [lan, opt1, opt2]")
	assert.Contains(t, out, "firewall apply: updated")
	assert.NotContains(t, out, "errors")
	assert.NotContains(t, out, "Dry run")
}

func TestResults_DryRunAndErrors(t *testing.T) {
	fake := appliancetest.New()
	_, rep := applyCatalog(t, fake, true)

	var buf bytes.Buffer
	New(&buf, nil).Results(rep)
	assert.Contains(t, buf.String(), "(dry run)")
	assert.Contains(t, buf.String(), "Dry run: nothing was written.")

	fake.Unreachable = true
	_, rep = applyCatalog(t, fake, false)
	buf.Reset()
	New(&buf, nil).Results(rep)
	assert.Contains(t, buf.String(), "errors")
	assert.Equal(t, "error", rowFor(t, buf.String(), "srv")[1])
}

func TestCurrentConfig(t *testing.T) {
	fake := appliancetest.New()
	m, _ := applyCatalog(t, fake, false)
	live, err := m.CurrentConfig(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	New(&buf, nil).CurrentConfig(live)
	out := buf.String()
	assert.Contains(t, out, "Current Configuration")
	assert.Equal(t, "210", rowFor(t, out, "vlan0.210")[1])
	assert.Equal(t, "opt2", rowFor(t, out, "srv DHCP")[2])
	assert.Contains(t, out, "Zone srv -> internet")
	assert.Contains(t, out, "dnsmasq interfaces: lan, opt1, opt2")
}

func TestDiff(t *testing.T) {
	fake := appliancetest.New()
	cat := testCatalog(t)
	m := reconcile.New(cat, fake, reconcile.Options{AssignVLANs: true})
	opts := DiffOptions{Parent: m.ParentInterface}

	live, err := m.CurrentConfig(context.Background())
	require.NoError(t, err)
	var buf bytes.Buffer
	changed, err := Diff(&buf, cat, live, opts)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Contains(t, buf.String(), "--- Desired")
	assert.Contains(t, buf.String(), "+++ Live")
	assert.Contains(t, buf.String(), `-vlan 0210 parent=vtnet0 description="Server zone"`)
	assert.Contains(t, buf.String(), "interface=(pending)")

	_, err = m.ConfigureAll(context.Background(), reconcile.AllPhases())
	require.NoError(t, err)
	live, err = m.CurrentConfig(context.Background())
	require.NoError(t, err)

	buf.Reset()
	changed, err = Diff(&buf, cat, live, opts)
	require.NoError(t, err)
	assert.False(t, changed, "diff after apply:\n%s", buf.String())
	assert.Equal(t, "No changes detected.\n", buf.String())
}

func TestLiveLines_IgnoresUnmanaged(t *testing.T) {
	cat := testCatalog(t)
	live := &reconcile.LiveConfig{DnsmasqInterfaces: []string{"lan"}}
	live.Rules = append(live.Rules, ruleWithDescription("Allow LAN to any"), ruleWithDescription("Zone lab -> internet"), ruleWithDescription("Zone old -> internet"))

	lines := LiveLines(cat, live)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"Zone old -> internet"`)
	assert.Equal(t, "dnsmasq interfaces=lan", lines[1])
}

func ruleWithDescription(desc string) resource.FirewallRule {
	return resource.FirewallRule{Description: desc, Action: resource.ActionPass, DestinationNet: resource.NetAny, Enabled: true}
}

func TestRulesAndReachability(t *testing.T) {
	cat := testCatalog(t)
	var results []policy.Result
	for _, name := range []string{"home", "mgmt", "srv"} {
		z, _ := cat.Lookup(name)
		iface := "opt1"
		if !z.NeedsVLAN() {
			iface = "lan"
		}
		res, err := policy.Compile(z, cat, iface)
		require.NoError(t, err)
		results = append(results, res)
	}

	var buf bytes.Buffer
	w := New(&buf, nil)
	w.Rules(results)
	out := buf.String()
	assert.Contains(t, out, "isolated: no rules, default deny")
	assert.Equal(t, []string{"2100", "pass", "opt1", "10.21.0.0/24", "10.21.0.1/32", "Zone srv -> gateway"}, rowFor(t, out, "2100"))
	assert.Equal(t, "block", rowFor(t, out, "2102")[1])

	buf.Reset()
	w.Reachability(results, cat)
	out = buf.String()
	// Columns: home, mgmt, srv, internet.
	assert.Equal(t, []string{"home", "deny", "deny", "deny", "deny"}, rowFor(t, out, "home"))
	assert.Equal(t, []string{"mgmt", "allow", "allow", "allow", "allow"}, rowFor(t, out, "mgmt"))
	assert.Equal(t, []string{"srv", "allow", "deny", "allow", "allow"}, rowFor(t, out, "srv"))
}

func TestJSON(t *testing.T) {
	_, rep := applyCatalog(t, appliancetest.New(), true)
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, rep))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, rep.RunID, decoded["run_id"])
	assert.Equal(t, true, decoded["dry_run"])
	assert.Contains(t, decoded["phases"], "firewall")
}
