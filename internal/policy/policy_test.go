package policy

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TAPPaaS/TAPPaaS/internal/resource"
	"github.com/TAPPaaS/TAPPaaS/internal/zone"
)

func testCatalog(t *testing.T) *zone.Catalog {
	t.Helper()
	cat, err := zone.NewCatalog([]zone.Zone{
		{Name: "mgmt", State: "Mandatory", IPNetwork: "10.0.0.0/24", AccessTo: []string{"all"}},
		{Name: "srv", State: "Active", VLANTag: 210, IPNetwork: "10.21.0.0/24", AccessTo: []string{"internet", "home", "dmz"}},
		{Name: "home", State: "Active", VLANTag: 300, IPNetwork: "10.30.0.0/24"},
		{Name: "dmz", State: "Active", VLANTag: 400, IPNetwork: "10.40.0.0/24", AccessTo: []string{"internet"}},
		{Name: "iot", State: "Active", VLANTag: 500, IPNetwork: "10.50.0.0/24", AccessTo: []string{"home", "internet", "all"}},
		{Name: "guest", State: "Active", VLANTag: 600, IPNetwork: "10.60.0.0/24", AccessTo: []string{"printers"}},
	})
	require.NoError(t, err)
	return cat
}

func compile(t *testing.T, cat *zone.Catalog, name string) Result {
	t.Helper()
	z, ok := cat.Lookup(name)
	require.True(t, ok)
	res, err := Compile(z, cat, "opt1")
	require.NoError(t, err)
	return res
}

func descriptions(rules []resource.FirewallRule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.Description
	}
	return out
}

func TestCompile_InternetWithTargets(t *testing.T) {
	cat := testCatalog(t)
	res := compile(t, cat, "srv")

	assert.False(t, res.Isolated)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, []string{
		"Zone srv -> gateway",
		"Zone srv -> home",
		"Zone srv -> dmz",
		"Zone srv block rfc1918-10",
		"Zone srv block rfc1918-172",
		"Zone srv block rfc1918-192",
		"Zone srv -> internet",
	}, descriptions(res.Rules))

	for i, r := range res.Rules {
		assert.Equal(t, 2100+i, r.Sequence)
		assert.Equal(t, "opt1", r.Interface)
		assert.Equal(t, "10.21.0.0/24", r.SourceNet)
		assert.True(t, r.Log)
		assert.True(t, r.Enabled)
	}
	assert.Equal(t, "10.21.0.1/32", res.Rules[0].DestinationNet)
	assert.Equal(t, "10.30.0.0/24", res.Rules[1].DestinationNet)
	assert.Equal(t, resource.ActionBlock, res.Rules[3].Action)
	assert.Equal(t, "10.0.0.0/8", res.Rules[3].DestinationNet)
	assert.Equal(t, resource.ActionPass, res.Rules[6].Action)
	assert.Equal(t, resource.NetAny, res.Rules[6].DestinationNet)
}

func TestCompile_OrderingHolds(t *testing.T) {
	cat := testCatalog(t)
	res := compile(t, cat, "srv")

	seq := map[string]int{}
	for _, r := range res.Rules {
		seq[r.Description] = r.Sequence
	}
	gw := seq["Zone srv -> gateway"]
	inet := seq["Zone srv -> internet"]
	for _, target := range []string{"home", "dmz"} {
		ts := seq["Zone srv -> "+target]
		assert.Less(t, gw, ts)
		for _, r := range PrivateRanges {
			bs := seq["Zone srv block "+r.Label]
			assert.Less(t, ts, bs)
			assert.Less(t, bs, inet)
		}
	}
}

func TestCompile_AllShortcut(t *testing.T) {
	cat := testCatalog(t)

	res := compile(t, cat, "iot")
	require.Len(t, res.Rules, 1)
	assert.Equal(t, "Zone iot -> all", res.Rules[0].Description)
	assert.Equal(t, resource.NetAny, res.Rules[0].DestinationNet)
	assert.Equal(t, 5000, res.Rules[0].Sequence)

	// Untagged zones use the fixed base.
	res = compile(t, cat, "mgmt")
	require.Len(t, res.Rules, 1)
	assert.Equal(t, UntaggedSequenceBase, res.Rules[0].Sequence)
}

func TestCompile_EmptyPolicyIsolated(t *testing.T) {
	cat := testCatalog(t)
	z, _ := cat.Lookup("home")

	// No interface is needed when there is nothing to bind.
	res, err := Compile(z, cat, "")
	require.NoError(t, err)
	assert.True(t, res.Isolated)
	assert.Empty(t, res.Rules)
}

func TestCompile_UnknownTargetWarns(t *testing.T) {
	cat := testCatalog(t)
	res := compile(t, cat, "guest")

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, "printers", res.Warnings[0].Token)
	var pe *PolicyError
	assert.True(t, errors.As(error(res.Warnings[0]), &pe))

	require.Len(t, res.Rules, 2)
	assert.Equal(t, "Zone guest -> printers", res.Rules[1].Description)
	assert.Equal(t, "printers", res.Rules[1].DestinationNet)
}

func TestCompile_NoInterface(t *testing.T) {
	cat := testCatalog(t)
	z, _ := cat.Lookup("srv")
	_, err := Compile(z, cat, "")
	assert.Error(t, err)
}

func TestCompile_DuplicateTokens(t *testing.T) {
	cat, err := zone.NewCatalog([]zone.Zone{
		{Name: "a", State: "active", VLANTag: 10, IPNetwork: "10.1.0.0/24", AccessTo: []string{"b", "B", "b"}},
		{Name: "b", State: "active", VLANTag: 20, IPNetwork: "10.2.0.0/24"},
	})
	require.NoError(t, err)
	res := compile(t, cat, "a")
	assert.Equal(t, []string{"Zone a -> gateway", "Zone a -> b"}, descriptions(res.Rules))
}

func TestEvaluate_InternetOnlyWithCarveOut(t *testing.T) {
	cat := testCatalog(t)
	rules := compile(t, cat, "srv").Rules

	tests := []struct {
		dst     string
		allowed bool
		rule    string
	}{
		{"10.21.0.1", true, "Zone srv -> gateway"},
		{"10.30.0.9", true, "Zone srv -> home"},
		{"10.40.0.9", true, "Zone srv -> dmz"},
		{"10.50.0.9", false, "Zone srv block rfc1918-10"},
		{"172.20.1.1", false, "Zone srv block rfc1918-172"},
		{"192.168.1.1", false, "Zone srv block rfc1918-192"},
		{"1.1.1.1", true, "Zone srv -> internet"},
	}
	for _, tt := range tests {
		t.Run(tt.dst, func(t *testing.T) {
			d := Evaluate(rules, netip.MustParseAddr(tt.dst))
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.rule, d.Rule)
		})
	}
}

func TestEvaluate_ImplicitDeny(t *testing.T) {
	cat := testCatalog(t)

	d := Evaluate(nil, netip.MustParseAddr("10.0.0.1"))
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonImplicitDeny, d.Reason)

	// Aliases never match; only the gateway is reachable.
	rules := compile(t, cat, "guest").Rules
	got := Reachable(rules, netip.MustParseAddr("10.60.0.1"), netip.MustParseAddr("8.8.8.8"))
	assert.True(t, got[netip.MustParseAddr("10.60.0.1")])
	assert.False(t, got[netip.MustParseAddr("8.8.8.8")])
}

func TestEvaluate_SkipsDisabledAndSortsBySequence(t *testing.T) {
	rules := []resource.FirewallRule{
		{Description: "late pass", Action: resource.ActionPass, DestinationNet: "any", Sequence: 20, Enabled: true},
		{Description: "early block", Action: resource.ActionBlock, DestinationNet: "10.0.0.0/8", Sequence: 10, Enabled: true},
		{Description: "disabled pass", Action: resource.ActionPass, DestinationNet: "10.0.0.5", Sequence: 1},
	}
	d := Evaluate(rules, netip.MustParseAddr("10.0.0.5"))
	assert.False(t, d.Allowed)
	assert.Equal(t, "early block", d.Rule)

	d = Evaluate(rules, netip.MustParseAddr("8.8.4.4"))
	assert.True(t, d.Allowed)
	assert.Equal(t, "late pass", d.Rule)
}

func TestEvaluate_UnknownActionNeverPasses(t *testing.T) {
	rules := []resource.FirewallRule{
		{Description: "odd", Action: resource.ActionUnknown, DestinationNet: "any", Sequence: 1, Enabled: true},
		{Description: "pass", Action: resource.ActionPass, DestinationNet: "any", Sequence: 2, Enabled: true},
	}
	d := Evaluate(rules, netip.MustParseAddr("1.1.1.1"))
	assert.False(t, d.Allowed)
	assert.Equal(t, "odd", d.Rule)
	assert.Equal(t, ReasonMatchBlock, d.Reason)
}
