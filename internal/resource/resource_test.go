package resource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TAPPaaS/TAPPaaS/internal/appliance"
	"github.com/TAPPaaS/TAPPaaS/internal/appliance/appliancetest"
)

func TestVLANClient_CreateListDelete(t *testing.T) {
	ctx := context.Background()
	fake := appliancetest.New()
	c := NewVLANClient(fake, false, nil)

	res, err := c.CreateOrUpdate(ctx, VLAN{Tag: 210, Parent: "vtnet0", Description: "srv"})
	require.NoError(t, err)
	assert.True(t, res.Changed)

	vlans, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, vlans, 1)
	assert.Equal(t, 210, vlans[0].Tag)
	assert.Equal(t, "vlan0.210", vlans[0].Device)
	assert.Equal(t, "vtnet0", vlans[0].Parent)
	assert.Equal(t, "srv", vlans[0].Description)

	// Same description again is a no-op.
	res, err = c.CreateOrUpdate(ctx, VLAN{Tag: 210, Parent: "vtnet0", Description: "srv"})
	require.NoError(t, err)
	assert.False(t, res.Changed)

	res, err = c.Delete(ctx, "srv")
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Empty(t, fake.VLANs)
}

func TestVLANClient_DuplicateTag(t *testing.T) {
	ctx := context.Background()
	fake := appliancetest.New()
	fake.VLANs = []appliancetest.VLAN{{UUID: "u1", Device: "vlan0.210", Tag: 210, Parent: "vtnet0", Description: "other"}}
	c := NewVLANClient(fake, false, nil)

	_, err := c.CreateOrUpdate(ctx, VLAN{Tag: 210, Parent: "vtnet0", Description: "srv"})
	require.Error(t, err)
	assert.True(t, appliance.IsCode(err, appliance.CodeDuplicate))
}

func TestVLANClient_DeleteAssignedRejected(t *testing.T) {
	ctx := context.Background()
	fake := appliancetest.New()
	fake.VLANs = []appliancetest.VLAN{{UUID: "u1", Device: "vlan0.210", Tag: 210, Parent: "vtnet0", Description: "srv"}}
	fake.Interfaces = append(fake.Interfaces, appliancetest.Interface{Identifier: "opt1", Device: "vlan0.210", VLANTag: 210})
	c := NewVLANClient(fake, false, nil)

	_, err := c.Delete(ctx, "srv")
	require.Error(t, err)
	assert.True(t, appliance.IsCode(err, appliance.CodeInterfaceAssigned))

	require.NoError(t, c.Unassign(ctx, "opt1"))
	_, err = c.Delete(ctx, "srv")
	require.NoError(t, err)
}

func TestVLANClient_AssignAndReload(t *testing.T) {
	ctx := context.Background()
	fake := appliancetest.New()
	c := NewVLANClient(fake, false, nil)

	_, err := c.CreateOrUpdate(ctx, VLAN{Tag: 210, Parent: "vtnet0", Description: "srv"})
	require.NoError(t, err)

	got, err := c.AssignToInterface(ctx, AssignRequest{
		Device:      "vlan0.210",
		Description: "srv",
		Enable:      true,
		IPv4Type:    "static",
		IPv4Address: "10.21.0.1",
		IPv4Subnet:  24,
	})
	require.NoError(t, err)
	assert.True(t, got.Saved)
	assert.Equal(t, "opt1", got.Identifier)

	require.NoError(t, c.ReloadInterface(ctx, got.Identifier))
	assert.Equal(t, []string{"opt1"}, fake.Reloads)

	assigned, err := c.ListAssigned(ctx)
	require.NoError(t, err)
	require.Len(t, assigned, 3)
	assert.Equal(t, "opt1", assigned[2].Identifier)
	assert.Equal(t, 210, assigned[2].VLANTag)
	assert.Equal(t, 0, assigned[0].VLANTag)

	added := fake.Interfaces[2]
	assert.Equal(t, "10.21.0.1", added.IPv4)
	assert.Equal(t, 24, added.Subnet)
	assert.True(t, added.Enabled)
}

func TestVLANClient_DryRunSkipsWrites(t *testing.T) {
	ctx := context.Background()
	fake := appliancetest.New()
	c := NewVLANClient(fake, true, nil)

	res, err := c.CreateOrUpdate(ctx, VLAN{Tag: 210, Parent: "vtnet0", Description: "srv"})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Empty(t, fake.VLANs)

	_, err = c.AssignToInterface(ctx, AssignRequest{Device: "vlan0.210", Description: "srv"})
	require.NoError(t, err)
	assert.Len(t, fake.Interfaces, 2)
	assert.Empty(t, fake.MutatingCalls())
}

func TestVLAN_DeviceName(t *testing.T) {
	assert.Equal(t, "vlan0.42", VLAN{Tag: 42}.DeviceName())
	assert.Equal(t, "vlan01", VLAN{Tag: 42, Device: "vlan01"}.DeviceName())
}

func TestDHCPClient_Ranges(t *testing.T) {
	ctx := context.Background()
	fake := appliancetest.New()
	c := NewDHCPClient(fake, false, nil)

	res, err := c.CreateOrUpdate(ctx, DHCPRange{
		Description: "srv DHCP",
		StartAddr:   "10.21.0.50",
		EndAddr:     "10.21.0.250",
		Interface:   "lan",
		Domain:      "srv.internal",
	})
	require.NoError(t, err)
	assert.True(t, res.Changed)

	ranges, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Equal(t, "srv DHCP", ranges[0].Description)
	assert.Equal(t, "lan", ranges[0].Interface)
	assert.Equal(t, DefaultLeaseTime, ranges[0].LeaseTime)

	res, err = c.Delete(ctx, "srv DHCP")
	require.NoError(t, err)
	assert.True(t, res.Changed)

	res, err = c.Delete(ctx, "srv DHCP")
	require.NoError(t, err)
	assert.False(t, res.Changed)
}

func TestDHCPClient_UnknownInterface(t *testing.T) {
	ctx := context.Background()
	fake := appliancetest.New()
	c := NewDHCPClient(fake, false, nil)

	_, err := c.CreateOrUpdate(ctx, DHCPRange{Description: "srv DHCP", StartAddr: "10.21.0.50", EndAddr: "10.21.0.250", Interface: "opt9"})
	require.Error(t, err)
	assert.True(t, appliance.IsCode(err, appliance.CodeInterfaceNotFound))

	// Unbound ranges are always accepted.
	_, err = c.CreateOrUpdate(ctx, DHCPRange{Description: "srv DHCP", StartAddr: "10.21.0.50", EndAddr: "10.21.0.250"})
	require.NoError(t, err)
}

func TestDHCPClient_Interfaces(t *testing.T) {
	ctx := context.Background()
	fake := appliancetest.New()
	fake.Interfaces = append(fake.Interfaces, appliancetest.Interface{Identifier: "opt1", Device: "vlan0.210"})
	c := NewDHCPClient(fake, false, nil)

	got, err := c.Interfaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"lan"}, got)

	res, err := c.SetInterfaces(ctx, []string{"lan", "opt1"})
	require.NoError(t, err)
	assert.True(t, res.Changed)

	got, err = c.Interfaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"lan", "opt1"}, got)

	res, err = c.SetInterfaces(ctx, []string{"opt1", "lan"})
	require.NoError(t, err)
	assert.False(t, res.Changed)
}

func TestFirewallClient_Rules(t *testing.T) {
	ctx := context.Background()
	fake := appliancetest.New()
	c := NewFirewallClient(fake, false, nil)

	rules, err := c.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)

	rule := FirewallRule{
		Description:    "Zone srv -> gateway",
		Action:         ActionPass,
		Direction:      DirectionIn,
		IPProtocol:     IPv4,
		Protocol:       ProtocolAny,
		Interface:      "opt1",
		SourceNet:      "10.21.0.0/24",
		DestinationNet: "10.21.0.1/32",
		Sequence:       2100,
		Log:            true,
		Quick:          true,
		Enabled:        true,
	}
	res, err := c.CreateOrUpdate(ctx, rule)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	p := fake.Calls[len(fake.Calls)-1].Params
	assert.Equal(t, "2100", p["sequence"])
	assert.Equal(t, "inet", p["ip_protocol"])
	assert.Equal(t, "0", appliance.AsString(p["reload"]))

	block := rule
	block.Description = "Zone srv block rfc1918-10"
	block.Action = ActionBlock
	block.DestinationNet = "10.0.0.0/8"
	block.Sequence = 2101
	_, err = c.CreateOrUpdate(ctx, block)
	require.NoError(t, err)

	// Staged until applied.
	assert.Equal(t, 0, fake.Applies)

	rules, err = c.List(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "Zone srv -> gateway", rules[0].Description)
	assert.Equal(t, ActionBlock, rules[1].Action)
	assert.Equal(t, "opt1", rules[0].Interface)
	assert.Equal(t, 2100, rules[0].Sequence)
	assert.True(t, rules[0].Log)
	assert.True(t, rules[0].Enabled)

	assert.Len(t, WithPrefix(rules, "Zone srv "), 2)
	assert.Empty(t, WithPrefix(rules, "Zone srv2 "))

	_, err = c.Delete(ctx, "Zone srv block rfc1918-10")
	require.NoError(t, err)
	require.NoError(t, c.ApplyChanges(ctx))
	assert.Equal(t, 1, fake.Applies)
	assert.Equal(t, []string{"Zone srv -> gateway"}, fake.RuleDescriptions())
}

func TestFirewallClient_UnknownWireValues(t *testing.T) {
	fake := appliancetest.New()
	fake.Rules = append(fake.Rules, appliancetest.Rule{
		UUID: "hand", Description: "hand made", Action: "match", Direction: "any",
		IPProtocol: "inet", Protocol: "SCTP", Interface: "lan", Destination: "any", Enabled: true,
	})
	c := NewFirewallClient(fake, false, nil)

	rules, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	r := rules[0]
	assert.Equal(t, ActionUnknown, r.Action)
	assert.NotEqual(t, ActionPass, r.Action)
	assert.Equal(t, "unknown", r.Action.String())
	assert.Equal(t, DirectionUnknown, r.Direction)
	assert.Equal(t, IPv4, r.IPProtocol)
	assert.Equal(t, ProtocolUnknown, r.Protocol)
}

func TestFirewallClient_Unreachable(t *testing.T) {
	fake := appliancetest.New()
	fake.Unreachable = true
	c := NewFirewallClient(fake, false, nil)

	_, err := c.List(context.Background())
	require.Error(t, err)
	assert.True(t, appliance.IsConnection(err))
}

func TestEnums_RoundTrip(t *testing.T) {
	for _, a := range []Action{ActionPass, ActionBlock, ActionReject} {
		b, err := a.MarshalText()
		require.NoError(t, err)
		got, err := ParseAction(string(b))
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
	for _, p := range []Protocol{ProtocolAny, ProtocolTCP, ProtocolUDP, ProtocolTCPUDP, ProtocolICMP} {
		got, err := ParseProtocol(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	got, err := ParseIPProtocol("inet46")
	require.NoError(t, err)
	assert.Equal(t, IPv4v6, got)

	d, err := ParseDirection("OUT")
	require.NoError(t, err)
	assert.Equal(t, DirectionOut, d)

	a, err := ParseAction("drop")
	assert.Error(t, err)
	assert.Equal(t, ActionUnknown, a)
	_, err = ActionUnknown.MarshalText()
	assert.Error(t, err)
	_, err = Action(9).MarshalText()
	assert.Error(t, err)
}
