package reconcile

import (
	"context"
	"slices"

	"github.com/TAPPaaS/TAPPaaS/internal/resource"
	"github.com/TAPPaaS/TAPPaaS/internal/zone"
)

// UpdateInterfaceBindings makes dnsmasq listen on lan plus the assigned
// interface of every enabled VLAN zone. Current bindings of manual zones and
// of assigned interfaces no catalog zone claims are kept; bindings of
// disabled zones and of interfaces that are no longer assigned are dropped.
// An equal set is left alone.
func (m *Manager) UpdateInterfaceBindings(ctx context.Context) StepResult {
	assigned, err := m.vlans.ListAssigned(ctx)
	if err != nil {
		return StepResult{Outcome: OutcomeError, Message: err.Error()}
	}
	current, err := m.dhcp.Interfaces(ctx)
	if err != nil {
		return StepResult{Outcome: OutcomeError, Message: err.Error()}
	}

	want := []string{BaseDHCPIface}
	for _, z := range m.catalog.VLANZones() {
		if iface := ZoneInterface(z, assigned); iface != "" && !slices.Contains(want, iface) {
			want = append(want, iface)
		}
	}
	owners := m.interfaceOwners(assigned)
	for _, iface := range current {
		if slices.Contains(want, iface) || !isAssigned(assigned, iface) {
			continue
		}
		if owner, ok := owners[iface]; ok && !owner.IsManual() {
			continue
		}
		want = append(want, iface)
	}
	res := StepResult{Interfaces: want}
	if sameSet(current, want) {
		res.Outcome = OutcomeUnchanged
		return res
	}
	if m.opts.DryRun {
		res.Outcome = OutcomeWouldUpdate
		return res
	}

	out, err := m.dhcp.SetInterfaces(ctx, want)
	if err != nil {
		res.Outcome = OutcomeError
		res.Message = err.Error()
		return res
	}
	res.Outcome = OutcomeUpdated
	if !out.Changed {
		res.Outcome = OutcomeUnchanged
	}
	m.log.Info("updated dnsmasq interfaces", "interfaces", want)
	return res
}

// interfaceOwners maps each resolvable interface to its catalog zone.
func (m *Manager) interfaceOwners(assigned []resource.AssignedInterface) map[string]*zone.Zone {
	owners := make(map[string]*zone.Zone)
	for i := range m.catalog.Zones {
		z := &m.catalog.Zones[i]
		if iface := ZoneInterface(z, assigned); iface != "" {
			if _, taken := owners[iface]; !taken || z.IsEnabled() {
				owners[iface] = z
			}
		}
	}
	return owners
}

func isAssigned(assigned []resource.AssignedInterface, iface string) bool {
	for _, a := range assigned {
		if a.Identifier == iface {
			return true
		}
	}
	return false
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := slices.Clone(a)
	y := slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
