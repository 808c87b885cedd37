package reconcile

import (
	"context"
	"fmt"

	"github.com/TAPPaaS/TAPPaaS/internal/appliance"
	"github.com/TAPPaaS/TAPPaaS/internal/resource"
	"github.com/TAPPaaS/TAPPaaS/internal/zone"
)

// ConfigureDHCP deletes ranges of disabled zones, then creates missing
// ranges of enabled VLAN zones bound to the zone's assigned interface.
func (m *Manager) ConfigureDHCP(ctx context.Context) []ZoneResult {
	disabled := m.catalog.DisabledVLANZones()
	enabled := m.catalog.VLANZones()
	m.log.Info("configuring dhcp", "enabled", len(enabled), "disabled", len(disabled))

	ranges, err := m.dhcp.List(ctx)
	if err == nil {
		var assigned []resource.AssignedInterface
		assigned, err = m.vlans.ListAssigned(ctx)
		if err == nil {
			byDesc := make(map[string]resource.DHCPRange, len(ranges))
			for _, r := range ranges {
				byDesc[r.Description] = r
			}
			var results []ZoneResult
			for _, z := range disabled {
				results = append(results, m.deleteRange(ctx, byDesc, z))
			}
			for _, z := range enabled {
				results = append(results, m.createRange(ctx, byDesc, assigned, z))
			}
			return append(results, m.skipped(PhaseDHCP, true)...)
		}
	}

	m.log.Error("cannot fetch dhcp ranges", "error", err)
	results := fetchFailed(PhaseDHCP, disabled, err)
	results = append(results, fetchFailed(PhaseDHCP, enabled, err)...)
	return append(results, m.skipped(PhaseDHCP, true)...)
}

func rangeDetail(start, end string) string {
	return start + "-" + end
}

func (m *Manager) deleteRange(ctx context.Context, byDesc map[string]resource.DHCPRange, z *zone.Zone) ZoneResult {
	res := ZoneResult{Zone: z.Name, Phase: PhaseDHCP, Detail: rangeDetail(z.DHCPStart(), z.DHCPEnd())}
	desc := z.DHCPDescription()
	if _, ok := byDesc[desc]; !ok {
		res.Outcome = OutcomeNotFound
		return res
	}
	if m.opts.DryRun {
		res.Outcome = OutcomeWouldDelete
		return res
	}
	if _, err := m.dhcp.Delete(ctx, desc); err != nil {
		return failed(res, StepDelete, err)
	}
	delete(byDesc, desc)
	m.zoneLog(PhaseDHCP, z).Info("deleted dhcp range")
	res.Outcome = OutcomeDeleted
	return res
}

func (m *Manager) createRange(ctx context.Context, byDesc map[string]resource.DHCPRange, assigned []resource.AssignedInterface, z *zone.Zone) ZoneResult {
	res := ZoneResult{Zone: z.Name, Phase: PhaseDHCP}
	log := m.zoneLog(PhaseDHCP, z)

	if r, ok := byDesc[z.DHCPDescription()]; ok {
		res.Outcome = OutcomeExists
		res.Detail = rangeDetail(r.StartAddr, r.EndAddr)
		res.Interface = r.Interface
		return res
	}

	// DHCP binds to the interface found by tag; the assignment may not
	// exist yet (dry-run, or assignment disabled), leaving the range unbound.
	iface := ""
	for _, a := range assigned {
		if a.VLANTag == z.VLANTag {
			iface = a.Identifier
			break
		}
	}
	r := resource.DHCPRange{
		Description: z.DHCPDescription(),
		StartAddr:   z.DHCPStart(),
		EndAddr:     z.DHCPEnd(),
		Interface:   iface,
		Domain:      z.Domain(),
		LeaseTime:   m.opts.LeaseTime,
	}
	res.Interface = iface
	res.Detail = fmt.Sprintf("%s (%s) on %s", rangeDetail(r.StartAddr, r.EndAddr), r.Domain, ifaceOrAny(iface))

	if m.opts.DryRun {
		res.Outcome = OutcomeWouldCreate
		return res
	}

	_, err := m.dhcp.CreateOrUpdate(ctx, r)
	if err != nil && iface != "" && appliance.IsCode(err, appliance.CodeInterfaceNotFound) {
		// A freshly assigned interface is not always known to dnsmasq yet.
		log.Warn("interface not recognized by dnsmasq, retrying unbound", "interface", iface)
		r.Interface = ""
		if _, err = m.dhcp.CreateOrUpdate(ctx, r); err == nil {
			res.Interface = ""
			res.Step = StepBind
			res.Detail = fmt.Sprintf("%s (%s) on any, interface %s not found", rangeDetail(r.StartAddr, r.EndAddr), r.Domain, iface)
		}
	}
	if err != nil {
		return failed(res, StepCreate, err)
	}
	log.Info("created dhcp range", "start", r.StartAddr, "end", r.EndAddr, "interface", ifaceOrAny(res.Interface))
	res.Outcome = OutcomeCreated
	return res
}

func ifaceOrAny(iface string) string {
	if iface == "" {
		return "any"
	}
	return iface
}
