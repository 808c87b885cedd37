package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/TAPPaaS/TAPPaaS/internal/appliance"
	"github.com/TAPPaaS/TAPPaaS/internal/resource"
	"github.com/TAPPaaS/TAPPaaS/internal/zone"
)

type vlanIndex struct {
	byTag    map[int]resource.VLAN
	byDesc   map[string]resource.VLAN
	assigned []resource.AssignedInterface
}

func newVLANIndex(vlans []resource.VLAN, assigned []resource.AssignedInterface) *vlanIndex {
	idx := &vlanIndex{
		byTag:    make(map[int]resource.VLAN, len(vlans)),
		byDesc:   make(map[string]resource.VLAN, len(vlans)),
		assigned: assigned,
	}
	for _, v := range vlans {
		idx.byTag[v.Tag] = v
		idx.byDesc[v.Description] = v
	}
	return idx
}

// find matches by tag first; descriptions may collide across stale entries.
func (idx *vlanIndex) find(z *zone.Zone) (resource.VLAN, bool) {
	if v, ok := idx.byTag[z.VLANTag]; ok {
		return v, true
	}
	v, ok := idx.byDesc[z.VLANDescription()]
	return v, ok
}

func (idx *vlanIndex) remove(v resource.VLAN) {
	delete(idx.byTag, v.Tag)
	if cur, ok := idx.byDesc[v.Description]; ok && cur.Tag == v.Tag {
		delete(idx.byDesc, v.Description)
	}
}

// assignment finds the interface a VLAN device is bound to.
func (idx *vlanIndex) assignment(z *zone.Zone, v resource.VLAN) (resource.AssignedInterface, bool) {
	for _, a := range idx.assigned {
		if a.VLANTag == v.Tag && v.Tag > 0 {
			return a, true
		}
	}
	dev := v.DeviceName()
	for _, a := range idx.assigned {
		if a.Device == dev || strings.EqualFold(a.Description, z.Name) {
			return a, true
		}
	}
	return resource.AssignedInterface{}, false
}

// ConfigureVLANs deletes VLANs of disabled zones, then creates missing VLANs
// of enabled zones (assigning and reloading them when AssignVLANs is set).
func (m *Manager) ConfigureVLANs(ctx context.Context) []ZoneResult {
	disabled := m.catalog.DisabledVLANZones()
	enabled := m.catalog.VLANZones()
	m.log.Info("configuring vlans", "enabled", len(enabled), "disabled", len(disabled))

	vlans, err := m.vlans.List(ctx)
	if err == nil {
		var assigned []resource.AssignedInterface
		assigned, err = m.vlans.ListAssigned(ctx)
		if err == nil {
			idx := newVLANIndex(vlans, assigned)
			var results []ZoneResult
			for _, z := range disabled {
				results = append(results, m.deleteVLAN(ctx, idx, z))
			}
			for _, z := range enabled {
				results = append(results, m.createVLAN(ctx, idx, z))
			}
			return append(results, m.skipped(PhaseVLAN, true)...)
		}
	}

	m.log.Error("cannot fetch vlans", "error", err)
	results := fetchFailed(PhaseVLAN, disabled, err)
	results = append(results, fetchFailed(PhaseVLAN, enabled, err)...)
	return append(results, m.skipped(PhaseVLAN, true)...)
}

func (m *Manager) deleteVLAN(ctx context.Context, idx *vlanIndex, z *zone.Zone) ZoneResult {
	res := ZoneResult{Zone: z.Name, Phase: PhaseVLAN, Detail: fmt.Sprintf("tag %d", z.VLANTag)}
	log := m.zoneLog(PhaseVLAN, z)

	// Deletion matches by tag only so a stale description never removes
	// another zone's VLAN.
	v, ok := idx.byTag[z.VLANTag]
	if !ok {
		res.Outcome = OutcomeNotFound
		return res
	}
	// A retired tag that was handed to an enabled zone stays.
	if owner := m.tagOwner(v); owner != nil {
		log.Debug("vlan belongs to enabled zone", "tag", v.Tag, "owner", owner.Name)
		res.Outcome = OutcomeNotFound
		res.Detail = fmt.Sprintf("tag %d in use by %s", v.Tag, owner.Name)
		return res
	}
	if m.opts.DryRun {
		res.Outcome = OutcomeWouldDelete
		return res
	}

	if a, bound := idx.assignment(z, v); bound {
		log.Info("unassigning interface before delete", "interface", a.Identifier)
		if err := m.vlans.Unassign(ctx, a.Identifier); err != nil {
			return failed(res, StepUnassign, err)
		}
		res.Interface = a.Identifier
	}
	if _, err := m.vlans.Delete(ctx, v.Description); err != nil {
		if appliance.IsCode(err, appliance.CodeInterfaceAssigned) {
			err = fmt.Errorf("%w (remove the interface assignment on the appliance, then re-run)", err)
		}
		return failed(res, StepDelete, err)
	}
	idx.remove(v)
	log.Info("deleted vlan", "tag", z.VLANTag)
	res.Outcome = OutcomeDeleted
	return res
}

// tagOwner returns the enabled zone a live VLAN was created for: same tag
// and that zone's description.
func (m *Manager) tagOwner(v resource.VLAN) *zone.Zone {
	for _, z := range m.catalog.VLANZones() {
		if z.VLANTag == v.Tag && v.Description == z.VLANDescription() {
			return z
		}
	}
	return nil
}

func (m *Manager) createVLAN(ctx context.Context, idx *vlanIndex, z *zone.Zone) ZoneResult {
	res := ZoneResult{Zone: z.Name, Phase: PhaseVLAN, Detail: fmt.Sprintf("tag %d", z.VLANTag)}
	log := m.zoneLog(PhaseVLAN, z)

	if v, ok := idx.find(z); ok {
		res.Outcome = OutcomeExists
		res.Detail = fmt.Sprintf("tag %d device %s", v.Tag, v.DeviceName())
		if a, bound := idx.assignment(z, v); bound {
			res.Interface = a.Identifier
			return res
		}
		if !m.opts.AssignVLANs {
			return res
		}
		// The VLAN exists but was never assigned, likely a run that failed
		// between create and assign.
		if m.opts.DryRun {
			res.Detail += ", would assign"
			return res
		}
		iface, step, err := m.assign(ctx, z, v.DeviceName())
		if err != nil {
			return failed(res, step, err)
		}
		res.Interface = iface
		res.Detail += ", assigned"
		return res
	}

	parent := m.ParentInterface(z.Bridge)
	res.Detail = fmt.Sprintf("tag %d on %s, gateway %s/%d", z.VLANTag, parent, z.Gateway(), z.PrefixLen())
	if m.opts.DryRun {
		res.Outcome = OutcomeWouldCreate
		return res
	}

	v := resource.VLAN{Tag: z.VLANTag, Parent: parent, Description: z.VLANDescription()}
	if _, err := m.vlans.CreateOrUpdate(ctx, v); err != nil {
		return failed(res, StepCreate, err)
	}
	log.Info("created vlan", "tag", z.VLANTag, "parent", parent)

	if m.opts.AssignVLANs {
		iface, step, err := m.assign(ctx, z, v.DeviceName())
		if err != nil {
			return failed(res, step, err)
		}
		res.Interface = iface
	}
	res.Outcome = OutcomeCreated
	return res
}

// assign binds a device to a new interface named after the zone with the
// gateway as static address, then reloads it so the address is live.
func (m *Manager) assign(ctx context.Context, z *zone.Zone, device string) (string, string, error) {
	got, err := m.vlans.AssignToInterface(ctx, resource.AssignRequest{
		Device:      device,
		Description: z.Name,
		Enable:      true,
		IPv4Type:    "static",
		IPv4Address: z.Gateway(),
		IPv4Subnet:  z.PrefixLen(),
	})
	if err != nil {
		return "", StepAssign, err
	}
	if !got.Saved || got.Identifier == "" {
		return "", StepAssign, fmt.Errorf("assign %s: appliance did not report a saved interface", device)
	}
	if err := m.vlans.ReloadInterface(ctx, got.Identifier); err != nil {
		return got.Identifier, StepReload, err
	}
	m.zoneLog(PhaseVLAN, z).Info("assigned interface", "device", device, "interface", got.Identifier)
	return got.Identifier, "", nil
}

func failed(res ZoneResult, step string, err error) ZoneResult {
	res.Outcome = OutcomeError
	res.Step = step
	res.Message = err.Error()
	return res
}
