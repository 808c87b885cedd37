package zone

import (
	"sort"
	"strings"
)

// Catalog is the parsed, validated set of zones for one run.
type Catalog struct {
	Zones  []Zone
	Source string
}

// NewCatalog validates zones and returns them sorted by name.
func NewCatalog(zones []Zone) (*Catalog, error) {
	for i := range zones {
		applyDefaults(&zones[i])
	}
	if errs := Validate(zones); errs.HasErrors() {
		return nil, errs
	}
	sort.SliceStable(zones, func(i, j int) bool { return zones[i].Name < zones[j].Name })
	return &Catalog{Zones: zones}, nil
}

// Lookup finds a zone by name, case-insensitively.
func (c *Catalog) Lookup(name string) (*Zone, bool) {
	for i := range c.Zones {
		if strings.EqualFold(c.Zones[i].Name, name) {
			return &c.Zones[i], true
		}
	}
	return nil, false
}

// Names returns all zone names in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.Zones))
	for i := range c.Zones {
		out[i] = c.Zones[i].Name
	}
	return out
}

func (c *Catalog) filter(keep func(*Zone) bool) []*Zone {
	var out []*Zone
	for i := range c.Zones {
		if keep(&c.Zones[i]) {
			out = append(out, &c.Zones[i])
		}
	}
	return out
}

// Enabled returns zones that are converged.
func (c *Catalog) Enabled() []*Zone {
	return c.filter((*Zone).IsEnabled)
}

// Disabled returns zones whose resources are removed.
func (c *Catalog) Disabled() []*Zone {
	return c.filter((*Zone).IsDisabled)
}

// Manual returns zones that are never touched.
func (c *Catalog) Manual() []*Zone {
	return c.filter((*Zone).IsManual)
}

// VLANZones returns enabled zones that need a VLAN.
func (c *Catalog) VLANZones() []*Zone {
	return c.filter(func(z *Zone) bool { return z.IsEnabled() && z.NeedsVLAN() })
}

// DisabledVLANZones returns disabled zones that carry a VLAN tag.
func (c *Catalog) DisabledVLANZones() []*Zone {
	return c.filter(func(z *Zone) bool { return z.IsDisabled() && z.NeedsVLAN() })
}

// UntaggedZones returns enabled zones with VLAN tag 0.
func (c *Catalog) UntaggedZones() []*Zone {
	return c.filter(func(z *Zone) bool { return z.IsEnabled() && !z.NeedsVLAN() })
}

// FirewallZones returns enabled zones with a non-empty access policy.
func (c *Catalog) FirewallZones() []*Zone {
	return c.filter(func(z *Zone) bool { return z.IsEnabled() && z.NeedsFirewall() })
}
