// Package zone models the declarative zone catalog: named network segments
// with a VLAN tag, an IPv4 network and an access policy. Everything a
// reconciler needs (gateway, DHCP bounds, domain, descriptions) is derived
// from those few fields and never stored.
package zone

import (
	"fmt"
	"net"
	"strings"

	"github.com/apparentlymart/go-cidr/cidr"
)

// Default DHCP offsets from the network base address.
const (
	DefaultDHCPStart = 50
	DefaultDHCPEnd   = 250
	DefaultBridge    = "lan"

	// MaxVLANTag is the largest 802.1Q tag the appliance accepts.
	MaxVLANTag = 4094

	// DomainSuffix is appended to the zone name to form its DHCP domain.
	DomainSuffix = "internal"
)

// Access policy tokens with special meaning.
const (
	TokenAll      = "all"
	TokenInternet = "internet"
)

// Lifecycle is the management class a zone's state string maps to.
type Lifecycle int

const (
	// Disabled zones have their resources torn down.
	Disabled Lifecycle = iota
	// Enabled zones are converged to the catalog.
	Enabled
	// Manual zones are reported but never touched.
	Manual
)

func (l Lifecycle) String() string {
	switch l {
	case Enabled:
		return "enabled"
	case Manual:
		return "manual"
	default:
		return "disabled"
	}
}

// ClassifyState maps a catalog state string to a Lifecycle. "manadatory" is
// a misspelling found in deployed catalogs.
func ClassifyState(state string) Lifecycle {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "active", "mandatory", "manadatory":
		return Enabled
	case "manual":
		return Manual
	default:
		return Disabled
	}
}

// Zone is one entry of the catalog. Zones are immutable after Parse.
type Zone struct {
	Name               string
	Type               string
	State              string
	TypeID             string
	SubID              string
	VLANTag            int
	IPNetwork          string
	Bridge             string
	Description        string
	AccessTo           []string
	PinholeAllowedFrom []string
	SSID               string
	DHCPStartOffset    int
	DHCPEndOffset      int

	network *net.IPNet
}

// Lifecycle returns the zone's management class.
func (z *Zone) Lifecycle() Lifecycle { return ClassifyState(z.State) }

// IsEnabled reports whether the zone should be converged.
func (z *Zone) IsEnabled() bool { return z.Lifecycle() == Enabled }

// IsManual reports whether the zone is excluded from convergence.
func (z *Zone) IsManual() bool { return z.Lifecycle() == Manual }

// IsDisabled reports whether the zone's resources should be removed.
func (z *Zone) IsDisabled() bool { return z.Lifecycle() == Disabled }

// IsInactive reports whether the state is literally "inactive", as opposed to
// an unset or unknown state which is also treated as disabled.
func (z *Zone) IsInactive() bool {
	return strings.EqualFold(strings.TrimSpace(z.State), "inactive")
}

// NeedsVLAN reports whether the zone has a VLAN (and so a DHCP range).
func (z *Zone) NeedsVLAN() bool { return z.VLANTag > 0 }

// NeedsFirewall reports whether the access policy is non-empty.
func (z *Zone) NeedsFirewall() bool { return len(z.AccessTo) > 0 }

// Network returns the zone's IPv4 network with host bits cleared. Catalog
// zones carry the network parsed during validation; a zone built outside a
// catalog is parsed on each call and never modified.
func (z *Zone) Network() *net.IPNet {
	if z.network != nil {
		return z.network
	}
	n, err := parseNetwork(z.IPNetwork)
	if err != nil {
		return nil
	}
	return n
}

// PrefixLen returns the network mask length.
func (z *Zone) PrefixLen() int {
	n := z.Network()
	if n == nil {
		return 0
	}
	ones, _ := n.Mask.Size()
	return ones
}

// Gateway returns the first usable host address. For /31 and /32 networks,
// which have no network/broadcast pair, the base address is returned.
func (z *Zone) Gateway() string {
	n := z.Network()
	if n == nil {
		return ""
	}
	if z.PrefixLen() >= 31 {
		return n.IP.String()
	}
	ip, err := cidr.Host(n, 1)
	if err != nil {
		return ""
	}
	return ip.String()
}

// DHCPStart returns the network base plus the start offset.
func (z *Zone) DHCPStart() string { return z.hostAt(z.DHCPStartOffset) }

// DHCPEnd returns the network base plus the end offset.
func (z *Zone) DHCPEnd() string { return z.hostAt(z.DHCPEndOffset) }

func (z *Zone) hostAt(offset int) string {
	n := z.Network()
	if n == nil {
		return ""
	}
	ip, err := cidr.Host(n, offset)
	if err != nil {
		return ""
	}
	return ip.String()
}

// Domain returns "{name}.internal".
func (z *Zone) Domain() string {
	return fmt.Sprintf("%s.%s", z.Name, DomainSuffix)
}

// VLANDescription is the description a zone's VLAN carries on the appliance.
// Zones without a description fall back to their name so the VLAN can
// still be matched.
func (z *Zone) VLANDescription() string {
	if z.Description != "" {
		return z.Description
	}
	return z.Name
}

// DHCPDescription is the match key of the zone's DHCP range.
func (z *Zone) DHCPDescription() string {
	return z.Name + " DHCP"
}

// RulePrefix is the description prefix shared by every firewall rule
// synthesized for this zone.
func (z *Zone) RulePrefix() string {
	return "Zone " + z.Name + " "
}

// AllowsAll reports whether the policy contains the "all" token.
func (z *Zone) AllowsAll() bool { return z.hasToken(TokenAll) }

// AllowsInternet reports whether the policy contains the "internet" token.
func (z *Zone) AllowsInternet() bool { return z.hasToken(TokenInternet) }

func (z *Zone) hasToken(tok string) bool {
	for _, t := range z.AccessTo {
		if strings.EqualFold(t, tok) {
			return true
		}
	}
	return false
}

// Targets returns the explicit zone-name tokens of the policy, in order,
// without "all" and "internet".
func (z *Zone) Targets() []string {
	var out []string
	for _, t := range z.AccessTo {
		if strings.EqualFold(t, TokenAll) || strings.EqualFold(t, TokenInternet) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func parseNetwork(s string) (*net.IPNet, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty network")
	}
	ip, n, err := net.ParseCIDR(s)
	if err != nil {
		return nil, err
	}
	if ip.To4() == nil {
		return nil, fmt.Errorf("%s is not an IPv4 network", s)
	}
	// Host bits are tolerated ("10.0.0.1/24" means 10.0.0.0/24).
	n.IP = n.IP.To4()
	return n, nil
}
