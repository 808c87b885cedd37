// Package policy compiles a zone's access tokens into an ordered firewall
// rule set and evaluates rule sets the way the appliance does: first match
// by ascending sequence, with an implicit deny when nothing matches.
package policy

import (
	"fmt"
	"strings"

	"github.com/TAPPaaS/TAPPaaS/internal/resource"
	"github.com/TAPPaaS/TAPPaaS/internal/zone"
)

// UntaggedSequenceBase is the sequence base for zones without a VLAN tag.
const UntaggedSequenceBase = 100

// PrivateRange is a named RFC1918 block.
type PrivateRange struct {
	Label string
	CIDR  string
}

// PrivateRanges are blocked, in this order, for internet-only zones.
var PrivateRanges = []PrivateRange{
	{Label: "rfc1918-10", CIDR: "10.0.0.0/8"},
	{Label: "rfc1918-172", CIDR: "172.16.0.0/12"},
	{Label: "rfc1918-192", CIDR: "192.168.0.0/16"},
}

// Resolver looks up target zones by name. *zone.Catalog implements it.
type Resolver interface {
	Lookup(name string) (*zone.Zone, bool)
}

// PolicyError reports an access token that names no known zone. It is a
// warning: the raw token is used as a destination alias.
type PolicyError struct {
	Zone  string
	Token string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("zone %s: access target %q is not a known zone, using it as an alias", e.Zone, e.Token)
}

// Result is the compiled rule set for one zone.
type Result struct {
	Zone     string
	Rules    []resource.FirewallRule
	Isolated bool
	Warnings []*PolicyError
}

// SequenceBase returns the first sequence number of a zone's rules.
func SequenceBase(z *zone.Zone) int {
	if z.VLANTag > 0 {
		return z.VLANTag * 10
	}
	return UntaggedSequenceBase
}

// Compile turns z's access policy into rules bound to iface.
//
// Order: gateway, explicit targets in listed order, RFC1918 blocks, then the
// internet pass. An "all" token yields a single pass-any rule. An empty
// policy yields no rules and Isolated set.
func Compile(z *zone.Zone, lookup Resolver, iface string) (Result, error) {
	res := Result{Zone: z.Name}
	if !z.NeedsFirewall() {
		res.Isolated = true
		return res, nil
	}
	if iface == "" {
		return res, fmt.Errorf("zone %s: no interface to bind rules to", z.Name)
	}
	network := z.Network()
	if network == nil {
		return res, fmt.Errorf("zone %s: invalid network %q", z.Name, z.IPNetwork)
	}

	b := builder{zone: z, iface: iface, source: network.String(), seq: SequenceBase(z)}

	if z.AllowsAll() {
		b.add(resource.ActionPass, "-> "+zone.TokenAll, resource.NetAny)
		res.Rules = b.rules
		return res, nil
	}

	b.add(resource.ActionPass, "-> gateway", z.Gateway()+"/32")

	seen := map[string]bool{}
	for _, token := range z.Targets() {
		key := strings.ToLower(token)
		if seen[key] {
			continue
		}
		seen[key] = true

		dest := token
		if target, ok := lookupTarget(lookup, token); ok {
			dest = target.Network().String()
		} else {
			res.Warnings = append(res.Warnings, &PolicyError{Zone: z.Name, Token: token})
		}
		b.add(resource.ActionPass, "-> "+token, dest)
	}

	if z.AllowsInternet() {
		for _, r := range PrivateRanges {
			b.add(resource.ActionBlock, "block "+r.Label, r.CIDR)
		}
		b.add(resource.ActionPass, "-> "+zone.TokenInternet, resource.NetAny)
	}

	res.Rules = b.rules
	return res, nil
}

func lookupTarget(lookup Resolver, name string) (*zone.Zone, bool) {
	if lookup == nil {
		return nil, false
	}
	t, ok := lookup.Lookup(name)
	if !ok || t.Network() == nil {
		return nil, false
	}
	return t, true
}

type builder struct {
	zone   *zone.Zone
	iface  string
	source string
	seq    int
	rules  []resource.FirewallRule
}

func (b *builder) add(action resource.Action, label, dest string) {
	b.rules = append(b.rules, resource.FirewallRule{
		Description:    b.zone.RulePrefix() + label,
		Action:         action,
		Direction:      resource.DirectionIn,
		IPProtocol:     resource.IPv4,
		Protocol:       resource.ProtocolAny,
		Interface:      b.iface,
		SourceNet:      b.source,
		DestinationNet: dest,
		Sequence:       b.seq,
		Log:            true,
		Quick:          true,
		Enabled:        true,
	})
	b.seq++
}
