package policy

import (
	"net/netip"
	"sort"
	"strings"

	"github.com/TAPPaaS/TAPPaaS/internal/resource"
)

// Decision is the verdict for one destination.
type Decision struct {
	Allowed bool
	// Rule is the description of the matching rule, empty on implicit deny.
	Rule   string
	Reason string
}

const (
	ReasonMatchPass    = "MATCH_PASS"
	ReasonMatchBlock   = "MATCH_BLOCK"
	ReasonImplicitDeny = "IMPLICIT_DENY"
)

// Evaluate walks enabled rules by ascending sequence and returns the first
// match for dst. Aliases (destinations that are neither "any" nor an
// address or prefix) never match. Any action but pass blocks, including an
// action the appliance reported outside the known vocabulary.
func Evaluate(rules []resource.FirewallRule, dst netip.Addr) Decision {
	ordered := make([]resource.FirewallRule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Sequence < ordered[j].Sequence })

	for _, r := range ordered {
		if !r.Enabled || !destinationMatches(r.DestinationNet, dst) {
			continue
		}
		if r.Action == resource.ActionPass {
			return Decision{Allowed: true, Rule: r.Description, Reason: ReasonMatchPass}
		}
		return Decision{Rule: r.Description, Reason: ReasonMatchBlock}
	}
	return Decision{Reason: ReasonImplicitDeny}
}

func destinationMatches(dest string, dst netip.Addr) bool {
	dest = strings.TrimSpace(dest)
	if strings.EqualFold(dest, resource.NetAny) {
		return true
	}
	if p, err := netip.ParsePrefix(dest); err == nil {
		return p.Masked().Contains(dst)
	}
	if a, err := netip.ParseAddr(dest); err == nil {
		return a == dst
	}
	return false
}

// Reachable reports, for each destination, whether the rules allow it.
func Reachable(rules []resource.FirewallRule, dsts ...netip.Addr) map[netip.Addr]bool {
	out := make(map[netip.Addr]bool, len(dsts))
	for _, d := range dsts {
		out[d] = Evaluate(rules, d).Allowed
	}
	return out
}
