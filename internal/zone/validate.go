package zone

import (
	"fmt"
	"strings"

	"github.com/apparentlymart/go-cidr/cidr"
	"github.com/miekg/dns"
)

func applyDefaults(z *Zone) {
	if z.Bridge == "" {
		z.Bridge = DefaultBridge
	}
	if z.DHCPStartOffset == 0 && z.DHCPEndOffset == 0 {
		z.DHCPStartOffset = DefaultDHCPStart
		z.DHCPEndOffset = DefaultDHCPEnd
	}
}

// Validate checks every zone and returns all problems found.
func Validate(zones []Zone) ValidationErrors {
	var errs ValidationErrors
	seen := make(map[string]string, len(zones))

	for i := range zones {
		z := &zones[i]
		if strings.TrimSpace(z.Name) == "" {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("zones[%d].name", i), Message: "name is required"})
			continue
		}
		key := strings.ToLower(z.Name)
		if prev, ok := seen[key]; ok {
			errs = append(errs, ValidationError{Zone: z.Name, Field: "name", Message: fmt.Sprintf("duplicate of %q", prev)})
		}
		seen[key] = z.Name

		errs = append(errs, validateZone(z)...)
	}
	return errs
}

func validateZone(z *Zone) ValidationErrors {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Zone: z.Name, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if _, ok := dns.IsDomainName(z.Domain()); !ok {
		add("name", "%q does not form a valid domain name", z.Domain())
	}

	if z.VLANTag < 0 || z.VLANTag > MaxVLANTag {
		add("vlantag", "%d is outside 0..%d", z.VLANTag, MaxVLANTag)
	}

	if strings.TrimSpace(z.IPNetwork) == "" {
		add("ip", "network is required")
		return errs
	}
	n, err := parseNetwork(z.IPNetwork)
	if err != nil {
		add("ip", "invalid CIDR %q: %v", z.IPNetwork, err)
		return errs
	}
	z.network = n

	// Only zones that get a DHCP range need offsets that fit the network.
	if !z.NeedsVLAN() {
		return errs
	}
	ones, _ := n.Mask.Size()
	if ones >= 31 {
		add("ip", "%s has no room for a DHCP range", n)
		return errs
	}
	// Usable hosts are 1..count-2 (network and broadcast excluded).
	last := int(cidr.AddressCount(n)) - 2
	if z.DHCPStartOffset < 1 || z.DHCPStartOffset > last {
		add("DHCP-start", "offset %d is outside the host range 1..%d of %s", z.DHCPStartOffset, last, n)
	}
	if z.DHCPEndOffset < 1 || z.DHCPEndOffset > last {
		add("DHCP-end", "offset %d is outside the host range 1..%d of %s", z.DHCPEndOffset, last, n)
	}
	if z.DHCPStartOffset > z.DHCPEndOffset {
		add("DHCP-start", "start offset %d is after end offset %d", z.DHCPStartOffset, z.DHCPEndOffset)
	}
	return errs
}
