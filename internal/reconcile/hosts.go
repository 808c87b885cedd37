package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/miekg/dns"

	"github.com/TAPPaaS/TAPPaaS/internal/resource"
	"github.com/TAPPaaS/TAPPaaS/internal/zone"
)

// ErrHostNotFound is returned when no host entry matches a removal.
var ErrHostNotFound = errors.New("host entry not found")

// HostRequest names a DNS host entry. Zone is a catalog zone name or a
// plain domain; a zone name resolves to "{zone}.internal" and requires IP
// inside the zone's network.
type HostRequest struct {
	Host         string
	Zone         string
	IP           string
	HardwareAddr string
	// Description defaults to the FQDN.
	Description string
}

// HostResult is what happened to one host entry.
type HostResult struct {
	Entry    resource.DHCPHost  `json:"entry"`
	Previous *resource.DHCPHost `json:"previous,omitempty"`
	Outcome  Outcome            `json:"outcome"`
}

// Hosts returns the live host entries.
func (m *Manager) Hosts(ctx context.Context) ([]resource.DHCPHost, error) {
	return m.dhcp.ListHosts(ctx)
}

// resolveDomain maps a zone name, or a zone's domain, to the domain and
// its zone. Anything else is taken as a domain outside the catalog.
func (m *Manager) resolveDomain(name string) (string, *zone.Zone) {
	name = strings.TrimSuffix(strings.TrimSpace(name), ".")
	if m.catalog != nil {
		if z, ok := m.catalog.Lookup(name); ok {
			return z.Domain(), z
		}
		for i := range m.catalog.Zones {
			z := &m.catalog.Zones[i]
			if strings.EqualFold(z.Domain(), name) {
				return z.Domain(), z
			}
		}
	}
	return strings.ToLower(name), nil
}

func (m *Manager) hostEntry(req HostRequest) (resource.DHCPHost, error) {
	h := resource.DHCPHost{
		Host:         strings.ToLower(strings.TrimSpace(req.Host)),
		IP:           strings.TrimSpace(req.IP),
		HardwareAddr: strings.ToLower(strings.TrimSpace(req.HardwareAddr)),
	}
	domain, z := m.resolveDomain(req.Zone)
	h.Domain = domain

	if h.Host == "" || strings.Contains(h.Host, ".") {
		return h, fmt.Errorf("invalid host name %q", req.Host)
	}
	if _, ok := dns.IsDomainName(h.FQDN()); !ok || domain == "" {
		return h, fmt.Errorf("%q is not a valid domain name", h.FQDN())
	}
	addr, err := netip.ParseAddr(h.IP)
	if err != nil || !addr.Is4() {
		return h, fmt.Errorf("invalid IPv4 address %q", req.IP)
	}
	if z != nil {
		if z.IsDisabled() {
			return h, fmt.Errorf("zone %s is disabled", z.Name)
		}
		if n := z.Network(); n != nil && !n.Contains(addr.AsSlice()) {
			return h, fmt.Errorf("%s is outside zone %s (%s)", h.IP, z.Name, n)
		}
	}

	h.Description = strings.TrimSpace(req.Description)
	if h.Description == "" {
		h.Description = h.FQDN()
	}
	return h, nil
}

// AddHost creates or updates a host entry, matched by description. An
// entry that already matches is left alone.
func (m *Manager) AddHost(ctx context.Context, req HostRequest) (HostResult, error) {
	h, err := m.hostEntry(req)
	if err != nil {
		return HostResult{Entry: h, Outcome: OutcomeError}, err
	}
	res := HostResult{Entry: h}

	hosts, err := m.dhcp.ListHosts(ctx)
	if err != nil {
		return res, err
	}
	for i := range hosts {
		if hosts[i].Description != h.Description {
			continue
		}
		prev := hosts[i]
		res.Previous = &prev
		h.UUID = prev.UUID
		res.Entry.UUID = prev.UUID
		if prev == h {
			res.Outcome = OutcomeExists
			return res, nil
		}
	}

	log := m.log.WithFields(map[string]any{"host": h.FQDN(), "ip": h.IP})
	switch {
	case m.opts.DryRun && res.Previous != nil:
		res.Outcome = OutcomeWouldUpdate
		return res, nil
	case m.opts.DryRun:
		res.Outcome = OutcomeWouldCreate
		return res, nil
	}

	if _, err := m.dhcp.CreateOrUpdateHost(ctx, h); err != nil {
		res.Outcome = OutcomeError
		return res, err
	}
	res.Outcome = OutcomeCreated
	if res.Previous != nil {
		res.Outcome = OutcomeUpdated
	}
	log.Info("saved host entry", "outcome", string(res.Outcome))
	return res, nil
}

// RemoveHost deletes the entry for host in the given zone or domain.
func (m *Manager) RemoveHost(ctx context.Context, host, zoneOrDomain string) (HostResult, error) {
	domain, _ := m.resolveDomain(zoneOrDomain)
	host = strings.ToLower(strings.TrimSpace(host))
	res := HostResult{Entry: resource.DHCPHost{Host: host, Domain: domain}}

	hosts, err := m.dhcp.ListHosts(ctx)
	if err != nil {
		return res, err
	}
	var found *resource.DHCPHost
	for i := range hosts {
		if strings.EqualFold(hosts[i].Host, host) && strings.EqualFold(hosts[i].Domain, domain) {
			found = &hosts[i]
			break
		}
	}
	if found == nil {
		res.Outcome = OutcomeNotFound
		return res, fmt.Errorf("%s: %w", res.Entry.FQDN(), ErrHostNotFound)
	}
	res.Entry = *found

	if m.opts.DryRun {
		res.Outcome = OutcomeWouldDelete
		return res, nil
	}
	if _, err := m.dhcp.DeleteHost(ctx, found.Description); err != nil {
		res.Outcome = OutcomeError
		return res, err
	}
	m.log.Info("deleted host entry", "host", found.FQDN())
	res.Outcome = OutcomeDeleted
	return res, nil
}
