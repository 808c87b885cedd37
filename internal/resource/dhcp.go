package resource

import (
	"context"
	"fmt"
	"strings"

	"github.com/TAPPaaS/TAPPaaS/internal/appliance"
	"github.com/TAPPaaS/TAPPaaS/internal/logging"
)

// DefaultLeaseTime is one day, in seconds.
const DefaultLeaseTime = 86400

// DHCPRange is a dnsmasq DHCP range, matched by Description.
type DHCPRange struct {
	UUID        string
	Description string
	StartAddr   string
	EndAddr     string
	Interface   string
	Domain      string
	LeaseTime   int
}

type rangeParams struct {
	Description string   `json:"description"`
	StartAddr   string   `json:"start_addr,omitempty"`
	EndAddr     string   `json:"end_addr,omitempty"`
	Interface   string   `json:"interface,omitempty"`
	Domain      string   `json:"domain,omitempty"`
	LeaseTime   int      `json:"lease_time,omitempty"`
	State       string   `json:"state,omitempty"`
	MatchFields []string `json:"match_fields,omitempty"`
}

type generalParams struct {
	Enabled    bool     `json:"enabled"`
	Interfaces []string `json:"interfaces"`
}

// DHCPClient manages dnsmasq DHCP ranges and the interfaces dnsmasq serves.
type DHCPClient struct {
	base
}

// NewDHCPClient creates a DHCP client.
func NewDHCPClient(inv appliance.Invoker, dryRun bool, log *logging.Logger) *DHCPClient {
	return &DHCPClient{base: newBase(inv, dryRun, log, "dhcp")}
}

// List returns every DHCP range.
func (c *DHCPClient) List(ctx context.Context) ([]DHCPRange, error) {
	res, err := c.read(ctx, "dnsmasq", "settings", "searchRange")
	if err != nil {
		return nil, err
	}
	rows := res.Rows()
	out := make([]DHCPRange, 0, len(rows))
	for _, row := range rows {
		out = append(out, DHCPRange{
			UUID:        appliance.AsString(row["uuid"]),
			Description: appliance.AsString(row["description"]),
			StartAddr:   appliance.AsString(row["start_addr"]),
			EndAddr:     appliance.AsString(row["end_addr"]),
			Interface:   appliance.Selected(row["interface"]),
			Domain:      appliance.AsString(row["domain"]),
			LeaseTime:   appliance.AsInt(row["lease_time"]),
		})
	}
	return out, nil
}

// CreateOrUpdate upserts a range by description. An empty Interface leaves
// the range unbound.
func (c *DHCPClient) CreateOrUpdate(ctx context.Context, r DHCPRange) (*appliance.Result, error) {
	lease := r.LeaseTime
	if lease == 0 {
		lease = DefaultLeaseTime
	}
	p := rangeParams{
		Description: r.Description,
		StartAddr:   r.StartAddr,
		EndAddr:     r.EndAddr,
		Interface:   r.Interface,
		Domain:      r.Domain,
		LeaseTime:   lease,
	}
	res, err := c.write(ctx, appliance.OpDnsmasqRange, "dhcp:"+r.Description, p)
	if err != nil {
		return nil, fmt.Errorf("create range %q: %w", r.Description, err)
	}
	return res, nil
}

// Delete removes the range with the given description.
func (c *DHCPClient) Delete(ctx context.Context, description string) (*appliance.Result, error) {
	p := rangeParams{
		Description: description,
		State:       appliance.StateAbsent,
		MatchFields: []string{"description"},
	}
	res, err := c.write(ctx, appliance.OpDnsmasqRange, "dhcp:"+description, p)
	if err != nil {
		return nil, fmt.Errorf("delete range %q: %w", description, err)
	}
	return res, nil
}

// Interfaces returns the interfaces dnsmasq currently listens on.
func (c *DHCPClient) Interfaces(ctx context.Context) ([]string, error) {
	res, err := c.read(ctx, "dnsmasq", "settings", "get")
	if err != nil {
		return nil, err
	}
	v, _ := res.Lookup("dnsmasq", "interface")
	joined := appliance.Selected(v)
	if joined == "" {
		return nil, nil
	}
	return strings.Split(joined, ","), nil
}

// SetInterfaces makes dnsmasq listen on exactly the given interfaces.
func (c *DHCPClient) SetInterfaces(ctx context.Context, ifaces []string) (*appliance.Result, error) {
	p := generalParams{Enabled: true, Interfaces: ifaces}
	res, err := c.write(ctx, appliance.OpDnsmasqGeneral, "dnsmasq:interfaces", p)
	if err != nil {
		return nil, fmt.Errorf("set dnsmasq interfaces: %w", err)
	}
	return res, nil
}

// DHCPHost is a dnsmasq host entry, matched by Description. It publishes
// Host.Domain in DNS and, with a hardware address, pins the DHCP lease.
type DHCPHost struct {
	UUID         string `json:"uuid,omitempty"`
	Description  string `json:"description"`
	Host         string `json:"host"`
	Domain       string `json:"domain"`
	IP           string `json:"ip"`
	HardwareAddr string `json:"hwaddr,omitempty"`
}

// FQDN returns host.domain, or the bare host without a domain.
func (h DHCPHost) FQDN() string {
	if h.Domain == "" {
		return h.Host
	}
	return h.Host + "." + h.Domain
}

type hostParams struct {
	Description  string   `json:"description"`
	Host         string   `json:"host,omitempty"`
	Domain       string   `json:"domain,omitempty"`
	IP           string   `json:"ip,omitempty"`
	HardwareAddr string   `json:"hwaddr,omitempty"`
	State        string   `json:"state,omitempty"`
	MatchFields  []string `json:"match_fields,omitempty"`
}

// ListHosts returns every host entry.
func (c *DHCPClient) ListHosts(ctx context.Context) ([]DHCPHost, error) {
	res, err := c.read(ctx, "dnsmasq", "settings", "searchHost")
	if err != nil {
		return nil, err
	}
	rows := res.Rows()
	out := make([]DHCPHost, 0, len(rows))
	for _, row := range rows {
		out = append(out, DHCPHost{
			UUID:         appliance.AsString(row["uuid"]),
			Description:  appliance.AsString(row["description"]),
			Host:         appliance.AsString(row["host"]),
			Domain:       appliance.AsString(row["domain"]),
			IP:           appliance.Selected(row["ip"]),
			HardwareAddr: appliance.Selected(row["hwaddr"]),
		})
	}
	return out, nil
}

// CreateOrUpdateHost upserts a host entry by description.
func (c *DHCPClient) CreateOrUpdateHost(ctx context.Context, h DHCPHost) (*appliance.Result, error) {
	p := hostParams{
		Description:  h.Description,
		Host:         h.Host,
		Domain:       h.Domain,
		IP:           h.IP,
		HardwareAddr: h.HardwareAddr,
	}
	res, err := c.write(ctx, appliance.OpDnsmasqHost, "host:"+h.Description, p)
	if err != nil {
		return nil, fmt.Errorf("create host %q: %w", h.FQDN(), err)
	}
	return res, nil
}

// DeleteHost removes the host entry with the given description.
func (c *DHCPClient) DeleteHost(ctx context.Context, description string) (*appliance.Result, error) {
	p := hostParams{
		Description: description,
		State:       appliance.StateAbsent,
		MatchFields: []string{"description"},
	}
	res, err := c.write(ctx, appliance.OpDnsmasqHost, "host:"+description, p)
	if err != nil {
		return nil, fmt.Errorf("delete host %q: %w", description, err)
	}
	return res, nil
}
