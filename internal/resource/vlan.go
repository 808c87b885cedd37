package resource

import (
	"context"
	"fmt"

	"github.com/TAPPaaS/TAPPaaS/internal/appliance"
	"github.com/TAPPaaS/TAPPaaS/internal/logging"
)

// VLAN is a VLAN device. Tag is authoritative for matching; Description is
// the fallback key.
type VLAN struct {
	UUID        string
	Device      string
	Tag         int
	Parent      string
	Description string
	Priority    int
}

// DeviceName returns the device, or the appliance's default "vlan0.{tag}".
func (v VLAN) DeviceName() string {
	if v.Device != "" {
		return v.Device
	}
	return fmt.Sprintf("vlan0.%d", v.Tag)
}

// AssignedInterface is a routed interface (lan, wan, optN).
type AssignedInterface struct {
	Identifier  string
	Device      string
	Description string
	VLANTag     int
	Enabled     bool
}

// AssignRequest binds a device to a new routed interface.
type AssignRequest struct {
	Device      string `json:"device"`
	Description string `json:"description"`
	Enable      bool   `json:"enable"`
	IPv4Type    string `json:"ipv4Type,omitempty"`
	IPv4Address string `json:"ipv4Address,omitempty"`
	IPv4Subnet  int    `json:"ipv4Subnet,omitempty"`
}

// AssignResult reports the interface identifier the appliance chose.
type AssignResult struct {
	Saved      bool
	Identifier string
}

type vlanParams struct {
	Description string   `json:"description"`
	VLAN        int      `json:"vlan"`
	Interface   string   `json:"interface"`
	Priority    int      `json:"priority"`
	Device      string   `json:"device,omitempty"`
	State       string   `json:"state,omitempty"`
	MatchFields []string `json:"match_fields,omitempty"`
}

// VLANClient manages VLAN devices and their interface assignments.
type VLANClient struct {
	base
}

// NewVLANClient creates a VLAN client.
func NewVLANClient(inv appliance.Invoker, dryRun bool, log *logging.Logger) *VLANClient {
	return &VLANClient{base: newBase(inv, dryRun, log, "vlan")}
}

// List returns every VLAN device, assigned or not.
func (c *VLANClient) List(ctx context.Context) ([]VLAN, error) {
	res, err := c.read(ctx, "interfaces", "vlan_settings", "searchItem")
	if err != nil {
		return nil, err
	}
	rows := res.Rows()
	out := make([]VLAN, 0, len(rows))
	for _, row := range rows {
		out = append(out, VLAN{
			UUID:        appliance.AsString(row["uuid"]),
			Device:      appliance.AsString(row["vlanif"]),
			Tag:         appliance.AsInt(row["tag"]),
			Parent:      appliance.Selected(row["if"]),
			Description: appliance.AsString(row["descr"]),
			Priority:    appliance.AsInt(row["pcp"]),
		})
	}
	return out, nil
}

// ListAssigned returns every assigned interface. VLANTag is 0 for
// physical interfaces.
func (c *VLANClient) ListAssigned(ctx context.Context) ([]AssignedInterface, error) {
	res, err := c.read(ctx, "interfaces", "overview", "interfacesInfo")
	if err != nil {
		return nil, err
	}
	rows := res.Rows()
	out := make([]AssignedInterface, 0, len(rows))
	for _, row := range rows {
		out = append(out, AssignedInterface{
			Identifier:  appliance.AsString(row["identifier"]),
			Device:      appliance.AsString(row["device"]),
			Description: appliance.AsString(row["description"]),
			VLANTag:     appliance.AsInt(row["vlan_tag"]),
			Enabled:     appliance.Truthy(row["enabled"]),
		})
	}
	return out, nil
}

// CreateOrUpdate upserts a VLAN device by description.
func (c *VLANClient) CreateOrUpdate(ctx context.Context, v VLAN) (*appliance.Result, error) {
	p := vlanParams{
		Description: v.Description,
		VLAN:        v.Tag,
		Interface:   v.Parent,
		Priority:    v.Priority,
		Device:      v.Device,
	}
	res, err := c.write(ctx, appliance.OpInterfaceVLAN, fmt.Sprintf("vlan:%d", v.Tag), p)
	if err != nil {
		return nil, fmt.Errorf("create vlan %d: %w", v.Tag, err)
	}
	return res, nil
}

// Delete removes the VLAN device with the given description. The device must
// not be assigned; unassign it first.
func (c *VLANClient) Delete(ctx context.Context, description string) (*appliance.Result, error) {
	p := vlanParams{
		Description: description,
		State:       appliance.StateAbsent,
		MatchFields: []string{"description"},
	}
	res, err := c.write(ctx, appliance.OpInterfaceVLAN, "vlan:"+description, p)
	if err != nil {
		return nil, fmt.Errorf("delete vlan %q: %w", description, err)
	}
	return res, nil
}

// AssignToInterface binds a VLAN device to a new routed interface.
func (c *VLANClient) AssignToInterface(ctx context.Context, req AssignRequest) (AssignResult, error) {
	call := appliance.RawCall{
		Module:     "interfaces",
		Controller: "interface_assign",
		Command:    "addItem",
		Data:       map[string]any{"assign": req},
	}
	res, err := c.rawWrite(ctx, call, "interface:"+req.Device)
	if err != nil {
		return AssignResult{}, fmt.Errorf("assign %s: %w", req.Device, err)
	}
	// The identifier sits at the top level or under "response".
	result := res.String("result")
	ifname := res.String("ifname")
	if result == "" {
		result = res.String("response", "result")
		ifname = res.String("response", "ifname")
	}
	return AssignResult{Saved: result == "saved", Identifier: ifname}, nil
}

// ReloadInterface re-applies an interface's configuration (static address).
func (c *VLANClient) ReloadInterface(ctx context.Context, identifier string) error {
	call := appliance.RawCall{
		Module:     "interfaces",
		Controller: "overview",
		Command:    "reloadInterface",
		Args:       []string{identifier},
	}
	if _, err := c.rawWrite(ctx, call, "interface:"+identifier); err != nil {
		return fmt.Errorf("reload %s: %w", identifier, err)
	}
	return nil
}

// Unassign removes an interface assignment, freeing its device.
func (c *VLANClient) Unassign(ctx context.Context, identifier string) error {
	call := appliance.RawCall{
		Module:     "interfaces",
		Controller: "interface_assign",
		Command:    "delItem",
		Args:       []string{identifier},
	}
	if _, err := c.rawWrite(ctx, call, "interface:"+identifier); err != nil {
		return fmt.Errorf("unassign %s: %w", identifier, err)
	}
	return nil
}
