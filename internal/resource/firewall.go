package resource

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/TAPPaaS/TAPPaaS/internal/appliance"
	"github.com/TAPPaaS/TAPPaaS/internal/logging"
)

// Destination/source value matching every address.
const NetAny = "any"

// FirewallRule is a filter rule, matched by Description.
type FirewallRule struct {
	UUID           string
	Description    string
	Action         Action
	Direction      Direction
	IPProtocol     IPProtocol
	Protocol       Protocol
	Interface      string
	SourceNet      string
	DestinationNet string
	Sequence       int
	Log            bool
	Quick          bool
	Enabled        bool
}

type ruleParams struct {
	Description    string     `json:"description"`
	Action         Action     `json:"action"`
	Direction      Direction  `json:"direction"`
	IPProtocol     IPProtocol `json:"ip_protocol"`
	Protocol       Protocol   `json:"protocol"`
	Interface      string     `json:"interface"`
	SourceNet      string     `json:"source_net"`
	DestinationNet string     `json:"destination_net"`
	Sequence       string     `json:"sequence"`
	Log            bool       `json:"log"`
	Quick          bool       `json:"quick"`
	Enabled        bool       `json:"enabled"`
	MatchFields    []string   `json:"match_fields"`
	Reload         bool       `json:"reload"`
}

type ruleDeleteParams struct {
	Description string   `json:"description"`
	State       string   `json:"state"`
	MatchFields []string `json:"match_fields"`
	Reload      bool     `json:"reload"`
}

// FirewallClient manages filter rules. Writes are staged; nothing takes
// effect until ApplyChanges.
type FirewallClient struct {
	base
}

// NewFirewallClient creates a firewall client.
func NewFirewallClient(inv appliance.Invoker, dryRun bool, log *logging.Logger) *FirewallClient {
	return &FirewallClient{base: newBase(inv, dryRun, log, "firewall")}
}

// List returns every filter rule, ordered by sequence then description.
func (c *FirewallClient) List(ctx context.Context) ([]FirewallRule, error) {
	res, err := c.read(ctx, "firewall", "filter", "get")
	if err != nil {
		return nil, err
	}
	raw, _ := res.Lookup("filter", "rules", "rule")
	// An empty rule set comes back as [] instead of an object.
	byID, ok := raw.(map[string]any)
	if !ok {
		return nil, nil
	}

	out := make([]FirewallRule, 0, len(byID))
	for uuid, v := range byID {
		fields, ok := v.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, parseRule(uuid, fields))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sequence != out[j].Sequence {
			return out[i].Sequence < out[j].Sequence
		}
		return out[i].Description < out[j].Description
	})
	return out, nil
}

func parseRule(uuid string, f map[string]any) FirewallRule {
	r := FirewallRule{
		UUID:           uuid,
		Description:    appliance.AsString(f["description"]),
		Interface:      appliance.Selected(f["interface"]),
		SourceNet:      appliance.AsString(f["source_net"]),
		DestinationNet: appliance.AsString(f["destination_net"]),
		Sequence:       appliance.AsInt(f["sequence"]),
		Log:            appliance.Truthy(f["log"]),
		Quick:          appliance.Truthy(f["quick"]),
		Enabled:        appliance.Truthy(f["enabled"]),
	}
	// Values outside the vocabulary decode to the Unknown enums.
	r.Action, _ = ParseAction(appliance.Selected(f["action"]))
	r.Direction, _ = ParseDirection(appliance.Selected(f["direction"]))
	r.IPProtocol, _ = ParseIPProtocol(appliance.Selected(f["ipprotocol"]))
	r.Protocol, _ = ParseProtocol(appliance.Selected(f["protocol"]))
	return r
}

// WithPrefix returns the rules whose description starts with prefix.
func WithPrefix(rules []FirewallRule, prefix string) []FirewallRule {
	var out []FirewallRule
	for _, r := range rules {
		if strings.HasPrefix(r.Description, prefix) {
			out = append(out, r)
		}
	}
	return out
}

// CreateOrUpdate stages a rule, matched by description.
func (c *FirewallClient) CreateOrUpdate(ctx context.Context, r FirewallRule) (*appliance.Result, error) {
	p := ruleParams{
		Description:    r.Description,
		Action:         r.Action,
		Direction:      r.Direction,
		IPProtocol:     r.IPProtocol,
		Protocol:       r.Protocol,
		Interface:      r.Interface,
		SourceNet:      r.SourceNet,
		DestinationNet: r.DestinationNet,
		Sequence:       strconv.Itoa(r.Sequence),
		Log:            r.Log,
		Quick:          r.Quick,
		Enabled:        r.Enabled,
		MatchFields:    []string{"description"},
		Reload:         false,
	}
	res, err := c.write(ctx, appliance.OpRule, "rule:"+r.Description, p)
	if err != nil {
		return nil, fmt.Errorf("create rule %q: %w", r.Description, err)
	}
	return res, nil
}

// Delete stages removal of the rule with the given description.
func (c *FirewallClient) Delete(ctx context.Context, description string) (*appliance.Result, error) {
	p := ruleDeleteParams{
		Description: description,
		State:       appliance.StateAbsent,
		MatchFields: []string{"description"},
		Reload:      false,
	}
	res, err := c.write(ctx, appliance.OpRule, "rule:"+description, p)
	if err != nil {
		return nil, fmt.Errorf("delete rule %q: %w", description, err)
	}
	return res, nil
}

// ApplyChanges commits all staged rule changes in one reconfiguration.
func (c *FirewallClient) ApplyChanges(ctx context.Context) error {
	call := appliance.RawCall{Module: "firewall", Controller: "filter", Command: "apply"}
	if _, err := c.rawWrite(ctx, call, "firewall:apply"); err != nil {
		return fmt.Errorf("apply firewall changes: %w", err)
	}
	return nil
}
