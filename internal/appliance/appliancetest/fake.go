// Package appliancetest provides an in-memory appliance for tests.
package appliancetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/TAPPaaS/TAPPaaS/internal/appliance"
)

// VLAN is a VLAN device on the fake appliance.
type VLAN struct {
	UUID        string
	Device      string
	Tag         int
	Parent      string
	Description string
	Priority    int
}

// Interface is an assigned (routed) interface.
type Interface struct {
	Identifier  string
	Device      string
	Description string
	VLANTag     int
	Enabled     bool
	IPv4        string
	Subnet      int
}

// Range is a dnsmasq DHCP range.
type Range struct {
	UUID        string
	Description string
	Start       string
	End         string
	Interface   string
	Domain      string
	LeaseTime   int
}

// Host is a dnsmasq host entry.
type Host struct {
	UUID         string
	Description  string
	Host         string
	Domain       string
	IP           string
	HardwareAddr string
}

// Rule is a filter rule.
type Rule struct {
	UUID        string
	Description string
	Action      string
	Interface   string
	Direction   string
	IPProtocol  string
	Protocol    string
	Source      string
	Destination string
	Sequence    int
	Log         bool
	Quick       bool
	Enabled     bool
}

// Call records one Invoke.
type Call struct {
	Op     appliance.OperationName
	Path   string
	DryRun bool
	Write  bool
	Params map[string]any
}

// Fake is an in-memory appliance implementing appliance.Invoker.
type Fake struct {
	mu sync.Mutex

	VLANs             []VLAN
	Interfaces        []Interface
	Ranges            []Range
	Hosts             []Host
	Rules             []Rule
	DnsmasqInterfaces []string
	DnsmasqEnabled    bool

	Calls       []Call
	Applies     int
	Reloads     []string
	Unreachable bool

	// Fail injects an error for an operation, keyed by operation name or,
	// for raw calls, by "raw:" + path without args.
	Fail map[string]error
	// UnknownInterfaces are rejected when a DHCP range binds to them, as
	// the appliance does for interfaces it has not picked up yet.
	UnknownInterfaces map[string]bool

	nextID  int
	nextOpt int
}

var _ appliance.Invoker = (*Fake)(nil)

// New returns a fake with the lan and wan interfaces assigned.
func New() *Fake {
	return &Fake{
		Interfaces: []Interface{
			{Identifier: "lan", Device: "vtnet0", Description: "LAN", Enabled: true},
			{Identifier: "wan", Device: "vtnet1", Description: "WAN", Enabled: true},
		},
		DnsmasqInterfaces: []string{"lan"},
		DnsmasqEnabled:    true,
		Fail:              map[string]error{},
		UnknownInterfaces: map[string]bool{},
	}
}

// MutatingCalls returns the calls that changed (not just inspected) state.
func (f *Fake) MutatingCalls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.Calls {
		if c.Write && !c.DryRun {
			out = append(out, c)
		}
	}
	return out
}

// WriteCalls returns every write-capable call, dry-run or not.
func (f *Fake) WriteCalls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.Calls {
		if c.Write {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls clears the call log.
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = nil
	f.Applies = 0
	f.Reloads = nil
}

// RuleDescriptions returns all rule descriptions, sorted.
func (f *Fake) RuleDescriptions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.Rules))
	for _, r := range f.Rules {
		out = append(out, r.Description)
	}
	sort.Strings(out)
	return out
}

// Invoke implements appliance.Invoker.
func (f *Fake) Invoke(_ context.Context, name appliance.OperationName, params any, dryRun bool) (*appliance.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Unreachable {
		return nil, &appliance.ConnectionError{Host: "fake", Err: fmt.Errorf("connection refused")}
	}

	if name == appliance.OpRaw {
		var call appliance.RawCall
		switch p := params.(type) {
		case appliance.RawCall:
			call = p
		case *appliance.RawCall:
			call = *p
		default:
			return nil, fmt.Errorf("raw operation needs a RawCall, got %T", params)
		}
		return f.raw(call, dryRun)
	}

	p, err := appliance.Encode(params)
	if err != nil {
		return nil, err
	}
	write := name != appliance.OpPing
	f.Calls = append(f.Calls, Call{Op: name, DryRun: dryRun, Write: write, Params: p})
	if err := f.Fail[string(name)]; err != nil {
		return nil, err
	}

	switch name {
	case appliance.OpPing:
		return &appliance.Result{Data: map[string]any{"status": "ok"}}, nil
	case appliance.OpInterfaceVLAN:
		return f.vlanModule(p, dryRun)
	case appliance.OpDnsmasqRange:
		return f.rangeModule(p, dryRun)
	case appliance.OpDnsmasqHost:
		return f.hostModule(p, dryRun)
	case appliance.OpRule:
		return f.ruleModule(p, dryRun)
	case appliance.OpDnsmasqGeneral:
		return f.generalModule(p, dryRun)
	}
	return nil, fmt.Errorf("unknown operation %q", name)
}

func (f *Fake) id() string {
	f.nextID++
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", f.nextID)
}

func isAbsent(p map[string]any) bool {
	return appliance.AsString(p[appliance.ParamState]) == appliance.StateAbsent
}

func reject(op appliance.OperationName, msg string) error {
	return appliance.NewResourceError(op, "", msg, map[string]any{"result": "failed", "message": msg})
}

func (f *Fake) vlanModule(p map[string]any, dryRun bool) (*appliance.Result, error) {
	desc := appliance.AsString(p["description"])
	idx := -1
	for i, v := range f.VLANs {
		if v.Description == desc {
			idx = i
			break
		}
	}

	if isAbsent(p) {
		if idx < 0 {
			return &appliance.Result{}, nil
		}
		v := f.VLANs[idx]
		for _, iface := range f.Interfaces {
			if iface.Device == v.Device {
				return nil, reject(appliance.OpInterfaceVLAN, fmt.Sprintf("VLAN %s is assigned as an interface (%s)", v.Device, iface.Identifier))
			}
		}
		if !dryRun {
			f.VLANs = append(f.VLANs[:idx], f.VLANs[idx+1:]...)
		}
		return &appliance.Result{Changed: true, Data: map[string]any{"uuid": v.UUID}}, nil
	}

	tag := appliance.AsInt(p["vlan"])
	parent := appliance.AsString(p["interface"])
	if idx >= 0 {
		return &appliance.Result{Data: map[string]any{"uuid": f.VLANs[idx].UUID}}, nil
	}
	for _, v := range f.VLANs {
		if v.Tag == tag && v.Parent == parent {
			return nil, reject(appliance.OpInterfaceVLAN, fmt.Sprintf("tag %d already exists on %s", tag, parent))
		}
	}
	if dryRun {
		return &appliance.Result{Changed: true}, nil
	}
	device := appliance.AsString(p["device"])
	if device == "" {
		device = fmt.Sprintf("vlan0.%d", tag)
	}
	v := VLAN{UUID: f.id(), Device: device, Tag: tag, Parent: parent, Description: desc, Priority: appliance.AsInt(p["priority"])}
	f.VLANs = append(f.VLANs, v)
	return &appliance.Result{Changed: true, Data: map[string]any{"result": "saved", "uuid": v.UUID}}, nil
}

func (f *Fake) knownInterface(id string) bool {
	if f.UnknownInterfaces[id] {
		return false
	}
	for _, iface := range f.Interfaces {
		if iface.Identifier == id {
			return true
		}
	}
	return false
}

func (f *Fake) rangeModule(p map[string]any, dryRun bool) (*appliance.Result, error) {
	desc := appliance.AsString(p["description"])
	idx := -1
	for i, r := range f.Ranges {
		if r.Description == desc {
			idx = i
			break
		}
	}

	if isAbsent(p) {
		if idx < 0 {
			return &appliance.Result{}, nil
		}
		uuid := f.Ranges[idx].UUID
		if !dryRun {
			f.Ranges = append(f.Ranges[:idx], f.Ranges[idx+1:]...)
		}
		return &appliance.Result{Changed: true, Data: map[string]any{"uuid": uuid}}, nil
	}

	if idx >= 0 {
		return &appliance.Result{Data: map[string]any{"uuid": f.Ranges[idx].UUID}}, nil
	}
	iface := appliance.AsString(p["interface"])
	if iface != "" && !f.knownInterface(iface) {
		return nil, reject(appliance.OpDnsmasqRange, fmt.Sprintf("Option '%s' was not found", iface))
	}
	if dryRun {
		return &appliance.Result{Changed: true}, nil
	}
	r := Range{
		UUID:        f.id(),
		Description: desc,
		Start:       appliance.AsString(p["start_addr"]),
		End:         appliance.AsString(p["end_addr"]),
		Interface:   iface,
		Domain:      appliance.AsString(p["domain"]),
		LeaseTime:   appliance.AsInt(p["lease_time"]),
	}
	f.Ranges = append(f.Ranges, r)
	return &appliance.Result{Changed: true, Data: map[string]any{"result": "saved", "uuid": r.UUID}}, nil
}

func (f *Fake) hostModule(p map[string]any, dryRun bool) (*appliance.Result, error) {
	desc := appliance.AsString(p["description"])
	idx := -1
	for i, h := range f.Hosts {
		if h.Description == desc {
			idx = i
			break
		}
	}

	if isAbsent(p) {
		if idx < 0 {
			return &appliance.Result{}, nil
		}
		uuid := f.Hosts[idx].UUID
		if !dryRun {
			f.Hosts = append(f.Hosts[:idx], f.Hosts[idx+1:]...)
		}
		return &appliance.Result{Changed: true, Data: map[string]any{"uuid": uuid}}, nil
	}

	h := Host{
		Description:  desc,
		Host:         appliance.AsString(p["host"]),
		Domain:       appliance.AsString(p["domain"]),
		IP:           appliance.AsString(p["ip"]),
		HardwareAddr: appliance.AsString(p["hwaddr"]),
	}
	if idx >= 0 {
		cur := f.Hosts[idx]
		h.UUID = cur.UUID
		if h == cur {
			return &appliance.Result{Data: map[string]any{"uuid": cur.UUID}}, nil
		}
		if !dryRun {
			f.Hosts[idx] = h
		}
		return &appliance.Result{Changed: true, Data: map[string]any{"result": "saved", "uuid": cur.UUID}}, nil
	}
	if dryRun {
		return &appliance.Result{Changed: true}, nil
	}
	h.UUID = f.id()
	f.Hosts = append(f.Hosts, h)
	return &appliance.Result{Changed: true, Data: map[string]any{"result": "saved", "uuid": h.UUID}}, nil
}

func (f *Fake) ruleModule(p map[string]any, dryRun bool) (*appliance.Result, error) {
	desc := appliance.AsString(p["description"])
	idx := -1
	for i, r := range f.Rules {
		if r.Description == desc {
			idx = i
			break
		}
	}

	if isAbsent(p) {
		if idx < 0 {
			return &appliance.Result{}, nil
		}
		uuid := f.Rules[idx].UUID
		if !dryRun {
			f.Rules = append(f.Rules[:idx], f.Rules[idx+1:]...)
		}
		return &appliance.Result{Changed: true, Data: map[string]any{"uuid": uuid}}, nil
	}

	if idx >= 0 {
		return &appliance.Result{Data: map[string]any{"uuid": f.Rules[idx].UUID}}, nil
	}
	if dryRun {
		return &appliance.Result{Changed: true}, nil
	}
	r := Rule{
		UUID:        f.id(),
		Description: desc,
		Action:      appliance.AsString(p["action"]),
		Interface:   appliance.AsString(p["interface"]),
		Direction:   appliance.AsString(p["direction"]),
		IPProtocol:  appliance.AsString(p["ip_protocol"]),
		Protocol:    appliance.AsString(p["protocol"]),
		Source:      appliance.AsString(p["source_net"]),
		Destination: appliance.AsString(p["destination_net"]),
		Sequence:    appliance.AsInt(p["sequence"]),
		Log:         appliance.Truthy(p["log"]),
		Quick:       appliance.Truthy(p["quick"]),
		Enabled:     appliance.Truthy(p["enabled"]),
	}
	f.Rules = append(f.Rules, r)
	return &appliance.Result{Changed: true, Data: map[string]any{"result": "saved", "uuid": r.UUID}}, nil
}

func (f *Fake) generalModule(p map[string]any, dryRun bool) (*appliance.Result, error) {
	var want []string
	if list, ok := p["interfaces"].([]any); ok {
		for _, v := range list {
			want = append(want, appliance.AsString(v))
		}
	}
	changed := !sameSet(want, f.DnsmasqInterfaces)
	if v, ok := p["enabled"]; ok && appliance.Truthy(v) != f.DnsmasqEnabled {
		changed = true
	}
	if changed && !dryRun {
		f.DnsmasqInterfaces = append([]string(nil), want...)
		if v, ok := p["enabled"]; ok {
			f.DnsmasqEnabled = appliance.Truthy(v)
		}
	}
	return &appliance.Result{Changed: changed}, nil
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		if seen[s] == 0 {
			return false
		}
		seen[s]--
	}
	return true
}

func (f *Fake) raw(call appliance.RawCall, dryRun bool) (*appliance.Result, error) {
	base := strings.Join([]string{call.Module, call.Controller, call.Command}, "/")
	var data map[string]any
	if call.Data != nil {
		enc, err := appliance.Encode(call.Data)
		if err != nil {
			return nil, err
		}
		data = enc
	}
	f.Calls = append(f.Calls, Call{Op: appliance.OpRaw, Path: call.Path(), DryRun: dryRun, Write: call.IsWrite(), Params: data})
	if err := f.Fail["raw:"+base]; err != nil {
		return nil, err
	}
	if call.IsWrite() && dryRun {
		return &appliance.Result{Changed: true, Data: map[string]any{}}, nil
	}
	arg := ""
	if len(call.Args) > 0 {
		arg = call.Args[0]
	}

	switch base {
	case "interfaces/overview/interfacesInfo":
		rows := make([]any, 0, len(f.Interfaces))
		for _, i := range f.Interfaces {
			row := map[string]any{
				"identifier":  i.Identifier,
				"device":      i.Device,
				"description": i.Description,
				"enabled":     i.Enabled,
			}
			if i.VLANTag > 0 {
				row["vlan_tag"] = fmt.Sprint(i.VLANTag)
			}
			rows = append(rows, row)
		}
		return &appliance.Result{Data: map[string]any{"rows": rows}}, nil

	case "interfaces/vlan_settings/searchItem":
		rows := make([]any, 0, len(f.VLANs))
		for _, v := range f.VLANs {
			rows = append(rows, map[string]any{
				"uuid":   v.UUID,
				"vlanif": v.Device,
				"tag":    fmt.Sprint(v.Tag),
				"if":     v.Parent,
				"descr":  v.Description,
				"pcp":    fmt.Sprint(v.Priority),
			})
		}
		return &appliance.Result{Data: map[string]any{"rows": rows, "total": len(rows)}}, nil

	case "interfaces/interface_assign/addItem":
		assign, _ := data["assign"].(map[string]any)
		device := appliance.AsString(assign["device"])
		for _, i := range f.Interfaces {
			if i.Device == device {
				return nil, reject(appliance.OpRaw, fmt.Sprintf("device %s already exists as %s", device, i.Identifier))
			}
		}
		tag := 0
		for _, v := range f.VLANs {
			if v.Device == device {
				tag = v.Tag
			}
		}
		f.nextOpt++
		ifname := fmt.Sprintf("opt%d", f.nextOpt)
		f.Interfaces = append(f.Interfaces, Interface{
			Identifier:  ifname,
			Device:      device,
			Description: appliance.AsString(assign["description"]),
			VLANTag:     tag,
			Enabled:     appliance.Truthy(assign["enable"]),
			IPv4:        appliance.AsString(assign["ipv4Address"]),
			Subnet:      appliance.AsInt(assign["ipv4Subnet"]),
		})
		return &appliance.Result{Changed: true, Data: map[string]any{"result": "saved", "ifname": ifname}}, nil

	case "interfaces/interface_assign/delItem":
		for i, iface := range f.Interfaces {
			if iface.Identifier == arg {
				f.Interfaces = append(f.Interfaces[:i], f.Interfaces[i+1:]...)
				return &appliance.Result{Changed: true, Data: map[string]any{"result": "deleted"}}, nil
			}
		}
		return nil, reject(appliance.OpRaw, fmt.Sprintf("interface %s not found", arg))

	case "interfaces/overview/reloadInterface":
		f.Reloads = append(f.Reloads, arg)
		return &appliance.Result{Changed: true, Data: map[string]any{"message": "ok"}}, nil

	case "dnsmasq/settings/searchRange":
		rows := make([]any, 0, len(f.Ranges))
		for _, r := range f.Ranges {
			rows = append(rows, map[string]any{
				"uuid":        r.UUID,
				"description": r.Description,
				"start_addr":  r.Start,
				"end_addr":    r.End,
				"interface":   r.Interface,
				"domain":      r.Domain,
				"lease_time":  fmt.Sprint(r.LeaseTime),
			})
		}
		return &appliance.Result{Data: map[string]any{"rows": rows}}, nil

	case "dnsmasq/settings/searchHost":
		rows := make([]any, 0, len(f.Hosts))
		for _, h := range f.Hosts {
			rows = append(rows, map[string]any{
				"uuid":        h.UUID,
				"description": h.Description,
				"host":        h.Host,
				"domain":      h.Domain,
				"ip":          h.IP,
				"hwaddr":      h.HardwareAddr,
			})
		}
		return &appliance.Result{Data: map[string]any{"rows": rows}}, nil

	case "dnsmasq/settings/get":
		opts := map[string]any{}
		for _, i := range f.Interfaces {
			sel := 0
			for _, d := range f.DnsmasqInterfaces {
				if d == i.Identifier {
					sel = 1
				}
			}
			opts[i.Identifier] = map[string]any{"value": i.Description, "selected": sel}
		}
		enable := "0"
		if f.DnsmasqEnabled {
			enable = "1"
		}
		return &appliance.Result{Data: map[string]any{"dnsmasq": map[string]any{"enable": enable, "interface": opts}}}, nil

	case "firewall/filter/get":
		if len(f.Rules) == 0 {
			// The appliance returns an empty list, not an object, when there are no rules.
			return &appliance.Result{Data: map[string]any{"filter": map[string]any{"rules": map[string]any{"rule": []any{}}}}}, nil
		}
		rules := map[string]any{}
		for _, r := range f.Rules {
			rules[r.UUID] = map[string]any{
				"description":     r.Description,
				"action":          selected(r.Action, "pass", "block", "reject"),
				"interface":       selected(r.Interface, f.identifiers()...),
				"direction":       selected(r.Direction, "in", "out"),
				"ipprotocol":      selected(r.IPProtocol, "inet", "inet6", "inet46"),
				"protocol":        selected(r.Protocol, "any", "TCP", "UDP", "TCP/UDP", "ICMP"),
				"source_net":      r.Source,
				"destination_net": r.Destination,
				"sequence":        fmt.Sprint(r.Sequence),
				"log":             boolString(r.Log),
				"quick":           boolString(r.Quick),
				"enabled":         boolString(r.Enabled),
			}
		}
		return &appliance.Result{Data: map[string]any{"filter": map[string]any{"rules": map[string]any{"rule": rules}}}}, nil

	case "firewall/filter/apply":
		f.Applies++
		return &appliance.Result{Changed: true, Data: map[string]any{"status": "OK"}}, nil
	}

	return nil, reject(appliance.OpRaw, fmt.Sprintf("endpoint %s not found", base))
}

func (f *Fake) identifiers() []string {
	out := make([]string, 0, len(f.Interfaces))
	for _, i := range f.Interfaces {
		out = append(out, i.Identifier)
	}
	return out
}

func selected(value string, options ...string) map[string]any {
	out := make(map[string]any, len(options)+1)
	found := false
	for _, o := range options {
		sel := 0
		if o == value {
			sel = 1
			found = true
		}
		out[o] = map[string]any{"value": o, "selected": sel}
	}
	if !found && value != "" {
		out[value] = map[string]any{"value": value, "selected": 1}
	}
	return out
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
