package appliance

import "sort"

// moduleDef maps a structured module operation onto the appliance's
// search/add/set/del controller commands.
type moduleDef struct {
	search string
	add    string
	set    string
	del    string
	apply  string
	wrap   string
	// parameter name -> wire field; unlisted names are sent unchanged
	fields map[string]string
	match  []string
}

var modules = map[OperationName]moduleDef{
	OpInterfaceVLAN: {
		search: "interfaces/vlan_settings/searchItem",
		add:    "interfaces/vlan_settings/addItem",
		set:    "interfaces/vlan_settings/setItem",
		del:    "interfaces/vlan_settings/delItem",
		apply:  "interfaces/vlan_settings/reconfigure",
		wrap:   "vlan",
		fields: map[string]string{
			"description": "descr",
			"vlan":        "tag",
			"interface":   "if",
			"priority":    "pcp",
			"device":      "vlanif",
		},
		match: []string{"description"},
	},
	OpDnsmasqRange: {
		search: "dnsmasq/settings/searchRange",
		add:    "dnsmasq/settings/addRange",
		set:    "dnsmasq/settings/setRange",
		del:    "dnsmasq/settings/delRange",
		apply:  "dnsmasq/service/reconfigure",
		wrap:   "range",
		match:  []string{"description"},
	},
	OpDnsmasqHost: {
		search: "dnsmasq/settings/searchHost",
		add:    "dnsmasq/settings/addHost",
		set:    "dnsmasq/settings/setHost",
		del:    "dnsmasq/settings/delHost",
		apply:  "dnsmasq/service/reconfigure",
		wrap:   "host",
		match:  []string{"description"},
	},
	OpRule: {
		search: "firewall/filter/searchRule",
		add:    "firewall/filter/addRule",
		set:    "firewall/filter/setRule",
		del:    "firewall/filter/delRule",
		apply:  "firewall/filter/apply",
		wrap:   "rule",
		fields: map[string]string{
			"ip_protocol": "ipprotocol",
		},
		match: []string{"description"},
	},
}

const (
	generalGet         = "dnsmasq/settings/get"
	generalSet         = "dnsmasq/settings/set"
	generalReconfigure = "dnsmasq/service/reconfigure"
	pingPath           = "core/firmware/status"
)

func (d moduleDef) wireName(param string) string {
	if w, ok := d.fields[param]; ok {
		return w
	}
	return param
}

// splitParams separates module control keys from resource fields.
func (d moduleDef) splitParams(params map[string]any) (state string, match []string, reload bool, fields map[string]any) {
	state = StatePresent
	if s := AsString(params[ParamState]); s != "" {
		state = s
	}
	match = d.match
	if raw, ok := params[ParamMatchFields].([]any); ok && len(raw) > 0 {
		match = make([]string, 0, len(raw))
		for _, m := range raw {
			match = append(match, AsString(m))
		}
	}
	reload = true
	if v, ok := params[ParamReload]; ok {
		reload = Truthy(v)
	}

	fields = make(map[string]any, len(params))
	for k, v := range params {
		switch k {
		case ParamState, ParamMatchFields, ParamReload:
			continue
		}
		fields[d.wireName(k)] = v
	}
	return state, match, reload, fields
}

// findRow returns the first row whose match fields equal the request.
func (d moduleDef) findRow(rows []map[string]any, fields map[string]any, match []string) map[string]any {
	for _, row := range rows {
		ok := true
		for _, m := range match {
			w := d.wireName(m)
			if Selected(row[w]) != AsString(fields[w]) {
				ok = false
				break
			}
		}
		if ok {
			return row
		}
	}
	return nil
}

// differs reports which requested fields disagree with the live row.
func differs(row, fields map[string]any) []string {
	var keys []string
	for k, v := range fields {
		live, ok := row[k]
		if !ok {
			continue
		}
		if Selected(live) != AsString(v) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
