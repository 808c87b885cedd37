package zone

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v2"
)

// Format is a catalog file encoding.
type Format int

const (
	FormatAuto Format = iota
	FormatJSON
	FormatHCL
	FormatYAML
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatHCL:
		return "hcl"
	case FormatYAML:
		return "yaml"
	default:
		return "auto"
	}
}

// FormatFromPath picks a format from the file extension.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".hcl":
		return FormatHCL
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatAuto
	}
}

// LoadFile reads and parses a catalog file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read zones file: %w", err)
	}
	c, err := Parse(data, path, FormatFromPath(path))
	if err != nil {
		return nil, err
	}
	c.Source = path
	return c, nil
}

// Parse decodes a catalog. With FormatAuto, JSON, HCL and YAML are tried in
// that order and the first successful decode wins. Decode errors are
// returned as-is; semantic problems come back as ValidationErrors.
func Parse(data []byte, filename string, format Format) (*Catalog, error) {
	var (
		zones []Zone
		err   error
	)
	switch format {
	case FormatJSON:
		zones, err = decodeJSON(data)
	case FormatHCL:
		zones, err = decodeHCL(data, filename)
	case FormatYAML:
		zones, err = decodeYAML(data)
	default:
		if zones, err = decodeJSON(data); err != nil {
			if zones, err = decodeHCL(data, filename); err != nil {
				zones, err = decodeYAML(data)
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return NewCatalog(zones)
}

// flexString accepts JSON strings and numbers (typeId/subId appear as both).
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	if string(b) == "null" {
		*s = ""
		return nil
	}
	*s = flexString(b)
	return nil
}

// record is the on-disk shape shared by the JSON and YAML catalogs.
type record struct {
	Type               string     `json:"type" yaml:"type"`
	State              string     `json:"state" yaml:"state"`
	TypeID             flexString `json:"typeId" yaml:"typeId"`
	SubID              flexString `json:"subId" yaml:"subId"`
	VLANTag            int        `json:"vlantag" yaml:"vlantag"`
	IP                 string     `json:"ip" yaml:"ip"`
	Bridge             *string    `json:"bridge" yaml:"bridge"`
	Description        string     `json:"description" yaml:"description"`
	AccessTo           []string   `json:"access-to" yaml:"access-to"`
	PinholeAllowedFrom []string   `json:"pinhole-allowed-from" yaml:"pinhole-allowed-from"`
	SSID               string     `json:"SSID" yaml:"SSID"`
	DHCPStart          *int       `json:"DHCP-start" yaml:"DHCP-start"`
	DHCPEnd            *int       `json:"DHCP-end" yaml:"DHCP-end"`
}

func (r record) zone(name string) Zone {
	z := Zone{
		Name:               name,
		Type:               r.Type,
		State:              r.State,
		TypeID:             string(r.TypeID),
		SubID:              string(r.SubID),
		VLANTag:            r.VLANTag,
		IPNetwork:          r.IP,
		Bridge:             DefaultBridge,
		Description:        r.Description,
		AccessTo:           r.AccessTo,
		PinholeAllowedFrom: r.PinholeAllowedFrom,
		SSID:               r.SSID,
		DHCPStartOffset:    DefaultDHCPStart,
		DHCPEndOffset:      DefaultDHCPEnd,
	}
	if r.Bridge != nil && *r.Bridge != "" {
		z.Bridge = *r.Bridge
	}
	if r.DHCPStart != nil {
		z.DHCPStartOffset = *r.DHCPStart
	}
	if r.DHCPEnd != nil {
		z.DHCPEndOffset = *r.DHCPEnd
	}
	return z
}

func decodeJSON(data []byte) ([]Zone, error) {
	var raw map[string]record
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse zones JSON: %w", err)
	}
	zones := make([]Zone, 0, len(raw))
	for name, r := range raw {
		zones = append(zones, r.zone(name))
	}
	return zones, nil
}

func decodeYAML(data []byte) ([]Zone, error) {
	var raw map[string]record
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse zones YAML: %w", err)
	}
	zones := make([]Zone, 0, len(raw))
	for name, r := range raw {
		zones = append(zones, r.zone(name))
	}
	return zones, nil
}

// UnmarshalYAML lets typeId/subId be scalars of any kind.
func (s *flexString) UnmarshalYAML(unmarshal func(any) error) error {
	var v any
	if err := unmarshal(&v); err != nil {
		return err
	}
	if v == nil {
		*s = ""
		return nil
	}
	*s = flexString(fmt.Sprint(v))
	return nil
}

type hclCatalog struct {
	Zones []hclZone `hcl:"zone,block"`
}

type hclZone struct {
	Name               string   `hcl:"name,label"`
	Type               string   `hcl:"type,optional"`
	State              string   `hcl:"state,optional"`
	TypeID             string   `hcl:"type_id,optional"`
	SubID              string   `hcl:"sub_id,optional"`
	VLANTag            int      `hcl:"vlantag,optional"`
	IP                 string   `hcl:"ip,optional"`
	Bridge             string   `hcl:"bridge,optional"`
	Description        string   `hcl:"description,optional"`
	AccessTo           []string `hcl:"access_to,optional"`
	PinholeAllowedFrom []string `hcl:"pinhole_allowed_from,optional"`
	SSID               string   `hcl:"ssid,optional"`
	DHCPStart          *int     `hcl:"dhcp_start,optional"`
	DHCPEnd            *int     `hcl:"dhcp_end,optional"`
}

func decodeHCL(data []byte, filename string) ([]Zone, error) {
	if filename == "" {
		filename = "zones.hcl"
	}
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("HCL parse error: %s", diags.Error())
	}

	var cat hclCatalog
	if diags := gohcl.DecodeBody(file.Body, nil, &cat); diags.HasErrors() {
		return nil, fmt.Errorf("HCL decode error: %s", diags.Error())
	}

	zones := make([]Zone, 0, len(cat.Zones))
	for _, h := range cat.Zones {
		bridge := h.Bridge
		if bridge == "" {
			bridge = DefaultBridge
		}
		z := Zone{
			Name:               h.Name,
			Type:               h.Type,
			State:              h.State,
			TypeID:             h.TypeID,
			SubID:              h.SubID,
			VLANTag:            h.VLANTag,
			IPNetwork:          h.IP,
			Bridge:             bridge,
			Description:        h.Description,
			AccessTo:           h.AccessTo,
			PinholeAllowedFrom: h.PinholeAllowedFrom,
			SSID:               h.SSID,
			DHCPStartOffset:    DefaultDHCPStart,
			DHCPEndOffset:      DefaultDHCPEnd,
		}
		if h.DHCPStart != nil {
			z.DHCPStartOffset = *h.DHCPStart
		}
		if h.DHCPEnd != nil {
			z.DHCPEndOffset = *h.DHCPEnd
		}
		zones = append(zones, z)
	}
	return zones, nil
}
