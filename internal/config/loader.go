package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// fileConfig is the on-disk schema. Every attribute is optional; absent
// values keep whatever the layer below set.
type fileConfig struct {
	Appliance        *applianceBlock   `hcl:"appliance,block"`
	Bridges          map[string]string `hcl:"bridge_map,optional"`
	DefaultInterface string            `hcl:"default_interface,optional"`
	LeaseTime        int               `hcl:"lease_time,optional"`
	AssignVLANs      *bool             `hcl:"assign_vlans,optional"`
	ZonesFile        string            `hcl:"zones_file,optional"`
	MetricsFile      string            `hcl:"metrics_file,optional"`
	Debug            *bool             `hcl:"debug,optional"`
}

type applianceBlock struct {
	Host           string `hcl:"host,optional"`
	Port           int    `hcl:"port,optional"`
	Token          string `hcl:"token,optional"`
	Secret         string `hcl:"secret,optional"`
	CredentialFile string `hcl:"credential_file,optional"`
	SSLVerify      *bool  `hcl:"ssl_verify,optional"`
	CAFile         string `hcl:"ca_file,optional"`
	Timeout        string `hcl:"timeout,optional"`
	Retries        *int   `hcl:"retries,optional"`
}

// Load builds the configuration: defaults, then the file at path (skipped
// when path is empty), then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the HCL or JSON file at path onto cfg.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		return LoadJSON(cfg, data, path)
	}
	return LoadHCL(cfg, data, path)
}

// LoadHCL overlays HCL config bytes onto cfg. Expressions may reference
// environment variables as env.NAME.
func LoadHCL(cfg *Config, data []byte, filename string) error {
	file, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return fmt.Errorf("HCL parse error: %s", diags.Error())
	}
	return decode(cfg, file.Body)
}

// LoadJSON overlays config in HCL's JSON syntax onto cfg.
func LoadJSON(cfg *Config, data []byte, filename string) error {
	file, diags := hclparse.NewParser().ParseJSON(data, filename)
	if diags.HasErrors() {
		return fmt.Errorf("JSON parse error: %s", diags.Error())
	}
	return decode(cfg, file.Body)
}

func decode(cfg *Config, body hcl.Body) error {
	var fc fileConfig
	if diags := gohcl.DecodeBody(body, evalContext(), &fc); diags.HasErrors() {
		return fmt.Errorf("config decode error: %s", diags.Error())
	}
	return fc.apply(cfg)
}

// evalContext exposes the process environment to config expressions.
func evalContext() *hcl.EvalContext {
	vars := map[string]cty.Value{}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !hclsyntax.ValidIdentifier(k) {
			continue
		}
		vars[k] = cty.StringVal(v)
	}
	env := cty.EmptyObjectVal
	if len(vars) > 0 {
		env = cty.ObjectVal(vars)
	}
	return &hcl.EvalContext{Variables: map[string]cty.Value{"env": env}}
}

func (fc *fileConfig) apply(cfg *Config) error {
	if a := fc.Appliance; a != nil {
		if a.Host != "" {
			cfg.Appliance.Host = a.Host
		}
		if a.Port != 0 {
			cfg.Appliance.Port = a.Port
		}
		if a.Token != "" {
			cfg.Appliance.Token = a.Token
		}
		if a.Secret != "" {
			cfg.Appliance.Secret = a.Secret
		}
		if a.CredentialFile != "" {
			cfg.Appliance.CredentialFile = a.CredentialFile
		}
		if a.SSLVerify != nil {
			cfg.Appliance.SSLVerify = *a.SSLVerify
		}
		if a.CAFile != "" {
			cfg.Appliance.CAFile = a.CAFile
		}
		if a.Timeout != "" {
			d, err := parseTimeout(a.Timeout)
			if err != nil {
				return fmt.Errorf("appliance.timeout: %w", err)
			}
			cfg.Appliance.Timeout = d
		}
		if a.Retries != nil {
			cfg.Appliance.Retries = *a.Retries
		}
	}
	if len(fc.Bridges) > 0 {
		cfg.BridgeMap = make(map[string]string, len(fc.Bridges))
		for k, v := range fc.Bridges {
			cfg.BridgeMap[strings.ToLower(k)] = v
		}
	}
	if fc.DefaultInterface != "" {
		cfg.DefaultInterface = fc.DefaultInterface
	}
	if fc.LeaseTime != 0 {
		cfg.LeaseTime = fc.LeaseTime
	}
	if fc.AssignVLANs != nil {
		cfg.AssignVLANs = *fc.AssignVLANs
	}
	if fc.ZonesFile != "" {
		cfg.ZonesFile = fc.ZonesFile
	}
	if fc.MetricsFile != "" {
		cfg.MetricsFile = fc.MetricsFile
	}
	if fc.Debug != nil {
		cfg.Debug = *fc.Debug
	}
	return nil
}

// parseTimeout accepts a Go duration ("45s") or a plain number of seconds.
func parseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("invalid timeout %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
