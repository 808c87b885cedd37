package config

import (
	"fmt"
	"os"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate checks the resolved configuration. Credentials are not checked
// here; they are only needed once a command talks to the appliance.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Appliance.Host == "" {
		add("appliance.host", "host is required")
	}
	if c.Appliance.Port < 1 || c.Appliance.Port > 65535 {
		add("appliance.port", "port %d out of range", c.Appliance.Port)
	}
	if c.Appliance.Timeout <= 0 {
		add("appliance.timeout", "timeout must be positive")
	}
	if c.Appliance.Retries < 0 {
		add("appliance.retries", "retries must not be negative")
	}
	if c.Appliance.CAFile != "" && !c.Appliance.SSLVerify {
		add("appliance.ca_file", "ca_file is ignored with ssl verification disabled")
	}
	if c.DefaultInterface == "" {
		add("default_interface", "default interface is required")
	}
	for bridge, parent := range c.BridgeMap {
		if parent == "" {
			add("bridge_map."+bridge, "parent interface is empty")
		}
	}
	if c.LeaseTime <= 0 {
		add("lease_time", "lease time must be positive")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// ZonesFileCandidates are probed, in order, when no catalog path is given.
var ZonesFileCandidates = []string{
	DefaultZonesFileName,
	"src/foundation/zones.json",
	"/home/tappaas/TAPPaaS/src/foundation/zones.json",
}

// ResolveZonesFile picks the catalog path: the explicit value, then the
// configured ZonesFile, then the first existing ZonesFileCandidates entry.
func (c *Config) ResolveZonesFile(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if c.ZonesFile != "" {
		return c.ZonesFile, nil
	}
	for _, p := range ZonesFileCandidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no zones file given and none of %s found", strings.Join(ZonesFileCandidates, ", "))
}
