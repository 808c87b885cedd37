package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Environment variables read by ApplyEnv.
const (
	EnvHost           = "OPNSENSE_HOST"
	EnvPort           = "OPNSENSE_PORT"
	EnvToken          = "OPNSENSE_TOKEN"
	EnvSecret         = "OPNSENSE_SECRET"
	EnvCredentialFile = "OPNSENSE_CREDENTIAL_FILE"
	EnvSSLVerify      = "OPNSENSE_SSL_VERIFY"
	EnvCAFile         = "OPNSENSE_SSL_CA_FILE"
	EnvDebug          = "OPNSENSE_DEBUG"
	EnvTimeout        = "OPNSENSE_API_TIMEOUT"
	EnvRetries        = "OPNSENSE_API_RETRIES"
)

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays OPNSENSE_* variables onto cfg. Empty values are ignored.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvHost); ok {
		cfg.Appliance.Host = v
	}
	if v, ok := get(EnvPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid port %q", EnvPort, v)
		}
		cfg.Appliance.Port = port
	}
	if v, ok := get(EnvToken); ok {
		cfg.Appliance.Token = v
	}
	if v, ok := get(EnvSecret); ok {
		cfg.Appliance.Secret = v
	}
	if v, ok := get(EnvCredentialFile); ok {
		cfg.Appliance.CredentialFile = v
	}
	if v, ok := get(EnvSSLVerify); ok {
		// Anything but "false" keeps verification on.
		cfg.Appliance.SSLVerify = !strings.EqualFold(v, "false")
	}
	if v, ok := get(EnvCAFile); ok {
		cfg.Appliance.CAFile = v
	}
	if v, ok := get(EnvDebug); ok {
		cfg.Debug = strings.EqualFold(v, "true")
	}
	if v, ok := get(EnvTimeout); ok {
		d, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		cfg.Appliance.Timeout = d
	}
	if v, ok := get(EnvRetries); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid retry count %q", EnvRetries, v)
		}
		cfg.Appliance.Retries = n
	}
	return nil
}
