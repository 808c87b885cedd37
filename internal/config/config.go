// Package config holds zonectl's runtime configuration: how to reach the
// appliance, the bridge-to-parent-interface map, and where the zone catalog
// lives. Values are layered defaults, then the optional config file, then
// OPNSENSE_* environment variables, then command-line flags.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Defaults.
const (
	DefaultHost          = "firewall.mgmt.internal"
	DefaultPort          = 443
	DefaultTimeout       = 30 * time.Second
	DefaultRetries       = 3
	DefaultLeaseTime     = 86400
	DefaultInterface     = "vtnet0"
	CredentialFileName   = ".opnsense-credentials.txt"
	DefaultZonesFileName = "zones.json"
)

// Config is the resolved runtime configuration.
type Config struct {
	Appliance        Appliance
	BridgeMap        map[string]string
	DefaultInterface string
	LeaseTime        int
	AssignVLANs      bool
	ZonesFile        string
	// MetricsFile, when set, receives a Prometheus textfile after each run.
	MetricsFile string
	Debug       bool
}

// Appliance describes the API endpoint and its credentials.
type Appliance struct {
	Host           string
	Port           int
	Token          string
	Secret         string
	CredentialFile string
	SSLVerify      bool
	CAFile         string
	Timeout        time.Duration
	Retries        int
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Appliance: Appliance{
			Host:           DefaultHost,
			Port:           DefaultPort,
			CredentialFile: defaultCredentialFile(),
			SSLVerify:      true,
			Timeout:        DefaultTimeout,
			Retries:        DefaultRetries,
		},
		BridgeMap:        map[string]string{"lan": "vtnet0", "wan": "vtnet1"},
		DefaultInterface: DefaultInterface,
		LeaseTime:        DefaultLeaseTime,
		AssignVLANs:      true,
	}
}

// BaseURL returns the appliance API root, e.g. https://fw:443.
func (a Appliance) BaseURL() string {
	return "https://" + a.Host + ":" + strconv.Itoa(a.Port)
}

// defaultCredentialFile returns $HOME/.opnsense-credentials.txt when it
// exists.
func defaultCredentialFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(home, CredentialFileName)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
