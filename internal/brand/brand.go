// Package brand holds the product identity used in CLI output, the
// appliance client's User-Agent and the default config location.
package brand

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed brand.json
var brandJSON []byte

// Brand is the decoded brand.json.
type Brand struct {
	Name             string `json:"name"`
	BinaryName       string `json:"binaryName"`
	Repository       string `json:"repository"`
	Description      string `json:"description"`
	ConfigEnvPrefix  string `json:"configEnvPrefix"`
	DefaultConfigDir string `json:"defaultConfigDir"`
	ConfigFileName   string `json:"configFileName"`
}

var b Brand

var (
	Name             string
	BinaryName       string
	Repository       string
	Description      string
	ConfigEnvPrefix  string
	DefaultConfigDir string
	ConfigFileName   string
)

// Set with -ldflags "-X github.com/TAPPaaS/TAPPaaS/internal/brand.Version=...".
var (
	Version   = "dev"
	BuildTime = ""
	GitCommit = ""
)

func init() {
	if err := json.Unmarshal(brandJSON, &b); err != nil {
		panic("brand.json: " + err.Error())
	}
	Name = b.Name
	BinaryName = b.BinaryName
	Repository = b.Repository
	Description = b.Description
	ConfigEnvPrefix = b.ConfigEnvPrefix
	DefaultConfigDir = b.DefaultConfigDir
	ConfigFileName = b.ConfigFileName
}

// Get returns the decoded brand.
func Get() Brand { return b }

// UserAgent identifies zonectl to the appliance API.
func UserAgent(version string) string {
	if version == "" {
		version = "dev"
	}
	return BinaryName + "/" + version
}

// ConfigDir is $ZONECTL_CONFIG_DIR when set, else DefaultConfigDir.
func ConfigDir() string {
	if dir := os.Getenv(ConfigEnvPrefix + "_CONFIG_DIR"); dir != "" {
		return dir
	}
	return DefaultConfigDir
}

// DefaultConfigPath is where the CLI looks for its optional config file.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), ConfigFileName)
}
