package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultHost, cfg.Appliance.Host)
	assert.Equal(t, 443, cfg.Appliance.Port)
	assert.True(t, cfg.Appliance.SSLVerify)
	assert.Equal(t, 30*time.Second, cfg.Appliance.Timeout)
	assert.Equal(t, 3, cfg.Appliance.Retries)
	assert.Equal(t, "vtnet1", cfg.BridgeMap["wan"])
	assert.Equal(t, "https://firewall.mgmt.internal:443", cfg.Appliance.BaseURL())
	assert.NoError(t, cfg.Validate())
}

func TestLoadHCL(t *testing.T) {
	t.Setenv("ZONECTL_TEST_SECRET", "s3cret")

	src := `
appliance {
  host       = "10.0.0.1"
  port       = 8443
  token      = "key"
  secret     = env.ZONECTL_TEST_SECRET
  ssl_verify = false
  timeout    = "45s"
  retries    = 5
}

bridge_map = {
  LAN  = "igb0"
  iot  = "igb2"
}

lease_time   = 3600
assign_vlans = false
zones_file   = "/etc/zonectl/zones.hcl"
`
	cfg := Default()
	require.NoError(t, LoadHCL(cfg, []byte(src), "zonectl.hcl"))

	assert.Equal(t, "10.0.0.1", cfg.Appliance.Host)
	assert.Equal(t, 8443, cfg.Appliance.Port)
	assert.Equal(t, "s3cret", cfg.Appliance.Secret)
	assert.False(t, cfg.Appliance.SSLVerify)
	assert.Equal(t, 45*time.Second, cfg.Appliance.Timeout)
	assert.Equal(t, 5, cfg.Appliance.Retries)
	assert.Equal(t, map[string]string{"lan": "igb0", "iot": "igb2"}, cfg.BridgeMap)
	assert.Equal(t, 3600, cfg.LeaseTime)
	assert.False(t, cfg.AssignVLANs)
	assert.Equal(t, "/etc/zonectl/zones.hcl", cfg.ZonesFile)
	// Untouched values keep their defaults.
	assert.Equal(t, DefaultInterface, cfg.DefaultInterface)
}

func TestLoadFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zonectl.json")
	src := `{"appliance": {"host": "fw.lab", "timeout": 10}, "metrics_file": "/tmp/zonectl.prom"}`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))

	cfg := Default()
	require.NoError(t, LoadFile(cfg, path))
	assert.Equal(t, "fw.lab", cfg.Appliance.Host)
	assert.Equal(t, 10*time.Second, cfg.Appliance.Timeout)
	assert.Equal(t, "/tmp/zonectl.prom", cfg.MetricsFile)
}

func TestLoadHCL_Errors(t *testing.T) {
	cfg := Default()
	assert.Error(t, LoadHCL(cfg, []byte(`appliance {`), "bad.hcl"))
	assert.Error(t, LoadHCL(cfg, []byte(`unknown = 1`), "bad.hcl"))
	assert.Error(t, LoadHCL(cfg, []byte("appliance {\n timeout = \"soon\"\n}\n"), "bad.hcl"))
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(cfg, envMap(map[string]string{
		EnvHost:           "192.168.1.1",
		EnvPort:           "4443",
		EnvToken:          "tok",
		EnvSecret:         "sec",
		EnvSSLVerify:      "False",
		EnvDebug:          "true",
		EnvTimeout:        "12.5",
		EnvRetries:        "0",
		EnvCAFile:         "",
		EnvCredentialFile: "/nonexistent",
	}))
	require.NoError(t, err)

	assert.Equal(t, "192.168.1.1", cfg.Appliance.Host)
	assert.Equal(t, 4443, cfg.Appliance.Port)
	assert.Equal(t, "tok", cfg.Appliance.Token)
	assert.False(t, cfg.Appliance.SSLVerify)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 12500*time.Millisecond, cfg.Appliance.Timeout)
	assert.Equal(t, 0, cfg.Appliance.Retries)
	assert.Empty(t, cfg.Appliance.CAFile)

	creds, err := cfg.Appliance.Credentials()
	require.NoError(t, err)
	assert.Equal(t, Credentials{Key: "tok", Secret: "sec"}, creds)
}

func TestApplyEnv_SSLVerifyOnlyFalseDisables(t *testing.T) {
	cfg := Default()
	require.NoError(t, ApplyEnv(cfg, envMap(map[string]string{EnvSSLVerify: "0"})))
	assert.True(t, cfg.Appliance.SSLVerify)
}

func TestApplyEnv_Invalid(t *testing.T) {
	assert.Error(t, ApplyEnv(Default(), envMap(map[string]string{EnvPort: "https"})))
	assert.Error(t, ApplyEnv(Default(), envMap(map[string]string{EnvRetries: "many"})))
	assert.Error(t, ApplyEnv(Default(), envMap(map[string]string{EnvTimeout: "-3"})))
}

func TestParseCredentials(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Credentials
		wantErr bool
	}{
		{name: "two lines", in: "abc\ndef\n", want: Credentials{"abc", "def"}},
		{name: "keyed", in: "# opnsense\nsecret=def\nkey=abc\n", want: Credentials{"abc", "def"}},
		{name: "crlf and blanks", in: "\r\nabc\r\n\r\ndef\r\n", want: Credentials{"abc", "def"}},
		{name: "secret with equals", in: "key=abc\nsecret=d=e=f\n", want: Credentials{"abc", "d=e=f"}},
		{name: "missing secret", in: "abc\n", wantErr: true},
		{name: "empty", in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCredentials([]byte(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCredentials_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), CredentialFileName)
	require.NoError(t, os.WriteFile(path, []byte("key-1\nsecret-1\n"), 0o600))

	a := Appliance{CredentialFile: path}
	creds, err := a.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "key-1", creds.Key)

	_, err = Appliance{}.Credentials()
	assert.Error(t, err)
	_, err = Appliance{CredentialFile: filepath.Join(t.TempDir(), "missing")}.Credentials()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Appliance.Host = ""
	cfg.Appliance.Port = 70000
	cfg.LeaseTime = 0
	cfg.BridgeMap["iot"] = ""

	err := cfg.Validate()
	require.Error(t, err)
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Len(t, verrs, 4)
	assert.Contains(t, err.Error(), "appliance.host")
	assert.Contains(t, err.Error(), "bridge_map.iot")
}

func TestResolveZonesFile(t *testing.T) {
	cfg := Default()
	p, err := cfg.ResolveZonesFile("explicit.json")
	require.NoError(t, err)
	assert.Equal(t, "explicit.json", p)

	cfg.ZonesFile = "/etc/zones.yaml"
	p, err = cfg.ResolveZonesFile("")
	require.NoError(t, err)
	assert.Equal(t, "/etc/zones.yaml", p)

	dir := t.TempDir()
	t.Chdir(dir)
	cfg.ZonesFile = ""
	_, err = cfg.ResolveZonesFile("")
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultZonesFileName), []byte("{}"), 0o600))
	p, err = cfg.ResolveZonesFile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultZonesFileName, p)
}
