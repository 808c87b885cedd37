package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
)

// Credentials are the API key pair.
type Credentials struct {
	Key    string
	Secret string
}

// ReadCredentialFile loads a key pair from path.
func ReadCredentialFile(path string) (Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read credential file: %w", err)
	}
	creds, err := ParseCredentials(data)
	if err != nil {
		return Credentials{}, fmt.Errorf("%s: %w", path, err)
	}
	return creds, nil
}

// ParseCredentials accepts either two bare lines (key, then secret) or
// key=/secret= lines. Blank lines and # comments are skipped.
func ParseCredentials(data []byte) (Credentials, error) {
	var (
		creds Credentials
		bare  []string
	)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if ok {
			switch strings.ToLower(strings.TrimSpace(k)) {
			case "key", "token", "api_key":
				creds.Key = strings.TrimSpace(v)
				continue
			case "secret", "api_secret":
				creds.Secret = strings.TrimSpace(v)
				continue
			}
		}
		bare = append(bare, line)
	}
	if err := sc.Err(); err != nil {
		return Credentials{}, err
	}

	if creds.Key == "" && len(bare) > 0 {
		creds.Key, bare = bare[0], bare[1:]
	}
	if creds.Secret == "" && len(bare) > 0 {
		creds.Secret = bare[0]
	}
	if creds.Key == "" || creds.Secret == "" {
		return Credentials{}, fmt.Errorf("expected an API key and secret")
	}
	return creds, nil
}

// Credentials resolves the key pair: explicit token and secret win,
// otherwise the credential file is read.
func (a Appliance) Credentials() (Credentials, error) {
	if a.Token != "" && a.Secret != "" {
		return Credentials{Key: a.Token, Secret: a.Secret}, nil
	}
	if a.CredentialFile == "" {
		return Credentials{}, fmt.Errorf("no API credentials: set %s/%s or a credential file", EnvToken, EnvSecret)
	}
	return ReadCredentialFile(a.CredentialFile)
}
