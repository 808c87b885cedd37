package appliance

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/TAPPaaS/TAPPaaS/internal/logging"
)

// HTTPClient implements Invoker against the appliance REST API.
type HTTPClient struct {
	baseURL    string
	host       string
	key        string
	secret     string
	httpClient *http.Client
	tlsConfig  *tls.Config
	retry      RetryConfig
	logger     *logging.Logger
	userAgent  string
}

// ClientOption configures the HTTPClient.
type ClientOption func(*HTTPClient) error

// WithCredentials sets the API key and secret (HTTP basic auth).
func WithCredentials(key, secret string) ClientOption {
	return func(c *HTTPClient) error {
		c.key = key
		c.secret = secret
		return nil
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) error {
		c.httpClient.Timeout = d
		return nil
	}
}

// WithRetry overrides the transport retry policy.
func WithRetry(cfg RetryConfig) ClientOption {
	return func(c *HTTPClient) error {
		c.retry = cfg
		return nil
	}
}

// WithInsecureSkipVerify disables certificate verification.
func WithInsecureSkipVerify() ClientOption {
	return func(c *HTTPClient) error {
		c.tlsConfig.InsecureSkipVerify = true
		return nil
	}
}

// WithCAFile trusts the PEM certificates in path.
func WithCAFile(path string) ClientOption {
	return func(c *HTTPClient) error {
		pem, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return fmt.Errorf("no certificates found in %s", path)
		}
		c.tlsConfig.RootCAs = pool
		return nil
	}
}

// WithHTTPClient replaces the underlying client (tests use httptest's).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) error {
		c.httpClient = hc
		return nil
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *HTTPClient) error {
		c.userAgent = ua
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) ClientOption {
	return func(c *HTTPClient) error {
		c.logger = l
		return nil
	}
}

// NewHTTPClient creates a client for baseURL (e.g. https://fw.example:443).
func NewHTTPClient(baseURL string, opts ...ClientOption) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid appliance URL %q: %w", baseURL, err)
	}

	c := &HTTPClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		host:      u.Host,
		tlsConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		retry:     DefaultRetryConfig(),
		logger:    logging.Discard(),
	}
	c.httpClient = &http.Client{
		Timeout:   30 * time.Second,
		Transport: &http.Transport{TLSClientConfig: c.tlsConfig},
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Invoke implements Invoker.
func (c *HTTPClient) Invoke(ctx context.Context, name OperationName, params any, dryRun bool) (*Result, error) {
	switch name {
	case OpPing:
		data, err := c.call(ctx, name, MethodGet, pingPath, nil)
		if err != nil {
			return nil, err
		}
		return &Result{Data: data}, nil
	case OpRaw:
		call, ok := asRawCall(params)
		if !ok {
			return nil, fmt.Errorf("raw operation needs a RawCall, got %T", params)
		}
		return c.invokeRaw(ctx, call, dryRun)
	case OpDnsmasqGeneral:
		p, err := Encode(params)
		if err != nil {
			return nil, err
		}
		return c.invokeGeneral(ctx, p, dryRun)
	}

	def, ok := modules[name]
	if !ok {
		return nil, fmt.Errorf("unknown operation %q", name)
	}
	p, err := Encode(params)
	if err != nil {
		return nil, err
	}
	return c.invokeModule(ctx, name, def, p, dryRun)
}

func asRawCall(params any) (RawCall, bool) {
	switch p := params.(type) {
	case RawCall:
		return p, true
	case *RawCall:
		if p == nil {
			return RawCall{}, false
		}
		return *p, true
	}
	return RawCall{}, false
}

func (c *HTTPClient) invokeRaw(ctx context.Context, call RawCall, dryRun bool) (*Result, error) {
	method := call.Method
	if method == "" {
		method = MethodGet
	}
	if call.IsWrite() && dryRun {
		c.logger.Debug("dry-run: skipping raw write", "path", call.Path())
		return &Result{Changed: true, Data: map[string]any{}}, nil
	}

	var body any
	if call.Data != nil {
		enc, err := Encode(call.Data)
		if err != nil {
			return nil, err
		}
		body = enc
	}
	data, err := c.call(ctx, OpRaw, method, call.Path(), body)
	if err != nil {
		return nil, err
	}
	return &Result{Changed: call.IsWrite(), Data: data}, nil
}

func (c *HTTPClient) invokeModule(ctx context.Context, op OperationName, def moduleDef, params map[string]any, dryRun bool) (*Result, error) {
	state, match, reload, fields := def.splitParams(params)

	found, err := c.call(ctx, op, MethodGet, def.search, nil)
	if err != nil {
		return nil, err
	}
	existing := def.findRow((&Result{Data: found}).Rows(), fields, match)
	uuid := ""
	if existing != nil {
		uuid = AsString(existing["uuid"])
	}

	if state == StateAbsent {
		if existing == nil {
			return &Result{Data: map[string]any{"found": false}}, nil
		}
		if dryRun {
			return &Result{Changed: true, Data: map[string]any{"uuid": uuid}}, nil
		}
		if _, err := c.call(ctx, op, MethodPost, def.del+"/"+uuid, map[string]any{}); err != nil {
			return nil, err
		}
		if err := c.applyIf(ctx, op, def, reload); err != nil {
			return nil, err
		}
		return &Result{Changed: true, Data: map[string]any{"uuid": uuid, "result": "deleted"}}, nil
	}

	if existing != nil {
		diff := differs(existing, fields)
		if len(diff) == 0 {
			return &Result{Data: map[string]any{"uuid": uuid}}, nil
		}
		if dryRun {
			return &Result{Changed: true, Data: map[string]any{"uuid": uuid}}, nil
		}
		if _, err := c.call(ctx, op, MethodPost, def.set+"/"+uuid, map[string]any{def.wrap: fields}); err != nil {
			return nil, err
		}
		if err := c.applyIf(ctx, op, def, reload); err != nil {
			return nil, err
		}
		return &Result{Changed: true, Data: map[string]any{"uuid": uuid, "result": "saved"}}, nil
	}

	if dryRun {
		return &Result{Changed: true, Data: map[string]any{}}, nil
	}
	resp, err := c.call(ctx, op, MethodPost, def.add, map[string]any{def.wrap: fields})
	if err != nil {
		return nil, err
	}
	if err := c.applyIf(ctx, op, def, reload); err != nil {
		return nil, err
	}
	return &Result{Changed: true, Data: resp}, nil
}

func (c *HTTPClient) applyIf(ctx context.Context, op OperationName, def moduleDef, reload bool) error {
	if !reload || def.apply == "" {
		return nil
	}
	_, err := c.call(ctx, op, MethodPost, def.apply, map[string]any{})
	return err
}

func (c *HTTPClient) invokeGeneral(ctx context.Context, params map[string]any, dryRun bool) (*Result, error) {
	cur, err := c.call(ctx, OpDnsmasqGeneral, MethodGet, generalGet, nil)
	if err != nil {
		return nil, err
	}
	live := (&Result{Data: cur})

	wire := map[string]any{}
	changed := false
	if v, ok := params["enabled"]; ok {
		wire["enable"] = v
		if Truthy(live.String("dnsmasq", "enable")) != Truthy(v) {
			changed = true
		}
	}
	if v, ok := params["interfaces"]; ok {
		var names []string
		if list, ok := v.([]any); ok {
			for _, n := range list {
				names = append(names, AsString(n))
			}
		}
		joined := strings.Join(names, ",")
		wire["interface"] = joined
		liveIfaces, _ := live.Lookup("dnsmasq", "interface")
		if !sameSet(Selected(liveIfaces), joined) {
			changed = true
		}
	}

	if !changed {
		return &Result{Data: cur}, nil
	}
	if dryRun {
		return &Result{Changed: true, Data: cur}, nil
	}
	if _, err := c.call(ctx, OpDnsmasqGeneral, MethodPost, generalSet, map[string]any{"dnsmasq": wire}); err != nil {
		return nil, err
	}
	if _, err := c.call(ctx, OpDnsmasqGeneral, MethodPost, generalReconfigure, map[string]any{}); err != nil {
		return nil, err
	}
	return &Result{Changed: true, Data: map[string]any{"result": "saved"}}, nil
}

func sameSet(a, b string) bool {
	set := func(s string) map[string]bool {
		out := map[string]bool{}
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out[p] = true
			}
		}
		return out
	}
	sa, sb := set(a), set(b)
	if len(sa) != len(sb) {
		return false
	}
	for k := range sa {
		if !sb[k] {
			return false
		}
	}
	return true
}

// call performs one request with transport retries.
func (c *HTTPClient) call(ctx context.Context, op OperationName, method, path string, body any) (map[string]any, error) {
	return RetryWithResult(ctx, c.retry, func() (map[string]any, error) {
		return c.doRequest(ctx, op, method, path, body)
	})
}

// doRequest performs an HTTP request and decodes the JSON response.
func (c *HTTPClient) doRequest(ctx context.Context, op OperationName, method, path string, body any) (map[string]any, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/"+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if c.key != "" {
		req.SetBasicAuth(c.key, c.secret)
	}

	c.logger.Debug("appliance request", "method", method, "path", path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ConnectionError{Host: c.host, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectionError{Host: c.host, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	data, decodeErr := decodeBody(respBody)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(respBody))
		if m := failureMessage(data); m != "" {
			msg = m
		}
		re := NewResourceError(op, path, msg, data)
		re.Status = resp.StatusCode
		if resp.StatusCode == http.StatusNotFound && re.Code == CodeUnknown {
			re.Code = CodeNotFound
		}
		return nil, re
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %w", path, decodeErr)
	}
	if failed(data) {
		return nil, NewResourceError(op, path, failureMessage(data), data)
	}
	return data, nil
}

func decodeBody(b []byte) (map[string]any, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return map[string]any{}, nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case []any:
		return map[string]any{"rows": t}, nil
	default:
		return map[string]any{"value": t}, nil
	}
}

func failed(data map[string]any) bool {
	switch strings.ToLower(AsString(data["result"])) {
	case "failed", "error":
		return true
	}
	return strings.EqualFold(AsString(data["status"]), "error")
}

// failureMessage flattens validation messages ({"validations": {"vlan.tag": "..."}}).
func failureMessage(data map[string]any) string {
	if data == nil {
		return ""
	}
	if v, ok := data["validations"].(map[string]any); ok && len(v) > 0 {
		parts := make([]string, 0, len(v))
		for field, msg := range v {
			parts = append(parts, fmt.Sprintf("%s: %s", field, AsString(msg)))
		}
		slices.Sort(parts)
		return strings.Join(parts, "; ")
	}
	if m := AsString(data["message"]); m != "" {
		return m
	}
	return AsString(data["result"])
}
