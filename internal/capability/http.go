package capability

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// AllowRule matches an outbound URL. Exactly one non-empty field combination
// is used per rule, per spec.md §9's allowlist grammar: an exact host, a
// host suffix (".example.com" matches any subdomain), or a scheme://host
// prefix restricting to one path tree.
type AllowRule struct {
	Host       string // exact host match, e.g. "api.example.com"
	HostSuffix string // suffix match, e.g. ".example.com"
	Prefix     string // full "scheme://host/path" prefix match
}

func (r AllowRule) matches(u string) bool {
	switch {
	case r.Prefix != "":
		return strings.HasPrefix(u, r.Prefix)
	case r.Host != "" || r.HostSuffix != "":
		rest := u
		if i := strings.Index(rest, "://"); i >= 0 {
			rest = rest[i+3:]
		}
		if i := strings.IndexAny(rest, "/?#"); i >= 0 {
			rest = rest[:i]
		}
		if i := strings.Index(rest, "@"); i >= 0 {
			rest = rest[i+1:]
		}
		host := rest
		if r.Host != "" && host == r.Host {
			return true
		}
		if r.HostSuffix != "" && strings.HasSuffix(host, r.HostSuffix) {
			return true
		}
		return false
	default:
		return false
	}
}

// HTTPOptions configures an AllowlistedHTTP client.
type HTTPOptions struct {
	Rules          []AllowRule
	MaxBodyBytes   int64
	ConnectTimeout time.Duration
	TotalTimeout   time.Duration
}

// DefaultHTTPOptions mirrors spec.md §9: 10MB response cap, 30s total / 10s
// connect timeout, redirects and auto-decompression both off by default.
func DefaultHTTPOptions(rules ...AllowRule) HTTPOptions {
	return HTTPOptions{
		Rules:          rules,
		MaxBodyBytes:   10 << 20,
		ConnectTimeout: 10 * time.Second,
		TotalTimeout:   30 * time.Second,
	}
}

// AllowlistedHTTP is the default HTTPClient implementation: every request is
// checked against an allowlist before anything touches the network, and
// responses are capped at MaxBodyBytes, with redirects and transparent
// decompression disabled so the builtin sees exactly what the server sent.
type AllowlistedHTTP struct {
	opts   HTTPOptions
	client *http.Client
}

// NewAllowlistedHTTP builds an AllowlistedHTTP client from opts.
func NewAllowlistedHTTP(opts HTTPOptions) *AllowlistedHTTP {
	transport := &http.Transport{
		DisableCompression: true,
		DialContext:        (&net.Dialer{Timeout: opts.ConnectTimeout}).DialContext,
	}
	client := &http.Client{
		Timeout:   opts.TotalTimeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &AllowlistedHTTP{opts: opts, client: client}
}

func (a *AllowlistedHTTP) allowed(url string) bool {
	for _, r := range a.opts.Rules {
		if r.matches(url) {
			return true
		}
	}
	return false
}

// Do performs req if its URL is allowlisted, capping the response body at
// opts.MaxBodyBytes; the connect deadline (opts.ConnectTimeout) is applied
// by the transport's dialer set up in NewAllowlistedHTTP.
func (a *AllowlistedHTTP) Do(ctx context.Context, req *Request) (*Response, error) {
	if !a.allowed(req.URL) {
		return nil, fmt.Errorf("http capability: %q is not in the allowlist", req.URL)
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = strings.NewReader(string(req.Body))
	}
	httpReq, err := http.NewRequestWithContext(ctx, string(req.Method), req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("http capability: building request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http capability: request failed: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, a.opts.MaxBodyBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("http capability: reading response: %w", err)
	}
	truncated := false
	if int64(len(data)) > a.opts.MaxBodyBytes {
		data = data[:a.opts.MaxBodyBytes]
		truncated = true
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       data,
		Truncated:  truncated,
	}, nil
}
