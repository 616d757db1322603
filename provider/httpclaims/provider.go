// Package httpclaims fetches claim fragments from remote data services.
//
// Each service receives a POST with {"userId": "<id>"} and answers with a
// JSON object that becomes a fragment of the access token.
package httpclaims

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	accounts "github.com/goliatone/go-accounts"
)

const maxBodySize = 1 << 20

// Authorizer returns the bearer token sent to the data service
type Authorizer func(ctx context.Context, id accounts.IdentityRef) (string, error)

// Provider is a ClaimProvider backed by one remote endpoint
type Provider struct {
	name       string
	endpoint   string
	client     *http.Client
	authorizer Authorizer
}

var _ accounts.NamedClaimProvider = (*Provider)(nil)

type Option func(*Provider)

// WithClient sets the HTTP client, http.DefaultClient otherwise
func WithClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.client = c
		}
	}
}

// WithName overrides the name reported in logs, the endpoint host by default
func WithName(name string) Option {
	return func(p *Provider) {
		if name != "" {
			p.name = name
		}
	}
}

func WithAuthorizer(a Authorizer) Option {
	return func(p *Provider) {
		p.authorizer = a
	}
}

func New(endpoint string, opts ...Option) *Provider {
	p := &Provider{
		name:     nameFromEndpoint(endpoint),
		endpoint: endpoint,
		client:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FromURLs builds one provider per non empty URL, preserving order
func FromURLs(urls []string, opts ...Option) []accounts.ClaimProvider {
	out := make([]accounts.ClaimProvider, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		out = append(out, New(u, opts...))
	}
	return out
}

func (p *Provider) Name() string {
	return p.name
}

func (p *Provider) FetchFragment(ctx context.Context, id accounts.IdentityRef) (accounts.ClaimFragment, error) {
	body, err := json.Marshal(map[string]string{"userId": id.String()})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("httpclaims: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if p.authorizer != nil {
		token, err := p.authorizer(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("httpclaims: authorize: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	res, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclaims: %s: %w", p.name, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxBodySize))
		return nil, fmt.Errorf("httpclaims: %s: unexpected status %d", p.name, res.StatusCode)
	}

	var fragment accounts.ClaimFragment
	dec := json.NewDecoder(io.LimitReader(res.Body, maxBodySize))
	if err := dec.Decode(&fragment); err != nil && err != io.EOF {
		return nil, fmt.Errorf("httpclaims: %s: decode fragment: %w", p.name, err)
	}
	return fragment, nil
}

func nameFromEndpoint(endpoint string) string {
	name := strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	if i := strings.IndexByte(name, '/'); i > 0 {
		name = name[:i]
	}
	if name == "" {
		return "http"
	}
	return name
}
