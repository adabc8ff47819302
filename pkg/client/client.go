// Package client builds a complete set of callable operations from a
// service's API description at construction time: one named operation per
// (path, method) schema entry, dispatched through a shared transport and a
// shared token manager.
package client

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/restbound/restbound/pkg/auth"
	"github.com/restbound/restbound/pkg/config"
	"github.com/restbound/restbound/pkg/naming"
	"github.com/restbound/restbound/pkg/profile"
	"github.com/restbound/restbound/pkg/schema"
	"github.com/restbound/restbound/pkg/transport"
)

// Doer executes HTTP requests. Satisfied by *transport.Transport.
type Doer interface {
	Do(ctx context.Context, req transport.Request) (*transport.Result, error)
}

// Client holds one parsed API description and the generated operations bound
// to it. The description and the registry are immutable after New returns;
// the instance is safe for concurrent use.
type Client struct {
	cfg     config.Config
	prof    *profile.Profile
	baseURL string
	headers http.Header

	doer   Doer
	tr     *transport.Transport
	tokens *auth.Manager
	desc   *schema.Description
	ops    map[string]*Operation
	logger *zap.Logger
}

// New fetches the API description from cfg.BaseURL, generates the operation
// registry and returns a ready client. The token is acquired lazily on the
// first call, not here. Callers must release the client with Close so the
// token is invalidated on every exit path:
//
//	c, err := client.New(ctx, cfg, nil)
//	if err != nil { ... }
//	defer c.Close(ctx)
func New(ctx context.Context, cfg config.Config, prof *profile.Profile) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if prof == nil {
		prof = profile.Modern()
	}

	tr, err := transport.New(transport.Options{
		Timeout:            cfg.Timeout,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		RetryMax:           cfg.RetryMax,
		RetryWaitMin:       cfg.RetryWaitMin,
		RetryWaitMax:       cfg.RetryWaitMax,
		Logger:             cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:     cfg,
		prof:    prof,
		baseURL: config.NormalizeBaseURL(cfg.BaseURL),
		doer:    tr,
		tr:      tr,
		logger:  cfg.Logger.With(zap.String("component", "client"), zap.String("profile", prof.Name)),
	}
	c.headers = buildHeaders(prof, cfg.ReturnFormat)

	src := schema.NewSource(tr, prof, cfg.Logger)
	desc, err := src.Fetch(ctx, c.baseURL)
	if err != nil {
		return nil, err
	}
	c.desc = desc

	c.tokens = auth.NewManager(tr, c.authEndpoints(), auth.Credentials{
		Username: cfg.Username,
		Password: cfg.Password,
	}, cfg.Logger)

	c.ops = c.buildRegistry()
	c.logger.Debug("client ready",
		zap.Int("operations", len(c.ops)),
		zap.String("base_path", desc.BasePath))
	return c, nil
}

// buildHeaders derives the fixed header set for the profile flavor. The
// classic variant negotiates its return format and always submits XML bodies.
func buildHeaders(prof *profile.Profile, returnFormat string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", "restbound")
	if prof.Flavor == profile.FlavorSwagger2 {
		h.Set("Accept", "application/"+returnFormat)
		h.Set("Content-Type", "application/xml")
	} else {
		h.Set("Accept", "application/json")
		h.Set("Content-Type", "application/json")
	}
	return h
}

// authEndpoints resolves the three token-lifecycle URLs. The token path
// prefers the schema's security-derived hint; keep-alive and invalidate are
// always profile-configured, never derived from the token URL.
func (c *Client) authEndpoints() auth.Endpoints {
	base := c.desc.BasePath
	if c.prof.Auth.BasePath != "" {
		base = c.prof.Auth.BasePath
	}

	tokenPath := c.prof.Auth.TokenPath
	if c.prof.DeriveAuthFromSchema && c.desc.AuthPath != "" {
		tokenPath = c.desc.AuthPath
	}

	return auth.Endpoints{
		Token:      c.baseURL + base + tokenPath,
		KeepAlive:  c.baseURL + base + c.prof.Auth.KeepAlivePath,
		Invalidate: c.baseURL + base + c.prof.Auth.InvalidatePath,
	}
}

// buildRegistry derives one named operation per endpoint. Deprecated
// endpoints are filtered here, once, when the client hides them.
func (c *Client) buildRegistry() map[string]*Operation {
	ops := make(map[string]*Operation, len(c.desc.Endpoints))
	for i := range c.desc.Endpoints {
		ep := c.desc.Endpoints[i]
		if ep.Deprecated && c.cfg.HideDeprecated {
			continue
		}
		name := naming.OperationName(ep.Method, ep.Path, ep.OperationID, ep.Tag, c.prof.VerbAlias)
		if _, taken := ops[name]; taken {
			// Explicit operationIds may repeat across methods; keep every
			// entry callable by disambiguating with the verb, then a counter
			// when the verb repeats too.
			base := name + "_" + strings.ToLower(ep.Method)
			name = base
			for n := 2; ; n++ {
				if _, taken := ops[name]; !taken {
					break
				}
				name = fmt.Sprintf("%s_%d", base, n)
			}
			c.logger.Warn("operation name collision", zap.String("operation", name))
		}
		ops[name] = &Operation{
			Name:       name,
			Endpoint:   ep,
			pathParams: naming.PathParams(ep.Path),
			client:     c,
		}
	}
	return ops
}

// Invoke calls the named operation with the given arguments.
func (c *Client) Invoke(ctx context.Context, name string, args Args) (*Response, error) {
	op, ok := c.ops[name]
	if !ok {
		return nil, fmt.Errorf("unknown operation %q", name)
	}
	return op.Call(ctx, args)
}

// Operation returns the named operation for repeated calls.
func (c *Client) Operation(name string) (*Operation, bool) {
	op, ok := c.ops[name]
	return op, ok
}

// Operations lists all generated operation names, sorted.
func (c *Client) Operations() []string {
	names := make([]string, 0, len(c.ops))
	for name := range c.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Description exposes the parsed API description.
func (c *Client) Description() *schema.Description {
	return c.desc
}

// SetTimeout adjusts the per-request timeout.
func (c *Client) SetTimeout(d time.Duration) error {
	return c.tr.SetTimeout(d)
}

// SetInsecureSkipVerify adjusts the TLS verification policy.
func (c *Client) SetInsecureSkipVerify(skip bool) {
	c.tr.SetInsecureSkipVerify(skip)
}

// Close invalidates the held token and discards the credentials. The client
// cannot authenticate again afterwards.
func (c *Client) Close(ctx context.Context) error {
	return c.tokens.Invalidate(ctx)
}
