// Package restbound builds a complete REST client from a service's OpenAPI or
// Swagger description at runtime: one callable operation per discovered
// endpoint, with token lifecycle management, transport retry and uniform
// response envelopes. No code generation step is involved.
//
// Quick start:
//
//	cfg := restbound.Config{
//		BaseURL:  "https://jss.example.com",
//		Username: "api-user",
//		Password: "secret",
//	}
//	c, err := restbound.New(ctx, cfg)
//	if err != nil {
//		// schema could not be fetched or parsed
//	}
//	defer c.Close(ctx)
//
//	res, err := c.Invoke(ctx, "scripts_get_v1_scripts", restbound.Args{"page-size": 100})
//	if err == nil && res.Success {
//		fmt.Println(res.Parsed)
//	}
//
// Operation names follow the schema: an explicit operationId when present,
// otherwise a verb_path derivation with a _by_<param> suffix for templated
// paths, prefixed by the endpoint's tag. Client.Operations lists them all.
package restbound

import (
	"context"

	"github.com/restbound/restbound/pkg/client"
	"github.com/restbound/restbound/pkg/config"
	"github.com/restbound/restbound/pkg/profile"
)

// Config configures one client. See pkg/config for field documentation.
type Config = config.Config

// Args are the keyword arguments of an operation call. The reserved "data"
// key becomes the request body.
type Args = client.Args

// Response is the uniform envelope around one HTTP result.
type Response = client.Response

// Client is a generated operation registry bound to one service.
type Client = client.Client

// New builds a client for the default ("modern", OpenAPI 3) vendor profile.
func New(ctx context.Context, cfg Config) (*Client, error) {
	return client.New(ctx, cfg, nil)
}

// NewWithProfile builds a client for a named built-in profile: "modern"
// (OpenAPI 3, JSON schema document) or "classic" (Swagger 2.0, YAML).
func NewWithProfile(ctx context.Context, cfg Config, profileName string) (*Client, error) {
	prof, err := profile.Lookup(profileName)
	if err != nil {
		return nil, err
	}
	return client.New(ctx, cfg, prof)
}

// NewWithProfileFile builds a client from a custom vendor profile on disk.
func NewWithProfileFile(ctx context.Context, cfg Config, path string) (*Client, error) {
	prof, err := profile.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return client.New(ctx, cfg, prof)
}
