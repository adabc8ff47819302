// Package cli implements the restbound command handlers.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"

	"github.com/restbound/restbound/pkg/client"
	"github.com/restbound/restbound/pkg/config"
	"github.com/restbound/restbound/pkg/profile"
)

// ConnectParams are the flags shared by every command that talks to a service.
type ConnectParams struct {
	URL         string
	Username    string
	Password    string
	Profile     string
	ProfileFile string
	Insecure    bool
	Timeout     time.Duration
	Verbose     bool
}

func (p ConnectParams) connect(ctx context.Context) (*client.Client, error) {
	logger := zap.NewNop()
	if p.Verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		logger = l
	}

	cfg := config.Config{
		BaseURL:            p.URL,
		Username:           p.Username,
		Password:           p.Password,
		Timeout:            p.Timeout,
		InsecureSkipVerify: p.Insecure,
		Logger:             logger,
	}

	prof, err := profile.Lookup(p.Profile)
	if err != nil {
		return nil, err
	}
	if p.ProfileFile != "" {
		if prof, err = profile.LoadFile(p.ProfileFile); err != nil {
			return nil, err
		}
	}
	return client.New(ctx, cfg, prof)
}

// RunOps lists the generated operations for a service.
func RunOps(ctx context.Context, p ConnectParams) error {
	c, err := p.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close(ctx)

	for _, name := range c.Operations() {
		op, _ := c.Operation(name)
		line := fmt.Sprintf("%-60s %-6s %s", name, op.Endpoint.Method, op.Endpoint.Path)
		if op.Endpoint.Deprecated {
			line += "  (deprecated)"
		}
		fmt.Println(line)
		if op.Endpoint.Summary != "" {
			fmt.Printf("    %s\n", op.Endpoint.Summary)
		}
	}
	return nil
}

// RunCall invokes one operation. Arguments are key=value pairs; the reserved
// "data" key is sent as the request body.
func RunCall(ctx context.Context, p ConnectParams, opName string, kvArgs []string) error {
	args := client.Args{}
	for _, kv := range kvArgs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("argument %q is not key=value", kv)
		}
		args[k] = v
	}

	c, err := p.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close(ctx)

	res, err := c.Invoke(ctx, opName, args)
	if err != nil {
		return err
	}

	out := map[string]any{
		"success":  res.Success,
		"httpCode": res.StatusCode,
		"url":      res.URL,
	}
	if res.IsStructured {
		out["parsed"] = res.Parsed
	} else {
		out["data"] = string(res.Body)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// RunValidate checks that a local OpenAPI 3 document parses and validates.
func RunValidate(input string) error {
	loader := &openapi3.Loader{IsExternalRefsAllowed: true}
	doc, err := loader.LoadFromFile(input)
	if err != nil {
		return err
	}
	return doc.Validate(loader.Context)
}
