package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/restbound/restbound/pkg/schema"
	"github.com/restbound/restbound/pkg/transport"
)

// BodyKey is the reserved call-argument key whose value becomes the request
// body. Every other argument binds a path placeholder or a query parameter.
const BodyKey = "data"

// Args are the keyword arguments of one operation call.
type Args map[string]any

// Operation is one named callable bound to a single schema endpoint.
type Operation struct {
	Name     string
	Endpoint schema.Endpoint

	pathParams []string
	client     *Client
}

// Call invokes the bound endpoint. Path placeholders are bound first so a
// missing parameter fails before any network traffic, authentication
// included; the token is then validated and the request dispatched.
func (op *Operation) Call(ctx context.Context, args Args) (*Response, error) {
	path, err := op.bindPath(args)
	if err != nil {
		return nil, err
	}

	if err := op.client.tokens.EnsureValid(ctx); err != nil {
		return nil, err
	}

	query := op.splitQuery(args)
	body, err := encodeBody(args[BodyKey])
	if err != nil {
		return nil, fmt.Errorf("operation %s: encode body: %w", op.Name, err)
	}

	if op.Endpoint.Deprecated {
		date := op.Endpoint.DeprecationDate
		if date == "" {
			date = "unknown date"
		}
		op.client.logger.Warn("calling deprecated operation",
			zap.String("operation", op.Name),
			zap.String("deprecated_on", date))
	}

	u := op.client.baseURL + op.client.desc.BasePath + path
	header := op.client.headers.Clone()
	header.Set("Authorization", "Bearer "+op.client.tokens.Token())

	res, err := op.client.doer.Do(ctx, transport.Request{
		Method: op.Endpoint.Method,
		URL:    u,
		Header: header,
		Query:  query,
		Body:   body,
	})
	if err != nil {
		// Transport exhausted its retries without a response; surface a
		// failed envelope rather than an exception-like error.
		return newResponse(false, u, 0, nil, err.Error()), nil
	}

	success := res.Status >= 200 && res.Status < 300
	return newResponse(success, res.FinalURL, res.Status, res.Body, ""), nil
}

// bindPath substitutes every {param} placeholder from args.
func (op *Operation) bindPath(args Args) (string, error) {
	path := op.Endpoint.Path
	for _, name := range op.pathParams {
		v, ok := args[name]
		if !ok {
			return "", &BindError{Operation: op.Name, Param: name}
		}
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(fmt.Sprint(v)))
	}
	return path, nil
}

// splitQuery turns the surplus arguments into query parameters. Profiles
// without query support drop them so an argument can never ride in both the
// query string and the body.
func (op *Operation) splitQuery(args Args) url.Values {
	if !op.client.prof.AllowQuery {
		return nil
	}
	bound := make(map[string]bool, len(op.pathParams)+1)
	for _, p := range op.pathParams {
		bound[p] = true
	}
	bound[BodyKey] = true

	var query url.Values
	for k, v := range args {
		if bound[k] {
			continue
		}
		if query == nil {
			query = url.Values{}
		}
		switch t := v.(type) {
		case []string:
			for _, s := range t {
				query.Add(k, s)
			}
		case []any:
			for _, e := range t {
				query.Add(k, fmt.Sprint(e))
			}
		default:
			query.Add(k, fmt.Sprint(v))
		}
	}
	return query
}

// encodeBody accepts raw bytes or strings untouched and marshals anything
// else as JSON.
func encodeBody(v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	default:
		return json.Marshal(t)
	}
}
