package schema

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/oasdiff/yaml"

	"github.com/restbound/restbound/pkg/profile"
)

// Only GET/PUT/POST/PATCH/DELETE entries become endpoints. OPTIONS, HEAD and
// TRACE describe transport concerns, not callable operations.

// ParseSwagger2 parses a Swagger 2.0 document (YAML or JSON). The base path
// comes from the document's basePath field.
func ParseSwagger2(data []byte, prof *profile.Profile) (*Description, error) {
	var doc openapi2.T
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Reason: "not a Swagger 2.0 document", Err: err}
	}
	if len(doc.Paths) == 0 {
		return nil, &ParseError{Reason: "document declares no paths"}
	}

	desc := &Description{BasePath: strings.TrimRight(doc.BasePath, "/")}
	for path, item := range doc.Paths {
		if item == nil {
			continue
		}
		ops := []*openapi2.Operation{item.Get, item.Put, item.Post, item.Patch, item.Delete}
		methods := []string{"GET", "PUT", "POST", "PATCH", "DELETE"}
		for i, op := range ops {
			if op == nil {
				continue
			}
			ep := Endpoint{
				Path:            path,
				Method:          methods[i],
				Tag:             firstTag(op.Tags, prof.DefaultTag),
				Summary:         op.Summary,
				OperationID:     op.OperationID,
				Deprecated:      op.Deprecated,
				DeprecationDate: extensionString(op.Extensions, "x-deprecation-date"),
			}
			for _, p := range op.Parameters {
				if p == nil || p.Name == "" {
					continue
				}
				ep.Params = append(ep.Params, Param{
					Name:        p.Name,
					Description: p.Description,
					Required:    p.Required,
					InPath:      p.In == "path",
				})
			}
			desc.Endpoints = append(desc.Endpoints, ep)
		}
	}
	sortEndpoints(desc.Endpoints)
	return desc, nil
}

// ParseOpenAPI3 parses an OpenAPI 3 document. The base path comes from
// servers[0].url and the auth path from the first non-empty scope list under
// any declared security requirement.
func ParseOpenAPI3(data []byte, prof *profile.Profile) (*Description, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, &ParseError{Reason: "not an OpenAPI 3 document", Err: err}
	}
	if doc.Paths == nil || doc.Paths.Len() == 0 {
		return nil, &ParseError{Reason: "document declares no paths"}
	}

	desc := &Description{}
	if len(doc.Servers) > 0 {
		desc.BasePath = strings.TrimRight(doc.Servers[0].URL, "/")
	}
	desc.AuthPath = authPathFromSecurity(doc.Security)

	for path, item := range doc.Paths.Map() {
		ops := []*openapi3.Operation{item.Get, item.Put, item.Post, item.Patch, item.Delete}
		methods := []string{"GET", "PUT", "POST", "PATCH", "DELETE"}
		for i, op := range ops {
			if op == nil {
				continue
			}
			ep := Endpoint{
				Path:            path,
				Method:          methods[i],
				Tag:             firstTag(op.Tags, prof.DefaultTag),
				Summary:         op.Summary,
				OperationID:     op.OperationID,
				Deprecated:      op.Deprecated,
				DeprecationDate: extensionString(op.Extensions, "x-deprecation-date"),
			}
			for _, pr := range op.Parameters {
				if pr == nil || pr.Value == nil || pr.Value.Name == "" {
					continue
				}
				p := pr.Value
				ep.Params = append(ep.Params, Param{
					Name:        p.Name,
					Description: p.Description,
					Required:    p.Required,
					InPath:      p.In == openapi3.ParameterInPath,
				})
			}
			desc.Endpoints = append(desc.Endpoints, ep)
		}
	}
	sortEndpoints(desc.Endpoints)
	return desc, nil
}

// authPathFromSecurity walks the document-level security requirements and
// returns the first scope of the first scheme that declares any scopes.
func authPathFromSecurity(reqs openapi3.SecurityRequirements) string {
	for _, req := range reqs {
		names := make([]string, 0, len(req))
		for name := range req {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if scopes := req[name]; len(scopes) > 0 {
				return scopes[0]
			}
		}
	}
	return ""
}

func firstTag(tags []string, fallback string) string {
	if len(tags) > 0 && tags[0] != "" {
		return tags[0]
	}
	return fallback
}

// extensionString reads a string-valued vendor extension, tolerating both the
// decoded and raw-message representations kin-openapi may produce.
func extensionString(ext map[string]any, key string) string {
	v, ok := ext[key]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.RawMessage:
		var s string
		if err := json.Unmarshal(t, &s); err == nil {
			return s
		}
	}
	return ""
}

// sortEndpoints orders by path then method so registration is deterministic.
func sortEndpoints(eps []Endpoint) {
	sort.Slice(eps, func(i, j int) bool {
		if eps[i].Path == eps[j].Path {
			return eps[i].Method < eps[j].Method
		}
		return eps[i].Path < eps[j].Path
	})
}
