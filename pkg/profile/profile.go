// Package profile describes per-vendor strategy: where the schema document
// lives, how it is flavored, how operation names are derived and which
// endpoints handle the token lifecycle.
package profile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Flavor identifies the schema document dialect.
type Flavor string

const (
	// FlavorSwagger2 documents carry an explicit basePath field.
	FlavorSwagger2 Flavor = "swagger2"
	// FlavorOpenAPI3 documents carry servers[0].url and security requirements.
	FlavorOpenAPI3 Flavor = "openapi3"
)

// AuthEndpoints names the three token-lifecycle paths independently. They are
// never derived from each other by string substitution.
type AuthEndpoints struct {
	// BasePath, when set, overrides the schema's base path for auth calls only.
	BasePath       string `yaml:"basePath"`
	TokenPath      string `yaml:"tokenPath"`
	KeepAlivePath  string `yaml:"keepAlivePath"`
	InvalidatePath string `yaml:"invalidatePath"`
}

// Profile is one vendor strategy.
type Profile struct {
	Name       string `yaml:"name"`
	Flavor     Flavor `yaml:"flavor"`
	SchemaPath string `yaml:"schemaPath"`

	// VerbAliases maps lower-case HTTP methods to friendlier name stems,
	// e.g. post -> create.
	VerbAliases map[string]string `yaml:"verbAliases"`

	// AllowQuery permits surplus call arguments to become query parameters.
	// When false they are rejected into the request body only.
	AllowQuery bool `yaml:"allowQuery"`

	// DefaultTag namespaces untagged endpoints.
	DefaultTag string `yaml:"defaultTag"`

	// DeriveAuthFromSchema prefers the schema's security-derived token path
	// over Auth.TokenPath when present.
	DeriveAuthFromSchema bool `yaml:"deriveAuthFromSchema"`

	Auth AuthEndpoints `yaml:"auth"`
}

// Classic is the Swagger 2.0 variant: YAML document with a basePath field and
// a fixed auth prefix.
func Classic() *Profile {
	return &Profile{
		Name:       "classic",
		Flavor:     FlavorSwagger2,
		SchemaPath: "/classicapi/doc/swagger.yaml",
		AllowQuery: false,
		DefaultTag: "misc",
		Auth: AuthEndpoints{
			BasePath:       "/api",
			TokenPath:      "/v1/auth/token",
			KeepAlivePath:  "/v1/auth/keep-alive",
			InvalidatePath: "/v1/auth/invalidate-token",
		},
	}
}

// Modern is the OpenAPI 3 variant: JSON document, base path from servers[0],
// token path derived from the declared security schemes.
func Modern() *Profile {
	return &Profile{
		Name:       "modern",
		Flavor:     FlavorOpenAPI3,
		SchemaPath: "/api/schema/",
		VerbAliases: map[string]string{
			"post": "create",
			"put":  "update",
		},
		AllowQuery:           true,
		DefaultTag:           "misc",
		DeriveAuthFromSchema: true,
		Auth: AuthEndpoints{
			TokenPath:      "/v1/auth/token",
			KeepAlivePath:  "/v1/auth/keep-alive",
			InvalidatePath: "/v1/auth/invalidate-token",
		},
	}
}

// Lookup resolves a built-in profile by name.
func Lookup(name string) (*Profile, error) {
	switch name {
	case "", "modern":
		return Modern(), nil
	case "classic":
		return Classic(), nil
	}
	return nil, fmt.Errorf("unknown profile %q", name)
}

// LoadFile reads a custom profile from a YAML file.
func LoadFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if err := p.check(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	return &p, nil
}

func (p *Profile) check() error {
	switch p.Flavor {
	case FlavorSwagger2, FlavorOpenAPI3:
	default:
		return fmt.Errorf("unknown flavor %q", p.Flavor)
	}
	if p.SchemaPath == "" {
		return fmt.Errorf("schemaPath is required")
	}
	if p.DefaultTag == "" {
		p.DefaultTag = "misc"
	}
	return nil
}

// VerbAlias returns the name stem for an HTTP method.
func (p *Profile) VerbAlias(method string) string {
	if alias, ok := p.VerbAliases[method]; ok {
		return alias
	}
	return method
}
