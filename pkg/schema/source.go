package schema

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/restbound/restbound/pkg/profile"
	"github.com/restbound/restbound/pkg/transport"
)

// Doer executes HTTP requests. Satisfied by *transport.Transport.
type Doer interface {
	Do(ctx context.Context, req transport.Request) (*transport.Result, error)
}

// Source fetches and parses the API description for one vendor profile.
type Source struct {
	doer   Doer
	prof   *profile.Profile
	logger *zap.Logger
}

// NewSource builds a Source.
func NewSource(doer Doer, prof *profile.Profile, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		doer:   doer,
		prof:   prof,
		logger: logger.With(zap.String("component", "schema")),
	}
}

// Fetch retrieves the description document from its well-known path under
// baseURL and parses it according to the profile's flavor.
func (s *Source) Fetch(ctx context.Context, baseURL string) (*Description, error) {
	docURL := baseURL + s.prof.SchemaPath
	s.logger.Debug("fetching API description", zap.String("url", docURL))

	res, err := s.doer.Do(ctx, transport.Request{
		Method: http.MethodGet,
		URL:    docURL,
		Header: http.Header{"Accept": []string{"*/*"}},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch API description: %w", err)
	}
	if res.Status != http.StatusOK {
		return nil, &FetchError{Status: res.Status, Body: string(res.Body)}
	}

	var desc *Description
	switch s.prof.Flavor {
	case profile.FlavorSwagger2:
		desc, err = ParseSwagger2(res.Body, s.prof)
	case profile.FlavorOpenAPI3:
		desc, err = ParseOpenAPI3(res.Body, s.prof)
	default:
		return nil, &ParseError{Reason: fmt.Sprintf("unknown schema flavor %q", s.prof.Flavor)}
	}
	if err != nil {
		return nil, err
	}

	// A profile that derives its token endpoint from the schema cannot
	// authenticate without a declared security scheme.
	if s.prof.DeriveAuthFromSchema && desc.AuthPath == "" && s.prof.Auth.TokenPath == "" {
		return nil, &ParseError{Reason: "document declares no security scheme with scopes"}
	}

	s.logger.Debug("parsed API description",
		zap.String("base_path", desc.BasePath),
		zap.Int("endpoints", len(desc.Endpoints)))
	return desc, nil
}
