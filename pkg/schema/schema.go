// Package schema fetches a service's machine-readable API description and
// parses it into the immutable descriptors every generated operation binds to.
package schema

import "fmt"

// Param is one declared endpoint parameter.
type Param struct {
	Name        string
	Description string
	Required    bool
	InPath      bool
}

// Endpoint is one schema entry: a URL template plus the metadata needed to
// name and bind an operation to it.
type Endpoint struct {
	// Path is the URL template, possibly containing {param} placeholders.
	// Its placeholders are exactly the path parameters required at call time.
	Path            string
	Method          string
	Tag             string
	Summary         string
	OperationID     string
	Params          []Param
	Deprecated      bool
	DeprecationDate string
}

// Description is the parsed API description. It is built once per client
// lifetime and never mutated afterwards.
type Description struct {
	// BasePath prefixes every endpoint path: baseURL + BasePath + Path.
	BasePath string
	// AuthPath is the token endpoint hint derived from the document's
	// security declarations; empty when the document declares none.
	AuthPath  string
	Endpoints []Endpoint
}

// FetchError reports a non-200 response from the schema endpoint.
type FetchError struct {
	Status int
	Body   string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch API description: %d %s", e.Status, e.Body)
}

// ParseError reports a document that could not be parsed into a Description.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to parse API description: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("failed to parse API description: %s", e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }
