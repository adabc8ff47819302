package naming

import (
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// PathParams returns the placeholder names of a URL template, in order of
// appearance. These are exactly the parameters a bound operation requires.
func PathParams(path string) []string {
	matches := placeholder.FindAllStringSubmatch(path, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// OperationName derives the registry name for one (path, method) pair.
//
// An explicit operationId wins. Otherwise the name is built from the verb
// alias and the path with separators folded to underscores, placeholder
// segments stripped and re-appended as a _by_<param>... suffix. The result is
// snake_cased and prefixed with the grouping tag to avoid collisions across
// tags.
func OperationName(method, path, operationID, tag string, alias func(string) string) string {
	tagPart := ToSnakeCase(tag)

	if operationID != "" {
		return tagPart + "_" + ToSnakeCase(operationID)
	}

	verb := strings.ToLower(method)
	if alias != nil {
		verb = alias(verb)
	}

	base := verb + strings.NewReplacer("/", "_", "-", "_").Replace(path)
	base = placeholder.ReplaceAllString(base, "")
	name := ToSnakeCase(base)

	if params := PathParams(path); len(params) > 0 {
		suffix := make([]string, 0, len(params))
		for _, p := range params {
			suffix = append(suffix, ToSnakeCase(p))
		}
		name += "_by_" + strings.Join(suffix, "_")
	}
	return tagPart + "_" + name
}
