package filter

import (
	"fmt"
	"strings"

	"datagate/internal/apperr"
)

// ParseSegment decodes one dotted step: "name", "name:scope" or "fn(name)".
func ParseSegment(raw string) (PathSegment, error) {
	if raw == "" {
		return PathSegment{}, apperr.ValidationError("Empty field name in filter path")
	}
	if open := strings.IndexByte(raw, '('); open > 0 && strings.HasSuffix(raw, ")") {
		name := raw[open+1 : len(raw)-1]
		if name == "" || strings.ContainsAny(name, "():") {
			return PathSegment{}, apperr.ValidationError(fmt.Sprintf("Invalid function call %q in filter", raw))
		}
		return PathSegment{Name: name, Function: strings.ToLower(raw[:open])}, nil
	}
	if strings.ContainsAny(raw, "()") {
		return PathSegment{}, apperr.ValidationError(fmt.Sprintf("Invalid field %q in filter", raw))
	}
	if name, scope, ok := strings.Cut(raw, ":"); ok {
		if name == "" || scope == "" {
			return PathSegment{}, apperr.ValidationError(fmt.Sprintf("Invalid collection scope %q in filter", raw))
		}
		return PathSegment{Name: name, Scope: scope}, nil
	}
	return PathSegment{Name: raw}, nil
}

// ParsePath splits a dotted key into segments.
func ParsePath(key string) ([]PathSegment, error) {
	parts := strings.Split(key, ".")
	segs := make([]PathSegment, 0, len(parts))
	for _, p := range parts {
		seg, err := ParseSegment(p)
		if err != nil {
			return nil, err
		}
		segs = append(segs, seg)
	}
	return segs, nil
}
