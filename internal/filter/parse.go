package filter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"

	"datagate/internal/apperr"
)

// member and object preserve key order while decoding, so that
// conditions appear in the order the caller wrote them.
type member struct {
	key   string
	value any
}

type object []member

// Parse decodes a JSON filter. Key order is preserved; numbers are kept
// as json.Number until an operator coerces them against a field type.
func Parse(data []byte) (Node, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return True(), nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeOrdered(dec)
	if err != nil {
		return nil, apperr.ValidationError(fmt.Sprintf("Invalid filter JSON: %v", err))
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, apperr.ValidationError("Invalid filter JSON: trailing data")
	}
	obj, ok := v.(object)
	if !ok {
		return nil, apperr.ValidationError("Filter must be a JSON object")
	}
	return fromObject(obj, nil)
}

// FromMap converts an already-decoded filter. Go maps carry no order, so
// keys are visited sorted.
func FromMap(m map[string]any) (Node, error) {
	if m == nil {
		return True(), nil
	}
	return fromObject(toOrdered(m).(object), nil)
}

func decodeOrdered(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			var obj object
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is not a string")
				}
				val, err := decodeOrdered(dec)
				if err != nil {
					return nil, err
				}
				obj = append(obj, member{key: key, value: val})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			if obj == nil {
				obj = object{}
			}
			return obj, nil
		case '[':
			arr := []any{}
			for dec.More() {
				val, err := decodeOrdered(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	default:
		return tok, nil
	}
}

func toOrdered(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := make(object, 0, len(keys))
		for _, k := range keys {
			obj = append(obj, member{key: k, value: toOrdered(val[k])})
		}
		return obj
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = toOrdered(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = toOrdered(item)
		}
		return out
	default:
		return v
	}
}

// plain turns ordered objects back into maps for operator values such as
// GeoJSON geometries.
func plain(v any) any {
	switch val := v.(type) {
	case object:
		m := make(map[string]any, len(val))
		for _, mem := range val {
			m[mem.key] = plain(mem.value)
		}
		return m
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = plain(item)
		}
		return out
	default:
		return v
	}
}

// fromObject converts one filter object. prefix is the field path of the
// enclosing keys; logical operators found below a field are lifted so that
// {author: {_or: [{name: ...}]}} becomes {_or: [{author.name: ...}]}.
func fromObject(obj object, prefix []PathSegment) (Node, error) {
	var children []Node
	for _, m := range obj {
		switch {
		case m.key == string(And) || m.key == string(Or):
			n, err := fromLogical(LogicalOp(m.key), m.value, prefix)
			if err != nil {
				return nil, err
			}
			children = append(children, n)

		case m.key == string(Some) || m.key == string(None):
			if len(prefix) == 0 {
				return nil, apperr.UsageError(fmt.Sprintf("%q must be nested under a relational field", m.key))
			}
			sub, ok := m.value.(object)
			if !ok {
				return nil, apperr.ValidationError(fmt.Sprintf("%q expects a filter object", m.key))
			}
			inner, err := fromObject(sub, nil)
			if err != nil {
				return nil, err
			}
			children = append(children, &Quantified{
				Path:       slices.Clone(prefix),
				Quantifier: Quantifier(m.key),
				Filter:     inner,
			})

		case strings.HasPrefix(m.key, "_"):
			if len(prefix) == 0 {
				return nil, apperr.ValidationError(fmt.Sprintf("Operator %q must be nested under a field", m.key))
			}
			children = append(children, &Condition{
				Path:     slices.Clone(prefix),
				Operator: m.key,
				Value:    plain(m.value),
			})

		default:
			segs, err := ParsePath(m.key)
			if err != nil {
				return nil, err
			}
			sub, ok := m.value.(object)
			if !ok {
				return nil, apperr.ValidationError(fmt.Sprintf("Filter for %q must be an object of operators or fields", m.key))
			}
			path := append(slices.Clone(prefix), segs...)
			n, err := fromObject(sub, path)
			if err != nil {
				return nil, err
			}
			children = append(children, n)
		}
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return &Logical{Op: And, Children: children}, nil
}

func fromLogical(op LogicalOp, value any, prefix []PathSegment) (Node, error) {
	arr, ok := value.([]any)
	if !ok {
		return nil, apperr.ValidationError(fmt.Sprintf("%q expects an array of filters", op))
	}
	l := &Logical{Op: op, Children: make([]Node, 0, len(arr))}
	for _, item := range arr {
		sub, ok := item.(object)
		if !ok {
			return nil, apperr.ValidationError(fmt.Sprintf("%q expects an array of filters", op))
		}
		n, err := fromObject(sub, prefix)
		if err != nil {
			return nil, err
		}
		l.Children = append(l.Children, n)
	}
	return l, nil
}
