package repository

import (
	"sort"
	"strconv"
	"strings"
)

// Well known property names.
const (
	PropResourceType = "sling:resourceType"
	PropDeleted      = "_deleted"
	PropBodyLocation = "_bodyLocation"
	PropBody         = "_body"
)

// Content is a node in the content tree. Property values are string, []string,
// bool, int64 or float64.
type Content struct {
	Path       string         `json:"path"`
	Properties map[string]any `json:"properties"`
}

// NewContent returns a node at path holding a copy of props.
func NewContent(path string, props map[string]any) *Content {
	c := &Content{Path: path, Properties: make(map[string]any, len(props))}
	for k, v := range props {
		c.Properties[k] = NormalizeValue(v)
	}
	return c
}

// Name returns the last path segment.
func (c *Content) Name() string {
	return Name(c.Path)
}

func (c *Content) Property(name string) (any, bool) {
	v, ok := c.Properties[name]
	return v, ok
}

func (c *Content) HasProperty(name string) bool {
	_, ok := c.Properties[name]
	return ok
}

// String returns a string property, or "" if it is missing. Numbers and bools
// are formatted; multi-valued properties return their first value.
func (c *Content) String(name string) string {
	return StringValue(c.Properties[name])
}

// Strings returns a multi-valued property. A single string becomes a one
// element slice.
func (c *Content) Strings(name string) []string {
	return StringsValue(c.Properties[name])
}

// Bool returns true for a bool true or the string "true".
func (c *Content) Bool(name string) bool {
	switch v := c.Properties[name].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

func (c *Content) SetProperty(name string, value any) {
	if c.Properties == nil {
		c.Properties = make(map[string]any)
	}
	c.Properties[name] = NormalizeValue(value)
}

func (c *Content) RemoveProperty(name string) {
	delete(c.Properties, name)
}

func (c *Content) ResourceType() string {
	return c.String(PropResourceType)
}

// Clone returns a deep copy.
func (c *Content) Clone() *Content {
	return NewContent(c.Path, c.Properties)
}

// PropertyNames returns the property names in sorted order.
func (c *Content) PropertyNames() []string {
	names := make([]string, 0, len(c.Properties))
	for k := range c.Properties {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Matches reports whether every entry in props equals the node's property.
// A multi-valued node property matches when it contains the wanted value.
func (c *Content) Matches(props map[string]any) bool {
	for k, want := range props {
		have, ok := c.Properties[k]
		if !ok {
			return false
		}
		wantStr := StringValue(want)
		switch hv := have.(type) {
		case []string:
			found := false
			for _, s := range hv {
				if s == wantStr {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			if StringValue(hv) != wantStr {
				return false
			}
		}
	}
	return true
}

// NormalizeValue converts values decoded from JSON or passed by callers into
// the stored representation.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, StringValue(item))
		}
		return out
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
		return val
	default:
		return v
	}
}

// StringValue formats a property value as a string.
func StringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []string:
		if len(val) == 0 {
			return ""
		}
		return val[0]
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return ""
	}
}

// StringsValue returns v as a slice of strings.
func StringsValue(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []string:
		return val
	case []any:
		return NormalizeValue(val).([]string)
	default:
		return []string{StringValue(val)}
	}
}

// Name returns the last segment of path.
func Name(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Parent returns path without its last segment, or "" for a root.
func Parent(path string) string {
	if i := strings.LastIndex(path, "/"); i > 0 {
		return path[:i]
	}
	return ""
}

// IsChild reports whether path is a direct child of parent.
func IsChild(parent, path string) bool {
	prefix := strings.TrimSuffix(parent, "/") + "/"
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return !strings.Contains(path[len(prefix):], "/")
}
