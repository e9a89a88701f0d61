package dynamiclist

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// connectors maps criteria keys to query operators.
var connectors = map[string]string{
	"AND": "AND",
	"OR":  "OR",
	"ALL": "AND",
	"ANY": "OR",
}

const filterKey = "FILTER"

// QueryForCriteria translates criteria into an index query, checking every
// clause and filter against c.
//
// criteria is either a single demographic value or an object such as
//
//	{"OR": ["/colleges/ENV DSGN/*", {"AND": [...], "FILTER": "..."}]}
//
// Keys may be unquoted.
func QueryForCriteria(c *Context, criteria string) (string, error) {
	var b strings.Builder
	b.WriteString("resourceType:" + DemographicResourceType + " AND ")

	node, ok := parseCriteria(criteria)
	if !ok {
		if err := appendValue(c, criteria, &b, false); err != nil {
			return "", err
		}
		return b.String(), nil
	}
	if err := appendClause(c, node, &b, "", false); err != nil {
		return "", err
	}
	return b.String(), nil
}

// parseCriteria returns the structured form of criteria. ok is false for
// input that is not a mapping or sequence, which is then used as a value.
func parseCriteria(criteria string) (*yaml.Node, bool) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(criteria), &doc); err != nil {
		return nil, false
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, false
	}
	node := doc.Content[0]
	if node.Kind != yaml.MappingNode && node.Kind != yaml.SequenceNode {
		return nil, false
	}
	return node, true
}

func appendValue(c *Context, v string, b *strings.Builder, isFilter bool) error {
	if (!isFilter && !c.ClauseAllowed(v)) || (isFilter && !c.FilterAllowed(v)) {
		return &AccessControlError{Msg: fmt.Sprintf("allowed criteria for %s do not include %s", c.Name, v)}
	}
	b.WriteString(PropDemographics + `:"` + v + `"`)
	return nil
}

func appendClause(c *Context, n *yaml.Node, b *strings.Builder, connector string, isFilter bool) error {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag != "!!str" {
			return &CriteriaError{Msg: fmt.Sprintf("could not parse dynamic list criteria: %s", n.Value)}
		}
		return appendValue(c, n.Value, b, isFilter)

	case yaml.MappingNode:
		pairs := len(n.Content) / 2
		if pairs < 1 || pairs > 2 {
			return &CriteriaError{Msg: "each clause must have only one connector and one filter"}
		}
		var conn string
		var inner, filter *yaml.Node
		for i := 0; i < len(n.Content); i += 2 {
			key, val := n.Content[i].Value, n.Content[i+1]
			if key == filterKey {
				if isFilter {
					return &CriteriaError{Msg: "filter clauses do not have filters"}
				}
				filter = val
				continue
			}
			if conn != "" {
				return &CriteriaError{Msg: "each clause must have only one connector and one filter"}
			}
			conn, inner = key, val
		}
		if filter != nil && conn == "" {
			return &AccessControlError{Msg: "standalone filter specified"}
		}
		op, ok := connectors[conn]
		if !ok {
			return &CriteriaError{Msg: fmt.Sprintf("unknown query connector: %s", conn)}
		}
		if filter != nil {
			b.WriteString("(")
		}
		if err := appendClause(c, inner, b, op, isFilter); err != nil {
			return err
		}
		if filter != nil {
			b.WriteString(" AND ")
			if err := appendClause(c, filter, b, "", true); err != nil {
				return err
			}
			b.WriteString(")")
		}
		return nil

	case yaml.SequenceNode:
		if connector == "" {
			return &CriteriaError{Msg: "no connector specified for array"}
		}
		b.WriteString("(")
		for i, item := range n.Content {
			if i > 0 {
				b.WriteString(" " + connector + " ")
			}
			if err := appendClause(c, item, b, connector, isFilter); err != nil {
				return err
			}
		}
		b.WriteString(")")
		return nil
	}
	return &CriteriaError{Msg: "could not parse dynamic list criteria"}
}
