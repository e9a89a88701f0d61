// Package dynamiclist resolves mailing lists defined by demographic criteria.
//
// A list names a context, which bounds the demographic clauses and filters a
// sender may use, and a criteria expression. Criteria are translated into a
// query against the indexed personal demographic nodes of every user.
package dynamiclist

import (
	"fmt"
	"strings"

	"github.com/ets-berkeley-edu/myberkeley/repository"
)

// Resource types.
const (
	ListResourceType        = "myberkeley/dynamiclist"
	StoreResourceType       = "myberkeley/dynamicliststore"
	ContextResourceType     = "myberkeley/dynamicListContext"
	DemographicResourceType = "myberkeley/personalDemographic"
)

// Property names.
const (
	PropContext      = "myb-context"
	PropDemographics = "myb-demographics"
	PropClauses      = "myb-clauses"
	PropFilters      = "myb-filters"

	// PropListContext and PropListCriteria are stored on list nodes.
	PropListContext  = "context"
	PropListCriteria = "criteria"
)

const (
	// Wildcard ends an allowed value that matches by prefix.
	Wildcard = "*"
	// ContextRoot holds one node per list context.
	ContextRoot = "/var/myberkeley/dynamiclists"
	// DemographicStoreName is the node under a user home holding demographics.
	DemographicStoreName = "_myberkeley-demographic"
)

// ContextPath returns the repository path of the named context.
func ContextPath(name string) string {
	return ContextRoot + "/" + name
}

// DemographicPath returns the path of a user's demographic node.
func DemographicPath(userID string) string {
	return repository.HomePath(userID) + "/" + DemographicStoreName
}

// AccessControlError reports a criterion the context does not allow.
type AccessControlError struct {
	Msg string
}

func (e *AccessControlError) Error() string {
	return e.Msg
}

// CriteriaError reports a malformed criteria expression.
type CriteriaError struct {
	Msg string
}

func (e *CriteriaError) Error() string {
	return e.Msg
}

// Context bounds the criteria usable with a list.
type Context struct {
	Name    string
	Clauses []string
	Filters []string
}

// ContextFromContent reads a context node.
func ContextFromContent(c *repository.Content) (*Context, error) {
	name := c.String(PropContext)
	if name == "" {
		return nil, fmt.Errorf("context node %s has no %s property", c.Path, PropContext)
	}
	return &Context{
		Name:    name,
		Clauses: c.Strings(PropClauses),
		Filters: c.Strings(PropFilters),
	}, nil
}

// ClauseAllowed reports whether v may be used as a clause.
func (c *Context) ClauseAllowed(v string) bool {
	return allowed(c.Clauses, v)
}

// FilterAllowed reports whether v may be used as a filter.
func (c *Context) FilterAllowed(v string) bool {
	return allowed(c.Filters, v)
}

func allowed(values []string, v string) bool {
	for _, a := range values {
		if a == v {
			return true
		}
		if prefix, ok := strings.CutSuffix(a, Wildcard); ok && strings.HasPrefix(v, prefix) {
			return true
		}
	}
	return false
}
