package notice

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/beevik/etree"
	"gopkg.in/yaml.v3"

	"github.com/ets-berkeley-edu/myberkeley/repository"
)

const (
	// ProfileRoot selects every user profile.
	ProfileRoot = "/jcr:root/_user//*[@sling:resourceType='sakai/user-profile']"
	// ParticipantRoot narrows ProfileRoot to participants and leaves the
	// query positioned on the myberkeley elements.
	ParticipantRoot = ProfileRoot + "/myberkeley/elements/participant[@value='true']/.."

	// ProfileResourceType marks a user profile.
	ProfileResourceType = "sakai/user-profile"
)

// ProfileQueryBuilder builds the XPath that finds the profiles a legacy
// dynamic list selects, e.g.
//
//	/jcr:root/_user//*[@sling:resourceType='sakai/user-profile']/myberkeley/elements/participant[@value='true']/..
//	  /context[@value='g-ced-students']/../standing[@value='undergrad']/../major[@value='ARCHITECTURE' or @value='DESIGN']
//
// Call AppendRoot, AppendAnchor and then AppendNested.
type ProfileQueryBuilder struct {
	sb strings.Builder
}

func (b *ProfileQueryBuilder) AppendRoot(root string) *ProfileQueryBuilder {
	b.sb.WriteString(root)
	return b
}

// AppendAnchor adds the parameter shared by every query, e.g. the context.
func (b *ProfileQueryBuilder) AppendAnchor(name string, values []string) *ProfileQueryBuilder {
	b.sb.WriteString("/" + name)
	b.sb.WriteString(valuePredicate(values))
	b.sb.WriteString("/..")
	return b
}

// AppendNested adds a nested parameter. keys is e.g. [standing undergrad major]
// and values the majors.
func (b *ProfileQueryBuilder) AppendNested(keys [3]string, values []string) *ProfileQueryBuilder {
	fmt.Fprintf(&b.sb, "/%s[@value='%s']/../%s", keys[0], keys[1], keys[2])
	b.sb.WriteString(valuePredicate(values))
	return b
}

func (b *ProfileQueryBuilder) String() string {
	return b.sb.String()
}

func valuePredicate(values []string) string {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	parts := make([]string, len(sorted))
	for i, v := range sorted {
		parts[i] = "@value='" + v + "'"
	}
	return "[" + strings.Join(parts, " or ") + "]"
}

// QueryParams is a legacy dynamic list query split into the anchor shared by
// every profile query and the nested parameter that needs one query per
// selector, e.g. {standing: [{undergrad: {major: [...]}}, {grad: {major: [...]}}]}.
type QueryParams struct {
	Anchor       string
	AnchorValues []string
	Nested       string
	// selectors maps e.g. "undergrad" to {"major": [...]}.
	selectors map[string]map[string][]string
}

// ExtractQueryParams reads the criteria JSON of a legacy dynamic list.
func ExtractQueryParams(criteria, anchor, nested string) (*QueryParams, error) {
	var raw map[string]any
	if err := yaml.Unmarshal([]byte(criteria), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse dynamic list query: %w", err)
	}
	p := &QueryParams{Anchor: anchor, Nested: nested, selectors: map[string]map[string][]string{}}

	anchorValues, ok := raw[anchor]
	if !ok {
		return nil, fmt.Errorf("dynamic list query has no %s", anchor)
	}
	p.AnchorValues = stringList(anchorValues)
	if len(p.AnchorValues) == 0 {
		return nil, fmt.Errorf("dynamic list query has an empty %s", anchor)
	}

	entries, _ := raw[nested].([]any)
	for _, entry := range entries {
		selectorMap, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("invalid %s entry %v", nested, entry)
		}
		for selector, sub := range selectorMap {
			subMap, ok := sub.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("invalid %s.%s entry %v", nested, selector, sub)
			}
			values := p.selectors[selector]
			if values == nil {
				values = map[string][]string{}
				p.selectors[selector] = values
			}
			for key, v := range subMap {
				values[key] = append(values[key], stringList(v)...)
			}
		}
	}
	return p, nil
}

func stringList(v any) []string {
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case nil:
		return nil
	default:
		return []string{fmt.Sprint(val)}
	}
}

// MultipleQueryValues returns the selectors that each need their own query,
// e.g. [grad undergrad].
func (p *QueryParams) MultipleQueryValues() []string {
	out := make([]string, 0, len(p.selectors))
	for s := range p.selectors {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// QueryKeyParams returns the keys of selector's query, e.g.
// [standing undergrad major].
func (p *QueryParams) QueryKeyParams(selector string) [3]string {
	keys := [3]string{p.Nested, selector, ""}
	for key := range p.selectors[selector] {
		if keys[2] == "" || key < keys[2] {
			keys[2] = key
		}
	}
	return keys
}

// QueryValues returns the values of selector's query, e.g. the majors.
func (p *QueryParams) QueryValues(selector string) []string {
	keys := p.QueryKeyParams(selector)
	return p.selectors[selector][keys[2]]
}

// NestedData returns the nested parameter in its original shape.
func (p *QueryParams) NestedData() map[string][]map[string]map[string][]string {
	list := make([]map[string]map[string][]string, 0, len(p.selectors))
	for _, s := range p.MultipleQueryValues() {
		list = append(list, map[string]map[string][]string{s: p.selectors[s]})
	}
	return map[string][]map[string]map[string][]string{p.Nested: list}
}

// ProfileQueries returns one query per selector, or a single anchor-only
// query when there is no nested parameter.
func ProfileQueries(root string, p *QueryParams) []string {
	selectors := p.MultipleQueryValues()
	if len(selectors) == 0 {
		var b ProfileQueryBuilder
		return []string{b.AppendRoot(root).AppendAnchor(p.Anchor, p.AnchorValues).String()}
	}
	out := make([]string, 0, len(selectors))
	for _, s := range selectors {
		var b ProfileQueryBuilder
		b.AppendRoot(root).AppendAnchor(p.Anchor, p.AnchorValues).AppendNested(p.QueryKeyParams(s), p.QueryValues(s))
		out = append(out, b.String())
	}
	return out
}

// ProfileQueryEvaluator runs profile queries against the profiles stored in
// the repository. Each profile is loaded as an XML tree whose elements are
// profile nodes and whose attributes are node properties.
type ProfileQueryEvaluator struct {
	repo repository.ContentManager
}

func NewProfileQueryEvaluator(repo repository.ContentManager) *ProfileQueryEvaluator {
	return &ProfileQueryEvaluator{repo: repo}
}

// UserIDs returns the sorted ids of users whose profile matches any query.
func (e *ProfileQueryEvaluator) UserIDs(ctx context.Context, queries []string) ([]string, error) {
	var paths []etree.Path
	for _, q := range queries {
		compiled, err := compileProfileQuery(q)
		if err != nil {
			return nil, err
		}
		paths = append(paths, compiled...)
	}

	homes, err := e.repo.Find(ctx, map[string]any{repository.PropResourceType: repository.UserHomeResourceType}, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	var out []string
	for _, home := range homes {
		userID, err := repository.UserIDFromPath(home.Path)
		if err != nil {
			continue
		}
		profile, err := repository.ProfileMap(ctx, e.repo, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to read profile of %s: %w", userID, err)
		}
		doc := profileElement(profile)
		for _, p := range paths {
			if len(doc.FindElementsPath(p)) > 0 {
				out = append(out, userID)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// compileProfileQuery turns a query rooted at ProfileRoot into etree paths
// relative to a profile, one for each combination of "or" alternatives.
func compileProfileQuery(query string) ([]etree.Path, error) {
	rel, ok := strings.CutPrefix(query, ProfileRoot)
	if !ok {
		return nil, fmt.Errorf("query %q does not start at the profile root", query)
	}
	alternatives, err := expandOr(rel)
	if err != nil {
		return nil, fmt.Errorf("invalid query %q: %w", query, err)
	}
	out := make([]etree.Path, 0, len(alternatives))
	for _, alt := range alternatives {
		p, err := etree.CompilePath("." + alt)
		if err != nil {
			return nil, fmt.Errorf("invalid query %q: %w", query, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// expandOr rewrites every [a or b] predicate into separate paths.
func expandOr(path string) ([]string, error) {
	out := []string{""}
	for path != "" {
		open := strings.IndexByte(path, '[')
		if open < 0 {
			for i := range out {
				out[i] += path
			}
			break
		}
		end := closingBracket(path, open)
		if end < 0 {
			return nil, fmt.Errorf("unbalanced predicate in %q", path)
		}
		prefix := path[:open]
		alternatives := splitOr(path[open+1 : end])
		next := make([]string, 0, len(out)*len(alternatives))
		for _, o := range out {
			for _, a := range alternatives {
				next = append(next, o+prefix+"["+a+"]")
			}
		}
		out = next
		path = path[end+1:]
	}
	return out, nil
}

func closingBracket(s string, open int) int {
	quote := byte(0)
	for i := open + 1; i < len(s); i++ {
		switch c := s[i]; {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ']':
			return i
		}
	}
	return -1
}

func splitOr(pred string) []string {
	var out []string
	quote := byte(0)
	start := 0
	for i := 0; i < len(pred); i++ {
		c := pred[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case strings.HasPrefix(pred[i:], " or "):
			out = append(out, strings.TrimSpace(pred[start:i]))
			i += len(" or ") - 1
			start = i + 1
		}
	}
	return append(out, strings.TrimSpace(pred[start:]))
}

func profileElement(tree map[string]any) *etree.Element {
	root := etree.NewElement("profile")
	root.CreateAttr("resourceType", ProfileResourceType)
	addNodes(root, tree)
	return root
}

func addNodes(e *etree.Element, node map[string]any) {
	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if child, ok := node[k].(map[string]any); ok {
			addNodes(e.CreateElement(k), child)
			continue
		}
		e.CreateAttr(k, repository.StringValue(node[k]))
	}
}
