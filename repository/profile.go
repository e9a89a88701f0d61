package repository

import (
	"context"
	"errors"
	"strings"
)

// ElementPath returns the path of a profile element, e.g.
// ElementPath("bob", "email", "email") = "a:bob/public/authprofile/email/elements/email".
func ElementPath(userID, section, key string) string {
	return ProfilePath(userID) + "/" + section + "/elements/" + key
}

// ProfileElement returns the "value" property of a profile element, or "" when
// the element does not exist.
func ProfileElement(ctx context.Context, cm ContentManager, userID, section, key string) (string, error) {
	c, err := cm.Get(ctx, ElementPath(userID, section, key))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return c.String("value"), nil
}

// ProfileMap returns the profile subtree of a user as nested maps keyed by
// node name, with each node's properties merged into its map.
func ProfileMap(ctx context.Context, cm ContentManager, userID string) (map[string]any, error) {
	root := ProfilePath(userID)
	tree := map[string]any{}
	if c, err := cm.Get(ctx, root); err == nil {
		for k, v := range c.Properties {
			tree[k] = v
		}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	err := cm.Walk(ctx, root+"/", func(c *Content) error {
		node := tree
		for _, seg := range strings.Split(strings.TrimPrefix(c.Path, root+"/"), "/") {
			child, ok := node[seg].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[seg] = child
			}
			node = child
		}
		for k, v := range c.Properties {
			if _, exists := node[k]; !exists {
				node[k] = v
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tree, nil
}
