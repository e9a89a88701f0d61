package repository

import (
	"fmt"
	"strings"
)

const (
	// AdminID is the id of the built-in administrator.
	AdminID = "admin"
	// Anonymous is the principal of unauthenticated requests.
	Anonymous = "anonymous"
	// Everyone is the principal every authenticated user belongs to.
	Everyone = "everyone"

	// UserHomeResourceType marks a user's home node.
	UserHomeResourceType = "sakai/user-home"

	homePrefix     = "a:"
	profileSubPath = "/public/authprofile"
)

// HomePath returns the repository path of a user's home.
func HomePath(userID string) string {
	return homePrefix + userID
}

// ProfilePath returns the repository path of a user's profile.
func ProfilePath(userID string) string {
	return HomePath(userID) + profileSubPath
}

// UserIDFromPath extracts the user id from a path inside a user home.
func UserIDFromPath(path string) (string, error) {
	if !strings.HasPrefix(path, homePrefix) {
		return "", fmt.Errorf("path %q is not in a user home: %w", path, ErrInvalidInput)
	}
	rest := path[len(homePrefix):]
	if i := strings.Index(rest, "/"); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return "", fmt.Errorf("path %q has no user id: %w", path, ErrInvalidInput)
	}
	return rest, nil
}

// FromURLPath maps a request path to a repository path. "/~bob/x" becomes
// "a:bob/x"; other paths are returned unchanged.
func FromURLPath(urlPath string) string {
	if strings.HasPrefix(urlPath, "/~") {
		return homePrefix + urlPath[2:]
	}
	return urlPath
}

// ToURLPath is the inverse of FromURLPath.
func ToURLPath(path string) string {
	if strings.HasPrefix(path, homePrefix) {
		return "/~" + path[len(homePrefix):]
	}
	return path
}
