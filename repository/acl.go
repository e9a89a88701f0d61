package repository

// Privilege is a bit set of content permissions.
type Privilege uint8

const (
	PrivRead Privilege = 1 << iota
	PrivWrite
	PrivDelete
	PrivReadACL
	PrivWriteACL

	PrivAll = PrivRead | PrivWrite | PrivDelete | PrivReadACL | PrivWriteACL
)

// AccessControlEntry grants or denies privileges to a principal.
type AccessControlEntry struct {
	Principal  string    `json:"principal"`
	Grant      bool      `json:"grant"`
	Privileges Privilege `json:"privileges"`
}

// Grant returns an entry granting privs to principal.
func Grant(principal string, privs Privilege) AccessControlEntry {
	return AccessControlEntry{Principal: principal, Grant: true, Privileges: privs}
}

// Deny returns an entry denying privs to principal.
func Deny(principal string, privs Privilege) AccessControlEntry {
	return AccessControlEntry{Principal: principal, Grant: false, Privileges: privs}
}

// MergeACL applies updates to existing the way SetACL is specified.
func MergeACL(existing, updates []AccessControlEntry) []AccessControlEntry {
	out := make([]AccessControlEntry, 0, len(existing)+len(updates))
	for _, e := range existing {
		replaced := false
		for _, u := range updates {
			if u.Principal == e.Principal && u.Grant == e.Grant {
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, e)
		}
	}
	return append(out, updates...)
}

// Allowed evaluates aces for a user. Entries naming the user win over entries
// for everyone; a deny wins over a grant at the same level. The admin is
// always allowed, and a path without entries is open.
func Allowed(aces []AccessControlEntry, userID string, priv Privilege) bool {
	if userID == AdminID || len(aces) == 0 {
		return true
	}
	principals := []string{userID}
	if userID != Anonymous {
		principals = append(principals, Everyone)
	}
	for _, p := range principals {
		granted, denied := false, false
		for _, ace := range aces {
			if ace.Principal != p || ace.Privileges&priv != priv {
				continue
			}
			if ace.Grant {
				granted = true
			} else {
				denied = true
			}
		}
		if denied {
			return false
		}
		if granted {
			return true
		}
	}
	return true
}
