package xml

import "github.com/beevik/etree"

// WebDAV privilege names
const (
	PrivilegeAll             = "all"
	PrivilegeRead            = "read"
	PrivilegeReadACL         = "read-acl"
	PrivilegeWriteContent    = "write-content"
	PrivilegeWriteProperties = "write-properties"
)

// Ace is one access control entry for an href principal
type Ace struct {
	PrincipalHref string
	Grant         bool
	Privileges    []string
}

// ACLRequest represents the body of a WebDAV ACL request
type ACLRequest struct {
	Aces []Ace
}

// ToXML converts an ACLRequest to an XML document
func (r *ACLRequest) ToXML() *etree.Document {
	doc, root := newDocument(prefixDAV, "acl")
	for _, ace := range r.Aces {
		elem := root.CreateElement(prefixDAV + ":ace")
		principal := elem.CreateElement(prefixDAV + ":principal")
		principal.CreateElement(prefixDAV + ":href").SetText(ace.PrincipalHref)
		kind := "deny"
		if ace.Grant {
			kind = "grant"
		}
		privs := elem.CreateElement(prefixDAV + ":" + kind)
		for _, p := range ace.Privileges {
			privs.CreateElement(prefixDAV + ":privilege").CreateElement(prefixDAV + ":" + p)
		}
	}
	return doc
}
