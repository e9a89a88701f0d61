package xml

import "github.com/beevik/etree"

// Namespace definitions for CalDAV and WebDAV
const (
	// DAV is the WebDAV namespace
	DAV = "DAV:"
	// CalDAV is the CalDAV namespace
	CalDAV = "urn:ietf:params:xml:ns:caldav"
)

// Prefixes used when writing request bodies
const (
	prefixDAV    = "D"
	prefixCalDAV = "C"
)

// TimeFormat is the UTC layout CalDAV uses in time-range attributes.
const TimeFormat = "20060102T150405Z"

// newDocument creates a document with an XML declaration and a root element
// in the given prefix, declaring both namespaces on the root.
func newDocument(prefix, tag string) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(prefix + ":" + tag)
	root.CreateAttr("xmlns:"+prefixDAV, DAV)
	root.CreateAttr("xmlns:"+prefixCalDAV, CalDAV)
	return doc, root
}

// Bytes serializes doc.
func Bytes(doc *etree.Document) ([]byte, error) {
	doc.Indent(2)
	return doc.WriteToBytes()
}
