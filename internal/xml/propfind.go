package xml

import "github.com/beevik/etree"

// PropfindRequest represents a PROPFIND request body for DAV: properties
type PropfindRequest struct {
	Props []string
}

// ToXML converts a PropfindRequest to an XML document
func (r *PropfindRequest) ToXML() *etree.Document {
	doc, root := newDocument(prefixDAV, "propfind")
	if len(r.Props) == 0 {
		root.CreateElement(prefixDAV + ":allprop")
		return doc
	}
	prop := root.CreateElement(prefixDAV + ":prop")
	for _, name := range r.Props {
		prop.CreateElement(prefixDAV + ":" + name)
	}
	return doc
}
