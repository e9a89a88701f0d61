package xml

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// MultistatusResponse represents a multistatus response
type MultistatusResponse struct {
	Responses []Response
}

// Response represents a single response within a multistatus
type Response struct {
	Href      string
	PropStats []PropStat
	Status    string
}

// PropStat represents property status in a response
type PropStat struct {
	Props  map[string]string // local name -> text content
	Status string
}

// Parse parses a multistatus response from an XML document
func (m *MultistatusResponse) Parse(doc *etree.Document) error {
	if doc == nil || doc.Root() == nil {
		return fmt.Errorf("empty document")
	}

	root := doc.Root()
	if root.Tag != "multistatus" {
		return fmt.Errorf("invalid root tag: %s", root.Tag)
	}

	m.Responses = nil
	for _, respElem := range root.SelectElements("response") {
		resp := Response{}
		if hrefElem := respElem.SelectElement("href"); hrefElem != nil {
			resp.Href = strings.TrimSpace(hrefElem.Text())
		}
		if statusElem := respElem.SelectElement("status"); statusElem != nil {
			resp.Status = strings.TrimSpace(statusElem.Text())
		}
		for _, propstatElem := range respElem.SelectElements("propstat") {
			propstat := PropStat{Props: map[string]string{}}
			if propElem := propstatElem.SelectElement("prop"); propElem != nil {
				for _, prop := range propElem.ChildElements() {
					propstat.Props[prop.Tag] = prop.Text()
				}
			}
			if statusElem := propstatElem.SelectElement("status"); statusElem != nil {
				propstat.Status = strings.TrimSpace(statusElem.Text())
			}
			resp.PropStats = append(resp.PropStats, propstat)
		}
		m.Responses = append(m.Responses, resp)
	}
	return nil
}

// ParseMultistatus reads a multistatus body.
func ParseMultistatus(body []byte) (*MultistatusResponse, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("failed to parse multistatus: %w", err)
	}
	var m MultistatusResponse
	if err := m.Parse(doc); err != nil {
		return nil, err
	}
	return &m, nil
}

// OKProps returns the properties of the propstat whose status is 200, or nil.
func (r *Response) OKProps() map[string]string {
	for _, ps := range r.PropStats {
		if StatusCode(ps.Status) == 200 {
			return ps.Props
		}
	}
	return nil
}

// StatusCode extracts the code from a status line such as "HTTP/1.1 200 OK".
// It returns 0 when the line cannot be parsed.
func StatusCode(status string) int {
	fields := strings.Fields(status)
	if len(fields) < 2 {
		return 0
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0
	}
	return code
}
