package dynamiclist

import (
	"context"

	"github.com/ets-berkeley-edu/myberkeley/repository"
	"github.com/ets-berkeley-edu/myberkeley/search"
)

// IndexingHandler indexes context and demographic nodes.
//
//	resourceType:myberkeley/personalDemographic AND myb-demographics:"/colleges/CED/standings/grad"
type IndexingHandler struct{}

var _ search.IndexingHandler = IndexingHandler{}

func (IndexingHandler) Documents(_ context.Context, content *repository.Content) ([]search.Document, error) {
	doc := search.Document{search.FieldID: content.Path}
	if v := content.String(PropContext); v != "" {
		doc[PropContext] = v
	}
	if v := content.Strings(PropDemographics); len(v) > 0 {
		doc[PropDemographics] = v
	}
	return []search.Document{doc}, nil
}

func (IndexingHandler) DeleteQueries(path string) []string {
	return search.DeleteByID(path)
}

// RegisterIndexing adds the handler for both indexed resource types.
func RegisterIndexing(d *search.Dispatcher) {
	d.AddHandler(ContextResourceType, IndexingHandler{})
	d.AddHandler(DemographicResourceType, IndexingHandler{})
}
