package caldav

import (
	"context"
	"io"
	"log/slog"

	"github.com/emersion/go-ical"

	"github.com/ets-berkeley-edu/myberkeley/repository"
	"github.com/ets-berkeley-edu/myberkeley/search"
)

// Indexed fields of calendar components.
const (
	FieldContent = "content"
	FieldUID     = "uid"
	FieldDTStart = "dtstart_tdt"
	FieldDue     = "due_tdt"
)

// IndexingHandler indexes embedded calendar components.
//
// Sample queries:
//
//	resourceType:myberkeley/calcomponent AND content:"BEGIN:VTODO" AND due_tdt:[* TO NOW]
//	resourceType:myberkeley/calcomponent AND content:"BEGIN:VEVENT" AND dtstart_tdt:[NOW TO *]
type IndexingHandler struct {
	logger *slog.Logger
}

var _ search.IndexingHandler = (*IndexingHandler)(nil)

func NewIndexingHandler(logger *slog.Logger) *IndexingHandler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &IndexingHandler{logger: logger}
}

func (h *IndexingHandler) Documents(_ context.Context, content *repository.Content) ([]search.Document, error) {
	doc := search.Document{search.FieldID: content.Path}
	if w := WrapperFromContent(content, h.logger); w != nil {
		ics, err := w.EncodeComponent()
		if err != nil {
			return nil, err
		}
		doc[FieldContent] = ics
		if uid := w.UID(); uid != "" {
			doc[FieldUID] = uid
		}
		if t, ok := w.Date(ical.PropDateTimeStart); ok {
			doc[FieldDTStart] = t
		}
		if t, ok := w.Date(ical.PropDue); ok {
			doc[FieldDue] = t
		}
	}
	h.logger.Debug("built calendar document", "path", content.Path)
	return []search.Document{doc}, nil
}

func (h *IndexingHandler) DeleteQueries(path string) []string {
	return search.DeleteByID(path)
}
