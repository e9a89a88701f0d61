// Package search describes the Solr index the portal content is mirrored into
// and routes repository changes to the handlers that build index documents.
package search

import (
	"context"
	"errors"
	"strings"

	"github.com/ets-berkeley-edu/myberkeley/repository"
)

// Default document fields.
const (
	FieldID           = "id"
	FieldPath         = "path"
	FieldResourceType = "resourceType"
)

// ErrNoIndex is returned by components that need an index when none is
// configured.
var ErrNoIndex = errors.New("search index is not configured")

// MaxRows is the page size used for "fetch everything" queries.
const MaxRows = 20000

// Query is a Lucene query with paging.
type Query struct {
	Q     string
	Rows  int
	Start int
}

// Document is one indexed record. Values are strings, []string or time.Time.
type Document map[string]any

// First returns the first value of field as a string.
func (d Document) First(field string) string {
	return repository.StringValue(repository.NormalizeValue(d[field]))
}

// Result is a page of matching documents.
type Result struct {
	NumFound int
	Docs     []Document
}

// Searcher runs queries against the index.
type Searcher interface {
	Search(ctx context.Context, q Query) (*Result, error)
}

// Writer updates the index.
type Writer interface {
	Add(ctx context.Context, docs ...Document) error
	DeleteByQuery(ctx context.Context, queries ...string) error
}

// Index is a Searcher that can also be written to.
type Index interface {
	Searcher
	Writer
}

// IndexingHandler builds documents for one resource type.
type IndexingHandler interface {
	// Documents returns the documents for the changed node. The dispatcher
	// fills in the default fields the handler leaves empty.
	Documents(ctx context.Context, content *repository.Content) ([]Document, error)
	// DeleteQueries returns the queries removing a node from the index.
	DeleteQueries(path string) []string
}

const specialChars = `\+-!():^[]"{}~*?|&;/`

// EscapeQuery escapes the characters Lucene treats as syntax, along with
// whitespace.
func EscapeQuery(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(specialChars, r) || r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DeleteByID is the delete query most handlers use.
func DeleteByID(path string) []string {
	return []string{FieldID + ":" + EscapeQuery(path)}
}
