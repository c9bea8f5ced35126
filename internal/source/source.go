// Package source defines the contract a legacy CMS adapter must satisfy and
// ships the Postgres adapter used for Drupal-shaped source databases. The
// engine never writes to the source store.
package source

import "context"

// Row is one flat source row keyed by column name. Values are carried as
// strings; the entry transformer owns all coercion.
type Row map[string]string

// FieldValue is one (row key, column, value) triple produced by the
// union synthesis strategy before pivoting back into wide rows.
type FieldValue struct {
	RowKey string
	Column string
	Value  string
}

// Locale is one language configured in the source system.
type Locale struct {
	Code    string
	Name    string
	Default bool
}

// Term is one taxonomy term row as the source reports it. ParentID is the
// flat parent pointer some sources expose directly on the term row; the
// dedicated hierarchy table, when present, takes precedence.
type Term struct {
	ID             string
	Vocabulary     string
	VocabularyName string
	Name           string
	Description    string
	ParentID       string
	Weight         int
}

// Asset is one managed file row from the source.
type Asset struct {
	ID       string
	URI      string
	Filename string
	MimeType string
	Size     int64
}

// Store is the read-only contract the migration engine consumes. The three
// field-reading methods back the interchangeable query synthesis
// strategies and must report the same underlying data.
type Store interface {
	// ContentTypes lists the source content type machine names.
	ContentTypes(ctx context.Context) ([]string, error)

	// CountRows reports how many base rows a content type has.
	CountRows(ctx context.Context, contentType string) (int, error)

	// BaseRows returns a page of base rows for a content type. Every row
	// carries at least "id", "title", "langcode", "created" and "status".
	BaseRows(ctx context.Context, contentType string, limit, offset int) ([]Row, error)

	// HasFieldTable reports whether a per-field table exists and is
	// accessible.
	HasFieldTable(ctx context.Context, table string) (bool, error)

	// FieldRows reads one field table for one content type, keyed by
	// entity id. Multi-value deltas collapse into one "|"-delimited value
	// per column.
	FieldRows(ctx context.Context, contentType, table string) (map[string]Row, error)

	// JoinRows reads several field tables in a single joined query. The
	// caller guarantees len(tables) stays under the engine's join-width
	// limit.
	JoinRows(ctx context.Context, contentType string, tables []string) (map[string]Row, error)

	// UnionRows reads several field tables as a unioned stream of
	// (row key, column, value) triples.
	UnionRows(ctx context.Context, contentType string, tables []string) ([]FieldValue, error)

	// Locales lists the languages configured in the source.
	Locales(ctx context.Context) ([]Locale, error)

	// Terms lists every taxonomy term.
	Terms(ctx context.Context) ([]Term, error)

	// TermHierarchy returns the term-to-parent map from the dedicated
	// hierarchy table. An empty map is valid; hierarchy is optional.
	TermHierarchy(ctx context.Context) (map[string]string, error)

	// Assets lists managed files. A nil id list means all assets.
	Assets(ctx context.Context, ids []string) ([]Asset, error)
}

// FieldTableName derives the per-field table name for a source field.
func FieldTableName(sourceField string) string {
	return "field_data_" + sourceField
}
