package source

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rpattn/stackshift/internal/db"
)

// bookkeeping columns of per-field tables that never carry content values.
var fieldTableMeta = map[string]struct{}{
	"entity_type": {},
	"entity_id":   {},
	"revision_id": {},
	"bundle":      {},
	"delta":       {},
	"language":    {},
	"langcode":    {},
	"deleted":     {},
}

// PostgresStore reads a Drupal-shaped schema (node, field_data_*,
// taxonomy_term_data, taxonomy_term_hierarchy, file_managed, languages)
// from a Postgres source database.
type PostgresStore struct {
	conn         *db.Connection
	queryTimeout time.Duration

	// column layout per field table, resolved once per run.
	columnCache map[string][]string
}

// NewPostgresStore wraps a source connection. queryTimeout bounds every
// individual query; zero disables the bound.
func NewPostgresStore(conn *db.Connection, queryTimeout time.Duration) *PostgresStore {
	return &PostgresStore{
		conn:         conn,
		queryTimeout: queryTimeout,
		columnCache:  make(map[string][]string),
	}
}

func (s *PostgresStore) queryCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

// ContentTypes lists the distinct content type machine names.
func (s *PostgresStore) ContentTypes(ctx context.Context) ([]string, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.conn.Pool.Query(ctx, `SELECT DISTINCT type FROM node ORDER BY type`)
	if err != nil {
		return nil, fmt.Errorf("list content types: %w", err)
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan content type: %w", err)
		}
		types = append(types, name)
	}
	return types, rows.Err()
}

// CountRows reports how many base rows a content type has.
func (s *PostgresStore) CountRows(ctx context.Context, contentType string) (int, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var count int
	err := s.conn.Pool.QueryRow(ctx, `SELECT count(*) FROM node WHERE type = $1`, contentType).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count rows for %s: %w", contentType, err)
	}
	return count, nil
}

// BaseRows returns one page of base rows for a content type.
func (s *PostgresStore) BaseRows(ctx context.Context, contentType string, limit, offset int) ([]Row, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.conn.Pool.Query(ctx, `
		SELECT nid::text, coalesce(title, ''), coalesce(language, ''), created::text, status::text
		FROM node
		WHERE type = $1
		ORDER BY nid
		LIMIT $2 OFFSET $3`, contentType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("base rows for %s: %w", contentType, err)
	}
	defer rows.Close()

	var result []Row
	for rows.Next() {
		var id, title, langcode, created, status string
		if err := rows.Scan(&id, &title, &langcode, &created, &status); err != nil {
			return nil, fmt.Errorf("scan base row: %w", err)
		}
		result = append(result, Row{
			"id":       id,
			"title":    title,
			"langcode": langcode,
			"created":  created,
			"status":   status,
		})
	}
	return result, rows.Err()
}

// HasFieldTable reports whether a per-field table exists.
func (s *PostgresStore) HasFieldTable(ctx context.Context, table string) (bool, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var exists bool
	err := s.conn.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)`, table).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check field table %s: %w", table, err)
	}
	return exists, nil
}

func (s *PostgresStore) valueColumns(ctx context.Context, table string) ([]string, error) {
	if cached, ok := s.columnCache[table]; ok {
		return cached, nil
	}

	rows, err := s.conn.Pool.Query(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		if _, meta := fieldTableMeta[name]; meta {
			continue
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.columnCache[table] = columns
	return columns, nil
}

// FieldRows reads one field table for one content type, keyed by entity id.
// Multi-value deltas collapse into one "|"-delimited value per column.
func (s *PostgresStore) FieldRows(ctx context.Context, contentType, table string) (map[string]Row, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	columns, err := s.valueColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return map[string]Row{}, nil
	}

	selects := make([]string, 0, len(columns)+1)
	selects = append(selects, "entity_id::text")
	for _, column := range columns {
		selects = append(selects, fmt.Sprintf("coalesce(%s::text, '')", pgx.Identifier{column}.Sanitize()))
	}

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE bundle = $1 AND deleted = 0
		ORDER BY entity_id, delta`,
		strings.Join(selects, ", "), pgx.Identifier{table}.Sanitize())

	rows, err := s.conn.Pool.Query(ctx, query, contentType)
	if err != nil {
		return nil, fmt.Errorf("field rows from %s: %w", table, err)
	}
	defer rows.Close()

	result := make(map[string]Row)
	values := make([]string, len(columns)+1)
	scanTargets := make([]any, len(values))
	for i := range values {
		scanTargets[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan field row from %s: %w", table, err)
		}
		entityID := values[0]
		row, ok := result[entityID]
		if !ok {
			row = Row{}
			result[entityID] = row
		}
		for i, column := range columns {
			MergeValue(row, column, values[i+1])
		}
	}
	return result, rows.Err()
}

// JoinRows reads several field tables in one joined query. Deltas multiply
// the joined rows, so values are deduplicated per column while merging.
func (s *PostgresStore) JoinRows(ctx context.Context, contentType string, tables []string) (map[string]Row, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	type tableColumns struct {
		alias   string
		columns []string
	}

	selects := []string{"n.nid::text"}
	joins := make([]string, 0, len(tables))
	layout := make([]tableColumns, 0, len(tables))

	for i, table := range tables {
		columns, err := s.valueColumns(ctx, table)
		if err != nil {
			return nil, err
		}
		alias := fmt.Sprintf("t%d", i)
		for _, column := range columns {
			selects = append(selects, fmt.Sprintf("coalesce(%s.%s::text, '')", alias, pgx.Identifier{column}.Sanitize()))
		}
		joins = append(joins, fmt.Sprintf(
			"LEFT JOIN %s %s ON %s.entity_id = n.nid AND %s.bundle = n.type AND %s.deleted = 0",
			pgx.Identifier{table}.Sanitize(), alias, alias, alias, alias))
		layout = append(layout, tableColumns{alias: alias, columns: columns})
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM node n
		%s
		WHERE n.type = $1
		ORDER BY n.nid`,
		strings.Join(selects, ", "), strings.Join(joins, "\n\t\t"))

	rows, err := s.conn.Pool.Query(ctx, query, contentType)
	if err != nil {
		return nil, fmt.Errorf("join rows for %s: %w", contentType, err)
	}
	defer rows.Close()

	values := make([]string, len(selects))
	scanTargets := make([]any, len(values))
	for i := range values {
		scanTargets[i] = &values[i]
	}

	result := make(map[string]Row)
	for rows.Next() {
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan joined row: %w", err)
		}
		entityID := values[0]
		row, ok := result[entityID]
		if !ok {
			row = Row{}
			result[entityID] = row
		}
		idx := 1
		for _, tc := range layout {
			for _, column := range tc.columns {
				MergeValue(row, column, values[idx])
				idx++
			}
		}
	}
	return result, rows.Err()
}

// UnionRows reads several field tables as one unioned stream of
// (row key, column, value) triples.
func (s *PostgresStore) UnionRows(ctx context.Context, contentType string, tables []string) ([]FieldValue, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var parts []string
	for _, table := range tables {
		columns, err := s.valueColumns(ctx, table)
		if err != nil {
			return nil, err
		}
		for _, column := range columns {
			parts = append(parts, fmt.Sprintf(
				`SELECT entity_id::text AS row_key, '%s' AS col, coalesce(%s::text, '') AS value, delta FROM %s WHERE bundle = $1 AND deleted = 0`,
				column, pgx.Identifier{column}.Sanitize(), pgx.Identifier{table}.Sanitize()))
		}
	}
	if len(parts) == 0 {
		return nil, nil
	}

	query := strings.Join(parts, "\nUNION ALL\n") + "\nORDER BY row_key, col, delta"

	rows, err := s.conn.Pool.Query(ctx, query, contentType)
	if err != nil {
		return nil, fmt.Errorf("union rows for %s: %w", contentType, err)
	}
	defer rows.Close()

	var result []FieldValue
	for rows.Next() {
		var fv FieldValue
		var delta int
		if err := rows.Scan(&fv.RowKey, &fv.Column, &fv.Value, &delta); err != nil {
			return nil, fmt.Errorf("scan union row: %w", err)
		}
		result = append(result, fv)
	}
	return result, rows.Err()
}

// Locales lists the languages configured in the source.
func (s *PostgresStore) Locales(ctx context.Context) ([]Locale, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.conn.Pool.Query(ctx, `SELECT language, coalesce(name, '') FROM languages ORDER BY weight, language`)
	if err != nil {
		return nil, fmt.Errorf("list locales: %w", err)
	}
	defer rows.Close()

	var locales []Locale
	for rows.Next() {
		var locale Locale
		if err := rows.Scan(&locale.Code, &locale.Name); err != nil {
			return nil, fmt.Errorf("scan locale: %w", err)
		}
		locales = append(locales, locale)
	}
	return locales, rows.Err()
}

// Terms lists every taxonomy term with its vocabulary.
func (s *PostgresStore) Terms(ctx context.Context) ([]Term, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.conn.Pool.Query(ctx, `
		SELECT t.tid::text, v.machine_name, v.name, t.name, coalesce(t.description, ''), t.weight
		FROM taxonomy_term_data t
		JOIN taxonomy_vocabulary v ON v.vid = t.vid
		ORDER BY v.machine_name, t.weight, t.tid`)
	if err != nil {
		return nil, fmt.Errorf("list taxonomy terms: %w", err)
	}
	defer rows.Close()

	var terms []Term
	for rows.Next() {
		var term Term
		if err := rows.Scan(&term.ID, &term.Vocabulary, &term.VocabularyName, &term.Name, &term.Description, &term.Weight); err != nil {
			return nil, fmt.Errorf("scan taxonomy term: %w", err)
		}
		terms = append(terms, term)
	}
	return terms, rows.Err()
}

// TermHierarchy returns the term-to-parent map from the hierarchy table.
func (s *PostgresStore) TermHierarchy(ctx context.Context) (map[string]string, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.conn.Pool.Query(ctx, `SELECT tid::text, parent::text FROM taxonomy_term_hierarchy WHERE parent <> 0`)
	if err != nil {
		return nil, fmt.Errorf("term hierarchy: %w", err)
	}
	defer rows.Close()

	hierarchy := make(map[string]string)
	for rows.Next() {
		var tid, parent string
		if err := rows.Scan(&tid, &parent); err != nil {
			return nil, fmt.Errorf("scan hierarchy row: %w", err)
		}
		hierarchy[tid] = parent
	}
	return hierarchy, rows.Err()
}

// Assets lists managed files; a nil id list means all of them.
func (s *PostgresStore) Assets(ctx context.Context, ids []string) ([]Asset, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	query := `SELECT fid::text, coalesce(uri, ''), coalesce(filename, ''), coalesce(filemime, ''), coalesce(filesize, 0) FROM file_managed`
	args := []any{}
	if len(ids) > 0 {
		query += ` WHERE fid::text = ANY($1)`
		sorted := append([]string(nil), ids...)
		sort.Strings(sorted)
		args = append(args, sorted)
	}
	query += ` ORDER BY fid`

	rows, err := s.conn.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		var asset Asset
		if err := rows.Scan(&asset.ID, &asset.URI, &asset.Filename, &asset.MimeType, &asset.Size); err != nil {
			return nil, fmt.Errorf("scan asset: %w", err)
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

// MergeValue folds one column value into a row, joining distinct values of
// multi-delta fields with "|". Empty values never overwrite existing data.
func MergeValue(row Row, column, value string) {
	if value == "" {
		if _, ok := row[column]; !ok {
			row[column] = ""
		}
		return
	}
	existing, ok := row[column]
	if !ok || existing == "" {
		row[column] = value
		return
	}
	for _, part := range strings.Split(existing, "|") {
		if part == value {
			return
		}
	}
	row[column] = existing + "|" + value
}

var _ Store = (*PostgresStore)(nil)
