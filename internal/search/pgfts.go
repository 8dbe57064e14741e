package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a
// fallback. Only public live rows are searchable, matching what the
// Meilisearch indexes hold.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const tsQuery = "plainto_tsquery('english', $1)"

func ftsVector(alias string) string {
	return fmt.Sprintf(
		"to_tsvector('english', %s.name || ' ' || coalesce(%s.description, ''))",
		alias, alias,
	)
}

// Search executes a UNION ALL query across the org, event and tag live
// tables using plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	var subQueries []string
	tables := []struct {
		table string
		rtyp  ResultType
	}{
		{"org", ResultOrg},
		{"event", ResultEvent},
		{"tag", ResultTag},
	}
	for _, t := range tables {
		if q.FilterType != "" && q.FilterType != t.rtyp {
			continue
		}
		vec := ftsVector("e")
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT '%s'::text AS type, e.id, e.name,
				ts_headline('english', coalesce(e.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				ts_rank(%s, %s) AS rank
			FROM %s e
			WHERE %s @@ %s AND e.public = TRUE`,
			t.rtyp, tsQuery, vec, tsQuery, t.table, vec, tsQuery))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, name, snippet
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, q.Text)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Name, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all public searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]OrgRecord, []EventRecord, []TagRecord, error) {
	orgRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, coalesce(description, '')
		FROM org WHERE public = TRUE
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load orgs: %w", err)
	}
	defer orgRows.Close()

	orgs := make([]OrgRecord, 0)
	for orgRows.Next() {
		var r OrgRecord
		if err := orgRows.Scan(&r.ID, &r.Name, &r.Description); err != nil {
			return nil, nil, nil, fmt.Errorf("scan org: %w", err)
		}
		orgs = append(orgs, r)
	}
	if err := orgRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate orgs: %w", err)
	}

	eventRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, coalesce(description, ''), coalesce(start_date::text, '')
		FROM event WHERE public = TRUE
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load events: %w", err)
	}
	defer eventRows.Close()

	events := make([]EventRecord, 0)
	for eventRows.Next() {
		var r EventRecord
		if err := eventRows.Scan(&r.ID, &r.Name, &r.Description, &r.StartDate); err != nil {
			return nil, nil, nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, r)
	}
	if err := eventRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate events: %w", err)
	}

	tagRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, coalesce(description, '')
		FROM tag WHERE public = TRUE
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load tags: %w", err)
	}
	defer tagRows.Close()

	tags := make([]TagRecord, 0)
	for tagRows.Next() {
		var r TagRecord
		if err := tagRows.Scan(&r.ID, &r.Name, &r.Description); err != nil {
			return nil, nil, nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, r)
	}
	if err := tagRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate tags: %w", err)
	}

	return orgs, events, tags, nil
}
