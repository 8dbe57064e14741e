package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// LinkKind names one many-to-many relation. The A side is the parent
// (org or event) in every registered relation.
type LinkKind struct {
	AKind string
	BKind string
}

func (k LinkKind) Table() string { return k.AKind + "_" + k.BKind }
func (k LinkKind) acol() string  { return k.AKind + "_id" }
func (k LinkKind) bcol() string  { return k.BKind + "_id" }

var (
	OrgAddress   = LinkKind{"org", "address"}
	OrgContact   = LinkKind{"org", "contact"}
	OrgNote      = LinkKind{"org", "note"}
	OrgTag       = LinkKind{"org", "tag"}
	EventAddress = LinkKind{"event", "address"}
	EventContact = LinkKind{"event", "contact"}
	EventNote    = LinkKind{"event", "note"}
	EventTag     = LinkKind{"event", "tag"}
	OrgEvent     = LinkKind{"org", "event"}
)

// AllLinkKinds lists every relation in registration order.
var AllLinkKinds = []LinkKind{
	OrgAddress, OrgContact, OrgNote, OrgTag,
	EventAddress, EventContact, EventNote, EventTag,
	OrgEvent,
}

// LinkVersion is one entry of a relation's version ledger.
type LinkVersion struct {
	ID        int64
	AID       int64
	BID       int64
	ATime     float64
	Existence bool
}

// LinkStore mirrors the entity/version split for one join table: a live
// table of existing links and an append-only ledger of link-state changes.
type LinkStore struct {
	kind LinkKind
}

func NewLinkStore(kind LinkKind) *LinkStore {
	return &LinkStore{kind: kind}
}

func (s *LinkStore) Kind() LinkKind { return s.kind }

func (s *LinkStore) LiveExists(ctx context.Context, q Querier, aID, bID int64) (bool, error) {
	var exists bool
	query := fmt.Sprintf(
		`SELECT EXISTS(SELECT 1 FROM %s WHERE %s=$1 AND %s=$2)`,
		s.kind.Table(), s.kind.acol(), s.kind.bcol(),
	)
	if err := q.QueryRowContext(ctx, query, aID, bID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check live %s: %w", s.kind.Table(), err)
	}
	return exists, nil
}

// InsertLive materializes the live link. The primary key absorbs the race
// where both ends go live concurrently and each side runs the acceptor.
func (s *LinkStore) InsertLive(ctx context.Context, q Querier, aID, bID int64, atime float64) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (%s, %s, a_time) VALUES ($1, $2, $3)
		 ON CONFLICT (%s, %s) DO NOTHING`,
		s.kind.Table(), s.kind.acol(), s.kind.bcol(), s.kind.acol(), s.kind.bcol(),
	)
	if _, err := q.ExecContext(ctx, query, aID, bID, atime); err != nil {
		return fmt.Errorf("insert live %s: %w", s.kind.Table(), err)
	}
	return nil
}

func (s *LinkStore) DeleteLive(ctx context.Context, q Querier, aID, bID int64) (bool, error) {
	query := fmt.Sprintf(
		`DELETE FROM %s WHERE %s=$1 AND %s=$2`,
		s.kind.Table(), s.kind.acol(), s.kind.bcol(),
	)
	result, err := q.ExecContext(ctx, query, aID, bID)
	if err != nil {
		return false, fmt.Errorf("delete live %s: %w", s.kind.Table(), err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete live %s rows: %w", s.kind.Table(), err)
	}
	return affected > 0, nil
}

func (s *LinkStore) InsertVersion(ctx context.Context, q Querier, aID, bID int64, atime float64, existence bool) error {
	query := fmt.Sprintf(
		`INSERT INTO %s_v (%s, %s, a_time, existence) VALUES ($1, $2, $3, $4)`,
		s.kind.Table(), s.kind.acol(), s.kind.bcol(),
	)
	if _, err := q.ExecContext(ctx, query, aID, bID, atime, existence); err != nil {
		return fmt.Errorf("insert %s version: %w", s.kind.Table(), err)
	}
	return nil
}

// LatestVersion returns the most recent ledger entry for the pair.
func (s *LinkStore) LatestVersion(ctx context.Context, q Querier, aID, bID int64) (LinkVersion, bool, error) {
	query := fmt.Sprintf(
		`SELECT id, %s, %s, a_time, existence FROM %s_v
		 WHERE %s=$1 AND %s=$2 ORDER BY id DESC LIMIT 1`,
		s.kind.acol(), s.kind.bcol(), s.kind.Table(), s.kind.acol(), s.kind.bcol(),
	)
	var v LinkVersion
	err := q.QueryRowContext(ctx, query, aID, bID).Scan(&v.ID, &v.AID, &v.BID, &v.ATime, &v.Existence)
	if errors.Is(err, sql.ErrNoRows) {
		return LinkVersion{}, false, nil
	}
	if err != nil {
		return LinkVersion{}, false, fmt.Errorf("latest %s version: %w", s.kind.Table(), err)
	}
	return v, true, nil
}

func (s *LinkStore) pendingQuery(extraWhere string) string {
	t := s.kind.Table()
	a, b := s.kind.acol(), s.kind.bcol()
	return fmt.Sprintf(
		`SELECT v.%s, v.%s, v.a_time
		 FROM %s_v v
		 JOIN (SELECT %s, %s, MAX(id) AS vid FROM %s_v GROUP BY %s, %s) latest
		   ON latest.vid = v.id
		 LEFT JOIN %s l ON l.%s = v.%s AND l.%s = v.%s
		 WHERE v.existence = TRUE AND l.%s IS NULL%s
		 ORDER BY v.id DESC`,
		a, b, t, a, b, t, a, b, t, a, a, b, b, a, extraWhere,
	)
}

func (s *LinkStore) scanPairs(rows *sql.Rows) ([]LinkPair, error) {
	defer rows.Close()
	pairs := make([]LinkPair, 0)
	for rows.Next() {
		var p LinkPair
		var atime float64
		if err := rows.Scan(&p.AID, &p.BID, &atime); err != nil {
			return nil, fmt.Errorf("scan %s pair: %w", s.kind.Table(), err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s pairs: %w", s.kind.Table(), err)
	}
	return pairs, nil
}

// PendingForA lists pairs whose latest ledger entry asserts existence but
// that have no live link yet, filtered to one A-side identity.
func (s *LinkStore) PendingForA(ctx context.Context, q Querier, aID int64) ([]LinkPair, error) {
	rows, err := q.QueryContext(ctx, s.pendingQuery(" AND v."+s.kind.acol()+"=$1"), aID)
	if err != nil {
		return nil, fmt.Errorf("pending %s for a: %w", s.kind.Table(), err)
	}
	return s.scanPairs(rows)
}

// PendingForB is PendingForA for the other direction.
func (s *LinkStore) PendingForB(ctx context.Context, q Querier, bID int64) ([]LinkPair, error) {
	rows, err := q.QueryContext(ctx, s.pendingQuery(" AND v."+s.kind.bcol()+"=$1"), bID)
	if err != nil {
		return nil, fmt.Errorf("pending %s for b: %w", s.kind.Table(), err)
	}
	return s.scanPairs(rows)
}

// PendingSuggestions lists pending links for the moderation queue, with
// live-existence flags for both ends.
func (s *LinkStore) PendingSuggestions(ctx context.Context, q Querier, limit int) ([]LinkSuggestion, error) {
	if limit <= 0 {
		limit = 20
	}
	t := s.kind.Table()
	a, b := s.kind.acol(), s.kind.bcol()
	query := fmt.Sprintf(
		`SELECT v.%s, v.%s, v.a_time, (pa.id IS NOT NULL), (pb.id IS NOT NULL)
		 FROM %s_v v
		 JOIN (SELECT %s, %s, MAX(id) AS vid FROM %s_v GROUP BY %s, %s) latest
		   ON latest.vid = v.id
		 LEFT JOIN %s l ON l.%s = v.%s AND l.%s = v.%s
		 LEFT JOIN %s pa ON pa.id = v.%s
		 LEFT JOIN %s pb ON pb.id = v.%s
		 WHERE v.existence = TRUE AND l.%s IS NULL
		 ORDER BY v.id DESC
		 LIMIT $1`,
		a, b, t, a, b, t, a, b, t, a, a, b, b,
		s.kind.AKind, a, s.kind.BKind, b, a,
	)
	rows, err := q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("pending %s suggestions: %w", t, err)
	}
	defer rows.Close()

	items := make([]LinkSuggestion, 0)
	for rows.Next() {
		item := LinkSuggestion{AKind: s.kind.AKind, BKind: s.kind.BKind}
		if err := rows.Scan(&item.AID, &item.BID, &item.ATime, &item.ALive, &item.BLive); err != nil {
			return nil, fmt.Errorf("scan %s suggestion: %w", t, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s suggestions: %w", t, err)
	}
	return items, nil
}

// LiveLinksForA returns the live pairs attached to one A-side identity.
func (s *LinkStore) LiveLinksForA(ctx context.Context, q Querier, aID int64) ([]LinkPair, error) {
	return s.liveLinks(ctx, q, s.kind.acol(), aID)
}

// LiveLinksForB returns the live pairs attached to one B-side identity.
func (s *LinkStore) LiveLinksForB(ctx context.Context, q Querier, bID int64) ([]LinkPair, error) {
	return s.liveLinks(ctx, q, s.kind.bcol(), bID)
}

func (s *LinkStore) liveLinks(ctx context.Context, q Querier, col string, id int64) ([]LinkPair, error) {
	query := fmt.Sprintf(
		`SELECT %s, %s, a_time FROM %s WHERE %s=$1 ORDER BY a_time ASC`,
		s.kind.acol(), s.kind.bcol(), s.kind.Table(), col,
	)
	rows, err := q.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("live links %s: %w", s.kind.Table(), err)
	}
	return s.scanPairs(rows)
}

// AllLive returns every live pair of the relation, for export dumps.
func (s *LinkStore) AllLive(ctx context.Context, q Querier) ([]LinkPair, error) {
	query := fmt.Sprintf(
		`SELECT %s, %s, a_time FROM %s ORDER BY %s, %s`,
		s.kind.acol(), s.kind.bcol(), s.kind.Table(), s.kind.acol(), s.kind.bcol(),
	)
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("all live %s: %w", s.kind.Table(), err)
	}
	return s.scanPairs(rows)
}

// EventFeed turns live link rows into history events: creating a link is a
// moderation-relevant action even though it has no version row of its own.
func (s *LinkStore) EventFeed(ctx context.Context, q Querier, limit int) ([]HistoryItem, error) {
	t := s.kind.Table()
	query := fmt.Sprintf(
		`SELECT l.%s, l.%s, l.a_time, COALESCE(p.name, '')
		 FROM %s l
		 LEFT JOIN %s p ON p.id = l.%s
		 ORDER BY l.a_time DESC
		 LIMIT $1`,
		s.kind.acol(), s.kind.bcol(), t, s.kind.AKind, s.kind.acol(),
	)
	rows, err := q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%s event feed: %w", t, err)
	}
	defer rows.Close()

	items := make([]HistoryItem, 0)
	for rows.Next() {
		item := HistoryItem{Kind: t, VersionID: -1, Existence: true, HasLive: true}
		var aID int64
		if err := rows.Scan(&aID, &item.EntityID, &item.ATime, &item.ParentName); err != nil {
			return nil, fmt.Errorf("scan %s event: %w", t, err)
		}
		item.ParentKind = s.kind.AKind
		item.ParentID = aID
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s events: %w", t, err)
	}
	return items, nil
}

// ParentsOfB maps B-side identities to their first live A-side parent, for
// display grouping in the history feed.
func (s *LinkStore) ParentsOfB(ctx context.Context, q Querier, bIDs []int64) (map[int64]ParentRef, error) {
	if len(bIDs) == 0 {
		return map[int64]ParentRef{}, nil
	}
	query := fmt.Sprintf(
		`SELECT DISTINCT ON (l.%s) l.%s, l.%s, p.name
		 FROM %s l
		 JOIN %s p ON p.id = l.%s
		 WHERE l.%s = ANY($1)
		 ORDER BY l.%s, l.a_time ASC`,
		s.kind.bcol(), s.kind.bcol(), s.kind.acol(),
		s.kind.Table(), s.kind.AKind, s.kind.acol(), s.kind.bcol(), s.kind.bcol(),
	)
	rows, err := q.QueryContext(ctx, query, bIDs)
	if err != nil {
		return nil, fmt.Errorf("parents of %s: %w", s.kind.BKind, err)
	}
	defer rows.Close()

	parents := make(map[int64]ParentRef)
	for rows.Next() {
		var bID int64
		ref := ParentRef{Kind: s.kind.AKind}
		if err := rows.Scan(&bID, &ref.ID, &ref.Name); err != nil {
			return nil, fmt.Errorf("scan %s parent: %w", s.kind.BKind, err)
		}
		parents[bID] = ref
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s parents: %w", s.kind.BKind, err)
	}
	return parents, nil
}
