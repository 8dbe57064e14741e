package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Querier is satisfied by *sql.DB and *sql.Tx. Every mutation is invoked
// with the transaction of the enclosing moderation action so a failure
// rolls back the version row and the live row together.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// EntityStore provides the dual-table persistence protocol for one entity
// kind: a mutable live row plus an append-only version ledger.
type EntityStore[C any] struct {
	kind Kind[C]
}

func NewEntityStore[C any](kind Kind[C]) *EntityStore[C] {
	return &EntityStore[C]{kind: kind}
}

func (s *EntityStore[C]) KindName() string { return s.kind.Name }

func (s *EntityStore[C]) contentCols() string {
	return strings.Join(s.kind.Columns, ", ")
}

func placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(parts, ", ")
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// AllocateID draws the next identity from the kind's sequence. Pending
// suggestions need an identity before any live row exists.
func (s *EntityStore[C]) AllocateID(ctx context.Context, q Querier) (int64, error) {
	var id int64
	query := fmt.Sprintf(`SELECT nextval('%s_id_seq')`, s.kind.Name)
	if err := q.QueryRowContext(ctx, query).Scan(&id); err != nil {
		return 0, fmt.Errorf("allocate %s id: %w", s.kind.Name, err)
	}
	return id, nil
}

func (s *EntityStore[C]) scanEntity(row scanner) (Entity[C], error) {
	var e Entity[C]
	var modUser sql.NullInt64
	var public *bool
	dest := append([]any{&e.ID}, s.kind.Fields(&e.Content)...)
	dest = append(dest, &modUser, &e.ATime, &public)
	if err := row.Scan(dest...); err != nil {
		return Entity[C]{}, err
	}
	e.ModerationUserID = modUser.Int64
	e.Visibility = VisibilityFromBool(public)
	return e, nil
}

func (s *EntityStore[C]) scanVersion(row scanner) (Version[C], error) {
	var v Version[C]
	var modUser sql.NullInt64
	var public *bool
	dest := append([]any{&v.ID, &v.EntityID}, s.kind.Fields(&v.Content)...)
	dest = append(dest, &modUser, &v.ATime, &v.Existence, &public)
	if err := row.Scan(dest...); err != nil {
		return Version[C]{}, err
	}
	v.ModerationUserID = modUser.Int64
	v.Visibility = VisibilityFromBool(public)
	return v, nil
}

// GetLive fetches the live row. The boolean reports whether it exists;
// visibility filtering is the workflow's concern, not the store's.
func (s *EntityStore[C]) GetLive(ctx context.Context, q Querier, id int64) (Entity[C], bool, error) {
	query := fmt.Sprintf(
		`SELECT id, %s, moderation_user_id, a_time, public FROM %s WHERE id=$1`,
		s.contentCols(), s.kind.Name,
	)
	e, err := s.scanEntity(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Entity[C]{}, false, nil
	}
	if err != nil {
		return Entity[C]{}, false, fmt.Errorf("get live %s %d: %w", s.kind.Name, id, err)
	}
	return e, true, nil
}

func (s *EntityStore[C]) LiveExists(ctx context.Context, q Querier, id int64) (bool, error) {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id=$1)`, s.kind.Name)
	if err := q.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check live %s %d: %w", s.kind.Name, id, err)
	}
	return exists, nil
}

// UpsertLive writes the live row, creating or replacing it. At most one
// live row per identity is guaranteed by the primary key.
func (s *EntityStore[C]) UpsertLive(ctx context.Context, q Querier, e Entity[C]) error {
	n := len(s.kind.Columns)
	sets := make([]string, 0, n+3)
	for _, col := range s.kind.Columns {
		sets = append(sets, col+"=EXCLUDED."+col)
	}
	sets = append(sets,
		"moderation_user_id=EXCLUDED.moderation_user_id",
		"a_time=EXCLUDED.a_time",
		"public=EXCLUDED.public",
	)
	query := fmt.Sprintf(
		`INSERT INTO %s (id, %s, moderation_user_id, a_time, public)
		 VALUES ($1, %s, $%d, $%d, $%d)
		 ON CONFLICT (id) DO UPDATE SET %s`,
		s.kind.Name, s.contentCols(), placeholders(2, n), n+2, n+3, n+4,
		strings.Join(sets, ", "),
	)
	args := append([]any{e.ID}, s.kind.Fields(&e.Content)...)
	args = append(args, nullID(e.ModerationUserID), e.ATime, e.Visibility.Bool())
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert live %s %d: %w", s.kind.Name, e.ID, err)
	}
	return nil
}

// InsertVersion appends one ledger entry and returns it with its id set.
// Version rows are never updated or deleted.
func (s *EntityStore[C]) InsertVersion(ctx context.Context, q Querier, v Version[C]) (Version[C], error) {
	n := len(s.kind.Columns)
	query := fmt.Sprintf(
		`INSERT INTO %s_v (%s_id, %s, moderation_user_id, a_time, existence, public)
		 VALUES ($1, %s, $%d, $%d, $%d, $%d)
		 RETURNING id`,
		s.kind.Name, s.kind.Name, s.contentCols(), placeholders(2, n), n+2, n+3, n+4, n+5,
	)
	args := append([]any{v.EntityID}, s.kind.Fields(&v.Content)...)
	args = append(args, nullID(v.ModerationUserID), v.ATime, v.Existence, v.Visibility.Bool())
	if err := q.QueryRowContext(ctx, query, args...).Scan(&v.ID); err != nil {
		return Version[C]{}, fmt.Errorf("insert %s version: %w", s.kind.Name, err)
	}
	return v, nil
}

// ResetActionTime is the moderator "touch" on an existing live row: marks
// it reviewed without a content change. Resets a_time to zero so the queue
// comparison against the latest version no longer fires.
func (s *EntityStore[C]) ResetActionTime(ctx context.Context, q Querier, id, userID int64) (bool, error) {
	query := fmt.Sprintf(`UPDATE %s SET a_time=0, moderation_user_id=$2 WHERE id=$1`, s.kind.Name)
	result, err := q.ExecContext(ctx, query, id, nullID(userID))
	if err != nil {
		return false, fmt.Errorf("reset %s %d: %w", s.kind.Name, id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reset %s rows: %w", s.kind.Name, err)
	}
	return affected > 0, nil
}

// DeleteLive removes the live row only; the version ledger is retained.
func (s *EntityStore[C]) DeleteLive(ctx context.Context, q Querier, id int64) (bool, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id=$1`, s.kind.Name)
	result, err := q.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("delete live %s %d: %w", s.kind.Name, id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete live %s rows: %w", s.kind.Name, err)
	}
	return affected > 0, nil
}

func (s *EntityStore[C]) versionQuery(where string) string {
	return fmt.Sprintf(
		`SELECT id, %s_id, %s, moderation_user_id, a_time, existence, public
		 FROM %s_v WHERE %s ORDER BY id DESC LIMIT 1`,
		s.kind.Name, s.contentCols(), s.kind.Name, where,
	)
}

// LatestVersion returns the version with the greatest version id for the
// identity. Ties in a_time are broken by version id, never by content.
func (s *EntityStore[C]) LatestVersion(ctx context.Context, q Querier, id int64) (Version[C], bool, error) {
	v, err := s.scanVersion(q.QueryRowContext(ctx, s.versionQuery(s.kind.Name+"_id=$1"), id))
	if errors.Is(err, sql.ErrNoRows) {
		return Version[C]{}, false, nil
	}
	if err != nil {
		return Version[C]{}, false, fmt.Errorf("latest %s version %d: %w", s.kind.Name, id, err)
	}
	return v, true, nil
}

// LatestVersionBy returns the author's most recent version for the
// identity, so a contributor can see their own unresolved submission.
func (s *EntityStore[C]) LatestVersionBy(ctx context.Context, q Querier, userID, id int64) (Version[C], bool, error) {
	query := s.versionQuery(s.kind.Name + "_id=$1 AND moderation_user_id=$2")
	v, err := s.scanVersion(q.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return Version[C]{}, false, nil
	}
	if err != nil {
		return Version[C]{}, false, fmt.Errorf("latest %s version %d by %d: %w", s.kind.Name, id, userID, err)
	}
	return v, true, nil
}

// GetVersion fetches one ledger entry by version id.
func (s *EntityStore[C]) GetVersion(ctx context.Context, q Querier, versionID int64) (Version[C], bool, error) {
	v, err := s.scanVersion(q.QueryRowContext(ctx, s.versionQuery("id=$1"), versionID))
	if errors.Is(err, sql.ErrNoRows) {
		return Version[C]{}, false, nil
	}
	if err != nil {
		return Version[C]{}, false, fmt.Errorf("get %s version %d: %w", s.kind.Name, versionID, err)
	}
	return v, true, nil
}

// LatestVersionMeta is the kind-independent latest-version lookup used by
// the cascade and queue components.
func (s *EntityStore[C]) LatestVersionMeta(ctx context.Context, q Querier, id int64) (VersionMeta, bool, error) {
	query := fmt.Sprintf(
		`SELECT v.id, v.%s_id, COALESCE(v.moderation_user_id, 0), COALESCE(u.moderator, FALSE),
		        v.a_time, v.existence, v.public
		 FROM %s_v v
		 LEFT JOIN users u ON u.id = v.moderation_user_id
		 WHERE v.%s_id=$1
		 ORDER BY v.id DESC
		 LIMIT 1`,
		s.kind.Name, s.kind.Name, s.kind.Name,
	)
	var m VersionMeta
	var public *bool
	err := q.QueryRowContext(ctx, query, id).Scan(
		&m.ID, &m.EntityID, &m.ModerationUserID, &m.AuthorModerator, &m.ATime, &m.Existence, &public,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return VersionMeta{}, false, nil
	}
	if err != nil {
		return VersionMeta{}, false, fmt.Errorf("latest %s version meta %d: %w", s.kind.Name, id, err)
	}
	m.Visibility = VisibilityFromBool(public)
	return m, true, nil
}

// InsertDecline appends the sentinel decline version that clears a pending
// item from the queue without creating a live object.
func (s *EntityStore[C]) InsertDecline(ctx context.Context, q Querier, id, userID int64, atime float64) (int64, error) {
	v, err := s.InsertVersion(ctx, q, Version[C]{
		EntityID:         id,
		Content:          s.kind.Declined(),
		ModerationUserID: userID,
		ATime:            atime,
		Existence:        false,
		Visibility:       VisibilityPending,
	})
	if err != nil {
		return 0, err
	}
	return v.ID, nil
}

// PendingQueue finds identities whose latest version was authored by a
// non-moderator and either has no live counterpart or differs from the
// live row's a_time. Capped: the queue is worked down interactively.
func (s *EntityStore[C]) PendingQueue(ctx context.Context, q Querier, limit int) ([]QueueItem, error) {
	if limit <= 0 {
		limit = 20
	}
	k := s.kind.Name
	query := fmt.Sprintf(
		`SELECT v.%s_id, v.id, v.a_time, u.name, (l.id IS NOT NULL)
		 FROM %s_v v
		 JOIN (SELECT %s_id, MAX(id) AS vid FROM %s_v GROUP BY %s_id) latest
		   ON latest.vid = v.id
		 JOIN users u ON u.id = v.moderation_user_id
		 LEFT JOIN %s l ON l.id = v.%s_id
		 WHERE u.moderator = FALSE
		   AND v.existence = TRUE
		   AND (l.id IS NULL OR l.a_time <> v.a_time)
		 ORDER BY v.id DESC
		 LIMIT $1`,
		k, k, k, k, k, k, k,
	)
	rows, err := q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%s pending queue: %w", k, err)
	}
	defer rows.Close()

	items := make([]QueueItem, 0)
	for rows.Next() {
		item := QueueItem{Kind: k}
		if err := rows.Scan(&item.EntityID, &item.VersionID, &item.ATime, &item.Author, &item.HasLive); err != nil {
			return nil, fmt.Errorf("scan %s queue item: %w", k, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s queue: %w", k, err)
	}
	return items, nil
}

// VersionFeed returns the kind's newest version rows for the history
// reconstructor, ordered by a_time descending with version id tie-break.
func (s *EntityStore[C]) VersionFeed(ctx context.Context, q Querier, limit int) ([]HistoryItem, error) {
	k := s.kind.Name
	query := fmt.Sprintf(
		`SELECT v.id, v.%s_id, v.a_time, v.existence, COALESCE(u.name, ''), (l.id IS NOT NULL)
		 FROM %s_v v
		 LEFT JOIN users u ON u.id = v.moderation_user_id
		 LEFT JOIN %s l ON l.id = v.%s_id
		 ORDER BY v.a_time DESC, v.id DESC
		 LIMIT $1`,
		k, k, k, k,
	)
	rows, err := q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%s version feed: %w", k, err)
	}
	defer rows.Close()

	items := make([]HistoryItem, 0)
	for rows.Next() {
		item := HistoryItem{Kind: k}
		if err := rows.Scan(&item.VersionID, &item.EntityID, &item.ATime, &item.Existence, &item.Author, &item.HasLive); err != nil {
			return nil, fmt.Errorf("scan %s feed item: %w", k, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s feed: %w", k, err)
	}
	return items, nil
}

// ListLive returns live rows, optionally restricted to public ones, for
// export dumps and search reindexing.
func (s *EntityStore[C]) ListLive(ctx context.Context, q Querier, onlyPublic bool) ([]Entity[C], error) {
	query := fmt.Sprintf(
		`SELECT id, %s, moderation_user_id, a_time, public FROM %s
		 WHERE ($1::boolean = FALSE OR public = TRUE)
		 ORDER BY id ASC`,
		s.contentCols(), s.kind.Name,
	)
	rows, err := q.QueryContext(ctx, query, onlyPublic)
	if err != nil {
		return nil, fmt.Errorf("list live %s: %w", s.kind.Name, err)
	}
	defer rows.Close()

	items := make([]Entity[C], 0)
	for rows.Next() {
		e, err := s.scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan live %s: %w", s.kind.Name, err)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate live %s: %w", s.kind.Name, err)
	}
	return items, nil
}
