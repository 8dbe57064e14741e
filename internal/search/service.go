package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexOrg indexes an organisation (fire-and-forget to Meilisearch).
func (s *Service) IndexOrg(r OrgRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexOrg(r); err != nil {
			log.Printf("search: index org %d: %v", r.ID, err)
		}
	}()
}

// IndexEvent indexes an event (fire-and-forget to Meilisearch).
func (s *Service) IndexEvent(r EventRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexEvent(r); err != nil {
			log.Printf("search: index event %d: %v", r.ID, err)
		}
	}()
}

// IndexTag indexes a tag (fire-and-forget to Meilisearch).
func (s *Service) IndexTag(r TagRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexTag(r); err != nil {
			log.Printf("search: index tag %d: %v", r.ID, err)
		}
	}()
}

// DeleteOrg removes an organisation from the search index (fire-and-forget).
func (s *Service) DeleteOrg(id int64) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteOrg(id); err != nil {
			log.Printf("search: delete org %d: %v", id, err)
		}
	}()
}

// DeleteEvent removes an event from the search index (fire-and-forget).
func (s *Service) DeleteEvent(id int64) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteEvent(id); err != nil {
			log.Printf("search: delete event %d: %v", id, err)
		}
	}()
}

// DeleteTag removes a tag from the search index (fire-and-forget).
func (s *Service) DeleteTag(id int64) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteTag(id); err != nil {
			log.Printf("search: delete tag %d: %v", id, err)
		}
	}()
}

// ReindexAll pushes the given records to Meilisearch in bulk.
func (s *Service) ReindexAll(orgs []OrgRecord, events []EventRecord, tags []TagRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}

	if err := s.meili.IndexOrgs(orgs); err != nil {
		log.Printf("search: reindex orgs: %v", err)
	}
	if err := s.meili.IndexEvents(events); err != nil {
		log.Printf("search: reindex events: %v", err)
	}
	if err := s.meili.IndexTags(tags); err != nil {
		log.Printf("search: reindex tags: %v", err)
	}
}

// ReindexAllFromPG reindexes all public entities from PostgreSQL into
// Meilisearch. Called at startup so the index catches up with anything
// written while Meilisearch was away.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	orgs, events, tags, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	s.ReindexAll(orgs, events, tags)
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
