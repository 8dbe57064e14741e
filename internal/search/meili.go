package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxOrgs   = "mango_orgs"
	idxEvents = "mango_events"
	idxTags   = "mango_tags"
)

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes.
// Returns a client even when the initial connection fails; the health
// loop reconfigures once the server comes back.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		searchable []string
	}{
		{uid: idxOrgs, searchable: []string{"name", "description"}},
		{uid: idxEvents, searchable: []string{"name", "description"}},
		{uid: idxTags, searchable: []string{"name", "description"}},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: "id",
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", idx.uid, err)
		}
		if _, err := m.client.Index(idx.uid).UpdateSearchableAttributes(&idx.searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", idx.uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries all three indexes (or a filtered subset) and merges results.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	var queries []*meili.SearchRequest
	targetIndexes := []struct {
		uid  string
		rtyp ResultType
	}{
		{idxOrgs, ResultOrg},
		{idxEvents, ResultEvent},
		{idxTags, ResultTag},
	}

	for _, ti := range targetIndexes {
		if q.FilterType != "" && q.FilterType != ti.rtyp {
			continue
		}
		queries = append(queries, &meili.SearchRequest{
			IndexUID:              ti.uid,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			ShowRankingScore:      true,
		})
	}

	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: queries,
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}

	return results, total, nil
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxOrgs:
		return ResultOrg
	case idxEvents:
		return ResultEvent
	case idxTags:
		return ResultTag
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp}
	r.ID = decodeID(hit, "id")
	r.Name = firstNonBlank(decodeFormattedString(hit, "name"), decodeString(hit, "name"))
	r.Snippet = firstNonBlank(decodeFormattedString(hit, "description"), decodeString(hit, "description"))
	return r
}

func decodeID(hit meili.Hit, key string) int64 {
	raw, ok := hit[key]
	if !ok {
		return 0
	}
	var id int64
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	return 0
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexOrg adds or updates an organisation in the search index.
func (m *Meili) IndexOrg(r OrgRecord) error {
	_, err := m.client.Index(idxOrgs).AddDocuments([]OrgRecord{r}, nil)
	return err
}

// IndexEvent adds or updates an event in the search index.
func (m *Meili) IndexEvent(r EventRecord) error {
	_, err := m.client.Index(idxEvents).AddDocuments([]EventRecord{r}, nil)
	return err
}

// IndexTag adds or updates a tag in the search index.
func (m *Meili) IndexTag(r TagRecord) error {
	_, err := m.client.Index(idxTags).AddDocuments([]TagRecord{r}, nil)
	return err
}

// DeleteOrg removes an organisation from the search index.
func (m *Meili) DeleteOrg(id int64) error {
	_, err := m.client.Index(idxOrgs).DeleteDocument(strconv.FormatInt(id, 10), nil)
	return err
}

// DeleteEvent removes an event from the search index.
func (m *Meili) DeleteEvent(id int64) error {
	_, err := m.client.Index(idxEvents).DeleteDocument(strconv.FormatInt(id, 10), nil)
	return err
}

// DeleteTag removes a tag from the search index.
func (m *Meili) DeleteTag(id int64) error {
	_, err := m.client.Index(idxTags).DeleteDocument(strconv.FormatInt(id, 10), nil)
	return err
}

// IndexOrgs bulk-indexes organisations.
func (m *Meili) IndexOrgs(records []OrgRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxOrgs).AddDocuments(records, nil)
	return err
}

// IndexEvents bulk-indexes events.
func (m *Meili) IndexEvents(records []EventRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxEvents).AddDocuments(records, nil)
	return err
}

// IndexTags bulk-indexes tags.
func (m *Meili) IndexTags(records []TagRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxTags).AddDocuments(records, nil)
	return err
}
