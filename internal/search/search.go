package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultOrg   ResultType = "org"
	ResultEvent ResultType = "event"
	ResultTag   ResultType = "tag"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type       ResultType `json:"type"`
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Snippet    string     `json:"snippet"`
	Visibility string     `json:"visibility,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
	PublicOnly bool
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexOrg(r OrgRecord) error
	IndexEvent(r EventRecord) error
	IndexTag(r TagRecord) error
	DeleteOrg(id int64) error
	DeleteEvent(id int64) error
	DeleteTag(id int64) error
}

// OrgRecord is the data we index for an organisation. Only public live
// rows are ever indexed.
type OrgRecord struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// EventRecord is the data we index for an event.
type EventRecord struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	StartDate   string `json:"startDate"`
}

// TagRecord is the data we index for a tag.
type TagRecord struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
