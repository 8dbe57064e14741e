package store

import "time"

// Kind describes one entity kind to the generic store: table naming,
// content columns, field access for binding and scanning, content equality,
// and the sentinel content used for synthesized decline versions.
type Kind[C any] struct {
	Name     string
	Columns  []string
	Fields   func(c *C) []any // pointers, in Columns order
	Equal    func(a, b C) bool
	Declined func() C
}

var Orgs = Kind[Org]{
	Name:    "org",
	Columns: []string{"name", "description"},
	Fields: func(c *Org) []any {
		return []any{&c.Name, &c.Description}
	},
	Equal:    func(a, b Org) bool { return a == b },
	Declined: func() Org { return Org{Name: DeclinedMarker} },
}

var Events = Kind[Event]{
	Name:    "event",
	Columns: []string{"name", "description", "start_date", "end_date"},
	Fields: func(c *Event) []any {
		return []any{&c.Name, &c.Description, &c.StartDate, &c.EndDate}
	},
	Equal: func(a, b Event) bool {
		return a.Name == b.Name && a.Description == b.Description &&
			timePtrEqual(a.StartDate, b.StartDate) && timePtrEqual(a.EndDate, b.EndDate)
	},
	Declined: func() Event { return Event{Name: DeclinedMarker} },
}

var Addresses = Kind[Address]{
	Name:    "address",
	Columns: []string{"postal", "source", "lookup", "latitude", "longitude"},
	Fields: func(c *Address) []any {
		return []any{&c.Postal, &c.Source, &c.Lookup, &c.Latitude, &c.Longitude}
	},
	Equal: func(a, b Address) bool {
		return a.Postal == b.Postal && a.Source == b.Source && a.Lookup == b.Lookup &&
			floatPtrEqual(a.Latitude, b.Latitude) && floatPtrEqual(a.Longitude, b.Longitude)
	},
	Declined: func() Address { return Address{Postal: DeclinedMarker} },
}

var Contacts = Kind[Contact]{
	Name:    "contact",
	Columns: []string{"medium", "text", "description", "source"},
	Fields: func(c *Contact) []any {
		return []any{&c.Medium, &c.Text, &c.Description, &c.Source}
	},
	Equal:    func(a, b Contact) bool { return a == b },
	Declined: func() Contact { return Contact{Medium: DeclinedMarker, Text: DeclinedMarker} },
}

var Notes = Kind[Note]{
	Name:    "note",
	Columns: []string{"text", "source"},
	Fields: func(c *Note) []any {
		return []any{&c.Text, &c.Source}
	},
	Equal:    func(a, b Note) bool { return a == b },
	Declined: func() Note { return Note{Text: DeclinedMarker} },
}

var Tags = Kind[Tag]{
	Name:    "tag",
	Columns: []string{"name", "description"},
	Fields: func(c *Tag) []any {
		return []any{&c.Name, &c.Description}
	},
	Equal:    func(a, b Tag) bool { return a == b },
	Declined: func() Tag { return Tag{Name: DeclinedMarker} },
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
