package models

import "time"

// AggregationRequest asks for the aggregated probable causes of one item of evidence.
type AggregationRequest struct {
	EvidenceID      int
	TimeSpanSeconds int
}

// PageDirection selects which page of evidence rows to load relative to a cursor.
type PageDirection string

const (
	PageFirst    PageDirection = "first"
	PageLast     PageDirection = "last"
	PageNext     PageDirection = "next"
	PagePrevious PageDirection = "previous"
	PageAtTime   PageDirection = "at_time"
)

// Valid reports whether the direction is one of the known values.
func (d PageDirection) Valid() bool {
	switch d {
	case PageFirst, PageLast, PageNext, PagePrevious, PageAtTime:
		return true
	}
	return false
}

// GroupKey filters evidence rows down to the members of one aggregate group.
type GroupKey struct {
	// EvidenceID anchors the query to the incident containing this item of evidence.
	EvidenceID        int
	Type              string
	Description       string
	Source            string
	Attributes        []Attribute
	SingleDescription bool
}

// Matches reports whether the evidence row satisfies every non-empty filter of the key.
func (k GroupKey) Matches(ev Evidence) bool {
	if k.Type != "" && k.Type != ev.Type {
		return false
	}
	if k.Description != "" && k.Description != ev.Description {
		return false
	}
	if k.Source != "" && k.Source != ev.Source {
		return false
	}
	for _, want := range k.Attributes {
		found := false
		for _, have := range ev.Attributes {
			if have.Name == want.Name && have.Value == want.Value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Cursor is the boundary row of a previously returned page.
type Cursor struct {
	EvidenceID int
	Time       time.Time
}

// PageQuery is the request handed to an evidence source.
type PageQuery struct {
	Key       GroupKey
	Direction PageDirection
	Cursor    Cursor
	Time      time.Time
	Size      int
}

// EvidencePage is one page of evidence rows, newest first.
type EvidencePage struct {
	Rows         []Evidence
	Direction    PageDirection
	FirstRowTime time.Time
	LatestTime   time.Time
	EarliestTime time.Time
	HasEarlier   bool
	// FellBack is set when the requested page was empty and a first/last page was returned instead.
	FellBack bool
}
