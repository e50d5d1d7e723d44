package models

import (
	"slices"
	"time"
)

// NewestFirst orders evidence rows by descending time, breaking ties on descending id.
func NewestFirst(a, b Evidence) int {
	if c := b.Time.Compare(a.Time); c != 0 {
		return c
	}
	return b.ID - a.ID
}

// olderThan reports whether the row sorts after the cursor in newest-first order.
func olderThan(ev Evidence, c Cursor) bool {
	return ev.Time.Before(c.Time) || (ev.Time.Equal(c.Time) && ev.ID < c.EvidenceID)
}

// newerThan reports whether the row sorts before the cursor in newest-first order.
func newerThan(ev Evidence, c Cursor) bool {
	return ev.Time.After(c.Time) || (ev.Time.Equal(c.Time) && ev.ID > c.EvidenceID)
}

// SelectPage applies a page query to an in-memory set of evidence rows. Rows matching the
// group key are ordered newest first and the requested window is returned in that order.
func SelectPage(rows []Evidence, q PageQuery) []Evidence {
	size := q.Size
	if size <= 0 {
		return nil
	}

	matching := make([]Evidence, 0, len(rows))
	for _, row := range rows {
		if q.Key.Matches(row) {
			matching = append(matching, row)
		}
	}
	slices.SortStableFunc(matching, NewestFirst)

	switch q.Direction {
	case PageFirst:
		return head(matching, size)
	case PageLast:
		return tail(matching, size)
	case PageNext:
		return head(filter(matching, func(ev Evidence) bool { return olderThan(ev, q.Cursor) }), size)
	case PagePrevious:
		return tail(filter(matching, func(ev Evidence) bool { return newerThan(ev, q.Cursor) }), size)
	case PageAtTime:
		at := q.Time
		if at.IsZero() {
			at = time.Now()
		}
		return head(filter(matching, func(ev Evidence) bool { return !ev.Time.After(at) }), size)
	}
	return nil
}

func filter(rows []Evidence, keep func(Evidence) bool) []Evidence {
	out := rows[:0:0]
	for _, row := range rows {
		if keep(row) {
			out = append(out, row)
		}
	}
	return out
}

func head(rows []Evidence, n int) []Evidence {
	if len(rows) > n {
		rows = rows[:n]
	}
	return slices.Clone(rows)
}

func tail(rows []Evidence, n int) []Evidence {
	if len(rows) > n {
		rows = rows[len(rows)-n:]
	}
	return slices.Clone(rows)
}
