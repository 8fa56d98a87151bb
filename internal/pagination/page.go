package pagination

import (
	"fmt"
	"strings"
)

// DefaultLimit is applied when a list request names no limit.
const DefaultLimit = 20

// Page carries the normalized paging inputs of a list request: clamped
// limit, optional decoded cursor, legacy offset (honored only without a
// cursor), and the validated sort field and direction.
type Page struct {
	Limit     int
	Offset    int
	Cursor    *Cursor
	SortField string
	Desc      bool
}

// ParsePage validates raw query inputs against the allowed sort fields
// for an entity.  sort may be prefixed with '-' for descending order.
// limit is clamped into [1, maxLimit]; a negative offset is rejected.
// An unparseable cursor surfaces ErrInvalidCursor.
func ParsePage(limit, offset int, sort, cursorToken string, allowedSorts []string, defaultSort string, maxLimit int) (Page, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		return Page{}, fmt.Errorf("offset cannot be negative")
	}

	field := defaultSort
	desc := strings.HasPrefix(defaultSort, "-")
	if desc {
		field = defaultSort[1:]
	}
	if sort != "" {
		field = sort
		desc = false
		if strings.HasPrefix(sort, "-") {
			field = sort[1:]
			desc = true
		}
		ok := false
		for _, a := range allowedSorts {
			if a == field {
				ok = true
				break
			}
		}
		if !ok {
			return Page{}, fmt.Errorf("invalid sort field: %s (allowed: %s)", field, strings.Join(allowedSorts, ", "))
		}
	}

	p := Page{Limit: limit, Offset: offset, SortField: field, Desc: desc}
	if cursorToken != "" {
		c, err := DecodeCursor(cursorToken)
		if err != nil {
			return Page{}, err
		}
		if c.Sort != field {
			// a cursor minted under one sort order is meaningless in another
			return Page{}, ErrInvalidCursor
		}
		p.Cursor = &c
		p.Offset = 0 // a cursor supersedes any legacy offset
	}
	return p, nil
}

// Meta is the pagination block echoed with every list response.
type Meta struct {
	Total      int     `json:"total"`
	Limit      int     `json:"limit"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

// NewMeta assembles the meta block.  nextCursor must be empty on the
// final page so the field serializes as null.
func NewMeta(total, limit int, hasMore bool, nextCursor string) Meta {
	m := Meta{Total: total, Limit: limit, HasMore: hasMore}
	if hasMore && nextCursor != "" {
		m.NextCursor = &nextCursor
	}
	return m
}

// Response is the envelope shared by all list endpoints.
type Response struct {
	Data any  `json:"data"`
	Meta Meta `json:"meta"`
}
