package model

import "time"

// Book represents a title in the catalog as stored in the `books`
// table.  Inventory is tracked by two counters: TotalCopies is the
// number of physical copies owned by the library and
// AvailableCopies is how many of them are currently on the shelf.
// The invariant 0 <= available <= total is enforced both by a CHECK
// constraint and by the borrow/return engine, which only mutates
// AvailableCopies under a row lock.
//
// Fields:
//  ID              – primary key identifier.
//  Title           – book title.
//  Author          – author name.
//  ISBN            – unique ISBN string.
//  TotalCopies     – physical copies owned (>= 0).
//  AvailableCopies – copies currently borrowable.
//  CreatedAt       – timestamp when the record was created.
//  UpdatedAt       – timestamp when the record was last updated.
type Book struct {
	ID              uint64    `json:"id"`               // books.id
	Title           string    `json:"title"`            // books.title
	Author          string    `json:"author"`           // books.author
	ISBN            string    `json:"isbn"`             // books.isbn
	TotalCopies     int       `json:"total_copies"`     // books.total_copies
	AvailableCopies int       `json:"available_copies"` // books.available_copies
	CreatedAt       time.Time `json:"created_at"`       // books.created_at
	UpdatedAt       time.Time `json:"updated_at"`       // books.updated_at
}
