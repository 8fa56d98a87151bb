package model

import "time"

// Member represents a library patron as stored in the `members`
// table.  Email addresses are unique across all members.  Phone is
// optional and therefore nullable.
//
// Fields:
//  ID        – primary key identifier.
//  Name      – member display name.
//  Email     – unique email address.
//  Phone     – optional phone number (nullable).
//  CreatedAt – timestamp of creation.
//  UpdatedAt – timestamp of last update.
type Member struct {
	ID        uint64    `json:"id"`              // members.id
	Name      string    `json:"name"`            // members.name
	Email     string    `json:"email"`           // members.email
	Phone     *string   `json:"phone,omitempty"` // members.phone (nullable)
	CreatedAt time.Time `json:"created_at"`      // members.created_at
	UpdatedAt time.Time `json:"updated_at"`      // members.updated_at
}
