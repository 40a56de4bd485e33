package model

import "time"

// Office scopes item visibility: users only see items owned by users of the
// same office.
type Office struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}
