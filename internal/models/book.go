package models

import "time"

// Book represents a book record owned by a single user. Image holds the
// relative media path of the stored cover image, empty when none has been
// uploaded. The HTTP layer owns the wire projections, so there are no JSON
// tags here.
type Book struct {
	ID          string
	Title       string
	Author      string
	ReleaseDate Date
	Genre       string
	Description string
	Image       string
	UserID      string
	CreatedAt   time.Time
}
