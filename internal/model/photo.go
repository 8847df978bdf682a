package model

import "time"

// Photo is an uploaded image and its metadata.
//
// Uploader is the uploader's username, copied in at upload time. It is not a
// foreign key, so a rename has to rewrite it (see the repository's
// RenameUser). Likes is filled in by listing queries only: it holds the
// usernames of everyone who liked the photo and is never nil in a listing.
type Photo struct {
	ID          int64     `json:"id"`
	Uploader    string    `json:"uploader"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Tags        Tags      `json:"tags"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	Likes       []string  `json:"likes"`
}
