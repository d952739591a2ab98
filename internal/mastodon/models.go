package mastodon

import "time"

// Post is a status in the shape the rest of the app consumes. Fields the
// app does not use are dropped, so instance API changes stop here.
type Post struct {
	ID              string       `json:"id"`
	URI             string       `json:"uri"`
	URL             string       `json:"url"`
	CreatedAt       time.Time    `json:"created_at"`
	Content         string       `json:"content"`
	SpoilerText     string       `json:"spoiler_text,omitempty"`
	Sensitive       bool         `json:"sensitive"`
	Visibility      string       `json:"visibility"`
	Language        string       `json:"language,omitempty"`
	Account         Account      `json:"account"`
	RepliesCount    int          `json:"replies_count"`
	ReblogsCount    int          `json:"reblogs_count"`
	FavouritesCount int          `json:"favourites_count"`
	Tags            []Tag        `json:"tags,omitempty"`
	Media           []Attachment `json:"media_attachments,omitempty"`
	Reblog          *Post        `json:"reblog,omitempty"`
}

// Account is a post's author.
type Account struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Acct        string `json:"acct"`
	DisplayName string `json:"display_name"`
	URL         string `json:"url"`
	Avatar      string `json:"avatar,omitempty"`
	Bot         bool   `json:"bot"`
}

// Tag is a hashtag on a post.
type Tag struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Attachment is a media item on a post.
type Attachment struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	URL         string `json:"url"`
	PreviewURL  string `json:"preview_url,omitempty"`
	Description string `json:"description,omitempty"`
}
