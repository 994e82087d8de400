package articles

import "time"

// Article is a piece of content owned by one author.
type Article struct {
	ID         int64     `json:"id"`
	AuthorID   int64     `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Published  bool      `json:"published"`
	Order      int       `json:"order"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Input carries the editable fields of an article.
type Input struct {
	Title     string `validate:"required,max=255"`
	Body      string `validate:"required"`
	Published bool
	Order     int `validate:"gte=0"`
}

// Input returns the editable fields of a.
func (a Article) Input() Input {
	return Input{Title: a.Title, Body: a.Body, Published: a.Published, Order: a.Order}
}
