package models

import "time"

// NewsArticle is the canonical news record
type NewsArticle struct {
	ID          string      `json:"id"`
	Headline    string      `json:"headline"`
	Summary     string      `json:"summary"`
	Source      string      `json:"source"`
	URL         string      `json:"url"`
	Symbols     []string    `json:"symbols"`
	PublishedAt int64       `json:"publishedAt"` // unix ms
	UpdatedAt   int64       `json:"updatedAt,omitempty"`
	Images      []NewsImage `json:"images,omitempty"`
	Sentiment   string      `json:"sentiment,omitempty"` // positive | negative | neutral
}

type NewsImage struct {
	URL  string `json:"url"`
	Size string `json:"size"` // thumb | small | large
}

// NewsFilter narrows a news query. Zero values mean "no constraint".
type NewsFilter struct {
	Symbols []string  `json:"symbols,omitempty"`
	Limit   int       `json:"limit,omitempty"`
	Start   time.Time `json:"start,omitempty"`
	End     time.Time `json:"end,omitempty"`
}
