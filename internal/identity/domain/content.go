package domain

import "time"

// Audit is the common bookkeeping of content entities. Version is a fresh
// random token on every write.
type Audit struct {
	CreatedAt time.Time
	CreatedBy string
	UpdatedAt time.Time
	UpdatedBy string
	Version   string
}

type ArticleState string

const (
	ArticleDraft     ArticleState = "Draft"
	ArticlePublished ArticleState = "Published"
	ArticleRetired   ArticleState = "Retired"
)

func (s ArticleState) Valid() bool {
	switch s {
	case ArticleDraft, ArticlePublished, ArticleRetired:
		return true
	}
	return false
}

type Article struct {
	ID             string
	Title          string
	Summary        string
	Content        string
	State          ArticleState
	PublishedAt    *time.Time
	PublishedUntil *time.Time
	Tags           []Tag
	Audit
}

type Comment struct {
	ID        string
	ArticleID string
	Content   string
	Audit
}

type Rating struct {
	ID        string
	ArticleID string
	Value     int
	Audit
}

type Attachment struct {
	ID          string
	ArticleID   string
	ContentType string
	Locator     string // object storage key
	Path        string // display path
	Audit
}

type Tag struct {
	ID             string
	Name           string
	NormalizedName string
	Audit
}
