package enums

import "fmt"

// PostStatus maps to the post_status enum in Postgres.
type PostStatus string

const (
	PostStatusDraft              PostStatus = "draft"
	PostStatusScheduled          PostStatus = "scheduled"
	PostStatusPublished          PostStatus = "published"
	PostStatusPartiallyPublished PostStatus = "partially_published"
	PostStatusFailed             PostStatus = "failed"
)

var validPostStatuses = []PostStatus{
	PostStatusDraft,
	PostStatusScheduled,
	PostStatusPublished,
	PostStatusPartiallyPublished,
	PostStatusFailed,
}

// String implements fmt.Stringer.
func (s PostStatus) String() string {
	return string(s)
}

// IsValid reports whether the value matches the canonical post_status enum.
func (s PostStatus) IsValid() bool {
	for _, candidate := range validPostStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status is one the publish pipeline writes.
func (s PostStatus) IsTerminal() bool {
	switch s {
	case PostStatusPublished, PostStatusPartiallyPublished, PostStatusFailed:
		return true
	default:
		return false
	}
}

// Delivered reports whether at least one platform accepted the post.
func (s PostStatus) Delivered() bool {
	return s == PostStatusPublished || s == PostStatusPartiallyPublished
}

// ParsePostStatus converts raw input into PostStatus.
func ParsePostStatus(value string) (PostStatus, error) {
	for _, candidate := range validPostStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid post status %q", value)
}
