package models

import (
	"maps"
	"path"
	"strings"
	"time"
)

// QuerySpec is everything needed to issue a catalog search.
type QuerySpec struct {
	Endpoint     string
	Collection   string
	Filters      map[string]string
	Geometry     string
	Depaginate   bool
	GlobPatterns []string
}

// Clone returns a copy that shares no mutable state with s.
func (s QuerySpec) Clone() QuerySpec {
	c := s
	c.Filters = maps.Clone(s.Filters)
	if s.GlobPatterns != nil {
		c.GlobPatterns = append([]string(nil), s.GlobPatterns...)
	}
	return c
}

// Product is one catalog entry. Its objects live under Prefix in Bucket.
type Product struct {
	ID         string `json:"id"`
	Identifier string `json:"identifier"`
	Title      string `json:"title,omitempty"`
	Collection string `json:"collection,omitempty"`
	Bucket     string `json:"bucket"`
	Prefix     string `json:"prefix"`
}

// ParseIdentifier splits a "/<bucket>/<prefix>" product identifier.
// ok is false when the identifier has no bucket or no prefix.
func ParseIdentifier(identifier string) (bucket, prefix string, ok bool) {
	trimmed := strings.TrimPrefix(identifier, "/")
	bucket, rest, found := strings.Cut(trimmed, "/")
	if !found || bucket == "" {
		return "", "", false
	}
	prefix = strings.Trim(path.Clean("/"+rest), "/")
	if prefix == "" {
		return "", "", false
	}
	return bucket, prefix, true
}

// Page is one page of search results. An empty Next marks the last page.
type Page struct {
	Products []Product
	Next     string
}

// ObjectEntry is one object under a product's prefix.
type ObjectEntry struct {
	Key          string    `json:"key"`
	RelativePath string    `json:"relative_path"`
	Size         int64     `json:"size"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Timestamp string `json:"timestamp"`
	Command   string `json:"command"`
}

// AccessCheck reports whether the configured credentials reach a bucket.
type AccessCheck struct {
	Bucket     string `json:"bucket"`
	Endpoint   string `json:"endpoint"`
	Accessible bool   `json:"accessible"`
	CheckedAt  string `json:"checked_at"`
}
