package models

import (
	"time"

	"github.com/Siddarth2230/tag-registry/pkg/tagcodec"
)

// Tag is a reserved tag id and the call site that owns it.
type Tag struct {
	ID          tagcodec.ID
	Name        string
	Component   string
	CallSite    string
	Description string
	CreatedAt   time.Time
}

// Record returns the JSON form of t.
func (t *Tag) Record() TagRecord {
	return TagRecord{
		TagResponse: TagResponse{TagID: uint32(t.ID), TagName: t.Name},
		Component:   t.Component,
		CallSite:    t.CallSite,
		Description: t.Description,
		CreatedAt:   t.CreatedAt,
	}
}

// TagRecord is a Tag as served over HTTP and stored in the L2 cache.
type TagRecord struct {
	TagResponse
	Component   string    `json:"component"`
	CallSite    string    `json:"call_site,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Tag converts r back into a Tag.
func (r *TagRecord) Tag() *Tag {
	return &Tag{
		ID:          tagcodec.ID(r.TagID),
		Name:        r.TagName,
		Component:   r.Component,
		CallSite:    r.CallSite,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
	}
}

type ReserveRequest struct {
	Component   string `json:"component"`
	CallSite    string `json:"call_site,omitempty"`
	Description string `json:"description,omitempty"`
}

// TagResponse is returned by the encode and decode endpoints. TagID is
// the raw integer so machine consumers do not need the codec.
type TagResponse struct {
	TagID   uint32 `json:"tag_id"`
	TagName string `json:"tag_name"`
}
