// Package portfolio manages the projects shown on the public site.
package portfolio

import (
	"time"

	"github.com/google/uuid"
)

// Project is one portfolio entry. Unpublished projects are visible to admins only.
type Project struct {
	ID        uuid.UUID  `json:"id"`
	Slug      string     `json:"slug"`
	Title     string     `json:"title"`
	Summary   string     `json:"summary"`
	Body      string     `json:"body,omitempty"`
	ImageURL  string     `json:"image_url,omitempty"`
	Published bool       `json:"published"`
	SortOrder int        `json:"sort_order"`
	CreatedBy *uuid.UUID `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Input is the writable part of a project.
type Input struct {
	Slug      string `json:"slug" validate:"required,max=100,slug"`
	Title     string `json:"title" validate:"required,max=200"`
	Summary   string `json:"summary" validate:"max=500"`
	Body      string `json:"body" validate:"max=20000"`
	ImageURL  string `json:"image_url" validate:"omitempty,max=2048,http_url"`
	Published bool   `json:"published"`
	SortOrder int    `json:"sort_order" validate:"gte=0,lte=10000"`
}

func (in Input) apply(p *Project) {
	p.Slug = in.Slug
	p.Title = in.Title
	p.Summary = in.Summary
	p.Body = in.Body
	p.ImageURL = in.ImageURL
	p.Published = in.Published
	p.SortOrder = in.SortOrder
}
