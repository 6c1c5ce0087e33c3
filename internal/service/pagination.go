package service

import (
	"fmt"

	"gorm.io/gorm"
)

// Page is a 1-indexed page request.
type Page struct {
	Number int
	Limit  int
}

// Pagination describes where a page sits in the full result set.
type Pagination struct {
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
	LastPage    int   `json:"last_page"`
}

// Pager normalizes page requests against configured bounds.
type Pager struct {
	DefaultLimit int
	MaxLimit     int
}

func (p Pager) Normalize(page Page) Page {
	if page.Number < 1 {
		page.Number = 1
	}
	if page.Limit < 1 {
		page.Limit = p.DefaultLimit
	}
	if p.MaxLimit > 0 && page.Limit > p.MaxLimit {
		page.Limit = p.MaxLimit
	}
	if page.Limit < 1 {
		page.Limit = 10
	}
	return page
}

// paginate counts the query, then loads the requested window into dest. Selects, preloads and
// ordering go in load so they stay out of the COUNT statement.
func paginate(q *gorm.DB, page Page, dest any, load func(*gorm.DB) *gorm.DB) (Pagination, error) {
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return Pagination{}, fmt.Errorf("count rows: %w", err)
	}
	window := q.Session(&gorm.Session{})
	if load != nil {
		window = load(window)
	}
	if err := window.Offset((page.Number - 1) * page.Limit).Limit(page.Limit).Find(dest).Error; err != nil {
		return Pagination{}, fmt.Errorf("load page: %w", err)
	}
	last := int((total + int64(page.Limit) - 1) / int64(page.Limit))
	if last < 1 {
		last = 1
	}
	return Pagination{
		CurrentPage: page.Number,
		PerPage:     page.Limit,
		Total:       total,
		LastPage:    last,
	}, nil
}
