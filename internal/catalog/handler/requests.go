package handler

import (
	"strings"

	"github.com/shopspring/decimal"

	"circulation/internal/catalog/models"
	dErrors "circulation/pkg/domain-errors"
)

// BookRequest is the body of POST /books and PUT /books/{id}.
type BookRequest struct {
	Title     string           `json:"title"`
	Author    string           `json:"author"`
	ISBN      string           `json:"isbn,omitempty"`
	Publisher string           `json:"publisher,omitempty"`
	Pages     *int             `json:"pages,omitempty"`
	Stock     *int             `json:"stock,omitempty"`
	PerDayFee *decimal.Decimal `json:"per_day_fee,omitempty"`
}

// Validate normalizes the request. Field rules live on the model.
func (r *BookRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Title = strings.TrimSpace(r.Title)
	r.Author = strings.TrimSpace(r.Author)
	r.ISBN = strings.TrimSpace(r.ISBN)
	r.Publisher = strings.TrimSpace(r.Publisher)
	return nil
}

func (r *BookRequest) Fields() models.BookFields {
	return models.BookFields{
		Title:     r.Title,
		Author:    r.Author,
		ISBN:      r.ISBN,
		Publisher: r.Publisher,
		Pages:     r.Pages,
		Stock:     r.Stock,
		PerDayFee: r.PerDayFee,
	}
}
