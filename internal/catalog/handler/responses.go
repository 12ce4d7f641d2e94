package handler

import (
	"time"

	"circulation/internal/catalog/models"
)

type BookResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	ISBN      string    `json:"isbn,omitempty"`
	Publisher string    `json:"publisher,omitempty"`
	Pages     *int      `json:"pages,omitempty"`
	Stock     int       `json:"stock"`
	PerDayFee string    `json:"per_day_fee"`
	UpdatedAt time.Time `json:"updated_at"`
}

type BookListResponse struct {
	Books []BookResponse `json:"books"`
}

func FromBook(b *models.Book) BookResponse {
	return BookResponse{
		ID:        b.ID.String(),
		Title:     b.Title,
		Author:    b.Author,
		ISBN:      b.ISBN,
		Publisher: b.Publisher,
		Pages:     b.Pages,
		Stock:     b.Stock,
		PerDayFee: b.PerDayFee.StringFixed(2),
		UpdatedAt: b.UpdatedAt,
	}
}
