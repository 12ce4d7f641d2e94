package handler

import (
	"time"

	"circulation/internal/circulation/models"
	"circulation/internal/circulation/service"
)

type TransactionResponse struct {
	ID         string     `json:"id"`
	MemberID   string     `json:"member_id"`
	BookID     string     `json:"book_id"`
	Status     string     `json:"status"`
	Returned   bool       `json:"returned"`
	IssueDate  time.Time  `json:"issue_date"`
	ReturnDate *time.Time `json:"return_date,omitempty"`
	Fee        *string    `json:"fee,omitempty"`
}

type ReturnResponse struct {
	Transaction TransactionResponse `json:"transaction"`
	DaysHeld    int64               `json:"days_held"`
	Fee         string              `json:"fee"`
}

type TransactionListResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
}

// TransactionDetailResponse adds display names for the history listing.
type TransactionDetailResponse struct {
	TransactionResponse
	BookTitle  string `json:"book_title,omitempty"`
	MemberName string `json:"member_name,omitempty"`
}

type TransactionHistoryResponse struct {
	Transactions []TransactionDetailResponse `json:"transactions"`
}

func FromTransaction(t *models.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:         t.ID.String(),
		MemberID:   t.MemberID.String(),
		BookID:     t.BookID.String(),
		Status:     string(t.Status()),
		Returned:   t.IsReturned(),
		IssueDate:  t.IssueDate,
		ReturnDate: t.ReturnDate,
	}
	if t.Fee.Valid {
		fee := t.Fee.Decimal.StringFixed(2)
		resp.Fee = &fee
	}
	return resp
}

func FromReturn(r *service.ReturnResult) ReturnResponse {
	return ReturnResponse{
		Transaction: FromTransaction(r.Transaction),
		DaysHeld:    r.DaysHeld,
		Fee:         r.Fee.StringFixed(2),
	}
}

func FromView(v service.TransactionView) TransactionDetailResponse {
	return TransactionDetailResponse{
		TransactionResponse: FromTransaction(v.Transaction),
		BookTitle:           v.BookTitle,
		MemberName:          v.MemberName,
	}
}
