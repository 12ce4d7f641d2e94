package handler

import (
	"strings"

	"circulation/pkg/domain"
	dErrors "circulation/pkg/domain-errors"
)

// IssueRequest is the body of POST /transactions/issue.
type IssueRequest struct {
	MemberID string `json:"member_id"`
	BookID   string `json:"book_id"`

	memberID domain.MemberID
	bookID   domain.BookID
}

func (r *IssueRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	var err error
	if r.memberID, err = domain.ParseMemberID(strings.TrimSpace(r.MemberID)); err != nil {
		return err
	}
	if r.bookID, err = domain.ParseBookID(strings.TrimSpace(r.BookID)); err != nil {
		return err
	}
	return nil
}

// ReturnRequest is the body of POST /transactions/return.
type ReturnRequest struct {
	TransactionID string `json:"transaction_id"`

	transactionID domain.TransactionID
}

func (r *ReturnRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	var err error
	r.transactionID, err = domain.ParseTransactionID(strings.TrimSpace(r.TransactionID))
	return err
}
