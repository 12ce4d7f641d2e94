package handler

import "circulation/internal/members/models"

// MemberResponse never carries the password hash.
type MemberResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
	Debt  string `json:"debt"`
}

type MemberListResponse struct {
	Members []MemberResponse `json:"members"`
}

func FromMember(m *models.Member) MemberResponse {
	return MemberResponse{
		ID:    m.ID.String(),
		Name:  m.Name,
		Email: m.Email,
		Role:  string(m.Role),
		Debt:  m.Debt.StringFixed(2),
	}
}
