package jwttoken

import (
	"circulation/pkg/domain"
	dErrors "circulation/pkg/domain-errors"
	authmw "circulation/pkg/platform/middleware/auth"
)

// ToMiddlewareClaims narrows validated claims to what request handling needs.
// An unrecognised role claim degrades to member; a malformed member id
// rejects the credential.
func ToMiddlewareClaims(claims *Claims) (*authmw.Claims, error) {
	memberID, err := domain.ParseMemberID(claims.MemberID)
	if err != nil || memberID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	out := &authmw.Claims{
		MemberID: memberID,
		Role:     domain.RoleFromClaim(claims.Role),
		JTI:      claims.ID,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.Claims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims)
}
