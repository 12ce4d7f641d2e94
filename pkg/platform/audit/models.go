package audit

import (
	"context"
	"time"

	"circulation/pkg/domain"
)

// EventCategory classifies audit events so sinks can route and retain them
// differently.
type EventCategory string

const (
	// CategoryCirculation covers loans and the debt they accrue.
	CategoryCirculation EventCategory = "circulation"
	// CategoryAdministration covers catalog and roster changes.
	CategoryAdministration EventCategory = "administration"
	// CategorySecurity covers credential use.
	CategorySecurity EventCategory = "security"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory   `json:"category"`
	Timestamp time.Time       `json:"timestamp"`
	MemberID  domain.MemberID `json:"member_id"`
	Subject   string          `json:"subject"`
	Action    string          `json:"action"`
	Decision  string          `json:"decision,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	// ActorID is the principal that performed the action when it differs
	// from MemberID, e.g. the librarian issuing a loan to a member.
	ActorID string `json:"actor_id,omitempty"`
}

type AuditEvent string

const (
	EventBookAdded   AuditEvent = "book_added"
	EventBookUpdated AuditEvent = "book_updated"
	EventBookRemoved AuditEvent = "book_removed"

	EventMemberCreated AuditEvent = "member_created"
	EventMemberUpdated AuditEvent = "member_updated"
	EventMemberRemoved AuditEvent = "member_removed"

	EventBookIssued   AuditEvent = "book_issued"
	EventBookReturned AuditEvent = "book_returned"
	EventDebtAccrued  AuditEvent = "debt_accrued"

	EventLoginSucceeded AuditEvent = "login_succeeded"
	EventLoginFailed    AuditEvent = "login_failed"
	EventLogout         AuditEvent = "logout"
	EventLoginLocked    AuditEvent = "login_locked"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventBookIssued:   CategoryCirculation,
	EventBookReturned: CategoryCirculation,
	EventDebtAccrued:  CategoryCirculation,

	EventLoginSucceeded: CategorySecurity,
	EventLoginFailed:    CategorySecurity,
	EventLogout:         CategorySecurity,
	EventLoginLocked:    CategorySecurity,
}

// Category returns the EventCategory for this audit event.
// Unlisted events are administrative.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryAdministration
}

// Store persists audit events. Sinks such as Kafka are append-only; stores
// that can be read back also implement Lister.
type Store interface {
	Append(ctx context.Context, event Event) error
}

type Lister interface {
	ListByMember(ctx context.Context, memberID domain.MemberID) ([]Event, error)
}
