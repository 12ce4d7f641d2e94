package access

import "circulation/pkg/domain"

// Operation names a guarded operation.
type Operation string

const (
	OpListBooks  Operation = "list_books"
	OpGetBook    Operation = "get_book"
	OpAddBook    Operation = "add_book"
	OpUpdateBook Operation = "update_book"
	OpRemoveBook Operation = "remove_book"

	// Stock and debt mutations are requested by the circulation engine on
	// behalf of the caller of issue/return.
	OpDecrementStock Operation = "decrement_stock"
	OpIncrementStock Operation = "increment_stock"
	OpAdjustDebt     Operation = "adjust_debt"

	OpCreateMember Operation = "create_member"
	OpGetMember    Operation = "get_member"
	OpListMembers  Operation = "list_members"
	OpUpdateMember Operation = "update_member"
	OpRemoveMember Operation = "remove_member"

	OpIssue            Operation = "issue"
	OpReturn           Operation = "return"
	OpListOutstanding  Operation = "list_outstanding"
	OpListTransactions Operation = "list_transactions"
	OpGetTransaction   Operation = "get_transaction"
)

// Capabilities is the permitted operation set of a role.
type Capabilities interface {
	Allows(op Operation) bool
	// SeesUnavailableBooks reports whether out-of-stock books are listed.
	SeesUnavailableBooks() bool
	// ReadsAllLoans reports whether outstanding loans of other members are visible.
	ReadsAllLoans() bool
}

type librarianCapabilities struct{}

func (librarianCapabilities) Allows(Operation) bool      { return true }
func (librarianCapabilities) SeesUnavailableBooks() bool { return true }
func (librarianCapabilities) ReadsAllLoans() bool        { return true }

type memberCapabilities struct{}

var memberOperations = map[Operation]struct{}{
	OpListBooks:       {},
	OpGetBook:         {},
	OpListOutstanding: {},
}

func (memberCapabilities) Allows(op Operation) bool {
	_, ok := memberOperations[op]
	return ok
}
func (memberCapabilities) SeesUnavailableBooks() bool { return false }
func (memberCapabilities) ReadsAllLoans() bool        { return false }

// CapabilitiesFor returns the capability set of role. Unknown roles get the
// member set.
func CapabilitiesFor(role domain.Role) Capabilities {
	if role == domain.RoleLibrarian {
		return librarianCapabilities{}
	}
	return memberCapabilities{}
}
