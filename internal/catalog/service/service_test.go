package service

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"circulation/internal/access"
	"circulation/internal/catalog/models"
	"circulation/internal/catalog/store"
	"circulation/pkg/domain"
	dErrors "circulation/pkg/domain-errors"
	audit "circulation/pkg/platform/audit"
	"circulation/pkg/platform/audit/publisher"
	auditmemory "circulation/pkg/platform/audit/store/memory"
	"circulation/pkg/testutil"
)

type fakeLoans struct {
	mu   sync.Mutex
	open map[domain.BookID]bool
}

func (f *fakeLoans) HasOpenLoansForBook(_ context.Context, id domain.BookID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open[id], nil
}

type CatalogServiceSuite struct {
	suite.Suite
	service     *Service
	store       *store.InMemory
	loans       *fakeLoans
	auditStore  *auditmemory.InMemoryStore
	librarianID domain.MemberID
	librarian   context.Context
	member      context.Context
}

func TestCatalogServiceSuite(t *testing.T) {
	suite.Run(t, new(CatalogServiceSuite))
}

func (s *CatalogServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.loans = &fakeLoans{open: map[domain.BookID]bool{}}
	s.auditStore = auditmemory.NewInMemoryStore()
	s.service = New(s.store, s.loans, access.NewGuard(),
		WithAuditPublisher(publisher.NewPublisher(s.auditStore)),
	)
	s.librarianID = domain.NewMemberID()
	s.librarian = testutil.AsLibrarian(context.Background(), s.librarianID)
	s.member = testutil.AsMember(context.Background(), domain.NewMemberID())
}

func intPtr(v int) *int { return &v }

func (s *CatalogServiceSuite) addBook(title string, stock int) *models.Book {
	b, err := s.service.AddBook(s.librarian, models.BookFields{Title: title, Author: "Author", Stock: intPtr(stock)})
	s.Require().NoError(err)
	return b
}

func (s *CatalogServiceSuite) TestAddBook() {
	s.Run("applies defaults and emits audit", func() {
		b, err := s.service.AddBook(s.librarian, models.BookFields{Title: "Dune", Author: "Herbert"})
		s.Require().NoError(err)
		s.Equal(1, b.Stock)
		s.True(b.PerDayFee.Equal(decimal.NewFromInt(10)))

		events, err := s.auditStore.ListByMember(context.Background(), s.librarianID)
		s.Require().NoError(err)
		s.Require().NotEmpty(events)
		s.Equal(string(audit.EventBookAdded), events[len(events)-1].Action)
	})

	s.Run("zero stock is invalid input", func() {
		_, err := s.service.AddBook(s.librarian, models.BookFields{Title: "t", Author: "a", Stock: intPtr(0)})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("missing title is invalid input", func() {
		_, err := s.service.AddBook(s.librarian, models.BookFields{Author: "a"})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("member is forbidden regardless of input validity", func() {
		_, err := s.service.AddBook(s.member, models.BookFields{})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		_, err = s.service.AddBook(s.member, models.BookFields{Title: "t", Author: "a"})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("anonymous caller is forbidden", func() {
		_, err := s.service.AddBook(context.Background(), models.BookFields{Title: "t", Author: "a"})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *CatalogServiceSuite) TestUpdateBook() {
	b := s.addBook("Old", 2)

	s.Run("replaces fields and allows stock correction", func() {
		updated, err := s.service.UpdateBook(s.librarian, b.ID, models.BookFields{Title: "New", Author: "Someone", Stock: intPtr(0)})
		s.Require().NoError(err)
		s.Equal("New", updated.Title)
		s.Equal(0, updated.Stock)
	})

	s.Run("unknown book is not found", func() {
		_, err := s.service.UpdateBook(s.librarian, domain.NewBookID(), models.BookFields{Title: "t", Author: "a"})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("negative stock is invalid input", func() {
		_, err := s.service.UpdateBook(s.librarian, b.ID, models.BookFields{Title: "t", Author: "a", Stock: intPtr(-3)})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *CatalogServiceSuite) TestRemoveBook() {
	s.Run("book with open loan is a conflict", func() {
		b := s.addBook("Loaned", 1)
		s.loans.open[b.ID] = true
		err := s.service.RemoveBook(s.librarian, b.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))

		_, err = s.service.GetBook(s.librarian, b.ID)
		s.NoError(err, "book must survive a rejected removal")
	})

	s.Run("book without loans is removed", func() {
		b := s.addBook("Free", 1)
		s.Require().NoError(s.service.RemoveBook(s.librarian, b.ID))
		_, err := s.service.GetBook(s.librarian, b.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("unknown book is not found", func() {
		err := s.service.RemoveBook(s.librarian, domain.NewBookID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("member is forbidden", func() {
		err := s.service.RemoveBook(s.member, domain.NewBookID())
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *CatalogServiceSuite) TestStockMovements() {
	b := s.addBook("Single", 1)

	_, err := s.service.DecrementStock(s.librarian, b.ID)
	s.Require().NoError(err)

	_, err = s.service.DecrementStock(s.librarian, b.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeOutOfStock))

	got, err := s.service.IncrementStock(s.librarian, b.ID)
	s.Require().NoError(err)
	s.Equal(1, got.Stock)

	_, err = s.service.DecrementStock(s.member, b.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *CatalogServiceSuite) TestListBooks() {
	s.addBook("Available", 2)
	empty := s.addBook("Empty", 1)
	_, err := s.service.DecrementStock(s.librarian, empty.ID)
	s.Require().NoError(err)

	collect := func(ctx context.Context) []string {
		seq, err := s.service.ListBooks(ctx)
		s.Require().NoError(err)
		var titles []string
		for b := range seq {
			titles = append(titles, b.Title)
		}
		return titles
	}

	s.Run("librarian sees every book", func() {
		s.ElementsMatch([]string{"Available", "Empty"}, collect(s.librarian))
	})

	s.Run("member sees only books in stock", func() {
		s.Equal([]string{"Available"}, collect(s.member))
	})

	s.Run("member cannot fetch an out of stock book", func() {
		_, err := s.service.GetBook(s.member, empty.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("iterator is restartable", func() {
		seq, err := s.service.ListBooks(s.librarian)
		s.Require().NoError(err)
		count := func() int {
			n := 0
			for range seq {
				n++
			}
			return n
		}
		s.Equal(count(), count())
	})

	s.Run("early break stops iteration", func() {
		seq, err := s.service.ListBooks(s.librarian)
		s.Require().NoError(err)
		n := 0
		for range seq {
			n++
			break
		}
		s.Equal(1, n)
	})

	s.Run("anonymous caller is forbidden", func() {
		_, err := s.service.ListBooks(context.Background())
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *CatalogServiceSuite) TestGetBooks() {
	a := s.addBook("Dune", 1)
	found, err := s.service.GetBooks(s.librarian, []domain.BookID{a.ID, domain.NewBookID()})
	s.Require().NoError(err)
	s.Len(found, 1)

	_, err = s.service.GetBooks(s.member, []domain.BookID{a.ID})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}
