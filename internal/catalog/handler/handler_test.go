package handler

import (
	"io"
	"iter"
	"log/slog"
	"net/http"
	"slices"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"circulation/internal/access"
	"circulation/internal/catalog/handler/mocks"
	"circulation/internal/catalog/models"
	"circulation/pkg/domain"
	dErrors "circulation/pkg/domain-errors"
	"circulation/pkg/testutil"
)

type CatalogHandlerSuite struct {
	suite.Suite
}

func TestCatalogHandlerSuite(t *testing.T) {
	suite.Run(t, new(CatalogHandlerSuite))
}

func (s *CatalogHandlerSuite) newHandler(t *testing.T) (*mocks.MockService, chi.Router) {
	ctrl := gomock.NewController(t)
	mockService := mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(mockService, access.NewGuard(), logger)
	router := chi.NewRouter()
	h.Register(router)
	return mockService, router
}

func sampleBook() *models.Book {
	return &models.Book{
		ID:        domain.NewBookID(),
		Title:     "Dune",
		Author:    "Herbert",
		Stock:     1,
		PerDayFee: decimal.NewFromInt(10),
		UpdatedAt: time.Now(),
	}
}

func (s *CatalogHandlerSuite) TestAddBook() {
	librarianID := domain.NewMemberID()

	s.T().Run("201 with created book", func(t *testing.T) {
		svc, router := s.newHandler(t)
		book := sampleBook()
		svc.EXPECT().AddBook(gomock.Any(), models.BookFields{Title: "Dune", Author: "Herbert"}).Return(book, nil)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/books", map[string]any{"title": " Dune ", "author": "Herbert"})
		rr := testutil.DoRequest(router, testutil.WithPrincipal(req, librarianID, domain.RoleLibrarian))

		testutil.AssertStatus(t, rr, http.StatusCreated)
		got := testutil.UnmarshalResponse[BookResponse](t, rr)
		assert.Equal(t, book.ID.String(), got.ID)
		assert.Equal(t, "10.00", got.PerDayFee)
	})

	s.T().Run("403 for member before the body is read", func(t *testing.T) {
		svc, router := s.newHandler(t)
		svc.EXPECT().AddBook(gomock.Any(), gomock.Any()).Times(0)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/books", "{not json")
		rr := testutil.DoRequest(router, testutil.WithPrincipal(req, domain.NewMemberID(), domain.RoleMember))

		testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
	})

	s.T().Run("403 for anonymous caller", func(t *testing.T) {
		svc, router := s.newHandler(t)
		svc.EXPECT().AddBook(gomock.Any(), gomock.Any()).Times(0)

		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/books", map[string]any{"title": "t"}))
		testutil.AssertStatus(t, rr, http.StatusForbidden)
	})

	s.T().Run("422 when service rejects input", func(t *testing.T) {
		svc, router := s.newHandler(t)
		svc.EXPECT().AddBook(gomock.Any(), gomock.Any()).Return(nil, dErrors.New(dErrors.CodeInvalidInput, "stock must be at least 1"))

		req := testutil.NewJSONRequest(t, http.MethodPost, "/books", map[string]any{"title": "t", "author": "a", "stock": 0})
		rr := testutil.DoRequest(router, testutil.WithPrincipal(req, librarianID, domain.RoleLibrarian))
		testutil.AssertStatusAndError(t, rr, http.StatusUnprocessableEntity, "invalid_input")
	})

	s.T().Run("400 for malformed json", func(t *testing.T) {
		svc, router := s.newHandler(t)
		svc.EXPECT().AddBook(gomock.Any(), gomock.Any()).Times(0)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/books", nil)
		rr := testutil.DoRequest(router, testutil.WithPrincipal(req, librarianID, domain.RoleLibrarian))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
	})
}

func (s *CatalogHandlerSuite) TestListBooks() {
	s.T().Run("member receives books", func(t *testing.T) {
		svc, router := s.newHandler(t)
		books := []*models.Book{sampleBook(), sampleBook()}
		svc.EXPECT().ListBooks(gomock.Any()).Return(iter.Seq[*models.Book](slices.Values(books)), nil)

		req := testutil.NewJSONRequest(t, http.MethodGet, "/books", nil)
		rr := testutil.DoRequest(router, testutil.WithPrincipal(req, domain.NewMemberID(), domain.RoleMember))

		testutil.AssertStatus(t, rr, http.StatusOK)
		got := testutil.UnmarshalResponse[BookListResponse](t, rr)
		require.Len(t, got.Books, 2)
	})

	s.T().Run("anonymous caller is forbidden", func(t *testing.T) {
		svc, router := s.newHandler(t)
		svc.EXPECT().ListBooks(gomock.Any()).Times(0)
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/books", nil))
		testutil.AssertStatus(t, rr, http.StatusForbidden)
	})
}

func (s *CatalogHandlerSuite) TestRemoveBook() {
	librarianID := domain.NewMemberID()

	s.T().Run("204 on success", func(t *testing.T) {
		svc, router := s.newHandler(t)
		id := domain.NewBookID()
		svc.EXPECT().RemoveBook(gomock.Any(), id).Return(nil)

		req := testutil.NewJSONRequest(t, http.MethodDelete, "/books/"+id.String(), nil)
		rr := testutil.DoRequest(router, testutil.WithPrincipal(req, librarianID, domain.RoleLibrarian))
		testutil.AssertStatus(t, rr, http.StatusNoContent)
	})

	s.T().Run("409 with open loans", func(t *testing.T) {
		svc, router := s.newHandler(t)
		id := domain.NewBookID()
		svc.EXPECT().RemoveBook(gomock.Any(), id).Return(dErrors.New(dErrors.CodeConflict, "book has outstanding loans"))

		req := testutil.NewJSONRequest(t, http.MethodDelete, "/books/"+id.String(), nil)
		rr := testutil.DoRequest(router, testutil.WithPrincipal(req, librarianID, domain.RoleLibrarian))
		testutil.AssertStatusAndError(t, rr, http.StatusConflict, "conflict")
	})

	s.T().Run("422 for malformed id", func(t *testing.T) {
		svc, router := s.newHandler(t)
		svc.EXPECT().RemoveBook(gomock.Any(), gomock.Any()).Times(0)

		req := testutil.NewJSONRequest(t, http.MethodDelete, "/books/not-a-uuid", nil)
		rr := testutil.DoRequest(router, testutil.WithPrincipal(req, librarianID, domain.RoleLibrarian))
		testutil.AssertStatus(t, rr, http.StatusUnprocessableEntity)
	})
}

func (s *CatalogHandlerSuite) TestGetAndUpdate() {
	librarianID := domain.NewMemberID()

	s.T().Run("404 when missing", func(t *testing.T) {
		svc, router := s.newHandler(t)
		id := domain.NewBookID()
		svc.EXPECT().GetBook(gomock.Any(), id).Return(nil, dErrors.New(dErrors.CodeNotFound, "book not found"))

		req := testutil.NewJSONRequest(t, http.MethodGet, "/books/"+id.String(), nil)
		rr := testutil.DoRequest(router, testutil.WithPrincipal(req, librarianID, domain.RoleLibrarian))
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
	})

	s.T().Run("update passes fields through", func(t *testing.T) {
		svc, router := s.newHandler(t)
		book := sampleBook()
		stock := 0
		svc.EXPECT().UpdateBook(gomock.Any(), book.ID, models.BookFields{Title: "Dune", Author: "Herbert", Stock: &stock}).Return(book, nil)

		req := testutil.NewJSONRequest(t, http.MethodPut, "/books/"+book.ID.String(), map[string]any{"title": "Dune", "author": "Herbert", "stock": 0})
		rr := testutil.DoRequest(router, testutil.WithPrincipal(req, librarianID, domain.RoleLibrarian))
		testutil.AssertStatus(t, rr, http.StatusOK)
	})
}
