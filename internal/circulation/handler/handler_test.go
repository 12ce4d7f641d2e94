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
	"circulation/internal/circulation/handler/mocks"
	"circulation/internal/circulation/models"
	"circulation/internal/circulation/service"
	"circulation/pkg/domain"
	dErrors "circulation/pkg/domain-errors"
	"circulation/pkg/testutil"
)

type CirculationHandlerSuite struct {
	suite.Suite
}

func TestCirculationHandlerSuite(t *testing.T) {
	suite.Run(t, new(CirculationHandlerSuite))
}

func (s *CirculationHandlerSuite) newHandler(t *testing.T) (*mocks.MockService, chi.Router) {
	ctrl := gomock.NewController(t)
	mockService := mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(mockService, access.NewGuard(), logger)
	router := chi.NewRouter()
	h.Register(router)
	return mockService, router
}

func asLibrarian(req *http.Request) *http.Request {
	return testutil.WithPrincipal(req, domain.NewMemberID(), domain.RoleLibrarian)
}

func (s *CirculationHandlerSuite) TestIssue() {
	memberID, bookID := domain.NewMemberID(), domain.NewBookID()
	body := map[string]any{"member_id": memberID.String(), "book_id": bookID.String()}

	s.T().Run("201 with open transaction", func(t *testing.T) {
		svc, router := s.newHandler(t)
		txn := models.NewTransaction(domain.NewTransactionID(), memberID, bookID, time.Now())
		svc.EXPECT().Issue(gomock.Any(), memberID, bookID).Return(txn, nil)

		rr := testutil.DoRequest(router, asLibrarian(testutil.NewJSONRequest(t, http.MethodPost, "/transactions/issue", body)))

		testutil.AssertStatus(t, rr, http.StatusCreated)
		got := testutil.UnmarshalResponse[TransactionResponse](t, rr)
		assert.Equal(t, txn.ID.String(), got.ID)
		assert.Equal(t, "OPEN", got.Status)
		assert.False(t, got.Returned)
		assert.Nil(t, got.Fee)
	})

	s.T().Run("409 for each circulation rejection", func(t *testing.T) {
		for _, code := range []dErrors.Code{dErrors.CodeOutOfStock, dErrors.CodeDuplicateLoan, dErrors.CodeDebtLimitExceeded} {
			svc, router := s.newHandler(t)
			svc.EXPECT().Issue(gomock.Any(), memberID, bookID).Return(nil, dErrors.New(code, "rejected"))

			rr := testutil.DoRequest(router, asLibrarian(testutil.NewJSONRequest(t, http.MethodPost, "/transactions/issue", body)))
			testutil.AssertStatusAndError(t, rr, http.StatusConflict, string(code))
		}
	})

	s.T().Run("404 for unknown book", func(t *testing.T) {
		svc, router := s.newHandler(t)
		svc.EXPECT().Issue(gomock.Any(), memberID, bookID).Return(nil, dErrors.New(dErrors.CodeNotFound, "book not found"))

		rr := testutil.DoRequest(router, asLibrarian(testutil.NewJSONRequest(t, http.MethodPost, "/transactions/issue", body)))
		testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
	})

	s.T().Run("422 for malformed ids", func(t *testing.T) {
		svc, router := s.newHandler(t)
		svc.EXPECT().Issue(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/transactions/issue", map[string]any{"member_id": "nope", "book_id": bookID.String()})
		rr := testutil.DoRequest(router, asLibrarian(req))
		testutil.AssertStatusAndError(t, rr, http.StatusUnprocessableEntity, "invalid_input")
	})

	s.T().Run("403 for member even with invalid body", func(t *testing.T) {
		svc, router := s.newHandler(t)
		svc.EXPECT().Issue(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/transactions/issue", map[string]any{"member_id": "nope"})
		rr := testutil.DoRequest(router, testutil.WithPrincipal(req, memberID, domain.RoleMember))
		testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
	})
}

func (s *CirculationHandlerSuite) TestReturn() {
	txnID := domain.NewTransactionID()
	body := map[string]any{"transaction_id": txnID.String()}

	s.T().Run("200 with fee and days held", func(t *testing.T) {
		svc, router := s.newHandler(t)
		issued := time.Now().Add(-48 * time.Hour)
		txn := models.NewTransaction(txnID, domain.NewMemberID(), domain.NewBookID(), issued)
		txn.ApplyReturn(time.Now(), decimal.NewFromInt(20))
		svc.EXPECT().Return(gomock.Any(), txnID).Return(&service.ReturnResult{
			Transaction: txn, DaysHeld: 2, Fee: decimal.NewFromInt(20),
		}, nil)

		rr := testutil.DoRequest(router, asLibrarian(testutil.NewJSONRequest(t, http.MethodPost, "/transactions/return", body)))

		testutil.AssertStatus(t, rr, http.StatusOK)
		got := testutil.UnmarshalResponse[ReturnResponse](t, rr)
		assert.Equal(t, int64(2), got.DaysHeld)
		assert.Equal(t, "20.00", got.Fee)
		assert.True(t, got.Transaction.Returned)
		assert.Equal(t, "CLOSED", got.Transaction.Status)
		require.NotNil(t, got.Transaction.Fee)
		assert.Equal(t, "20.00", *got.Transaction.Fee)
	})

	s.T().Run("409 when already returned", func(t *testing.T) {
		svc, router := s.newHandler(t)
		svc.EXPECT().Return(gomock.Any(), txnID).Return(nil, dErrors.New(dErrors.CodeAlreadyReturned, "transaction is already returned"))

		rr := testutil.DoRequest(router, asLibrarian(testutil.NewJSONRequest(t, http.MethodPost, "/transactions/return", body)))
		testutil.AssertStatusAndError(t, rr, http.StatusConflict, "already_returned")
	})

	s.T().Run("400 for unknown fields", func(t *testing.T) {
		svc, router := s.newHandler(t)
		svc.EXPECT().Return(gomock.Any(), gomock.Any()).Times(0)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/transactions/return", map[string]any{"id": txnID.String()})
		rr := testutil.DoRequest(router, asLibrarian(req))
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "bad_request")
	})
}

func (s *CirculationHandlerSuite) TestOutstanding() {
	s.T().Run("member lists own loans", func(t *testing.T) {
		svc, router := s.newHandler(t)
		memberID := domain.NewMemberID()
		txns := []*models.Transaction{models.NewTransaction(domain.NewTransactionID(), memberID, domain.NewBookID(), time.Now())}
		svc.EXPECT().ListOutstanding(gomock.Any(), (*domain.MemberID)(nil)).Return(iter.Seq[*models.Transaction](slices.Values(txns)), nil)

		req := testutil.NewJSONRequest(t, http.MethodGet, "/transactions/outstanding", nil)
		rr := testutil.DoRequest(router, testutil.WithPrincipal(req, memberID, domain.RoleMember))

		testutil.AssertStatus(t, rr, http.StatusOK)
		got := testutil.UnmarshalResponse[TransactionListResponse](t, rr)
		require.Len(t, got.Transactions, 1)
		assert.Equal(t, memberID.String(), got.Transactions[0].MemberID)
	})

	s.T().Run("filter is passed through", func(t *testing.T) {
		svc, router := s.newHandler(t)
		filter := domain.NewMemberID()
		svc.EXPECT().ListOutstanding(gomock.Any(), &filter).Return(iter.Seq[*models.Transaction](slices.Values([]*models.Transaction{})), nil)

		req := testutil.NewJSONRequest(t, http.MethodGet, "/transactions/outstanding?member_id="+filter.String(), nil)
		rr := testutil.DoRequest(router, asLibrarian(req))

		testutil.AssertStatus(t, rr, http.StatusOK)
		got := testutil.UnmarshalResponse[TransactionListResponse](t, rr)
		assert.Empty(t, got.Transactions)
	})

	s.T().Run("403 when a member names someone else", func(t *testing.T) {
		svc, router := s.newHandler(t)
		svc.EXPECT().ListOutstanding(gomock.Any(), gomock.Any()).Return(nil, dErrors.New(dErrors.CodeForbidden, "cannot read another member's loans"))

		req := testutil.NewJSONRequest(t, http.MethodGet, "/transactions/outstanding?member_id="+domain.NewMemberID().String(), nil)
		rr := testutil.DoRequest(router, testutil.WithPrincipal(req, domain.NewMemberID(), domain.RoleMember))
		testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
	})

	s.T().Run("403 for anonymous caller", func(t *testing.T) {
		svc, router := s.newHandler(t)
		svc.EXPECT().ListOutstanding(gomock.Any(), gomock.Any()).Times(0)

		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/transactions/outstanding", nil))
		testutil.AssertStatus(t, rr, http.StatusForbidden)
	})
}

func (s *CirculationHandlerSuite) TestHistory() {
	s.T().Run("lists enriched transactions", func(t *testing.T) {
		svc, router := s.newHandler(t)
		txn := models.NewTransaction(domain.NewTransactionID(), domain.NewMemberID(), domain.NewBookID(), time.Now())
		svc.EXPECT().ListTransactions(gomock.Any()).Return([]service.TransactionView{
			{Transaction: txn, BookTitle: "Dune", MemberName: "Ada"},
		}, nil)

		rr := testutil.DoRequest(router, asLibrarian(testutil.NewJSONRequest(t, http.MethodGet, "/transactions", nil)))

		testutil.AssertStatus(t, rr, http.StatusOK)
		got := testutil.UnmarshalResponse[TransactionHistoryResponse](t, rr)
		require.Len(t, got.Transactions, 1)
		assert.Equal(t, "Dune", got.Transactions[0].BookTitle)
		assert.Equal(t, "Ada", got.Transactions[0].MemberName)
		assert.Equal(t, txn.ID.String(), got.Transactions[0].ID)
	})

	s.T().Run("get by id", func(t *testing.T) {
		svc, router := s.newHandler(t)
		txn := models.NewTransaction(domain.NewTransactionID(), domain.NewMemberID(), domain.NewBookID(), time.Now())
		svc.EXPECT().GetTransaction(gomock.Any(), txn.ID).Return(txn, nil)

		rr := testutil.DoRequest(router, asLibrarian(testutil.NewJSONRequest(t, http.MethodGet, "/transactions/"+txn.ID.String(), nil)))
		testutil.AssertStatus(t, rr, http.StatusOK)
	})

	s.T().Run("member may not read history", func(t *testing.T) {
		svc, router := s.newHandler(t)
		svc.EXPECT().ListTransactions(gomock.Any()).Times(0)

		req := testutil.NewJSONRequest(t, http.MethodGet, "/transactions", nil)
		rr := testutil.DoRequest(router, testutil.WithPrincipal(req, domain.NewMemberID(), domain.RoleMember))
		testutil.AssertStatus(t, rr, http.StatusForbidden)
	})
}
