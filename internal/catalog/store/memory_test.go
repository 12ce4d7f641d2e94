package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"circulation/internal/catalog/models"
	"circulation/pkg/domain"
	"circulation/pkg/platform/sentinel"
)

type BookStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestBookStoreSuite(t *testing.T) {
	suite.Run(t, new(BookStoreSuite))
}

func (s *BookStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *BookStoreSuite) newBook(title string, stock int) *models.Book {
	now := time.Now()
	return &models.Book{
		ID:        domain.NewBookID(),
		Title:     title,
		Author:    "Author",
		Stock:     stock,
		PerDayFee: decimal.NewFromInt(10),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *BookStoreSuite) TestCreateAndFind() {
	book := s.newBook("Dune", 2)
	s.Require().NoError(s.store.Create(s.ctx, book))

	found, err := s.store.FindByID(s.ctx, book.ID)
	s.Require().NoError(err)
	s.Equal("Dune", found.Title)

	s.Run("returned book does not alias store state", func() {
		found.Stock = 99
		again, err := s.store.FindByID(s.ctx, book.ID)
		s.Require().NoError(err)
		s.Equal(2, again.Stock)
	})

	s.Run("unknown id is ErrNotFound", func() {
		_, err := s.store.FindByID(s.ctx, domain.NewBookID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *BookStoreSuite) TestStockBounds() {
	book := s.newBook("Emma", 1)
	s.Require().NoError(s.store.Create(s.ctx, book))

	b, err := s.store.DecrementStock(s.ctx, book.ID)
	s.Require().NoError(err)
	s.Equal(0, b.Stock)

	_, err = s.store.DecrementStock(s.ctx, book.ID)
	s.ErrorIs(err, sentinel.ErrInvalidState)

	b, err = s.store.IncrementStock(s.ctx, book.ID)
	s.Require().NoError(err)
	s.Equal(1, b.Stock)

	_, err = s.store.IncrementStock(s.ctx, domain.NewBookID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *BookStoreSuite) TestConcurrentDecrementNeverGoesNegative() {
	book := s.newBook("Ulysses", 5)
	s.Require().NoError(s.store.Create(s.ctx, book))

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.store.DecrementStock(s.ctx, book.ID); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(5), succeeded.Load())
	found, err := s.store.FindByID(s.ctx, book.ID)
	s.Require().NoError(err)
	s.Equal(0, found.Stock)
}

func (s *BookStoreSuite) TestUpdateDeleteList() {
	first := s.newBook("A", 1)
	second := s.newBook("B", 1)
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	s.Require().NoError(s.store.Create(s.ctx, first))
	s.Require().NoError(s.store.Create(s.ctx, second))

	first.Title = "A2"
	s.Require().NoError(s.store.Update(s.ctx, first))

	books, err := s.store.ListAll(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(books, 2)
	s.Equal("A2", books[0].Title)
	s.Equal("B", books[1].Title)

	s.Require().NoError(s.store.Delete(s.ctx, first.ID))
	s.ErrorIs(s.store.Delete(s.ctx, first.ID), sentinel.ErrNotFound)
	s.ErrorIs(s.store.Update(s.ctx, first), sentinel.ErrNotFound)
}

func (s *BookStoreSuite) TestFindByIDs() {
	a, b := s.newBook("Dune", 1), s.newBook("Emma", 0)
	s.Require().NoError(s.store.Create(s.ctx, a))
	s.Require().NoError(s.store.Create(s.ctx, b))

	found, err := s.store.FindByIDs(s.ctx, []domain.BookID{a.ID, b.ID, domain.NewBookID()})
	s.Require().NoError(err)
	s.Len(found, 2)
	s.Equal("Emma", found[b.ID].Title)

	empty, err := s.store.FindByIDs(s.ctx, nil)
	s.Require().NoError(err)
	s.Empty(empty)
}
