package circulation

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	GET(path string) error
	ResponseField(field string) (any, error)
	LastStatus() int
	LastBody() []byte
	Save(name, value string)
	Saved(name string) string
	Expand(s string) string
}

// RegisterSteps registers catalog, directory and loan steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &circulationSteps{tc: tc}

	ctx.Step(`^a book "([^"]*)" with stock (\d+) and a daily fee of "([^"]*)"$`, steps.createBook)
	ctx.Step(`^a member "([^"]*)" with email "([^"]*)" and password "([^"]*)"$`, steps.createMember)
	ctx.Step(`^I issue "([^"]*)" to "([^"]*)"$`, steps.issue)
	ctx.Step(`^I return the loan of "([^"]*)" to "([^"]*)"$`, steps.returnLoan)
	ctx.Step(`^"([^"]*)" should have stock (\d+)$`, steps.stockShouldBe)
	ctx.Step(`^"([^"]*)" should owe "([^"]*)"$`, steps.debtShouldBe)
}

type circulationSteps struct {
	tc TestContext
}

func (s *circulationSteps) createBook(ctx context.Context, title string, stock int, fee string) error {
	if err := s.tc.POST("/books", map[string]any{
		"title":       title,
		"author":      "E2E",
		"stock":       stock,
		"per_day_fee": fee,
	}); err != nil {
		return err
	}
	return s.saveID(http.StatusCreated, "book:"+title)
}

func (s *circulationSteps) createMember(ctx context.Context, name, email, password string) error {
	if err := s.tc.POST("/members", map[string]any{
		"name":     name,
		"email":    s.tc.Expand(email),
		"password": password,
	}); err != nil {
		return err
	}
	return s.saveID(http.StatusCreated, "member:"+name)
}

func (s *circulationSteps) issue(ctx context.Context, title, member string) error {
	if err := s.tc.POST("/transactions/issue", map[string]string{
		"member_id": s.tc.Saved("member:" + member),
		"book_id":   s.tc.Saved("book:" + title),
	}); err != nil {
		return err
	}
	if s.tc.LastStatus() == http.StatusCreated {
		return s.saveID(http.StatusCreated, "loan:"+title+":"+member)
	}
	return nil
}

func (s *circulationSteps) returnLoan(ctx context.Context, title, member string) error {
	id := s.tc.Saved("loan:" + title + ":" + member)
	if id == "" {
		return fmt.Errorf("no loan of %q to %q was issued in this scenario", title, member)
	}
	return s.tc.POST("/transactions/return", map[string]string{"transaction_id": id})
}

func (s *circulationSteps) stockShouldBe(ctx context.Context, title string, want int) error {
	if err := s.tc.GET("/books/" + s.tc.Saved("book:"+title)); err != nil {
		return err
	}
	got, err := s.tc.ResponseField("stock")
	if err != nil {
		return err
	}
	if fmt.Sprint(got) != strconv.Itoa(want) {
		return fmt.Errorf("stock of %q: expected %d, got %v", title, want, got)
	}
	return nil
}

func (s *circulationSteps) debtShouldBe(ctx context.Context, member, want string) error {
	if err := s.tc.GET("/members/" + s.tc.Saved("member:"+member)); err != nil {
		return err
	}
	got, err := s.tc.ResponseField("debt")
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("debt of %q: expected %s, got %v", member, want, got)
	}
	return nil
}

func (s *circulationSteps) saveID(wantStatus int, name string) error {
	if s.tc.LastStatus() != wantStatus {
		return fmt.Errorf("expected %d, got %d: %s", wantStatus, s.tc.LastStatus(), s.tc.LastBody())
	}
	id, err := s.tc.ResponseField("id")
	if err != nil {
		return err
	}
	s.tc.Save(name, fmt.Sprint(id))
	return nil
}
