package auth

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	ResponseField(field string) (any, error)
	LastStatus() int
	LastBody() []byte
	Token() string
	SetToken(token string)
	Save(name, value string)
	Saved(name string) string
	Expand(s string) string
}

// RegisterSteps registers login and logout steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &authSteps{tc: tc}

	ctx.Step(`^I am logged in as the librarian$`, steps.loginAsLibrarian)
	ctx.Step(`^I log in as "([^"]*)" with password "([^"]*)"$`, steps.login)
	ctx.Step(`^I attempt to log in as "([^"]*)" with password "([^"]*)"$`, steps.attemptLogin)
	ctx.Step(`^I fail to log in as "([^"]*)" (\d+) times$`, steps.failLoginNTimes)
	ctx.Step(`^I save my token as "([^"]*)"$`, steps.saveToken)
	ctx.Step(`^I use the token "([^"]*)"$`, steps.useToken)
	ctx.Step(`^I log out$`, steps.logout)
}

type authSteps struct {
	tc TestContext
}

func (s *authSteps) loginAsLibrarian(ctx context.Context) error {
	return s.login(ctx, envOr("E2E_LIBRARIAN_EMAIL", "librarian@library.test"), envOr("E2E_LIBRARIAN_PASSWORD", "librarian-password"))
}

func (s *authSteps) login(ctx context.Context, email, password string) error {
	if err := s.attemptLogin(ctx, email, password); err != nil {
		return err
	}
	if s.tc.LastStatus() != http.StatusOK {
		return fmt.Errorf("login as %s failed with %d: %s", email, s.tc.LastStatus(), s.tc.LastBody())
	}
	token, err := s.tc.ResponseField("access_token")
	if err != nil {
		return err
	}
	s.tc.SetToken(fmt.Sprint(token))
	return nil
}

func (s *authSteps) attemptLogin(ctx context.Context, email, password string) error {
	s.tc.SetToken("")
	return s.tc.POST("/auth/login", map[string]string{
		"email":    s.tc.Expand(email),
		"password": password,
	})
}

func (s *authSteps) failLoginNTimes(ctx context.Context, email string, n int) error {
	for i := range n {
		if err := s.attemptLogin(ctx, email, "definitely-wrong"); err != nil {
			return err
		}
		if s.tc.LastStatus() != http.StatusUnauthorized {
			return fmt.Errorf("attempt %d: expected 401, got %d", i+1, s.tc.LastStatus())
		}
	}
	return nil
}

func (s *authSteps) saveToken(ctx context.Context, name string) error {
	s.tc.Save("token:"+name, s.tc.Token())
	return nil
}

func (s *authSteps) useToken(ctx context.Context, name string) error {
	token := s.tc.Saved("token:" + name)
	if token == "" {
		return fmt.Errorf("no token saved as %q", name)
	}
	s.tc.SetToken(token)
	return nil
}

func (s *authSteps) logout(ctx context.Context) error {
	return s.tc.POST("/auth/logout", nil)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
