package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"stealwatch/internal/auth/jwt"
	"stealwatch/internal/auth/models"
	"stealwatch/internal/auth/service"
	"stealwatch/internal/auth/store"
	"stealwatch/pkg/testutil"
)

const testAdminToken = "test-admin-token"

type AuthHandlerSuite struct {
	suite.Suite
	router chi.Router
	users  *store.MemoryStore
}

func TestAuthHandlerSuite(t *testing.T) {
	suite.Run(t, new(AuthHandlerSuite))
}

func (s *AuthHandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.users = store.NewMemory()

	tokens := jwt.NewService("test-signing-key", "stealwatch-test", time.Hour)
	svc, err := service.New(s.users, tokens, service.WithLogger(logger))
	s.Require().NoError(err)

	h := New(svc, testAdminToken, logger)
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *AuthHandlerSuite) createUser(username, password string) {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/users", map[string]string{
		"username": username,
		"password": password,
	})
	req.Header.Set("X-Admin-Token", testAdminToken)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
}

func (s *AuthHandlerSuite) TestLoginFlow() {
	s.createUser("analyst1", "correct horse battery")

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/login", map[string]string{
		"username": "analyst1",
		"password": "correct horse battery",
	})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	result := testutil.UnmarshalResponse[service.LoginResult](s.T(), rr)
	s.NotEmpty(result.Token)
	s.Equal(int(time.Hour.Seconds()), result.ExpiresIn)
	s.Require().NotNil(result.User)
	s.Equal("analyst1", result.User.Username)
	s.Equal(models.RoleAnalyst, result.User.Role)
}

func (s *AuthHandlerSuite) TestLoginResponseNeverLeaksPasswordHash() {
	s.createUser("analyst1", "correct horse battery")

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/login", map[string]string{
		"username": "analyst1",
		"password": "correct horse battery",
	})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.NotContains(rr.Body.String(), "$2a$")
	s.NotContains(rr.Body.String(), "password_hash")
}

func (s *AuthHandlerSuite) TestLoginRejectsBadCredentials() {
	s.createUser("analyst1", "correct horse battery")

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/login", map[string]string{
		"username": "analyst1",
		"password": "wrong",
	})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
	testutil.AssertErrorCode(s.T(), rr, "unauthorized")
}

func (s *AuthHandlerSuite) TestLoginRejectsMalformedBody() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/login", nil)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
}

func (s *AuthHandlerSuite) TestCreateUserRequiresAdminToken() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/users", map[string]string{
		"username": "analyst1",
		"password": "correct horse battery",
	})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
}

func (s *AuthHandlerSuite) TestCreateUserValidation() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/api/users", map[string]string{
		"username": "analyst1",
		"password": "short",
	})
	req.Header.Set("X-Admin-Token", testAdminToken)
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
}
