package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"github.com/blogem/devkb/models"
	"github.com/blogem/devkb/repositories"
	"github.com/blogem/devkb/repositories/mocks"
	"github.com/blogem/devkb/sessions"
)

// stubIssuer returns a fixed token
type stubIssuer struct{}

func (stubIssuer) Issue(p models.Principal) (string, time.Time, error) {
	return "token-for-" + p.ID, time.Unix(0, 0), nil
}

// AuthServiceTestSuite is a test suite for the AuthService
type AuthServiceTestSuite struct {
	suite.Suite
	ctx      context.Context
	service  AuthService
	store    *sessions.MemoryStore
	userRepo *mocks.MockUserRepository
	admin    *models.User
}

// SetupTest sets up the test suite before each test
func (suite *AuthServiceTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.userRepo = mocks.NewMockUserRepository(suite.T())
	suite.store = sessions.NewMemoryStore()
	suite.service = NewAuthService(suite.userRepo, suite.store, stubIssuer{}, bcrypt.MinCost, nil)

	hash, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.MinCost)
	require.NoError(suite.T(), err)
	suite.admin = &models.User{
		ID:           "1",
		Email:        "admin@example.com",
		Name:         "管理员",
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
	}
}

// TestLogin_Success tests that valid credentials open a session for the user's principal
func (suite *AuthServiceTestSuite) TestLogin_Success() {
	suite.userRepo.EXPECT().GetByEmail(mock.Anything, "admin@example.com").Return(suite.admin, nil)

	// Act
	principal, sessionID, err := suite.service.Login(suite.ctx, models.LoginForm{Email: " Admin@Example.com", Password: "admin123"})

	// Assert
	require.NoError(suite.T(), err)
	assert.NotEmpty(suite.T(), sessionID)
	assert.Equal(suite.T(), suite.admin.Principal(), principal)

	stored, ok, err := suite.store.Get(suite.ctx, sessionID)
	require.NoError(suite.T(), err)
	assert.True(suite.T(), ok)
	assert.Equal(suite.T(), principal, stored)
}

// TestLogin_WrongPassword tests that a wrong password is rejected without a session
func (suite *AuthServiceTestSuite) TestLogin_WrongPassword() {
	suite.userRepo.EXPECT().GetByEmail(mock.Anything, "admin@example.com").Return(suite.admin, nil)

	_, sessionID, err := suite.service.Login(suite.ctx, models.LoginForm{Email: "admin@example.com", Password: "wrong"})

	assert.ErrorIs(suite.T(), err, ErrInvalidCredentials)
	assert.Empty(suite.T(), sessionID)
	n, _ := suite.store.Len(suite.ctx)
	assert.Zero(suite.T(), n)
}

// TestLogin_UnknownUser tests that unknown emails produce the same error as wrong passwords
func (suite *AuthServiceTestSuite) TestLogin_UnknownUser() {
	suite.userRepo.EXPECT().GetByEmail(mock.Anything, "ghost@example.com").
		Return(nil, repositories.ErrNotFound)

	_, _, err := suite.service.Login(suite.ctx, models.LoginForm{Email: "ghost@example.com", Password: "whatever"})

	assert.ErrorIs(suite.T(), err, ErrInvalidCredentials)
}

// TestLogin_ValidationFailure tests that malformed input never reaches the repository
func (suite *AuthServiceTestSuite) TestLogin_ValidationFailure() {
	_, _, err := suite.service.Login(suite.ctx, models.LoginForm{Email: "not-an-email"})

	var ve models.ValidationErrors
	require.ErrorAs(suite.T(), err, &ve)
	assert.Len(suite.T(), ve, 2)
}

// TestLogin_RepositoryError tests that backend failures are wrapped, not masked as bad credentials
func (suite *AuthServiceTestSuite) TestLogin_RepositoryError() {
	expectedError := errors.New("database connection failed")
	suite.userRepo.EXPECT().GetByEmail(mock.Anything, "admin@example.com").Return(nil, expectedError)

	_, _, err := suite.service.Login(suite.ctx, models.LoginForm{Email: "admin@example.com", Password: "admin123"})

	assert.ErrorIs(suite.T(), err, expectedError)
	assert.NotErrorIs(suite.T(), err, ErrInvalidCredentials)
}

// TestLogout tests that logout removes the session and tolerates unknown ids
func (suite *AuthServiceTestSuite) TestLogout() {
	sessionID, err := suite.service.StartSession(suite.ctx, suite.admin.Principal())
	require.NoError(suite.T(), err)

	require.NoError(suite.T(), suite.service.Logout(suite.ctx, sessionID))
	_, ok, err := suite.store.Get(suite.ctx, sessionID)
	require.NoError(suite.T(), err)
	assert.False(suite.T(), ok)

	assert.NoError(suite.T(), suite.service.Logout(suite.ctx, ""))
	assert.NoError(suite.T(), suite.service.Logout(suite.ctx, sessionID))
}

// TestStartSession_FreshSessionPerLogin tests that each login gets its own session
func (suite *AuthServiceTestSuite) TestStartSession_FreshSessionPerLogin() {
	first, err := suite.service.StartSession(suite.ctx, suite.admin.Principal())
	require.NoError(suite.T(), err)
	second, err := suite.service.StartSession(suite.ctx, suite.admin.Principal())
	require.NoError(suite.T(), err)

	assert.NotEqual(suite.T(), first, second)
}

// TestStartSession_InvalidPrincipal tests that principals are validated at the session boundary
func (suite *AuthServiceTestSuite) TestStartSession_InvalidPrincipal() {
	_, err := suite.service.StartSession(suite.ctx, models.Principal{ID: "x"})

	var ve models.ValidationErrors
	assert.ErrorAs(suite.T(), err, &ve)
}

// TestIssueToken tests delegation to the configured issuer
func (suite *AuthServiceTestSuite) TestIssueToken() {
	token, _, err := suite.service.IssueToken(suite.admin.Principal())

	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "token-for-1", token)

	disabled := NewAuthService(suite.userRepo, suite.store, nil, bcrypt.MinCost, nil)
	_, _, err = disabled.IssueToken(suite.admin.Principal())
	assert.ErrorIs(suite.T(), err, ErrTokensDisabled)
}

// TestLookupPrincipal tests email lookup for the token command
func (suite *AuthServiceTestSuite) TestLookupPrincipal() {
	suite.userRepo.EXPECT().GetByEmail(mock.Anything, "admin@example.com").Return(suite.admin, nil)
	suite.userRepo.EXPECT().GetByEmail(mock.Anything, "ghost@example.com").Return(nil, repositories.ErrNotFound)

	principal, err := suite.service.LookupPrincipal(suite.ctx, "ADMIN@example.com ")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "1", principal.ID)
	assert.True(suite.T(), principal.IsAdmin())

	_, err = suite.service.LookupPrincipal(suite.ctx, "ghost@example.com")
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

// TestSeedUsers tests that existing accounts are kept and missing ones are created with a bcrypt hash
func (suite *AuthServiceTestSuite) TestSeedUsers() {
	suite.userRepo.EXPECT().GetByEmail(mock.Anything, "admin@example.com").Return(suite.admin, nil)
	suite.userRepo.EXPECT().GetByEmail(mock.Anything, "user@example.com").Return(nil, repositories.ErrNotFound)
	suite.userRepo.EXPECT().Create(mock.Anything, mock.MatchedBy(func(u *models.User) bool {
		return u.Email == "user@example.com" &&
			u.Role == models.RoleUser &&
			u.ID != "" &&
			bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("user123")) == nil
	})).Return(nil)

	err := suite.service.SeedUsers(suite.ctx, DefaultSeedUsers())

	assert.NoError(suite.T(), err)
}

// TestSeedUsers_LookupError tests that a failing lookup aborts seeding
func (suite *AuthServiceTestSuite) TestSeedUsers_LookupError() {
	suite.userRepo.EXPECT().GetByEmail(mock.Anything, "admin@example.com").Return(nil, errors.New("disk full"))

	err := suite.service.SeedUsers(suite.ctx, DefaultSeedUsers())

	assert.ErrorContains(suite.T(), err, "disk full")
}

// TestAuthServiceTestSuite runs the auth service test suite
func TestAuthServiceTestSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceTestSuite))
}
