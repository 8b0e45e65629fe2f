package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"docshare/internal/auth/token"
	"docshare/internal/user/model"
	"docshare/internal/user/repository"
	"docshare/pkg/apperror"
	"docshare/pkg/clock"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 30
	minPasswordLen = 6
	maxPasswordLen = 200

	// bcrypt only reads this many bytes and refuses longer input.
	bcryptMaxBytes = 72
)

var errBadCredentials = apperror.Unauthorized("Invalid credentials")

type UserService struct {
	Repo       repository.Repository
	Tokens     *token.Manager
	BcryptCost int
	Clock      clock.Clock
}

func NewUserService(repo repository.Repository, tokens *token.Manager, bcryptCost int, c clock.Clock) *UserService {
	if c == nil {
		c = clock.Real{}
	}
	return &UserService{Repo: repo, Tokens: tokens, BcryptCost: bcryptCost, Clock: c}
}

// Register creates an account and returns it with a fresh bearer token.
func (s *UserService) Register(ctx context.Context, req model.RegisterRequest) (*model.AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	username := strings.TrimSpace(req.Username)

	if !ValidEmail(email) {
		return nil, apperror.Validation("Invalid input: email must be a valid address")
	}
	if n := utf8.RuneCountInString(username); n < minUsernameLen || n > maxUsernameLen {
		return nil, apperror.Validation(fmt.Sprintf("Invalid input: username must be %d-%d characters", minUsernameLen, maxUsernameLen))
	}
	if n := utf8.RuneCountInString(req.Password); n < minPasswordLen || n > maxPasswordLen {
		return nil, apperror.Validation(fmt.Sprintf("Invalid input: password must be %d-%d characters", minPasswordLen, maxPasswordLen))
	}

	hash, err := bcrypt.GenerateFromPassword(bcryptInput(req.Password), s.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.Clock.Now()
	user := &model.User{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Repo.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrDuplicate) {
			return nil, apperror.Duplicate("Email or username already in use")
		}
		return nil, err
	}

	return s.authResponse(user)
}

// Login accepts an email or a username in req.Login.
func (s *UserService) Login(ctx context.Context, req model.LoginRequest) (*model.AuthResponse, error) {
	login := strings.TrimSpace(req.Login)
	if login == "" || req.Password == "" {
		return nil, apperror.Validation("Invalid input: login and password are required")
	}

	user, err := s.Repo.FindByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, errBadCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), bcryptInput(req.Password)); err != nil {
		return nil, errBadCredentials
	}

	return s.authResponse(user)
}

// Me loads the account behind an authenticated token. A token whose user no
// longer exists is treated as unauthenticated.
func (s *UserService) Me(ctx context.Context, userID string) (*model.PublicUser, error) {
	user, err := s.Repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized("Unauthorized")
		}
		return nil, err
	}
	pub := user.Public()
	return &pub, nil
}

// FindByEmail resolves an email to a user, case-insensitively.
func (s *UserService) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.Repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
}

func (s *UserService) authResponse(user *model.User) (*model.AuthResponse, error) {
	tok, err := s.Tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &model.AuthResponse{Token: tok, User: user.Public()}, nil
}

// bcryptInput cuts a password to the bytes bcrypt actually hashes, so
// passwords up to maxPasswordLen are accepted on both register and login.
func bcryptInput(password string) []byte {
	b := []byte(password)
	if len(b) > bcryptMaxBytes {
		b = b[:bcryptMaxBytes]
	}
	return b
}

// ValidEmail reports whether s is a bare address such as "a@b.c".
func ValidEmail(s string) bool {
	if s == "" || strings.ContainsAny(s, " <>") {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	return at > 0 && strings.Contains(s[at+1:], ".")
}
