// Package auth implements account registration, login and JWT issuance.
package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/ridgeline-labs/minicrm/internal/app/domain/org"
	"github.com/ridgeline-labs/minicrm/internal/app/domain/user"
	"github.com/ridgeline-labs/minicrm/internal/app/storage"
	"github.com/ridgeline-labs/minicrm/internal/errors"
	"github.com/ridgeline-labs/minicrm/pkg/logger"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// TokenPair is the credential set returned by register, login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// RegisterInput creates a user together with their first organization.
type RegisterInput struct {
	Email            string
	Password         string
	Name             string
	OrganizationName string
}

// RegisterResult is the outcome of a successful registration.
type RegisterResult struct {
	User         user.User        `json:"user"`
	Organization org.Organization `json:"organization"`
	Tokens       TokenPair        `json:"tokens"`
}

// Service issues and verifies credentials.
type Service struct {
	users      storage.UserStore
	tx         storage.TxRunner
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	log        *logger.Logger
}

// New constructs an auth service.
func New(users storage.UserStore, tx storage.TxRunner, secret string, accessTTL, refreshTTL time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &Service{
		users:      users,
		tx:         tx,
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		log:        log,
	}
}

// Register creates the user, their organization and the owner membership in
// one transaction, then issues a token pair.
func (s *Service) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	name := strings.TrimSpace(in.Name)
	orgName := strings.TrimSpace(in.OrganizationName)

	if !strings.Contains(email, "@") || len(email) < 3 {
		return RegisterResult{}, errors.Validation("a valid email is required")
	}
	if len(in.Password) < 8 {
		return RegisterResult{}, errors.Validation("password must be at least 8 characters")
	}
	if orgName == "" {
		return RegisterResult{}, errors.Validation("organization name is required")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return RegisterResult{}, errors.Internal("hash password", err)
	}

	var result RegisterResult
	err = s.tx.InTx(ctx, func(stores storage.Stores) error {
		created, err := stores.Users.CreateUser(ctx, user.User{
			Email:          email,
			HashedPassword: string(hashed),
			Name:           name,
		})
		if err != nil {
			if stderrors.Is(err, storage.ErrDuplicate) {
				return errors.Conflict("email already registered")
			}
			return err
		}

		createdOrg, err := stores.Organizations.CreateOrganization(ctx, org.Organization{Name: orgName})
		if err != nil {
			if stderrors.Is(err, storage.ErrDuplicate) {
				return errors.Conflict("organization name already taken")
			}
			return err
		}

		if _, err := stores.Organizations.AddMember(ctx, org.Membership{
			OrganizationID: createdOrg.ID,
			UserID:         created.ID,
			Role:           org.RoleOwner,
		}); err != nil {
			return err
		}

		result.User = created
		result.Organization = createdOrg
		return nil
	})
	if err != nil {
		return RegisterResult{}, err
	}

	tokens, err := s.issueTokens(result.User.ID)
	if err != nil {
		return RegisterResult{}, err
	}
	result.Tokens = tokens

	s.log.WithField("user_id", result.User.ID).
		WithField("organization_id", result.Organization.ID).
		Info("user registered")
	return result, nil
}

// Login verifies the credentials and issues a fresh token pair.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return TokenPair{}, errors.Unauthorized("invalid credentials")
		}
		return TokenPair{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(password)); err != nil {
		return TokenPair{}, errors.Unauthorized("invalid credentials")
	}

	tokens, err := s.issueTokens(u.ID)
	if err != nil {
		return TokenPair{}, err
	}

	s.log.WithField("user_id", u.ID).Info("user logged in")
	return tokens, nil
}

// Refresh exchanges a valid refresh token for a new pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	userID, err := s.parseToken(refreshToken, tokenTypeRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return TokenPair{}, errors.InvalidToken(nil)
		}
		return TokenPair{}, err
	}
	return s.issueTokens(userID)
}

// VerifyAccessToken returns the user ID carried by a valid access token.
func (s *Service) VerifyAccessToken(token string) (int64, error) {
	return s.parseToken(token, tokenTypeAccess)
}

type claims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

func (s *Service) issueTokens(userID int64) (TokenPair, error) {
	access, err := s.signToken(userID, tokenTypeAccess, s.accessTTL)
	if err != nil {
		return TokenPair{}, errors.Internal("sign access token", err)
	}
	refresh, err := s.signToken(userID, tokenTypeRefresh, s.refreshTTL)
	if err != nil {
		return TokenPair{}, errors.Internal("sign refresh token", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}

func (s *Service) signToken(userID int64, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	return token.SignedString(s.secret)
}

func (s *Service) parseToken(raw, wantType string) (int64, error) {
	parsed, err := jwt.ParseWithClaims(raw, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return 0, errors.InvalidToken(err)
	}
	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid {
		return 0, errors.InvalidToken(nil)
	}
	if c.TokenType != wantType {
		return 0, errors.InvalidToken(nil).WithDetails("reason", "wrong token type")
	}
	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, errors.InvalidToken(err)
	}
	return userID, nil
}
