package service

import (
	"crypto/subtle"
	"errors"
	"strings"

	"go.uber.org/zap"

	"tollbooth/backend/services/toll-controller/internal/password"
)

// ErrInvalidCredentials represents a failed operator login.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// OperatorAuth checks the single configured booth operator and issues API tokens.
type OperatorAuth struct {
	operator     string
	passwordHash string
	hasher       password.Hasher
	tokens       *TokenService
	logger       *zap.Logger
}

// NewOperatorAuth builds OperatorAuth.
func NewOperatorAuth(operator, passwordHash string, hasher password.Hasher, tokens *TokenService, logger *zap.Logger) *OperatorAuth {
	return &OperatorAuth{
		operator:     strings.TrimSpace(operator),
		passwordHash: passwordHash,
		hasher:       hasher,
		tokens:       tokens,
		logger:       logger,
	}
}

// Login authenticates the operator and produces a JWT.
func (a *OperatorAuth) Login(operator, pass string) (string, error) {
	operator = strings.TrimSpace(operator)
	if operator == "" || pass == "" {
		return "", ErrInvalidCredentials
	}

	nameOK := subtle.ConstantTimeCompare([]byte(operator), []byte(a.operator)) == 1
	passErr := a.hasher.Compare(a.passwordHash, pass)
	if !nameOK || passErr != nil {
		a.logger.Warn("operator login rejected", zap.String("operator", operator))
		return "", ErrInvalidCredentials
	}

	token, err := a.tokens.GenerateToken(a.operator)
	if err != nil {
		return "", err
	}
	a.logger.Info("operator logged in", zap.String("operator", a.operator))
	return token, nil
}
