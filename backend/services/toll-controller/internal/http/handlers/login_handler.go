package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"tollbooth/backend/services/toll-controller/internal/service"
)

// Authenticator logs the booth operator in.
type Authenticator interface {
	Login(operator, password string) (string, error)
}

// NewLoginHandler handles POST /auth/login.
func NewLoginHandler(auth Authenticator, logger *zap.Logger) http.HandlerFunc {
	type request struct {
		Operator string `json:"operator"`
		Password string `json:"password"`
	}
	type response struct {
		Token     string `json:"token"`
		TokenType string `json:"token_type"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		req.Operator = strings.TrimSpace(req.Operator)
		if req.Operator == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "operator and password are required")
			return
		}

		token, err := auth.Login(req.Operator, req.Password)
		if err != nil {
			if errors.Is(err, service.ErrInvalidCredentials) {
				writeError(w, http.StatusUnauthorized, "invalid credentials")
				return
			}
			logger.Error("login failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to login")
			return
		}

		writeJSON(w, http.StatusOK, response{
			Token:     token,
			TokenType: "Bearer",
		})
	}
}
