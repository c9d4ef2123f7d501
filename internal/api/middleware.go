package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwt"
)

type key string

const KeyUserID key = "userID"

func NewContext(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, KeyUserID, userID)
}

// FromContext returns the authenticated caller, or uuid.Nil outside Authenticate.
func FromContext(ctx context.Context) uuid.UUID {
	userID, _ := ctx.Value(KeyUserID).(uuid.UUID)
	return userID
}

func Authenticate(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if len(authHeader) == 0 {
				writeError(w, http.StatusUnauthorized, "No Authorization header")
				return
			}
			h := strings.SplitN(authHeader, " ", 2)
			if len(h) != 2 || strings.ToLower(h[0]) != "bearer" {
				writeError(w, http.StatusUnauthorized, "Incorrect header")
				return
			}
			token, err := jwt.ParseString(h[1], jwt.WithVerify(jwa.HS256, secret), jwt.WithValidate(true))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Verification token error")
				return
			}
			userID, err := uuid.Parse(token.Subject())
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Parsing token error")
				return
			}

			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), userID)))
		})
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeResponse(w, code, Error{Code: code, Message: message})
}

func writeResponse(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	b, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"code":500,"message":"Internal server error"}`))
		return
	}
	w.WriteHeader(code)
	w.Write(b)
}
