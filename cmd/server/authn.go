package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/Yaswanth9347/ai-dispute-sub002/internal/store"
)

var errUnauthorized = errors.New("unauthorized")

type ctxKey int

const userIDKey ctxKey = iota

// TokenResolver maps an API token hash to a user id.
type TokenResolver interface {
	ResolveToken(ctx context.Context, tokenHash string) (string, error)
}

type authenticator struct {
	tokens TokenResolver
	// dev accepts the bearer token verbatim as the user id. Local
	// development and tests only.
	dev bool
}

func (a authenticator) authenticate(r *http.Request) (string, error) {
	token, ok := parseBearer(r.Header.Get("Authorization"))
	if !ok {
		return "", errUnauthorized
	}
	if a.dev {
		return token, nil
	}
	userID, err := a.tokens.ResolveToken(r.Context(), hashToken(token))
	if err != nil {
		if errors.Is(err, store.ErrTokenNotFound) {
			return "", errUnauthorized
		}
		return "", err
	}
	return userID, nil
}

func parseBearer(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token, token != ""
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func userID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}
