package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/net/websocket"
)

const ErrTypeUnauthorized = "unauthorized"

// VerifyAuthToken returns a websocket handshake that rejects connections not
// carrying the given bearer token. An empty token accepts everything.
func VerifyAuthToken(token string) func(*websocket.Config, *http.Request) error {
	return func(c *websocket.Config, r *http.Request) error {
		if err := verifyToken(token, r); err != nil {
			logs.Warn(errors.New("websocket handshake rejected").
				WithTag("remote_addr", r.RemoteAddr).
				Wrap(err))
			return err
		}
		return nil
	}
}

// VerifyAuthTokenHandler answers 401 to requests not carrying the given bearer
// token. An empty token accepts everything.
func VerifyAuthTokenHandler(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := verifyToken(token, r); err != nil {
			logs.Warn(errors.New("request rejected").
				WithTag("remote_addr", r.RemoteAddr).
				Wrap(err))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func verifyToken(token string, r *http.Request) error {
	if token == "" {
		return nil
	}

	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
		return errors.New("invalid auth token").
			WithType(ErrTypeUnauthorized).
			WithTag("path", r.URL.Path)
	}
	return nil
}
