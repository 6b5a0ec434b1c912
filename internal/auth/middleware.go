package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

const challenge = `Bearer realm="fruit-bridge"`

// Middleware authenticates status API requests and enforces the policy.
type Middleware struct {
	verifier *Verifier
	policy   Policy
	logger   logrus.FieldLogger
}

// NewMiddleware constructs the auth middleware.
func NewMiddleware(verifier *Verifier, policy Policy, logger logrus.FieldLogger) (*Middleware, error) {
	if verifier == nil {
		return nil, errors.New("auth: nil verifier")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Middleware{verifier: verifier, policy: policy, logger: logger.WithField("component", "auth")}, nil
}

// Wrap applies authentication and role checks to next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		required, guarded := m.policy.Required(r.URL.Path)
		if !guarded {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := m.verifier.Verify(bearerToken(r.Header.Get("Authorization")))
		if err != nil {
			m.logger.WithError(err).WithField("path", r.URL.Path).Debug("request rejected")
			w.Header().Set("WWW-Authenticate", challenge)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !identity.Role.Covers(required) {
			m.logger.WithFields(logrus.Fields{
				"path":     r.URL.Path,
				"subject":  identity.Subject,
				"role":     identity.Role,
				"required": required,
			}).Info("request forbidden")
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
