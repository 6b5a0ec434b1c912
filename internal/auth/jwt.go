package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultLeeway tolerates clock drift between the token issuer and the bridge.
const DefaultLeeway = 30 * time.Second

// Claims is the token body accepted by the status API. Device is optional;
// when present it must name the device this bridge serves.
type Claims struct {
	Role   string `json:"role"`
	Device string `json:"device,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 status API tokens for one device.
type Verifier struct {
	secret []byte
	device string
	leeway time.Duration
	now    func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithLeeway overrides DefaultLeeway.
func WithLeeway(leeway time.Duration) VerifierOption {
	return func(v *Verifier) {
		if leeway >= 0 {
			v.leeway = leeway
		}
	}
}

// WithNow overrides the verification clock.
func WithNow(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewVerifier builds a verifier for tokens signed with secret.
func NewVerifier(secret []byte, device string, opts ...VerifierOption) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: empty secret")
	}
	v := &Verifier{
		secret: secret,
		device: device,
		leeway: DefaultLeeway,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify checks signature, expiry (required), role and device binding.
func (v *Verifier) Verify(raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, ErrMissingToken
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	claims := &Claims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	role, err := ParseRole(claims.Role)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %q", err, claims.Role)
	}
	if claims.Device != "" && v.device != "" && claims.Device != v.device {
		return Identity{}, fmt.Errorf("%w: %q", ErrWrongDevice, claims.Device)
	}
	device := claims.Device
	if device == "" {
		device = v.device
	}
	return Identity{Subject: claims.Subject, Role: role, Device: device}, nil
}
