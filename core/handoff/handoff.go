// Package handoff moves an authenticated session from one host to another
// (e.g. auth.edapp.co.za -> {tenant}.edapp.co.za) through single-use codes.
package handoff

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/pkg/errors"
)

const (
	DefaultTTL = 60 * time.Second
	codeLen    = 24 // bytes
)

var (
	// ErrInvalidCode is returned for unknown, expired and already redeemed codes.
	ErrInvalidCode = errors.New("invalid handoff code")
	// ErrTenantMismatch is returned when a code is presented for another tenant than its own.
	// The code stays redeemable.
	ErrTenantMismatch = errors.New("handoff code issued for another tenant")
)

type (
	// Grant is what a code stands for.
	Grant struct {
		UserID       string `json:"user_id"`
		TenantID     string `json:"tenant_id"`
		TenantSlug   string `json:"tenant"`
		OrigIssuedAt int64  `json:"oriat"` // of the session being handed off
	}

	// Store keeps codes until they expire. Take must be atomic: a code is redeemed at most once.
	Store interface {
		Put(ctx context.Context, code string, g Grant, ttl time.Duration) error
		Peek(ctx context.Context, code string) (Grant, error)
		Take(ctx context.Context, code string) (Grant, error)
	}

	Service struct {
		store Store
		ttl   time.Duration
	}
)

func NewService(store Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{store: store, ttl: ttl}
}

// Issue stores `g` behind a new random code.
func (svc *Service) Issue(ctx context.Context, g Grant) (string, error) {
	buf := make([]byte, codeLen)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "generating code")
	}
	code := base64.RawURLEncoding.EncodeToString(buf)
	if err := svc.store.Put(ctx, code, g, svc.ttl); err != nil {
		return "", errors.Wrap(err, "storing code")
	}
	return code, nil
}

// Redeem consumes `code` on behalf of the tenant `slug`.
// A code presented for another tenant is left untouched.
func (svc *Service) Redeem(ctx context.Context, code, slug string) (Grant, error) {
	if code == "" {
		return Grant{}, ErrInvalidCode
	}
	g, err := svc.store.Peek(ctx, code)
	if err != nil {
		return Grant{}, err
	}
	if g.TenantSlug != slug {
		return Grant{}, ErrTenantMismatch
	}
	return svc.store.Take(ctx, code)
}
