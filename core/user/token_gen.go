package user

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

// Password reset tokens look like "<base32 day number>-<signature>".
// The signature covers the user's identity, tenant, password hash and last login,
// so a token dies as soon as any of them changes.

var (
	tokenSalt  = []byte("edapp.core.user.reset_token")
	tokenEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	nowFunc    = time.Now // mockable

	b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// EncodeUID hides the user ID in reset links.
func EncodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(usr.ID))
}

func decodeUID(uid string) (string, error) {
	id, err := base64.RawURLEncoding.DecodeString(uid)
	return string(id), err
}

// MakeToken returns a password reset token for `usr`, valid from today.
func MakeToken(usr User, secretKey []byte) string {
	return resetToken{day: dayNumber(nowFunc()), secretKey: secretKey}.sign(usr)
}

// verifyToken checks `token` against `usr`; tokens older than `timeout` are expired.
func verifyToken(usr User, token string, secretKey []byte, timeout time.Duration) error {
	dayPart, sig := cutToken(token)
	if sig == "" {
		return errInvalidToken
	}
	raw, err := b32.DecodeString(dayPart)
	if err != nil {
		return errInvalidToken
	}
	day, err := strconv.Atoi(string(raw))
	if err != nil {
		return errInvalidToken
	}

	want := resetToken{day: day, secretKey: secretKey}.sign(usr)
	if !hmac.Equal([]byte(want), []byte(token)) {
		return errInvalidToken
	}
	if dayNumber(nowFunc())-day > int(timeout/(24*time.Hour)) {
		return errTokenExpired
	}
	return nil
}

func cutToken(token string) (dayPart, sig string) {
	i := strings.IndexByte(token, '-')
	if i < 0 {
		return token, ""
	}
	return token[:i], token[i+1:]
}

// dayNumber counts the days started since tokenEpoch.
func dayNumber(t time.Time) int {
	return int(math.Ceil(t.Sub(tokenEpoch).Hours() / 24))
}

type resetToken struct {
	day       int
	secretKey []byte
}

func (rt resetToken) sign(usr User) string {
	key := sha256.Sum256(append(append([]byte{}, tokenSalt...), rt.secretKey...))
	mac := hmac.New(sha256.New, key[:])

	day := strconv.Itoa(rt.day)
	for _, part := range [][]byte{[]byte(usr.ID), []byte(usr.TenantID), usr.PasswordHash, []byte(day)} {
		mac.Write(part)
		mac.Write([]byte{0})
	}
	if !usr.LastLogin.IsZero() {
		mac.Write([]byte(usr.LastLogin.UTC().Format(time.RFC3339)))
	}
	return b32.EncodeToString([]byte(day)) + "-" + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
