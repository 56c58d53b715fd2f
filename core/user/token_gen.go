package user

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base32"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Password reset tokens look like "<day>-<signature>" where day is the base32 encoded
// number of days since tokenEpoch and signature is an HMAC over the user's ID,
// password hash and last login. Changing any of those voids outstanding tokens.

var (
	tokenSalt  = []byte("sauda.core.user.password_reset")
	tokenEpoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	dayEnc     = base32.StdEncoding.WithPadding(base32.NoPadding)

	nowFunc = time.Now

	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// EncodeUID encodes the user ID for use in a password reset link.
func EncodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(usr.ID))
}

func decodeUID(uid string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", errors.Wrap(err, "decoding uid")
	}
	return string(b), nil
}

func makeToken(usr User, secretKey string) (string, error) {
	return tokenFor(usr, daysSinceEpoch(nowFunc()), secretKey), nil
}

func verifyToken(usr User, token, secretKey string, timeout time.Duration) error {
	day, ok := tokenDay(token)
	if !ok {
		return errInvalidToken
	}
	if !hmac.Equal([]byte(tokenFor(usr, day, secretKey)), []byte(token)) {
		return errInvalidToken
	}
	if daysSinceEpoch(nowFunc())-day > int(timeout/(24*time.Hour)) {
		return errTokenExpired
	}
	return nil
}

// tokenDay extracts the issue day of a token without checking its signature.
func tokenDay(token string) (int, bool) {
	i := strings.IndexByte(token, '-')
	if i <= 0 {
		return 0, false
	}
	raw, err := dayEnc.DecodeString(token[:i])
	if err != nil {
		return 0, false
	}
	day, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, false
	}
	return day, true
}

func tokenFor(usr User, day int, secretKey string) string {
	key := sha256.Sum256(append(append([]byte{}, tokenSalt...), secretKey...))
	mac := hmac.New(sha256.New, key[:])
	mac.Write([]byte(usr.ID))
	mac.Write(usr.PasswordHash)
	if !usr.LastLogin.IsZero() {
		mac.Write([]byte(usr.LastLogin.UTC().Format(time.RFC3339Nano)))
	}
	mac.Write([]byte(strconv.Itoa(day)))

	return dayEnc.EncodeToString([]byte(strconv.Itoa(day))) + "-" +
		base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func daysSinceEpoch(t time.Time) int {
	return int(t.Sub(tokenEpoch) / (24 * time.Hour))
}
