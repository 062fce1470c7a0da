package telegram

import (
	"errors"
	"fmt"
	"strings"
	"time"

	initdata "github.com/telegram-mini-apps/init-data-golang"
)

var (
	// ErrInitDataMissing means no init payload was supplied.
	ErrInitDataMissing = errors.New("init data is required")
	// ErrInitDataInvalid means the payload failed signature, expiry or shape checks.
	ErrInitDataInvalid = errors.New("invalid init data")
)

// MiniAppUser is the identity carried by verified init data.
type MiniAppUser struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// VerifyInitData checks the HMAC signature of a mini-app init payload
// against the bot token and returns the user it describes. maxAge <= 0
// disables the auth_date expiry check.
func VerifyInitData(raw, botToken string, maxAge time.Duration) (MiniAppUser, error) {
	if strings.TrimSpace(raw) == "" {
		return MiniAppUser{}, ErrInitDataMissing
	}
	if maxAge < 0 {
		maxAge = 0
	}
	if err := initdata.Validate(raw, botToken, maxAge); err != nil {
		return MiniAppUser{}, fmt.Errorf("%w: %v", ErrInitDataInvalid, err)
	}
	d, err := initdata.Parse(raw)
	if err != nil {
		return MiniAppUser{}, fmt.Errorf("%w: %v", ErrInitDataInvalid, err)
	}
	if d.User.ID == 0 {
		return MiniAppUser{}, fmt.Errorf("%w: user is missing", ErrInitDataInvalid)
	}
	return MiniAppUser{
		ID:        d.User.ID,
		Username:  d.User.Username,
		FirstName: d.User.FirstName,
		LastName:  d.User.LastName,
	}, nil
}
