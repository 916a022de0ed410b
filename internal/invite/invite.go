// Package invite builds shareable room join links and QR codes.
package invite

import (
	"errors"
	"net/url"

	qrcode "github.com/skip2/go-qrcode"
)

// ErrPasswordInLink: room passwords are typed by the joining player,
// never embedded in a shareable URL.
var ErrPasswordInLink = errors.New("invite: password must not be embedded in a link")

// URL builds the join link for a room on the given web base URL.
func URL(base, roomID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if u.Query().Has("password") {
		return "", ErrPasswordInLink
	}
	u = u.JoinPath("rooms", roomID)
	return u.String(), nil
}

// QR renders the join link as a PNG of the given pixel size.
func QR(base, roomID string, size int) ([]byte, error) {
	link, err := URL(base, roomID)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(link, qrcode.Medium, size)
}
