package payments

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrInvalidPhone = errors.New("phone number must be in valid Kenyan format")

	msisdnRe = regexp.MustCompile(`^254[17]\d{8}$`)
)

// NormalizePhone converts 07XXXXXXXX, 7XXXXXXXX, +2547XXXXXXXX and the
// 01/1 Safaricom ranges into 2547XXXXXXXX / 2541XXXXXXXX.
func NormalizePhone(raw string) (string, error) {
	p := strings.NewReplacer(" ", "", "-", "", "+", "", "(", "", ")", "").Replace(strings.TrimSpace(raw))

	switch {
	case strings.HasPrefix(p, "0") && len(p) == 10:
		p = "254" + p[1:]
	case (strings.HasPrefix(p, "7") || strings.HasPrefix(p, "1")) && len(p) == 9:
		p = "254" + p
	}

	if !msisdnRe.MatchString(p) {
		return "", ErrInvalidPhone
	}
	return p, nil
}
