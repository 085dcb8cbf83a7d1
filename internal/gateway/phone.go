package gateway

import (
	"strings"

	"github.com/tumaini/tikiti/internal/domain"
)

// NormalizePhone converts a payer number to the 2547XXXXXXXX form the
// gateway expects. Accepted inputs: 07XXXXXXXX, 01XXXXXXXX, 7XXXXXXXX,
// +2547XXXXXXXX, 2547XXXXXXXX.
func NormalizePhone(phone string) (string, error) {
	p := strings.TrimSpace(phone)
	p = strings.TrimPrefix(p, "+")
	p = strings.ReplaceAll(p, " ", "")

	for _, r := range p {
		if r < '0' || r > '9' {
			return "", domain.ErrInvalidInput
		}
	}

	switch {
	case len(p) == 12 && strings.HasPrefix(p, "254"):
	case len(p) == 10 && (strings.HasPrefix(p, "07") || strings.HasPrefix(p, "01")):
		p = "254" + p[1:]
	case len(p) == 9 && (strings.HasPrefix(p, "7") || strings.HasPrefix(p, "1")):
		p = "254" + p
	default:
		return "", domain.ErrInvalidInput
	}

	return p, nil
}
