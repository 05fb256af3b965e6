// internal/payments/phone.go
package payments

import (
	"strings"

	"github.com/jason-s-yu/njuka/internal/apperr"
)

// NormalizePhone turns a Zambian mobile number into E.164 form (+260 and nine digits).
// It accepts "+260971234567", "260971234567", "0971234567" and "971234567".
func NormalizePhone(phone string) (string, error) {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()

	switch {
	case len(d) == 12 && strings.HasPrefix(d, "260"):
		return "+" + d, nil
	case len(d) == 10 && strings.HasPrefix(d, "0"):
		return "+260" + d[1:], nil
	case len(d) == 9:
		return "+260" + d, nil
	}
	return "", apperr.Validation("invalid phone, use E.164: +260xxxxxxxxx")
}
