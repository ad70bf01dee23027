// Package hasher turns raw personal data into the hashed user_data block of a
// Conversions API event.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/Priya8975/capi-relay/internal/domain"
)

// minPhoneDigits is the shortest phone number (digits only) that is hashed.
const minPhoneDigits = 7

var validate = validator.New()

// Hash returns the hex SHA-256 of s.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// NormalizeText lowercases and trims a free-text personal field.
func NormalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizePhone keeps only the digits of s. It returns "" when fewer than
// seven digits remain.
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() < minPhoneDigits {
		return ""
	}
	return b.String()
}

// ValidEmail reports whether s has the shape of an email address.
func ValidEmail(s string) bool {
	if s == "" || strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return false
	}
	return validate.Var(s, "email") == nil
}

// HashUserData builds the hashed user data for an event. Personal fields are
// normalized then hashed; IP, user agent and the browser cookies are copied
// verbatim; the logged-in user id is hashed into external_id.
func HashUserData(ud domain.UserData, rc domain.RequestContext) domain.UserDataHashed {
	var out domain.UserDataHashed

	if email := NormalizeText(ud.Email); email != "" && ValidEmail(email) {
		out.Em = Hash(email)
	}
	if phone := NormalizePhone(ud.Phone); phone != "" {
		out.Ph = Hash(phone)
	}
	out.Fn = hashText(ud.FirstName)
	out.Ln = hashText(ud.LastName)
	out.Ct = hashText(ud.City)
	out.St = hashText(ud.State)
	out.Zp = hashText(ud.PostalCode)
	out.Country = hashText(ud.Country)

	out.ClientIPAddress = rc.RemoteIP
	out.ClientUserAgent = rc.UserAgent
	out.Fbp = rc.Fbp
	out.Fbc = rc.Fbc
	if id := strings.TrimSpace(rc.UserID); id != "" {
		out.ExternalID = Hash(id)
	}

	return out
}

func hashText(s string) string {
	n := NormalizeText(s)
	if n == "" {
		return ""
	}
	return Hash(n)
}
