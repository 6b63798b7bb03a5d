// Package phone converts Brazilian phone numbers between the forms used by
// the order tables (storage), the WhatsApp transport (send) and the admin
// screens (display).
package phone

import (
	"strings"
)

const (
	CountryCode = "55"

	jidServer = "s.whatsapp.net"
)

// Policy is the regional 9th digit rule applied on the send path. Area codes
// up to AddMax get a missing 9 inserted; area codes from RemoveMin up have
// it removed; anything in between is sent as stored.
type Policy struct {
	AddMax    int
	RemoveMin int
}

var (
	DefaultPolicy = Policy{AddMax: 11, RemoveMin: 31}

	// LegacyPolicy is the rule used by the older broadcast queue: it only
	// ever adds the 9th digit.
	LegacyPolicy = Policy{AddMax: 99, RemoveMin: 100}
)

// PolicyByName maps a config value to a Policy, falling back to DefaultPolicy.
func PolicyByName(name string) Policy {
	if strings.EqualFold(strings.TrimSpace(name), "legacy") {
		return LegacyPolicy
	}
	return DefaultPolicy
}

// Digits drops everything that is not 0-9.
func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// national strips a leading country code when what remains still looks
// like a full national number.
func national(raw string) string {
	d := Digits(raw)
	if strings.HasPrefix(d, CountryCode) && len(d) >= 12 {
		return d[len(CountryCode):]
	}
	return d
}

func areaCode(d string) (int, bool) {
	if len(d) < 2 {
		return 0, false
	}
	return int(d[0]-'0')*10 + int(d[1]-'0'), true
}

// ToStorageForm returns the national number with the mobile 9th digit
// always present when it can be derived (10 digits become 11).
func ToStorageForm(raw string) string {
	d := national(raw)
	if len(d) == 10 {
		return d[:2] + "9" + d[2:]
	}
	return d
}

// ToSendForm returns the number the transport expects using DefaultPolicy.
func ToSendForm(raw string) string {
	return DefaultPolicy.SendForm(raw)
}

// SendForm returns country code plus the national number with the regional
// 9th digit rule applied.
func (p Policy) SendForm(raw string) string {
	d := national(raw)
	ddd, ok := areaCode(d)
	if !ok || ddd < 11 || ddd > 99 {
		return CountryCode + d
	}

	switch {
	case ddd <= p.AddMax:
		if len(d) == 10 {
			d = d[:2] + "9" + d[2:]
		}
	case ddd >= p.RemoveMin:
		if len(d) == 11 && d[2] == '9' {
			d = d[:2] + d[3:]
		}
	}
	return CountryCode + d
}

// ToDisplayForm is cosmetic only.
func ToDisplayForm(raw string) string {
	d := national(raw)
	switch len(d) {
	case 11:
		return "(" + d[:2] + ") " + d[2:7] + "-" + d[7:]
	case 10:
		return "(" + d[:2] + ") " + d[2:6] + "-" + d[6:]
	default:
		return d
	}
}

// JID builds the WhatsApp user address for raw.
func JID(raw string) string {
	return DefaultPolicy.JID(raw)
}

func (p Policy) JID(raw string) string {
	return p.SendForm(raw) + "@" + jidServer
}

// FromJID extracts the user part of a WhatsApp address ("5531...@s.whatsapp.net"
// or "5531...:12@s.whatsapp.net") and returns it in storage form.
func FromJID(jid string) string {
	user := jid
	if i := strings.IndexByte(user, '@'); i >= 0 {
		user = user[:i]
	}
	if i := strings.IndexByte(user, ':'); i >= 0 {
		user = user[:i]
	}
	return ToStorageForm(user)
}

// Equal compares two raw numbers by storage form.
func Equal(a, b string) bool {
	sa, sb := ToStorageForm(a), ToStorageForm(b)
	return sa != "" && sa == sb
}
