// utils/mask.go
package utils

import "strings"

// MaskINN hides the middle digits of a tax id: 10 digits keep 3+2, 12 digits keep 4+2.
func MaskINN(inn string) string {
	switch len(inn) {
	case 10:
		return inn[:3] + "***" + inn[8:]
	case 12:
		return inn[:4] + "****" + inn[10:]
	}
	return inn
}

// MaskEmail keeps the first and last character of the local part.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return email
	}
	local, domain := email[:at], email[at+1:]
	if len(local) <= 2 {
		return local[:1] + "*@" + domain
	}
	return local[:1] + strings.Repeat("*", len(local)-2) + local[len(local)-1:] + "@" + domain
}
