package utils

import (
	"fmt"
	"strings"

	"github.com/ttacon/libphonenumber"
)

func ValidatePhoneNumber(phoneNumber, countryCode string) error {
	p, err := libphonenumber.Parse(phoneNumber, countryCode)
	if err != nil {
		return err
	}
	if !libphonenumber.IsValidNumber(p) {
		return fmt.Errorf("phone number is not valid")
	}
	return nil
}

// NormalizePhoneNumber formats a phone number as E.164. Numbers that cannot be
// parsed are returned trimmed and unchanged together with the parse error.
func NormalizePhoneNumber(phoneNumber, countryCode string) (string, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" {
		return "", nil
	}
	p, err := libphonenumber.Parse(phoneNumber, countryCode)
	if err != nil {
		return phoneNumber, err
	}
	if !libphonenumber.IsValidNumber(p) {
		return phoneNumber, fmt.Errorf("phone number %q is not valid", phoneNumber)
	}
	return libphonenumber.Format(p, libphonenumber.E164), nil
}
