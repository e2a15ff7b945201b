package config

import (
	"os"
	"strings"
)

// StrictOrgMembership rejects employees whose home org items are not declared
// in the company's org structure. When false the mismatch is only logged.
//
// Set via env:
// - HUB_STRICT_ORG_MEMBERSHIP=true
func StrictOrgMembership() bool {
	return envBool("HUB_STRICT_ORG_MEMBERSHIP", false)
}

// RoundTripNewHires pushes a new hire back to the platform as an employee as soon as
// the payroll engine assigns it an employee number, instead of waiting for the next employee sync.
//
// Set via env:
// - HUB_ROUND_TRIP_NEW_HIRES=true
func RoundTripNewHires() bool {
	return envBool("HUB_ROUND_TRIP_NEW_HIRES", false)
}

// PhoneRegion is the default region used to parse phone numbers without a country prefix.
func PhoneRegion() string {
	v := strings.ToUpper(strings.TrimSpace(os.Getenv("HUB_PHONE_REGION")))
	if v == "" {
		return "US"
	}
	return v
}

func envBool(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
