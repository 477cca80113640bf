package license

import (
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// License keys look like VL-1A2B-3C4D-5E6F-7A8B: four groups of four
// uppercase hex characters, 64 random bits in total.
const licenseKeyRandomBytes = 8

var licenseKeyPattern = regexp.MustCompile(`^VL(-[0-9A-F]{4}){4}$`)

// ValidLicenseKeyFormat reports whether key matches the license key format.
func ValidLicenseKeyFormat(key string) bool {
	return licenseKeyPattern.MatchString(key)
}

// generateLicenseKey formats random bytes from r into a license key.
// Collisions are negligible at this bit width, but issuance still re-checks
// global uniqueness against the store before committing.
func generateLicenseKey(r io.Reader) (string, error) {
	buf := make([]byte, licenseKeyRandomBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	chars := strings.ToUpper(hex.EncodeToString(buf))
	return fmt.Sprintf("VL-%s-%s-%s-%s",
		chars[0:4], chars[4:8], chars[8:12], chars[12:16]), nil
}
