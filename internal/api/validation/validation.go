package validation

import (
	"path"
	"regexp"
	"strings"
	"unicode"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 4000
	MaxParticipants      = 100
	MaxReminderMinutes   = 7 * 24 * 60
)

var (
	// EmailRegex validates email format
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	// UUIDRegex validates UUID format
	uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

	contentTypeRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9!#$&^_.+\-]*/[a-zA-Z0-9][a-zA-Z0-9!#$&^_.+\-]*$`)
)

// IsValidEmail checks if the string is a valid email format
func IsValidEmail(email string) bool {
	if len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}

// IsValidUUID checks if the string is a valid UUID format
func IsValidUUID(id string) bool {
	return uuidRegex.MatchString(id)
}

// IsValidPassword checks password strength
func IsValidPassword(password string) (bool, string) {
	if len(password) < 8 {
		return false, "Password must be at least 8 characters"
	}
	if len(password) > 128 {
		return false, "Password must be at most 128 characters"
	}

	var (
		hasUpper   bool
		hasLower   bool
		hasNumber  bool
		hasSpecial bool
	)

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	if !hasUpper {
		return false, "Password must contain at least one uppercase letter"
	}
	if !hasLower {
		return false, "Password must contain at least one lowercase letter"
	}
	if !hasNumber {
		return false, "Password must contain at least one number"
	}
	if !hasSpecial {
		return false, "Password must contain at least one special character"
	}

	return true, ""
}

// SanitizeString removes potentially dangerous characters for display
func SanitizeString(s string) string {
	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	// Remove control characters except newlines and tabs
	var result strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}

	return result.String()
}

// TruncateString truncates a string to maxLen runes
func TruncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}

// CleanText sanitizes free text and trims it to maxLen runes.
func CleanText(s string, maxLen int) string {
	return TruncateString(strings.TrimSpace(SanitizeString(s)), maxLen)
}

// NormalizeParticipants lowercases, dedupes and validates attendee emails.
// The returned map is keyed by the offending input.
func NormalizeParticipants(in []string) ([]string, map[string]string) {
	errs := make(map[string]string)
	if len(in) > MaxParticipants {
		errs["participants"] = "Too many participants"
		return nil, errs
	}

	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		email := strings.ToLower(strings.TrimSpace(raw))
		if email == "" || seen[email] {
			continue
		}
		if !IsValidEmail(email) {
			errs[raw] = "Invalid email address"
			continue
		}
		seen[email] = true
		out = append(out, email)
	}
	return out, errs
}

// ValidateRoom checks the editable room fields.
func ValidateRoom(name string, capacity int, equipment []string) map[string]string {
	errs := make(map[string]string)
	if strings.TrimSpace(name) == "" {
		errs["name"] = "Name is required"
	} else if len(name) > 100 {
		errs["name"] = "Name must be at most 100 characters"
	}
	if capacity < 0 {
		errs["capacity"] = "Capacity cannot be negative"
	}
	for _, item := range equipment {
		if strings.TrimSpace(item) == "" {
			errs["equipment"] = "Equipment entries cannot be blank"
			break
		}
	}
	return errs
}

// IsValidReminderMinutes accepts leads from zero up to one week.
func IsValidReminderMinutes(m int) bool {
	return m >= 0 && m <= MaxReminderMinutes
}

// SafeFilename strips directories and control characters from an upload name.
func SafeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(SanitizeString(name))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return TruncateString(name, 255)
}

// IsValidContentType checks a bare type/subtype media type.
func IsValidContentType(ct string) bool {
	return contentTypeRegex.MatchString(ct)
}
