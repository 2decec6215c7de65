package goalloop

import "strings"

// valueRule maps a label fragment to its canonical test value. First match
// wins, so more specific fragments come first.
type valueRule struct {
	fragment string
	value    string
}

var valueRules = []valueRule{
	{"email", "test.explorer@example.com"},
	{"password", "TestPass123!"},
	{"phone", "+15555550123"},
	{"tel", "+15555550123"},
	{"first name", "Test"},
	{"last name", "Explorer"},
	{"name", "Test Explorer"},
	{"search", "test query"},
	{"url", "https://example.com"},
	{"website", "https://example.com"},
	{"zip", "10001"},
	{"postal", "10001"},
	{"number", "42"},
	{"amount", "42"},
	{"date", "2026-01-15"},
	{"city", "Springfield"},
	{"address", "123 Test Street"},
}

// CanonicalValue returns the test value for an input, judged by its label,
// placeholder, or name. Unrecognized inputs get a generic marker string.
func CanonicalValue(label string) string {
	l := strings.ToLower(label)
	for _, r := range valueRules {
		if strings.Contains(l, r.fragment) {
			return r.value
		}
	}
	return "test input"
}
