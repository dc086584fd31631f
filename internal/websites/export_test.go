package websites

import "testing"

// SetKeyGenerator replaces the key source used by RegisterSite until the test ends.
func SetKeyGenerator(t testing.TB, fn func(domain string) string) {
	t.Helper()
	previous := generateKey
	generateKey = fn
	t.Cleanup(func() { generateKey = previous })
}
