package account

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/gobeaver/beaver-auth2/krypto"
)

const (
	maxUsernameLength = 64
	maxSuffixAttempts = 10
)

// NormalizeUsername lowercases candidate and strips everything except
// letters, digits, '.', '-' and '_'.
func NormalizeUsername(candidate string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(candidate)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('_')
		}
	}
	name := []rune(b.String())
	if len(name) > maxUsernameLength {
		name = name[:maxUsernameLength]
	}
	return string(name)
}

// UniqueUsername returns candidate, normalized, or a suffixed variant of it
// that is not yet taken in store. An empty candidate gets a random name.
func UniqueUsername(ctx context.Context, store Store, candidate string) (string, error) {
	base := usernameBase(candidate)
	name := base
	for i := 0; i < maxSuffixAttempts; i++ {
		taken, err := store.UsernameExists(ctx, name)
		if err != nil {
			return "", err
		}
		if !taken {
			return name, nil
		}
		name = suffixed(base, i)
	}
	return "", fmt.Errorf("%w: no free variant of %q", ErrUsernameTaken, base)
}

// SuffixedUsername returns candidate, normalized, with a random suffix.
// Callers use it after an insert lost a race for the plain name; attempt
// grows the suffix.
func SuffixedUsername(candidate string, attempt int) string {
	return suffixed(usernameBase(candidate), attempt)
}

func usernameBase(candidate string) string {
	base := NormalizeUsername(candidate)
	if base == "" {
		base = "user_" + strings.ToLower(krypto.GenerateRandomString(8))
	}
	return base
}

func suffixed(base string, attempt int) string {
	return fmt.Sprintf("%s_%s", base, strings.ToLower(krypto.GenerateRandomString(4+attempt)))
}
