package provision

import (
	"crypto/rand"
	"math/big"
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Password lengths. RustDesk's unattended access on Linux is only reliable
// with short alphanumeric secrets, so POSIX hosts use a fixed 8 characters.
const (
	windowsGeneratedLen = 12
	windowsMaxLen       = 32
	posixLen            = 8
)

// NormalizePassword turns a user-supplied secret into one RustDesk accepts
// on the given OS. Non-alphanumeric characters are dropped; if nothing is
// left a random secret is generated.
func NormalizePassword(kind OSKind, raw string) string {
	cleaned := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		if isAlnum(raw[i]) {
			cleaned = append(cleaned, raw[i])
		}
	}

	if kind == KindWindows {
		if len(cleaned) == 0 {
			return RandomAlphanumeric(windowsGeneratedLen)
		}
		if len(cleaned) > windowsMaxLen {
			cleaned = cleaned[:windowsMaxLen]
		}
		return string(cleaned)
	}

	if len(cleaned) == 0 {
		return RandomAlphanumeric(posixLen)
	}
	if len(cleaned) < posixLen {
		cleaned = append(cleaned, RandomAlphanumeric(posixLen-len(cleaned))...)
	}
	return string(cleaned[:posixLen])
}

// RandomAlphanumeric returns n characters drawn from [a-zA-Z0-9] with a
// cryptographic source.
func RandomAlphanumeric(n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(alphanumeric)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand unavailable: " + err.Error())
		}
		out[i] = alphanumeric[idx.Int64()]
	}
	return string(out)
}

func isAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
