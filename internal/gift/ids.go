package gift

import (
	"crypto/rand"
	"crypto/subtle"
)

const (
	sessionIDLength = 10
	base62Alphabet  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

// NewSessionID returns a random base62 identifier of fixed length.
func NewSessionID() (string, error) {
	out := make([]byte, 0, sessionIDLength)
	buf := make([]byte, sessionIDLength*2)
	for len(out) < sessionIDLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			// 248 = 62*4; rejecting the tail keeps every symbol equally likely
			if b >= 248 {
				continue
			}
			out = append(out, base62Alphabet[b%62])
			if len(out) == sessionIDLength {
				break
			}
		}
	}
	return string(out), nil
}

func secretMatches(stored, given string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}
