package auth

import "golang.org/x/crypto/bcrypt"

// HashCost is the bcrypt work factor. 12 keeps a verify under ~300ms on
// current hardware while staying expensive enough for offline attacks.
const HashCost = 12

// HashPassword returns a salted bcrypt digest of the secret.
// The plaintext is never stored or logged anywhere in this package.
func HashPassword(secret string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), HashCost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// CheckPassword reports whether secret matches the stored digest.
// Comparison timing is bounded by bcrypt itself.
func CheckPassword(secret, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}
