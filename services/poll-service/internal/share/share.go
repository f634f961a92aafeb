// Package share issues the public identifiers and secrets attached to a poll.
package share

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/gosimple/slug"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/crypto/bcrypt"
)

const (
	// No 0/o, 1/l/i: codes are read aloud and typed from screenshots.
	codeAlphabet = "23456789abcdefghjkmnpqrstuvwxyz"
	codeLength   = 10
	tokenLength  = 32
	maxSlugLen   = 60
)

// NewShareCode returns the short public code used in poll links.
func NewShareCode() (string, error) {
	return gonanoid.Generate(codeAlphabet, codeLength)
}

// NewToken returns a URL-safe secret for admin and edit capabilities.
func NewToken() (string, error) {
	return gonanoid.New(tokenLength)
}

// HashToken is what gets stored for a token; tokens are high entropy so a plain digest suffices.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func TokenMatches(hash, token string) bool {
	if hash == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hash), []byte(HashToken(token))) == 1
}

// Slug derives the cosmetic link suffix from a poll title.
func Slug(title string) string {
	s := slug.Make(title)
	if len(s) > maxSlugLen {
		s = strings.TrimRight(s[:maxSlugLen], "-")
	}
	if s == "" {
		return "poll"
	}
	return s
}

// Path is the public link of a poll.
func Path(code, slugText string) string {
	return "/p/" + code + "/" + slugText
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	if hash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
