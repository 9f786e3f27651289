// Package code generates claim codes users publish on pages they control.
package code

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Prefix identifies a claim code in page text.
const Prefix = "SEDA-"

const codeLength = 8

// Uppercase alphanumerics survive hand transcription into page editors.
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Generator mints claim codes from crypto/rand.
type Generator struct{}

// New returns a Generator.
func New() *Generator {
	return &Generator{}
}

// NewCode returns a fresh claim code. The only error is entropy exhaustion,
// which callers should treat as fatal.
func (g *Generator) NewCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	var b strings.Builder
	b.WriteString(Prefix)
	for _, c := range buf {
		b.WriteByte(alphabet[int(c)%len(alphabet)])
	}
	return b.String(), nil
}
