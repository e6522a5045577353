// Package permitcode generates the short codes printed on SRC permits.
//
// A code body is four characters over A-Z0-9 holding at least one letter and
// one digit. The issued form carries a two-digit year prefix: "26-K7Q2".
package permitcode

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"regexp"
	"strings"
	"time"
)

const (
	letters  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits   = "0123456789"
	alphabet = letters + digits

	// BodyLength is the number of characters after the year prefix.
	BodyLength = 4
	// IssuedLength is the length of the "YY-XXXX" form.
	IssuedLength = 2 + 1 + BodyLength
)

var (
	bodyPattern   = regexp.MustCompile(`^[A-Z0-9]{4}$`)
	issuedPattern = regexp.MustCompile(`^[0-9]{2}-[A-Z0-9]{4}$`)
)

// Code is one freshly generated permit code.
type Code struct {
	Prefix string
	Body   string
}

// String renders the issued "YY-XXXX" form.
func (c Code) String() string {
	return c.Prefix + "-" + c.Body
}

// Generator draws codes from a random source.
type Generator struct {
	rand io.Reader
}

// NewGenerator returns a generator reading from crypto/rand when src is nil.
func NewGenerator(src io.Reader) *Generator {
	if src == nil {
		src = rand.Reader
	}
	return &Generator{rand: src}
}

// Body returns a shuffled four character body.
func (g *Generator) Body() (string, error) {
	buf := make([]byte, 0, BodyLength)

	for _, set := range []string{letters, digits, alphabet, alphabet} {
		ch, err := g.pick(set)
		if err != nil {
			return "", err
		}
		buf = append(buf, ch)
	}

	// Fisher-Yates.
	for i := len(buf) - 1; i > 0; i-- {
		j, err := g.intn(i + 1)
		if err != nil {
			return "", err
		}
		buf[i], buf[j] = buf[j], buf[i]
	}

	return string(buf), nil
}

// Issue generates a code stamped with the year of now.
func (g *Generator) Issue(now time.Time) (Code, error) {
	body, err := g.Body()
	if err != nil {
		return Code{}, err
	}
	return Code{Prefix: YearPrefix(now), Body: body}, nil
}

func (g *Generator) pick(set string) (byte, error) {
	idx, err := g.intn(len(set))
	if err != nil {
		return 0, err
	}
	return set[idx], nil
}

func (g *Generator) intn(n int) (int, error) {
	v, err := rand.Int(g.rand, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("read random: %w", err)
	}
	return int(v.Int64()), nil
}

// YearPrefix returns the last two digits of the year.
func YearPrefix(t time.Time) string {
	return fmt.Sprintf("%02d", t.Year()%100)
}

// Normalize trims and upper-cases a code typed or scanned by a user.
func Normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ValidBody reports whether body is a well formed code body.
func ValidBody(body string) bool {
	return bodyPattern.MatchString(body) &&
		strings.ContainsAny(body, letters) &&
		strings.ContainsAny(body, digits)
}

// LooksIssued reports whether raw has the "YY-XXXX" shape.
func LooksIssued(raw string) bool {
	return issuedPattern.MatchString(raw)
}
