// Package invalid produces malformed UTF-8 so a simulated backend can return
// the kind of broken payloads real services sometimes emit.
package invalid

import (
	"math/rand"
	"sync"
	"time"
	"unicode/utf8"
)

// Kind selects a class of malformed UTF-8 sequence.
type Kind int

const (
	IncompleteSequence Kind = iota
	ContinuationByteOnly
	OverlongSequence
	InvalidByteRange
	SurrogateHalf
	RandomInvalid
)

var (
	mu  sync.Mutex
	rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func intn(n int) int {
	mu.Lock()
	defer mu.Unlock()
	return rnd.Intn(n)
}

// Generate returns a byte sequence of the requested kind. The result is
// never valid UTF-8.
func Generate(kind Kind) []byte {
	var out []byte
	switch kind {
	case IncompleteSequence:
		out = []byte{0xC2 + byte(intn(0x1E))}
	case ContinuationByteOnly:
		out = []byte{0x80 + byte(intn(0x40))}
	case OverlongSequence:
		out = []byte{0xC0, 0x81}
	case InvalidByteRange:
		out = []byte{0xF5 + byte(intn(0x0B))}
	case SurrogateHalf:
		out = []byte{0xED, 0xA0 + byte(intn(0x20)), 0x80}
	default:
		length := intn(4) + 1
		out = make([]byte, length)
		for i := range out {
			out[i] = byte(intn(256))
		}
		for utf8.Valid(out) {
			out[0] = 0x80 + byte(intn(0x40))
		}
	}

	if utf8.Valid(out) {
		out = []byte{0xC0, 0x80}
	}
	return out
}

// ParseKind maps a kind name to its Kind. Unknown names select RandomInvalid.
func ParseKind(name string) Kind {
	switch name {
	case "incomplete":
		return IncompleteSequence
	case "continuation":
		return ContinuationByteOnly
	case "overlong":
		return OverlongSequence
	case "invalid_range":
		return InvalidByteRange
	case "surrogate":
		return SurrogateHalf
	default:
		return RandomInvalid
	}
}

// UTF8 returns a malformed string of the named kind.
func UTF8(name string) string {
	return string(Generate(ParseKind(name)))
}

var validChars = []rune("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789 !@#$%^&*()-_=+áéíóúñÑüÜ€£¥©®™")

// Valid returns a random, well-formed string of 5 to 24 runes, including
// multi-byte characters.
func Valid() string {
	length := intn(20) + 5
	result := make([]rune, length)
	for i := range result {
		result[i] = validChars[intn(len(validChars))]
	}
	return string(result)
}
