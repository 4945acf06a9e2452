package invalid

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestGenerateIsNeverValid(t *testing.T) {
	kinds := []string{"incomplete", "continuation", "overlong", "invalid_range", "surrogate", "random", "unknown"}
	for _, name := range kinds {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 100; i++ {
				assert.False(t, utf8.ValidString(UTF8(name)))
			}
		})
	}
}

func TestValid(t *testing.T) {
	for i := 0; i < 100; i++ {
		s := Valid()
		assert.True(t, utf8.ValidString(s))
		n := utf8.RuneCountInString(s)
		assert.GreaterOrEqual(t, n, 5)
		assert.Less(t, n, 25)
	}
}

func TestParseKind(t *testing.T) {
	assert.Equal(t, OverlongSequence, ParseKind("overlong"))
	assert.Equal(t, SurrogateHalf, ParseKind("surrogate"))
	assert.Equal(t, RandomInvalid, ParseKind(""))
}
