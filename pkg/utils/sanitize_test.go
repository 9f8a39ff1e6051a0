package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeSearchQuery(t *testing.T) {
	assert.Equal(t, "%hello%", SanitizeSearchQuery("  hello  "))
	assert.Equal(t, "%100\\%%", SanitizeSearchQuery("100%"))
	assert.Equal(t, "%a\\_b%", SanitizeSearchQuery("a_b"))
	assert.Equal(t, "%a\\\\b%", SanitizeSearchQuery("a\\b"))

	long := strings.Repeat("x", 200)
	assert.Len(t, SanitizeSearchQuery(long), 102)
}

func TestNormalizeMessageBody(t *testing.T) {
	body, ok := NormalizeMessageBody("  hello  ")
	assert.True(t, ok)
	assert.Equal(t, "hello", body)

	_, ok = NormalizeMessageBody("   ")
	assert.False(t, ok)

	_, ok = NormalizeMessageBody(strings.Repeat("x", 8001))
	assert.False(t, ok)

	body, ok = NormalizeMessageBody(strings.Repeat("x", 8000))
	assert.True(t, ok)
	assert.Len(t, body, 8000)
}
