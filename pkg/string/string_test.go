package string

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToSnakeCase(t *testing.T) {
	assert.Equal(t, "license_number", ToSnakeCase("LicenseNumber"))
	assert.Equal(t, "query", ToSnakeCase("Query"))
	assert.Equal(t, "provider_id", ToSnakeCase("ProviderID"))
}

func TestCollapseSpace(t *testing.T) {
	assert.Equal(t, "123 Main St Richmond, VA", CollapseSpace("  123 Main St\n\t Richmond,   VA "))
	assert.Equal(t, "", CollapseSpace(" \n "))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
	assert.Len(t, Truncate(strings.Repeat("x", 6000), 5000), 5000)
	// "é" is two bytes; cutting inside it backs off to the rune boundary
	assert.Equal(t, "a", Truncate("aé", 2))
	assert.Equal(t, "", Truncate("abc", 0))
}
