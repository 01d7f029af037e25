// utils/search_test.go
package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSearchTerm(t *testing.T) {
	assert.Equal(t, "nguyen", NormalizeSearchTerm("Nguyễn"))
	assert.Equal(t, "jose", NormalizeSearchTerm("José"))
	assert.Equal(t, "tran thi anh", NormalizeSearchTerm("  Trần Thị Ánh "))
	assert.Equal(t, "plain", NormalizeSearchTerm("plain"))
	assert.Equal(t, "", NormalizeSearchTerm("   "))
}

func TestMatchesSearch(t *testing.T) {
	assert.True(t, MatchesSearch("Nguyễn Văn An", "nguyen"))
	assert.True(t, MatchesSearch("Trần Thị Ánh", "anh"))
	assert.True(t, MatchesSearch("anything", ""))
	assert.False(t, MatchesSearch("Nguyễn Văn An", "pham"))
}
