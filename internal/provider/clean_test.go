package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "  Jazz i parken ", "Jazz i parken"},
		{"markup", "<p>Hello <b>world</b></p>", "Hello world"},
		{"script dropped", "Hi<script>alert(1)</script> there", "Hi there"},
		{"entities", "Rock &amp; Roll", "Rock & Roll"},
		{"control chars", "Tab\x00le\x07", "Table"},
		{"invalid utf8", "Caf\xe9", "Caf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanString(tt.in))
		})
	}
}

func TestCleanPhone(t *testing.T) {
	assert.Equal(t, "+4642183270", CleanPhone("042-183270"))
	assert.Equal(t, "+4642183270", CleanPhone("+46 42 18 32 70"))
	assert.Equal(t, "", CleanPhone("call us"))
	assert.Equal(t, "", CleanPhone(""))
}

func TestCleanEmail(t *testing.T) {
	assert.Equal(t, "info@example.se", CleanEmail(" Info@Example.se "))
	assert.Equal(t, "", CleanEmail("not-an-email"))
	assert.Equal(t, "", CleanEmail("Name <a@b.se>"))
	assert.Equal(t, "", CleanEmail("a@localhost"))
}

func TestImportClient(t *testing.T) {
	assert.Equal(t, "CBIS: Arena", ImportClient("CBIS", "arena"))
	assert.Equal(t, "CBIS: To do", ImportClient("CBIS", "to do"))
	assert.Equal(t, "XCAP", ImportClient("XCAP", ""))
}

func TestCoordinate(t *testing.T) {
	assert.Nil(t, Coordinate("0"))
	assert.Nil(t, Coordinate(""))
	assert.Nil(t, Coordinate(0.0))
	if c := Coordinate("56,0465"); assert.NotNil(t, c) {
		assert.InDelta(t, 56.0465, *c, 1e-9)
	}
}

func TestCategoryFilters(t *testing.T) {
	assert.True(t, Excluded([]string{"Sport"}, []string{"sport"}))
	assert.False(t, Excluded([]string{"Sport", "Musik"}, []string{"Sport"}))
	assert.False(t, Excluded(nil, []string{"Sport"}))
	assert.Equal(t, []string{"Musik"}, FilterCategories([]string{"Sport", " Musik ", "musik"}, []string{"Sport"}))
}
