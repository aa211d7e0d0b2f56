package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUIDLookupAndCandidatesAgreeOnTrash(t *testing.T) {
	for _, kind := range []string{"event", "location", "contact"} {
		byUID := Statements[kind+"_by_uid"]
		candidates := Statements[kind+"_candidates"]
		assert.NotEmpty(t, byUID, kind)
		assert.NotEmpty(t, candidates, kind)
		assert.Equal(t,
			strings.Contains(candidates, "status <> 'trash'"),
			strings.Contains(byUID, "status <> 'trash'"),
			"%s: uid lookup and candidate pool must see the same rows", kind)
	}
	assert.Contains(t, Statements["event_by_uid"], "status <> 'trash'")
}
