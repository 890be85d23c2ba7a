package render

import (
	"strconv"
	"strings"
	"testing"

	"watch-harvest/pkg/extract"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotJSCarriesRelatedPhrases(t *testing.T) {
	assert.NotContains(t, snapshotJS, "__RELATED_PHRASES__")
	for _, p := range extract.RelatedPhrases() {
		assert.True(t, strings.Contains(snapshotJS, strconv.Quote(p)), "missing phrase %q", p)
	}
}
