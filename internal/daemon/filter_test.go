package daemon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildHideFilter(t *testing.T) {
	t.Parallel()

	t.Run("no patterns disables filtering", func(t *testing.T) {
		assert.Nil(t, BuildHideFilter(nil))
		assert.Nil(t, BuildHideFilter([]string{}))
	})

	t.Run("gitignore semantics", func(t *testing.T) {
		hide := BuildHideFilter([]string{".*", "*.bak"})
		require.NotNil(t, hide)

		assert.True(t, hide(".notmuch"))
		assert.True(t, hide("queries.bak"))
		assert.False(t, hide("tag:todo"))
		assert.False(t, hide("unread"))
	})

	t.Run("negation", func(t *testing.T) {
		hide := BuildHideFilter([]string{".*", "!.keepme"})
		require.NotNil(t, hide)

		assert.True(t, hide(".hidden"))
		assert.False(t, hide(".keepme"))
	})
}
