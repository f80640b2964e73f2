package vfs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderLabelHeader(t *testing.T) {
	t.Parallel()

	t.Run("joins tags after the prefix", func(t *testing.T) {
		buf := make([]byte, 64)
		renderLabelHeader(buf, []string{"inbox", "todo"})

		assert.True(t, strings.HasPrefix(string(buf), "X-Label: inbox,todo"))
		assert.Equal(t, byte('\n'), buf[63])
		// Everything between the tag list and the newline is space padding.
		assert.Equal(t, strings.Repeat(" ", 64-len("X-Label: inbox,todo")-1),
			string(buf[len("X-Label: inbox,todo"):63]))
	})

	t.Run("no tags renders an empty list", func(t *testing.T) {
		buf := make([]byte, 32)
		renderLabelHeader(buf, nil)

		assert.True(t, strings.HasPrefix(string(buf), "X-Label: "))
		assert.Equal(t, byte(' '), buf[len("X-Label: ")])
		assert.Equal(t, byte('\n'), buf[31])
	})

	t.Run("overflow substitutes rather than truncates", func(t *testing.T) {
		buf := make([]byte, 32)
		renderLabelHeader(buf, []string{strings.Repeat("x", 64)})

		assert.True(t, strings.HasPrefix(string(buf), "X-Label: ERROR"))
		assert.NotContains(t, string(buf), "x")
		assert.Equal(t, byte('\n'), buf[31])
	})

	t.Run("a list exactly at budget fits", func(t *testing.T) {
		budget := 32
		tag := strings.Repeat("y", budget-1-len("X-Label: "))
		buf := make([]byte, budget)
		renderLabelHeader(buf, []string{tag})

		assert.Equal(t, "X-Label: "+tag+"\n", string(buf))
	})

	t.Run("one byte over goes to overflow", func(t *testing.T) {
		budget := 32
		tag := strings.Repeat("y", budget-len("X-Label: "))
		buf := make([]byte, budget)
		renderLabelHeader(buf, []string{tag})

		assert.True(t, strings.HasPrefix(string(buf), "X-Label: ERROR"))
	})
}
