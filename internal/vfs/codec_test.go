package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameCodec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		real string
		flat string
	}{
		{"", ""},
		{"msg", "msg"},
		{"inbox/cur/msg:2,S", "inbox#cur#msg:2,S"},
		{"a/b/c", "a#b#c"},
		// A marker already present in the real name round-trips wrong by
		// construction; the codec just substitutes bytes.
		{"lists/go#dev/cur/m", "lists#go#dev#cur#m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.flat, EncodeName(tt.real), "EncodeName(%q)", tt.real)
	}
	for _, tt := range tests[:4] {
		assert.Equal(t, tt.real, DecodeName(tt.flat), "DecodeName(%q)", tt.flat)
	}
}
