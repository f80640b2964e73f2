package vfs

import "strings"

// Marker is the reserved character that replaces path separators when a real
// message path is flattened into a single virtual filename. Real maildir
// filenames must not contain it; the codec does not validate that, so a
// marker in a real name breaks the round trip.
const Marker = "#"

// EncodeName flattens a real message path (relative to the mail root) into
// its virtual filename by replacing every path separator with the marker.
// Pure, total, no failure mode.
func EncodeName(realPath string) string {
	return strings.ReplaceAll(realPath, "/", Marker)
}

// DecodeName is the inverse of EncodeName. DecodeName(EncodeName(p)) == p for
// any p that does not itself contain the marker.
func DecodeName(flatName string) string {
	return strings.ReplaceAll(flatName, Marker, "/")
}
