package vfs

import (
	"strings"

	"mqfs/internal/common"
)

// pathKind is the structural classification of a virtual path. The shape of
// the path alone decides how an operation treats it; nothing is consulted on
// disk to classify.
type pathKind int

const (
	kindRoot    pathKind = iota // the mount root itself
	kindBacking                 // a top-level backing-store entry
	kindPseudo                  // <query>/cur, <query>/new or <query>/tmp
	kindMessage                 // <query>/cur/<flat> (or new/ in mutt mode)
	kindOther                   // anything deeper or otherwise unrecognized
)

// resolvedPath is the result of classifying a virtual path.
type resolvedPath struct {
	kind pathKind
	rel  string // normalized path, "" for the root

	// kindPseudo
	queryRel  string // the query directory the pseudo dir belongs to
	pseudoDir string // "cur", "new" or "tmp"

	// kindMessage
	flatName string // the flattened message filename (last segment)
	// mutt compatibility: the message was addressed through a new/ pseudo
	// directory but is treated as if it lived under cur/.
	muttRewritten bool
}

func isPseudoDirName(name string) bool {
	return name == "cur" || name == "new" || name == "tmp"
}

// classify maps a virtual path onto the structural vocabulary: root, backing
// entry, pseudo maildir directory, or flattened message name. With the mutt
// compatibility mode on, a name whose penultimate segment is "new" is read as
// a message under the corresponding cur/ directory.
func (q *QueryFS) classify(vfsPath string) resolvedPath {
	rel := common.NormalizePath(vfsPath)
	segs := common.SplitPath(rel)
	if len(segs) == 0 {
		return resolvedPath{kind: kindRoot}
	}
	last := segs[len(segs)-1]

	if len(segs) == 1 {
		return resolvedPath{kind: kindBacking, rel: rel}
	}

	if isPseudoDirName(last) {
		return resolvedPath{
			kind:      kindPseudo,
			rel:       rel,
			queryRel:  strings.Join(segs[:len(segs)-1], "/"),
			pseudoDir: last,
		}
	}

	penultimate := segs[len(segs)-2]
	if penultimate == "cur" {
		return resolvedPath{kind: kindMessage, rel: rel, flatName: last}
	}
	if q.cfg.MuttWorkaround && penultimate == "new" {
		return resolvedPath{kind: kindMessage, rel: rel, flatName: last, muttRewritten: true}
	}

	return resolvedPath{kind: kindOther, rel: rel}
}

// isFlatName reports whether the last path segment carries the flattening
// marker, i.e. names a real message rather than a backing-store entry. Open,
// unlink and rename classify by marker presence, not by directory shape.
func isFlatName(vfsPath string) bool {
	return strings.Contains(common.BaseName(vfsPath), Marker)
}
