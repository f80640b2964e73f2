package index

import (
	"context"
	"path"
	"strings"
)

// maildirFlagSeparator introduces the experimental-semantics flag field of a
// maildir filename, e.g. "msg123,U=5:2,RS".
const maildirFlagSeparator = ":2,"

// TagUnread marks a message a client has not read yet. It is driven by the
// *absence* of the maildir "seen" flag rather than by a flag of its own.
const TagUnread = "unread"

// flagTags maps maildir flag characters to index tags. The "S" (seen) flag is
// handled separately because its meaning is inverted.
var flagTags = map[byte]string{
	'D': "draft",
	'F': "flagged",
	'P': "passed",
	'R': "replied",
}

// MaildirFlags extracts the flag characters from a maildir filename. The
// second return is false when the filename carries no flag field at all.
func MaildirFlags(filename string) (string, bool) {
	base := path.Base(filename)
	i := strings.LastIndex(base, maildirFlagSeparator)
	if i < 0 {
		return "", false
	}
	return base[i+len(maildirFlagSeparator):], true
}

// SyncMaildirFlags replaces the message's flag-derived tags with the flags
// embedded in its current filename: D→draft, F→flagged, P→passed, R→replied,
// and unread tracks the absence of S. Tags with no flag counterpart are left
// alone.
func (m *Message) SyncMaildirFlags(ctx context.Context) error {
	flags, _ := MaildirFlags(m.Filename())

	for flag, tag := range flagTags {
		var err error
		if strings.IndexByte(flags, flag) >= 0 {
			err = m.AddTag(ctx, tag)
		} else {
			err = m.RemoveTag(ctx, tag)
		}
		if err != nil {
			return err
		}
	}

	if strings.IndexByte(flags, 'S') >= 0 {
		return m.RemoveTag(ctx, TagUnread)
	}
	return m.AddTag(ctx, TagUnread)
}
