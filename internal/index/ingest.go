package index

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	log "github.com/sirupsen/logrus"

	"mqfs/internal/common"
)

// TagInbox is attached to messages the first time they are indexed.
const TagInbox = "inbox"

// messageHeaders is what AddMessage needs from a message file.
type messageHeaders struct {
	messageID string
	date      time.Time
	subject   string
	sender    string
	recipient string
}

// readMessageFile parses the headers of the message at the given mail-root
// relative filename. Messages without a Message-ID get a content-derived one,
// so re-indexing the same file stays idempotent.
func readMessageFile(mailRoot, filename string) (*messageHeaders, error) {
	raw, err := os.ReadFile(filepath.Join(mailRoot, filepath.FromSlash(filename)))
	if err != nil {
		return nil, err
	}

	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to parse message %s: %w", filename, err)
	}
	header := mail.Header{Header: entity.Header}

	hdr := &messageHeaders{}
	hdr.messageID, _ = header.MessageID()
	if hdr.messageID == "" {
		sum := sha1.Sum(raw)
		hdr.messageID = "mqfs.sha1." + hex.EncodeToString(sum[:])
	}
	hdr.date, _ = header.Date()
	if hdr.date.IsZero() {
		hdr.date = time.Now()
	}
	hdr.subject, _ = header.Subject()
	if from, err := header.AddressList("From"); err == nil && len(from) > 0 {
		hdr.sender = from[0].Address
	}
	if to, err := header.AddressList("To"); err == nil && len(to) > 0 {
		hdr.recipient = to[0].Address
	}
	return hdr, nil
}

// ScanMaildir walks the mail root for message files in cur/ and new/
// subdirectories and indexes the ones the store has not seen. Fresh messages
// get the inbox tag and their filename flags synced; already-linked filenames
// are left untouched. Returns the number of newly indexed filenames.
func ScanMaildir(ctx context.Context, store *Store) (int, error) {
	added := 0
	root := store.MailRoot()

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			// tmp holds partially delivered messages; dot dirs hold state.
			if name == "tmp" || (strings.HasPrefix(name, ".") && p != root) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		parent := filepath.Base(filepath.Dir(p))
		if parent != "cur" && parent != "new" {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		existing, err := store.FindMessageByFilename(ctx, rel)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}

		msg, err := store.AddMessage(ctx, rel)
		if err != nil && err != common.ErrDuplicateMessageID {
			log.Warnf("[index] skipping unparseable message %s: %v", rel, err)
			return nil
		}
		fresh := err == nil
		if fresh {
			if err := msg.AddTag(ctx, TagInbox); err != nil {
				return err
			}
		}
		if err := msg.SyncMaildirFlags(ctx); err != nil {
			return err
		}
		added++
		log.Debugf("[index] indexed %s (message %s)", rel, msg.MessageID())
		return nil
	})
	if err != nil {
		return added, err
	}
	return added, nil
}
