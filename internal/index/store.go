// Copyright 2025 The mqfs Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package index gives mqfs its view of the mail index: a SQLite database of
// messages, their filenames, and their tags, owned by an external indexer and
// consulted (and narrowly mutated) here.
package index

import (
	"context"
	"database/sql"
	"fmt"

	log "github.com/sirupsen/logrus"
	_ "github.com/tursodatabase/go-libsql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"mqfs/internal/common"
)

// Mode selects read-only or read-write access to the index.
type Mode int

const (
	ModeReadOnly Mode = iota
	ModeReadWrite
)

// Store is an open handle on the index database.
type Store struct {
	db       *bun.DB
	sqlDB    *sql.DB
	mailRoot string
	mode     Mode
}

// execPragma runs a PRAGMA statement using Query (not Exec) because libsql
// returns rows for PRAGMA statements. The result rows are drained and closed.
func execPragma(db *sql.DB, pragma string) error {
	rows, err := db.Query(pragma)
	if err != nil {
		return err
	}
	for rows.Next() {
	}
	return rows.Close()
}

// OpenStore opens the index database at dbPath. mailRoot is the directory the
// stored message filenames are relative to. Mode is enforced in this layer,
// not by the driver: mutating calls on a read-only store fail with
// common.ErrReadOnly.
func OpenStore(dbPath, mailRoot string, mode Mode) (*Store, error) {
	sqlDB, err := sql.Open("libsql", "file:"+dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open index database: %w", err)
	}

	// Single connection: the store is serialized behind the Context lock, and
	// libsql connections are not safe to share across a savepoint anyway.
	sqlDB.SetMaxOpenConns(1)

	// Short busy timeout only. Lock contention is handled by the caller's
	// retry loop, not by blocking inside the driver.
	if err := execPragma(sqlDB, "PRAGMA busy_timeout = 1000"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	if err := execPragma(sqlDB, "PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to set journal_mode: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &Store{
		db:       bun.NewDB(sqlDB, sqlitedialect.New()),
		sqlDB:    sqlDB,
		mailRoot: mailRoot,
		mode:     mode,
	}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// MailRoot returns the directory message filenames are relative to.
func (s *Store) MailRoot() string {
	return s.mailRoot
}

func (s *Store) requireWritable() error {
	if s.mode != ModeReadWrite {
		return common.ErrReadOnly
	}
	return nil
}

// ConfigValue retrieves a config value by key. A missing key reads as "".
func (s *Store) ConfigValue(ctx context.Context, key string) (string, error) {
	var config ConfigModel
	err := s.db.NewSelect().
		Model(&config).
		Where("key = ?", key).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return config.Value, nil
}

// SetConfigValue sets a config value (upserts).
func (s *Store) SetConfigValue(ctx context.Context, key, value string) error {
	if err := s.requireWritable(); err != nil {
		return err
	}
	_, err := s.db.NewInsert().
		Model(&ConfigModel{Key: key, Value: value}).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Exec(ctx)
	return err
}

// ExcludedTags returns the raw newline-delimited excluded-tag list from the
// index configuration.
func (s *Store) ExcludedTags(ctx context.Context) (string, error) {
	return s.ConfigValue(ctx, ConfigKeyExcludeTags)
}

// Message is a message record hydrated from the index: its filenames (relative
// to the mail root) and its tags, in index order.
type Message struct {
	store     *Store
	id        int64
	messageID string
	filenames []string
	tags      []string
}

// Filename returns the message's primary filename, relative to the mail root.
// Empty only for a message record with no remaining files, which the schema
// does not normally allow to persist.
func (m *Message) Filename() string {
	if len(m.filenames) == 0 {
		return ""
	}
	return m.filenames[0]
}

// Filenames returns all filenames linked to this message.
func (m *Message) Filenames() []string {
	return m.filenames
}

// Tags returns the message's tags in index order.
func (m *Message) Tags() []string {
	return m.tags
}

// MessageID returns the RFC 5322 message id.
func (m *Message) MessageID() string {
	return m.messageID
}

// AddTag attaches a tag to the message. Adding an existing tag is a no-op.
func (m *Message) AddTag(ctx context.Context, tag string) error {
	if err := m.store.requireWritable(); err != nil {
		return err
	}
	_, err := m.store.db.NewInsert().
		Model(&MessageTagModel{MessageID: m.id, Tag: tag}).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	for _, t := range m.tags {
		if t == tag {
			return nil
		}
	}
	m.tags = append(m.tags, tag)
	return nil
}

// RemoveTag detaches a tag from the message. Removing an absent tag is a
// no-op.
func (m *Message) RemoveTag(ctx context.Context, tag string) error {
	if err := m.store.requireWritable(); err != nil {
		return err
	}
	_, err := m.store.db.NewDelete().
		Model((*MessageTagModel)(nil)).
		Where("message_id = ? AND tag = ?", m.id, tag).
		Exec(ctx)
	if err != nil {
		return err
	}
	kept := m.tags[:0]
	for _, t := range m.tags {
		if t != tag {
			kept = append(kept, t)
		}
	}
	m.tags = kept
	return nil
}

// hydrate builds a Message from its model row, loading filenames and tags.
func (s *Store) hydrate(ctx context.Context, model *MessageModel) (*Message, error) {
	var files []MessageFileModel
	err := s.db.NewSelect().
		Model(&files).
		Where("message_id = ?", model.ID).
		Order("filename ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	var tags []MessageTagModel
	err = s.db.NewSelect().
		Model(&tags).
		Where("message_id = ?", model.ID).
		Order("tag ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		store:     s,
		id:        model.ID,
		messageID: model.MessageID,
	}
	for _, f := range files {
		msg.filenames = append(msg.filenames, f.Filename)
	}
	for _, t := range tags {
		msg.tags = append(msg.tags, t.Tag)
	}
	return msg, nil
}

// FindMessageByFilename looks a message up by one of its filenames (relative
// to the mail root). An unknown filename returns (nil, nil), matching the
// "found nothing, no error" shape of the index API.
func (s *Store) FindMessageByFilename(ctx context.Context, filename string) (*Message, error) {
	var file MessageFileModel
	err := s.db.NewSelect().
		Model(&file).
		Where("filename = ?", filename).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var model MessageModel
	err = s.db.NewSelect().
		Model(&model).
		Where("id = ?", file.MessageID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, &model)
}

// AddMessage indexes the file at the given mail-root-relative filename. If the
// message id parsed from the file already has a record, the filename is linked
// to it and common.ErrDuplicateMessageID is returned along with the message,
// the caller-visible signal that the name now aliases an existing record.
func (s *Store) AddMessage(ctx context.Context, filename string) (*Message, error) {
	if err := s.requireWritable(); err != nil {
		return nil, err
	}

	hdr, err := readMessageFile(s.mailRoot, filename)
	if err != nil {
		return nil, err
	}

	var existing MessageModel
	err = s.db.NewSelect().
		Model(&existing).
		Where("message_id = ?", hdr.messageID).
		Scan(ctx)
	switch {
	case err == sql.ErrNoRows:
		model := &MessageModel{
			MessageID: hdr.messageID,
			Date:      hdr.date.Unix(),
			Subject:   hdr.subject,
			Sender:    hdr.sender,
			Recipient: hdr.recipient,
		}
		if _, err := s.db.NewInsert().Model(model).Exec(ctx); err != nil {
			return nil, err
		}
		if err := s.linkFilename(ctx, model.ID, filename); err != nil {
			return nil, err
		}
		return s.hydrate(ctx, model)
	case err != nil:
		return nil, err
	default:
		if err := s.linkFilename(ctx, existing.ID, filename); err != nil {
			return nil, err
		}
		msg, err := s.hydrate(ctx, &existing)
		if err != nil {
			return nil, err
		}
		return msg, common.ErrDuplicateMessageID
	}
}

func (s *Store) linkFilename(ctx context.Context, messageID int64, filename string) error {
	_, err := s.db.NewInsert().
		Model(&MessageFileModel{Filename: filename, MessageID: messageID}).
		On("CONFLICT (filename) DO UPDATE").
		Set("message_id = EXCLUDED.message_id").
		Exec(ctx)
	return err
}

// RemoveMessage unlinks a filename from the index. If other filenames still
// reference the same message, the record survives and
// common.ErrDuplicateMessageID is returned. Removing the last filename deletes
// the message and its tags. An unknown filename returns
// common.ErrMessageNotFound.
func (s *Store) RemoveMessage(ctx context.Context, filename string) error {
	if err := s.requireWritable(); err != nil {
		return err
	}

	var file MessageFileModel
	err := s.db.NewSelect().
		Model(&file).
		Where("filename = ?", filename).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return common.ErrMessageNotFound
	}
	if err != nil {
		return err
	}

	if _, err := s.db.NewDelete().
		Model((*MessageFileModel)(nil)).
		Where("filename = ?", filename).
		Exec(ctx); err != nil {
		return err
	}

	remaining, err := s.db.NewSelect().
		Model((*MessageFileModel)(nil)).
		Where("message_id = ?", file.MessageID).
		Count(ctx)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return common.ErrDuplicateMessageID
	}

	if _, err := s.db.NewDelete().
		Model((*MessageTagModel)(nil)).
		Where("message_id = ?", file.MessageID).
		Exec(ctx); err != nil {
		return err
	}
	_, err = s.db.NewDelete().
		Model((*MessageModel)(nil)).
		Where("id = ?", file.MessageID).
		Exec(ctx)
	return err
}

// BeginAtomic opens an atomic section over subsequent index mutations.
// Sections do not nest.
func (s *Store) BeginAtomic(ctx context.Context) error {
	if err := s.requireWritable(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, "SAVEPOINT mqfs_atomic")
	if err != nil {
		log.Errorf("[index] failed to begin atomic section: %v", err)
	}
	return err
}

// EndAtomic commits the atomic section opened by BeginAtomic.
func (s *Store) EndAtomic(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "RELEASE SAVEPOINT mqfs_atomic")
	if err != nil {
		log.Errorf("[index] failed to end atomic section: %v", err)
	}
	return err
}
