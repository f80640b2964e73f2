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

package index

import (
	"github.com/uptrace/bun"
)

// Bun ORM models for the mail index tables.

// MessageModel represents the messages table. One row per logical message,
// keyed by RFC 5322 message id; the files a message lives in are separate rows
// in message_files.
type MessageModel struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	ID        int64  `bun:"id,pk,autoincrement"`
	MessageID string `bun:"message_id,notnull,unique"`
	Date      int64  `bun:"date,notnull"` // Unix timestamp
	Subject   string `bun:"subject"`
	Sender    string `bun:"sender"`
	Recipient string `bun:"recipient"`
}

// MessageFileModel represents the message_files table. Filenames are stored
// relative to the mail root, maildir flag suffix included.
type MessageFileModel struct {
	bun.BaseModel `bun:"table:message_files,alias:f"`

	Filename  string `bun:"filename,pk"`
	MessageID int64  `bun:"message_id,notnull"`
}

// MessageTagModel represents the message_tags table
type MessageTagModel struct {
	bun.BaseModel `bun:"table:message_tags,alias:t"`

	MessageID int64  `bun:"message_id,pk"`
	Tag       string `bun:"tag,pk"`
}

// ConfigModel represents the config table (schema version, excluded tags)
type ConfigModel struct {
	bun.BaseModel `bun:"table:config"`

	Key   string `bun:"key,pk"`
	Value string `bun:"value,notnull"`
}
