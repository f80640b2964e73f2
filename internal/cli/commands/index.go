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

package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"mqfs/internal/index"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the mail index database",
}

var indexInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new index database",
	Args:  cobra.NoArgs,
	RunE:  runIndexInit,
}

var indexNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Index messages that arrived since the last run",
	Args:  cobra.NoArgs,
	RunE:  runIndexNew,
}

var indexTagCmd = &cobra.Command{
	Use:   "tag <+tag|-tag>... <query>",
	Short: "Add or remove tags on messages matching a query",
	Long: `Applies tag changes to every message matching the query expression.
Each tag argument starts with + (add) or - (remove); the remaining
arguments form the query.

Removals start with - and must follow a "--" separator so they are not
read as flags.

Examples:
  mqfs index tag -m ~/mail +todo from:boss
  mqfs index tag -m ~/mail -- -unread +archived tag:list`,
	Args: cobra.MinimumNArgs(2),
	RunE: runIndexTag,
}

var (
	indexDBPath  string
	indexMailDir string
)

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexInitCmd)
	indexCmd.AddCommand(indexNewCmd)
	indexCmd.AddCommand(indexTagCmd)
	indexCmd.PersistentFlags().StringVarP(&indexMailDir, "mail-dir", "m", "", "Mail root directory (required)")
	indexCmd.PersistentFlags().StringVar(&indexDBPath, "db", "", "Index database path (default <mail-dir>/.mqfs/index.db)")
	indexCmd.MarkPersistentFlagRequired("mail-dir")
}

func indexPaths() (dbPath, mailDir string, err error) {
	mailDir, err = filepath.Abs(indexMailDir)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve mail dir: %w", err)
	}
	dbPath = indexDBPath
	if dbPath == "" {
		dbPath = filepath.Join(mailDir, ".mqfs", "index.db")
	}
	return dbPath, mailDir, nil
}

func runIndexInit(cmd *cobra.Command, args []string) error {
	dbPath, mailDir, err := indexPaths()
	if err != nil {
		return err
	}
	if _, err := os.Stat(dbPath); err == nil {
		return fmt.Errorf("index database already exists at %s", dbPath)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	store, err := index.OpenStore(dbPath, mailDir, index.ModeReadWrite)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.CreateSchema(context.Background()); err != nil {
		return err
	}
	fmt.Printf("Created index database at %s\n", dbPath)
	return nil
}

func runIndexNew(cmd *cobra.Command, args []string) error {
	dbPath, mailDir, err := indexPaths()
	if err != nil {
		return err
	}
	idx, err := index.NewContext(dbPath, mailDir)
	if err != nil {
		return err
	}

	store := idx.Open(index.ModeReadWrite)
	added, err := index.ScanMaildir(context.Background(), store)
	idx.Close(store)
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d new message files\n", added)
	return nil
}

func runIndexTag(cmd *cobra.Command, args []string) error {
	var add, remove []string
	var terms []string
	for _, arg := range args {
		switch {
		case len(terms) == 0 && strings.HasPrefix(arg, "+"):
			add = append(add, arg[1:])
		case len(terms) == 0 && strings.HasPrefix(arg, "-"):
			remove = append(remove, arg[1:])
		default:
			terms = append(terms, arg)
		}
	}
	if len(add)+len(remove) == 0 {
		return fmt.Errorf("no tag changes given (use +tag or -tag)")
	}
	if len(terms) == 0 {
		return fmt.Errorf("no query given")
	}
	expr := strings.Join(terms, " ")

	dbPath, mailDir, err := indexPaths()
	if err != nil {
		return err
	}
	idx, err := index.NewContext(dbPath, mailDir)
	if err != nil {
		return err
	}
	store := idx.Open(index.ModeReadWrite)
	defer idx.Close(store)

	ctx := context.Background()
	msgs, err := store.QueryMessages(ctx, expr, nil)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		for _, tag := range add {
			if err := msg.AddTag(ctx, tag); err != nil {
				return err
			}
		}
		for _, tag := range remove {
			if err := msg.RemoveTag(ctx, tag); err != nil {
				return err
			}
		}
	}
	fmt.Printf("Updated %d messages\n", len(msgs))
	return nil
}
