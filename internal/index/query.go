package index

import (
	"context"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
)

// QueryMessages evaluates a search expression against the index and returns
// the matching messages, newest first. Messages carrying any of excludedTags
// are omitted from the result set.
//
// The supported grammar is a whitespace-joined conjunction of terms:
//
//	tag:T  from:S  to:S  subject:S  id:MSGID  path:P  bare-word  *
//
// Bare words match subject or sender substrings; * (alone) matches all.
func (s *Store) QueryMessages(ctx context.Context, expr string, excludedTags []string) ([]*Message, error) {
	q := s.db.NewSelect().Model((*MessageModel)(nil))

	terms := strings.Fields(expr)
	if len(terms) == 0 {
		return nil, fmt.Errorf("empty query expression")
	}
	for _, term := range terms {
		var err error
		q, err = applyTerm(q, term)
		if err != nil {
			return nil, err
		}
	}

	if len(excludedTags) > 0 {
		q = q.Where(
			"NOT EXISTS (SELECT 1 FROM message_tags t WHERE t.message_id = m.id AND t.tag IN (?))",
			bun.In(excludedTags),
		)
	}

	var models []MessageModel
	if err := q.Order("date DESC").Order("id ASC").Scan(ctx, &models); err != nil {
		return nil, fmt.Errorf("query %q failed: %w", expr, err)
	}

	messages := make([]*Message, 0, len(models))
	for i := range models {
		msg, err := s.hydrate(ctx, &models[i])
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func applyTerm(q *bun.SelectQuery, term string) (*bun.SelectQuery, error) {
	if term == "*" {
		return q, nil
	}

	prefix, value, found := strings.Cut(term, ":")
	if !found {
		pattern := "%" + term + "%"
		return q.Where("(m.subject LIKE ? OR m.sender LIKE ?)", pattern, pattern), nil
	}
	if value == "" {
		return nil, fmt.Errorf("query term %q has an empty value", term)
	}

	switch prefix {
	case "tag":
		return q.Where(
			"EXISTS (SELECT 1 FROM message_tags t WHERE t.message_id = m.id AND t.tag = ?)",
			value,
		), nil
	case "from":
		return q.Where("m.sender LIKE ?", "%"+value+"%"), nil
	case "to":
		return q.Where("m.recipient LIKE ?", "%"+value+"%"), nil
	case "subject":
		return q.Where("m.subject LIKE ?", "%"+value+"%"), nil
	case "id":
		return q.Where("m.message_id = ?", value), nil
	case "path":
		return q.Where(
			"EXISTS (SELECT 1 FROM message_files f WHERE f.message_id = m.id AND f.filename LIKE ?)",
			value+"%",
		), nil
	default:
		return nil, fmt.Errorf("unknown query term %q", term)
	}
}

// ParseExcludedTags splits the raw newline-delimited excluded-tag config value
// into individual tags, dropping blank lines.
func ParseExcludedTags(raw string) []string {
	var tags []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			tags = append(tags, line)
		}
	}
	return tags
}
