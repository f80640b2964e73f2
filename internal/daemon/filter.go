package daemon

import (
	ignore "github.com/sabhiram/go-gitignore"
	log "github.com/sirupsen/logrus"
)

// BuildHideFilter compiles gitignore-style patterns into the engine's hide
// predicate for root-level backing entries. Returns nil when no patterns are
// configured, which disables filtering entirely.
func BuildHideFilter(patterns []string) func(name string) bool {
	if len(patterns) == 0 {
		return nil
	}
	matcher := ignore.CompileIgnoreLines(patterns...)
	if matcher == nil {
		log.Warnf("[daemon] failed to compile hide patterns, filtering disabled")
		return nil
	}
	return func(name string) bool {
		return matcher.MatchesPath(name)
	}
}
