package session

import (
	"math/rand"
	"strings"

	"github.com/GasimGasimzada/workforest/internal/worktree"
)

// Kebab re-exports worktree.Kebab so callers needing naming-policy helpers
// don't also need to import worktree.
func Kebab(s string) string { return worktree.Kebab(s) }

// SuffixFunc produces one retry suffix on each call. Production code uses
// RandomWord; tests inject a fixed sequence to reproduce spec §8's literal
// naming scenarios.
type SuffixFunc func() string

// Unique returns base if it doesn't collide with exists, otherwise retries
// "base-<suffix>" with a freshly generated suffix until one doesn't collide.
// There is no retry bound: collisions are vanishingly rare with a
// sufficiently large suffix space, per spec §4.5.
func Unique(base string, exists func(string) bool, suffix SuffixFunc) string {
	if !exists(base) {
		return base
	}
	for {
		candidate := base + "-" + suffix()
		if !exists(candidate) {
			return candidate
		}
	}
}

var adjectives = []string{
	"quiet", "amber", "swift", "lunar", "bold", "gentle", "crimson", "brisk",
	"hollow", "vivid", "placid", "ember", "stark", "mellow", "rapid", "dusky",
}

var nouns = []string{
	"otter", "ridge", "harbor", "falcon", "meadow", "cinder", "willow", "fjord",
	"thicket", "ember", "glacier", "heron", "summit", "delta", "coral", "birch",
}

// RandomWord returns one lowercase noun from a small built-in list, used as
// the SuffixFunc by GenerateName and RepoNameFromPath.
func RandomWord() string {
	return nouns[rand.Intn(len(nouns))]
}

// GenerateName picks a two-word "adjective-noun" identifier and resolves
// collisions against exists via Unique. This is the reference naming policy
// from spec §4.5; the only contract the rest of the core relies on is
// uniqueness.
func GenerateName(exists func(string) bool) string {
	base := adjectives[rand.Intn(len(adjectives))] + "-" + nouns[rand.Intn(len(nouns))]
	return Unique(base, exists, RandomWord)
}

// RepoNameFromPath derives a registration name from the last path component,
// kebab-cased, per SPEC_FULL.md §D ("a stable human prefix, with the same
// collision-retry policy as agent names").
func RepoNameFromPath(path string, exists func(string) bool) string {
	trimmed := strings.TrimRight(path, "/")
	base := trimmed
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 {
		base = trimmed[idx+1:]
	}
	if base == "" {
		base = "repo"
	}
	return Unique(Kebab(base), exists, RandomWord)
}
