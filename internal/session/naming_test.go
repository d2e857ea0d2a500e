package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func existsIn(names ...string) func(string) bool {
	set := map[string]bool{}
	for _, n := range names {
		set[n] = true
	}
	return func(n string) bool { return set[n] }
}

func sequence(words ...string) SuffixFunc {
	i := 0
	return func() string {
		w := words[i]
		i++
		return w
	}
}

func TestUniqueNoCollision(t *testing.T) {
	got := Unique("demo", existsIn("other"), sequence("suffix"))
	assert.Equal(t, "demo", got)
}

func TestUniqueSingleCollision(t *testing.T) {
	got := Unique("demo", existsIn("demo"), sequence("alpha"))
	assert.Equal(t, "demo-alpha", got)
}

func TestUniqueRerollsOnRepeatedCollision(t *testing.T) {
	got := Unique("demo", existsIn("demo", "demo-alpha"), sequence("alpha", "bravo"))
	assert.Equal(t, "demo-bravo", got)
}

func TestRepoNameFromPath(t *testing.T) {
	got := RepoNameFromPath("/home/dev/My Repo", existsIn())
	assert.Equal(t, "my-repo", got)
}

func TestGenerateNameIsUnique(t *testing.T) {
	seen := map[string]bool{}
	exists := func(n string) bool { return seen[n] }
	for i := 0; i < 20; i++ {
		name := GenerateName(exists)
		assert.False(t, seen[name], "GenerateName produced a repeat: %s", name)
		seen[name] = true
	}
}
