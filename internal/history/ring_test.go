package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrimPrefixLenMidCSI(t *testing.T) {
	buf := []byte("hello\x1B[31mworld")
	require.Len(t, buf, 15)
	assert.Equal(t, 5, trimPrefixLen(buf, 7))
}

func TestTrimPrefixLenPlainText(t *testing.T) {
	buf := []byte("hello world")
	assert.Equal(t, 3, trimPrefixLen(buf, 3))
}

func TestTrimPrefixLenOverflowEqualsLength(t *testing.T) {
	buf := []byte("hello")
	assert.Equal(t, len(buf), trimPrefixLen(buf, len(buf)))
}

func TestAppendNeverExceedsLimit(t *testing.T) {
	r := New(10)
	r.Append([]byte("0123456789"))
	r.Append([]byte("abcde"))
	assert.LessOrEqual(t, r.Len(), 10)
	assert.Equal(t, "56789abcde", string(r.Snapshot()))
}

func TestAppendPreservesUnterminatedEscapeAtEnd(t *testing.T) {
	r := New(8)
	r.Append([]byte("abcdef\x1B["))
	// Overflow is 0 here (8 bytes exactly at limit) — nothing trimmed yet.
	r.Append([]byte("31m"))
	// Now 11 bytes with limit 8: the CSI "\x1B[31m" (5 bytes) must survive intact.
	snap := r.Snapshot()
	assert.LessOrEqual(t, len(snap), 8)
	assert.Contains(t, string(snap), "\x1B[31m")
}

func TestAppendEmptyChunkIsNoop(t *testing.T) {
	r := New(10)
	r.Append(nil)
	assert.Equal(t, 0, r.Len())
}
