package fanout

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type failingSink struct{}

func (failingSink) Write(p []byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriteDeliversToAllSubscribers(t *testing.T) {
	f := New()
	var a, b bytes.Buffer
	f.Add(&a)
	f.Add(&b)

	f.Write([]byte("hello"))

	assert.Equal(t, "hello", a.String())
	assert.Equal(t, "hello", b.String())
}

func TestWriteRemovesFailingSink(t *testing.T) {
	f := New()
	var good bytes.Buffer
	f.Add(failingSink{})
	f.Add(&good)

	f.Write([]byte("chunk1"))
	assert.Equal(t, 1, f.Len())

	f.Write([]byte("chunk2"))
	assert.Equal(t, "chunk1chunk2", good.String())
	assert.Equal(t, 1, f.Len())
}

func TestWriteEmptyChunkIsNoop(t *testing.T) {
	f := New()
	var buf bytes.Buffer
	f.Add(&buf)
	f.Write(nil)
	assert.Equal(t, 0, buf.Len())
}
