package file

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum(t *testing.T) {
	sum := Checksum([]byte("hi"))
	assert.Len(t, sum, 64)
	assert.Equal(t, sum, Checksum([]byte("hi")))
	assert.NotEqual(t, sum, Checksum([]byte("ho")))
}

func TestChecksumRoundTrip(t *testing.T) {
	params := map[string]any{"album": "x"}
	p, err := NewOutbound(Record{Name: "a.bin", Data: []byte{1, 2, 3}, Params: params, Checksum: true}, []byte{1, 2, 3})
	require.NoError(t, err)

	assert.Equal(t, Checksum([]byte{1, 2, 3}), p.Params[ChecksumParam])
	assert.Equal(t, "x", p.Params["album"])
	assert.NotContains(t, params, ChecksumParam, "caller params are not modified")

	in, err := FromBatch(p.Batch(), 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, in.Raw)
}

func TestChecksumMismatch(t *testing.T) {
	b := Batch{
		UID:    "u",
		Name:   "a.txt",
		Data:   "hi",
		IsText: true,
		Params: map[string]any{ChecksumParam: Checksum([]byte("ho"))},
	}
	_, err := FromBatch(b, 0)
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	b.Params = map[string]any{ChecksumParam: 42.0}
	_, err = FromBatch(b, 0)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestNoChecksumPasses(t *testing.T) {
	p, err := FromBatch(Batch{UID: "u", Name: "a.txt", Data: "hi", IsText: true}, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), p.Raw)
}
