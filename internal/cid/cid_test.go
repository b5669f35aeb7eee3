package cid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/provgraph/internal/errs"
)

const (
	helloRawCID = "bafkr4igxjga67jykbseaxdmmdgc5a5o3zp3htom2l6mrjznk7fvyggu6eq"
	emptyRawCID = "bafkr4ifpcne3t5pzugtkaqcn5i3nzskjtpfslsnnyejlpte2spfoihzsmi"
)

func TestComputeKnownVectors(t *testing.T) {
	tests := []struct {
		name  string
		codec uint64
		data  string
		want  string
	}{
		{"raw hello world", RawBinary, "hello world", helloRawCID},
		{"raw empty", RawBinary, "", emptyRawCID},
		{"jcs object", JSONJCS, `{"a":1}`, "baga6yaq6edkzwzlc27e3cin4s5qioplypcio6tkctkwthjylibn2ud5aripvg"},
		{"hashseq", Blake3HashSeq, "hello world", "bagaachra25eyd35hbigiqc4nrqmyludv3pf7m6nztjpzsfhfvl4wxay2tysa"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(tt.codec, []byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeDeterministic(t *testing.T) {
	data := []byte("same bytes every time")
	first := MustCompute(RawBinary, data)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, MustCompute(RawBinary, data))
	}
}

func TestParse(t *testing.T) {
	info, err := Parse(URNPrefix + helloRawCID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Version)
	assert.Equal(t, RawBinary, info.Codec)
	assert.Equal(t, HashBlake3, info.HashCode)
	assert.Equal(t, "d74981efa70a0c880b8d8c1985d075dbcbf679b99a5f9914e5aaf96b831a9e24", hexString(info.Digest))

	_, err = Parse("not-a-cid")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Run("match bare", func(t *testing.T) {
		got, err := Validate([]byte("hello world"), RawBinary, helloRawCID)
		require.NoError(t, err)
		assert.Equal(t, helloRawCID, got)
	})

	t.Run("match prefixed", func(t *testing.T) {
		_, err := Validate([]byte("hello world"), RawBinary, URNPrefix+helloRawCID)
		require.NoError(t, err)
	})

	t.Run("mismatch carries both values", func(t *testing.T) {
		_, err := Validate([]byte("hello world!"), RawBinary, helloRawCID)
		require.Error(t, err)

		var mm *MismatchError
		require.ErrorAs(t, err, &mm)
		assert.Equal(t, helloRawCID, mm.Expected)
		assert.NotEqual(t, helloRawCID, mm.Computed)
		assert.True(t, errs.IsIdentityMismatch(err))
		assert.Contains(t, err.Error(), "doesn't match provided CID")
	})

	t.Run("codec participates", func(t *testing.T) {
		_, err := Validate([]byte("hello world"), JSONJCS, helloRawCID)
		assert.True(t, errs.IsIdentityMismatch(err))
	})
}

func TestValidate_SingleBitFlips(t *testing.T) {
	payload := []byte("hello world")
	for i := range payload {
		for bit := 0; bit < 8; bit++ {
			flipped := append([]byte(nil), payload...)
			flipped[i] ^= 1 << bit

			_, err := Validate(flipped, RawBinary, helloRawCID)
			require.Error(t, err, "byte %d bit %d", i, bit)
			assert.True(t, errs.IsIdentityMismatch(err), "byte %d bit %d", i, bit)
		}
	}
}

func TestURNHelpers(t *testing.T) {
	assert.Equal(t, "urn:cid:abc", AddURN("abc"))
	assert.Equal(t, "urn:cid:abc", AddURN("urn:cid:abc"))
	assert.Equal(t, "", AddURN(""))
	assert.Equal(t, "abc", StripURN("urn:cid:abc"))
	assert.Equal(t, "abc", StripURN("abc"))
	assert.Equal(t, "urn:uuid:123", AddUUIDURN("123"))
	assert.Equal(t, "urn:uuid:123", AddUUIDURN("urn:uuid:123"))
	assert.Equal(t, "123", StripUUIDURN("urn:uuid:123"))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(helloRawCID, URNPrefix+helloRawCID))
	assert.False(t, Equal(helloRawCID, emptyRawCID))
	assert.True(t, Equal("did:key:x", "did:key:x"))
	assert.False(t, Equal("did:key:x", "did:key:y"))
}

func TestCodecNames(t *testing.T) {
	for _, codec := range []uint64{RawBinary, Blake3HashSeq, RDFC10, JSONJCS} {
		parsed, err := ParseCodec(CodecName(codec))
		require.NoError(t, err)
		assert.Equal(t, codec, parsed)
	}

	parsed, err := ParseCodec("0x55")
	require.NoError(t, err)
	assert.Equal(t, RawBinary, parsed)

	_, err = ParseCodec("bogus")
	assert.Error(t, err)

	codec, err := Codec(helloRawCID)
	require.NoError(t, err)
	assert.Equal(t, RawBinary, codec)
}

func hexString(b []byte) string {
	const digits = "0123456789abcdef"
	out := make([]byte, 0, len(b)*2)
	for _, c := range b {
		out = append(out, digits[c>>4], digits[c&0xf])
	}
	return string(out)
}
