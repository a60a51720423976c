package statediff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapDiffRoundTrip(t *testing.T) {
	oldMap := map[string][]byte{
		"PATH":  []byte("/usr/bin"),
		"HOME":  []byte("/home/me"),
		"STALE": []byte("1"),
	}
	newMap := map[string][]byte{
		"PATH": []byte("/usr/local/bin:/usr/bin"),
		"HOME": []byte("/home/me"),
		"NEW":  []byte("x"),
	}

	diffBytes := MakeMapDiff(oldMap, newMap)
	require.NotNil(t, diffBytes)

	out, err := ApplyMapDiff(oldMap, diffBytes)
	require.NoError(t, err)
	assert.Equal(t, newMap, out)
}

func TestMapDiffEqualMaps(t *testing.T) {
	m := map[string][]byte{"A": []byte("1")}
	assert.Nil(t, MakeMapDiff(m, m))

	out, err := ApplyMapDiff(m, nil)
	require.NoError(t, err)
	assert.Equal(t, m, out)
}

func TestMapDiffEncodingDeterministic(t *testing.T) {
	diff := MapDiff{
		ToAdd:    map[string][]byte{"b": []byte("2"), "a": []byte("1"), "c": nil},
		ToRemove: []string{"z", "y"},
	}
	first := diff.Encode()
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, diff.Encode())
	}
}

func TestMapDiffDecodeV0(t *testing.T) {
	// [version 0][maplen 1] key\0val\0 removed\0
	encoded := append([]byte{0, 1}, []byte("K\x00V\x00GONE\x00")...)

	diff, err := DecodeMapDiff(encoded)
	require.NoError(t, err)
	assert.Equal(t, []byte("V"), diff.ToAdd["K"])
	assert.Equal(t, []string{"GONE"}, diff.ToRemove)
}

func TestMapDiffDecodeTruncated(t *testing.T) {
	encoded := MakeMapDiff(nil, map[string][]byte{"A": []byte("value")})
	_, err := DecodeMapDiff(encoded[:len(encoded)-2])
	require.Error(t, err)
}
