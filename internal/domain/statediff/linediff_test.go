package statediff

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavetermdev/waveterm-sub010/internal/shared/errs"
)

const str1 = `
hello
line #2
more
stuff
apple
`

const str2 = `
line #2
apple
grapes
banana
`

const str3 = `
more
stuff
banana
coconut
`

func testDiff(t *testing.T, oldStr string, newStr string) {
	t.Helper()
	diffBytes := MakeLineDiff(oldStr, newStr)
	out, err := ApplyLineDiff(oldStr, diffBytes)
	require.NoError(t, err)
	assert.Equal(t, newStr, out)
}

func TestDiffRoundTrip(t *testing.T) {
	testDiff(t, str1, str2)
	testDiff(t, str2, str3)
	testDiff(t, str1, str3)
	testDiff(t, str3, str1)
	testDiff(t, "", "")
	testDiff(t, "", "a\nb")
	testDiff(t, "a\nb", "")
	testDiff(t, "same\nsame\n", "same\nsame\n")
	testDiff(t, "no trailing", "no trailing\nnewline")
}

func TestDiffReferencesOldLines(t *testing.T) {
	diff := MakeDiff(str1, str2)

	assert.Equal(t, []int{1, 3, 6, 0, 0, 1}, diff.Lines)
	assert.Equal(t, []string{"grapes", "banana"}, diff.NewData)

	out, err := ApplyDiff(str1, diff)
	require.NoError(t, err)
	assert.Equal(t, str2, out)
}

func TestDiffFirstOccurrenceWins(t *testing.T) {
	oldStr := "dup\nx\ndup\ny"
	diff := MakeDiff(oldStr, "dup\ny\ndup")

	assert.Equal(t, []int{1, 4, 1}, diff.Lines)
	assert.Empty(t, diff.NewData)
}

func TestDiffDeterministic(t *testing.T) {
	a := MakeLineDiff(str1, str3)
	b := MakeLineDiff(str1, str3)
	assert.True(t, bytes.Equal(a, b))
}

func TestDecodePreservesTrailingEmpty(t *testing.T) {
	diff, err := DecodeLineDiff(MakeLineDiff(str1, str2))
	require.NoError(t, err)

	assert.Equal(t, []string{"grapes", "banana", ""}, diff.NewData)
}

func TestDecodeBadVersion(t *testing.T) {
	encoded := MakeLineDiff(str1, str2)
	encoded[0] = 1

	_, err := DecodeLineDiff(encoded)
	require.Error(t, err)
	assert.True(t, errs.IsDecode(err))
}

func TestDecodeTruncated(t *testing.T) {
	_, err := DecodeLineDiff([]byte{0})
	require.Error(t, err)
	assert.True(t, errs.IsDecode(err))

	_, err = DecodeLineDiff([]byte{0, 3, 1})
	require.Error(t, err)
	assert.True(t, errs.IsDecode(err))
}

func TestApplyErrors(t *testing.T) {
	tests := []struct {
		name string
		diff LineDiff
		want string
	}{
		{
			name: "insufficient newdata",
			diff: LineDiff{Lines: []int{0, 0}, NewData: []string{"one"}},
			want: "insufficient newdata",
		},
		{
			name: "index out of range",
			diff: LineDiff{Lines: []int{1, 9}},
			want: "index out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ApplyDiff("a\nb", tt.diff)
			require.Error(t, err)
			assert.True(t, errs.IsDecode(err))
			assert.Contains(t, err.Error(), tt.want)
			assert.Empty(t, out)
		})
	}
}
