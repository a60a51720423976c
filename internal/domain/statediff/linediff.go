package statediff

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/wavetermdev/waveterm-sub010/internal/shared/errs"
)

const LineDiffVersion = 0

// LineDiff rebuilds a new text from an old one.
// A 0 in Lines takes the next entry of NewData, k>0 copies old line k
// (1-indexed).
type LineDiff struct {
	Lines   []int
	NewData []string
}

// MakeDiff diffs two texts line by line. Duplicate old lines always resolve
// to their first occurrence.
func MakeDiff(oldStr string, newStr string) LineDiff {
	return makeDiff(strings.Split(oldStr, "\n"), strings.Split(newStr, "\n"))
}

func makeDiff(oldData []string, newData []string) LineDiff {
	var rtn LineDiff
	oldDataMap := make(map[string]int, len(oldData)) // 1-indexed
	for idx, str := range oldData {
		if _, found := oldDataMap[str]; found {
			continue
		}
		oldDataMap[str] = idx + 1
	}
	rtn.Lines = make([]int, len(newData))
	for idx, str := range newData {
		if oldIdx, found := oldDataMap[str]; found {
			rtn.Lines[idx] = oldIdx
			continue
		}
		rtn.Lines[idx] = 0
		rtn.NewData = append(rtn.NewData, str)
	}
	return rtn
}

func putUVarint(buf *bytes.Buffer, viBuf []byte, ival int) {
	l := binary.PutUvarint(viBuf, uint64(ival))
	buf.Write(viBuf[0:l])
}

// Encode writes [version][len][uvarint]*len followed by every NewData entry
// terminated by '\n'.
func (diff LineDiff) Encode() []byte {
	var buf bytes.Buffer
	viBuf := make([]byte, binary.MaxVarintLen64)
	putUVarint(&buf, viBuf, LineDiffVersion)
	putUVarint(&buf, viBuf, len(diff.Lines))
	for _, val := range diff.Lines {
		putUVarint(&buf, viBuf, val)
	}
	for _, str := range diff.NewData {
		buf.WriteString(str)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// DecodeLineDiff parses an encoded LineDiff. The trailing bytes are split on
// '\n' as-is, so NewData normally ends with one empty entry; ApplyDiff
// consumes NewData sequentially and never reaches it.
func DecodeLineDiff(diffBytes []byte) (LineDiff, error) {
	var rtn LineDiff
	r := bytes.NewBuffer(diffBytes)
	version, err := binary.ReadUvarint(r)
	if err != nil {
		return rtn, errs.DecodeWrap(err, "invalid diff, cannot read version")
	}
	if version != LineDiffVersion {
		return rtn, errs.Decode("invalid diff, bad version: %d", version)
	}
	linesLen64, err := binary.ReadUvarint(r)
	if err != nil {
		return rtn, errs.DecodeWrap(err, "invalid diff, cannot read lines length")
	}
	if linesLen64 > uint64(len(diffBytes)) {
		// every entry takes at least one byte
		return rtn, errs.Decode("invalid diff, lines length %d exceeds input", linesLen64)
	}
	linesLen := int(linesLen64)
	rtn.Lines = make([]int, linesLen)
	for idx := 0; idx < linesLen; idx++ {
		vi, err := binary.ReadUvarint(r)
		if err != nil {
			return rtn, errs.DecodeWrap(err, "invalid diff, cannot read line %d", idx)
		}
		rtn.Lines[idx] = int(vi)
	}
	rtn.NewData = strings.Split(string(r.Bytes()), "\n")
	return rtn, nil
}

// ApplyDiff rebuilds the new text from oldStr. It never returns a partial
// result.
func ApplyDiff(oldStr string, diff LineDiff) (string, error) {
	rtn, err := applyDiff(strings.Split(oldStr, "\n"), diff)
	if err != nil {
		return "", err
	}
	return strings.Join(rtn, "\n"), nil
}

func applyDiff(oldData []string, diff LineDiff) ([]string, error) {
	rtn := make([]string, 0, len(diff.Lines))
	newDataPos := 0
	for _, lineVal := range diff.Lines {
		if lineVal == 0 {
			if newDataPos >= len(diff.NewData) {
				return nil, errs.Decode("insufficient newdata")
			}
			rtn = append(rtn, diff.NewData[newDataPos])
			newDataPos++
			continue
		}
		idx := lineVal - 1
		if idx < 0 || idx >= len(oldData) {
			return nil, errs.Decode("index out of range %d old-data-len:%d", lineVal, len(oldData))
		}
		rtn = append(rtn, oldData[idx])
	}
	return rtn, nil
}

// MakeLineDiff returns the encoded diff from oldStr to newStr.
func MakeLineDiff(oldStr string, newStr string) []byte {
	return MakeDiff(oldStr, newStr).Encode()
}

// ApplyLineDiff decodes diffBytes and applies it to oldStr.
func ApplyLineDiff(oldStr string, diffBytes []byte) (string, error) {
	diff, err := DecodeLineDiff(diffBytes)
	if err != nil {
		return "", err
	}
	return ApplyDiff(oldStr, diff)
}
