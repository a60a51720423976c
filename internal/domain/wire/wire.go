// Package wire implements the self-delimiting binary value encoding used on
// the shell-control side of the system.
//
// Format:
//   - value:     [uvarint length][bytes]  (length 0 has no payload)
//   - int:       [uvarint]
//   - str array: value whose bytes are a JSON array of strings
//
// Unpacker wraps a reader and keeps the first error seen across a sequence
// of reads, so a decoder can chain reads and check failure once at the end.
package wire

import (
	"encoding/binary"
	"io"

	"github.com/bytedance/sonic"

	"github.com/wavetermdev/waveterm-sub010/internal/shared/errs"
)

// MaxValueSize caps the length prefix accepted by UnpackValue.
const MaxValueSize = 16 * 1024 * 1024

// ByteReader is the reader shape required by the unpack functions.
type ByteReader interface {
	io.Reader
	io.ByteReader
}

// PackValue writes barr as a length-prefixed value.
func PackValue(w io.Writer, barr []byte) error {
	viBuf := make([]byte, binary.MaxVarintLen64)
	l := binary.PutUvarint(viBuf, uint64(len(barr)))
	if _, err := w.Write(viBuf[0:l]); err != nil {
		return err
	}
	if len(barr) > 0 {
		if _, err := w.Write(barr); err != nil {
			return err
		}
	}
	return nil
}

// PackStrArr writes strs as a JSON array wrapped in a value.
func PackStrArr(w io.Writer, strs []string) error {
	barr, err := sonic.Marshal(strs)
	if err != nil {
		return err
	}
	return PackValue(w, barr)
}

// PackInt writes ival as a single uvarint.
func PackInt(w io.Writer, ival int) error {
	return PackUInt(w, uint64(ival))
}

// PackUInt writes ival as a single uvarint.
func PackUInt(w io.Writer, ival uint64) error {
	viBuf := make([]byte, binary.MaxVarintLen64)
	l := binary.PutUvarint(viBuf, ival)
	_, err := w.Write(viBuf[0:l])
	return err
}

// UnpackValue reads one length-prefixed value. A zero length returns nil.
func UnpackValue(r ByteReader) ([]byte, error) {
	lenVal, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, errs.DecodeWrap(err, "cannot read value length")
	}
	if lenVal == 0 {
		return nil, nil
	}
	if lenVal > MaxValueSize {
		return nil, errs.Decode("value length %d exceeds limit %d", lenVal, MaxValueSize)
	}
	rtnBuf := make([]byte, int(lenVal))
	if _, err := io.ReadFull(r, rtnBuf); err != nil {
		return nil, errs.DecodeWrap(err, "truncated value, want %d bytes", lenVal)
	}
	return rtnBuf, nil
}

// UnpackStrArr reads a value holding a JSON string array.
func UnpackStrArr(r ByteReader) ([]string, error) {
	barr, err := UnpackValue(r)
	if err != nil {
		return nil, err
	}
	if len(barr) == 0 {
		return nil, nil
	}
	var strs []string
	if err := sonic.Unmarshal(barr, &strs); err != nil {
		return nil, errs.DecodeWrap(err, "invalid string array")
	}
	return strs, nil
}

// UnpackInt reads a single uvarint as an int.
func UnpackInt(r io.ByteReader) (int, error) {
	ival, err := UnpackUInt(r)
	if err != nil {
		return 0, err
	}
	return int(ival), nil
}

// UnpackUInt reads a single uvarint.
func UnpackUInt(r io.ByteReader) (uint64, error) {
	ival, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, errs.DecodeWrap(err, "cannot read uvarint")
	}
	return ival, nil
}

// Unpacker accumulates the first error across a sequence of reads.
type Unpacker struct {
	r   ByteReader
	err error
}

// NewUnpacker creates an Unpacker reading from r.
func NewUnpacker(r ByteReader) *Unpacker {
	return &Unpacker{r: r}
}

// UnpackValue reads a value; name labels the field in the recorded error.
func (u *Unpacker) UnpackValue(name string) []byte {
	if u.err != nil {
		return nil
	}
	rtn, err := UnpackValue(u.r)
	if err != nil {
		u.err = errs.DecodeWrap(err, "unpacking %s", name)
	}
	return rtn
}

// UnpackString reads a value as a string.
func (u *Unpacker) UnpackString(name string) string {
	return string(u.UnpackValue(name))
}

// UnpackInt reads a uvarint as an int.
func (u *Unpacker) UnpackInt(name string) int {
	if u.err != nil {
		return 0
	}
	rtn, err := UnpackInt(u.r)
	if err != nil {
		u.err = errs.DecodeWrap(err, "unpacking %s", name)
	}
	return rtn
}

// UnpackUInt reads a uvarint.
func (u *Unpacker) UnpackUInt(name string) uint64 {
	if u.err != nil {
		return 0
	}
	rtn, err := UnpackUInt(u.r)
	if err != nil {
		u.err = errs.DecodeWrap(err, "unpacking %s", name)
	}
	return rtn
}

// UnpackStrArr reads a JSON string array value.
func (u *Unpacker) UnpackStrArr(name string) []string {
	if u.err != nil {
		return nil
	}
	rtn, err := UnpackStrArr(u.r)
	if err != nil {
		u.err = errs.DecodeWrap(err, "unpacking %s", name)
	}
	return rtn
}

// Error returns the first error encountered, if any.
func (u *Unpacker) Error() error {
	return u.err
}
