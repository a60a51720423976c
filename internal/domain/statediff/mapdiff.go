package statediff

import (
	"bytes"
	"encoding/binary"
	"slices"

	"github.com/wavetermdev/waveterm-sub010/internal/domain/wire"
	"github.com/wavetermdev/waveterm-sub010/internal/shared/errs"
)

const (
	MapDiffVersion0 = 0
	MapDiffVersion  = 1
)

// MapDiff turns one variable map into another.
type MapDiff struct {
	ToAdd    map[string][]byte
	ToRemove []string
}

// IsEmpty reports whether applying the diff changes nothing.
func (diff MapDiff) IsEmpty() bool {
	return len(diff.ToAdd) == 0 && len(diff.ToRemove) == 0
}

func makeMapDiff(oldMap map[string][]byte, newMap map[string][]byte) MapDiff {
	rtn := MapDiff{ToAdd: make(map[string][]byte)}
	for name, newVal := range newMap {
		oldVal, found := oldMap[name]
		if !found || !bytes.Equal(oldVal, newVal) {
			rtn.ToAdd[name] = newVal
		}
	}
	for name := range oldMap {
		if _, found := newMap[name]; !found {
			rtn.ToRemove = append(rtn.ToRemove, name)
		}
	}
	return rtn
}

func (diff MapDiff) apply(oldMap map[string][]byte) map[string][]byte {
	rtn := make(map[string][]byte, len(oldMap)+len(diff.ToAdd))
	for name, val := range oldMap {
		rtn[name] = val
	}
	for name, val := range diff.ToAdd {
		rtn[name] = val
	}
	for _, name := range diff.ToRemove {
		delete(rtn, name)
	}
	return rtn
}

// Encode writes a deterministic encoding: keys and removals are sorted.
func (diff MapDiff) Encode() []byte {
	var buf bytes.Buffer
	wire.PackUInt(&buf, MapDiffVersion)
	wire.PackInt(&buf, len(diff.ToAdd))
	addKeys := make([]string, 0, len(diff.ToAdd))
	for key := range diff.ToAdd {
		addKeys = append(addKeys, key)
	}
	slices.Sort(addKeys)
	for _, key := range addKeys {
		wire.PackValue(&buf, []byte(key))
		wire.PackValue(&buf, diff.ToAdd[key])
	}
	toRemove := slices.Clone(diff.ToRemove)
	slices.Sort(toRemove)
	wire.PackInt(&buf, len(toRemove))
	for _, name := range toRemove {
		wire.PackValue(&buf, []byte(name))
	}
	return buf.Bytes()
}

// DecodeMapDiff parses an encoded MapDiff (version 0 or 1).
func DecodeMapDiff(diffBytes []byte) (MapDiff, error) {
	r := bytes.NewBuffer(diffBytes)
	version, err := wire.UnpackUInt(r)
	if err != nil {
		return MapDiff{}, errs.DecodeWrap(err, "invalid map diff, cannot read version")
	}
	if version == MapDiffVersion0 {
		return decodeMapDiffV0(diffBytes)
	}
	if version != MapDiffVersion {
		return MapDiff{}, errs.Decode("invalid map diff, bad version: %d", version)
	}
	u := wire.NewUnpacker(r)
	rtn := MapDiff{ToAdd: make(map[string][]byte)}
	addLen := u.UnpackInt("add length")
	for i := 0; i < addLen && u.Error() == nil; i++ {
		key := u.UnpackString("add key")
		val := u.UnpackValue("add val")
		rtn.ToAdd[key] = val
	}
	removeLen := u.UnpackInt("remove length")
	for i := 0; i < removeLen && u.Error() == nil; i++ {
		rtn.ToRemove = append(rtn.ToRemove, u.UnpackString("remove key"))
	}
	if err := u.Error(); err != nil {
		return MapDiff{}, err
	}
	return rtn, nil
}

// version 0: [version][maplen] key\0val\0 ... removed\0 ...
func decodeMapDiffV0(diffBytes []byte) (MapDiff, error) {
	r := bytes.NewBuffer(diffBytes)
	if _, err := binary.ReadUvarint(r); err != nil {
		return MapDiff{}, errs.DecodeWrap(err, "invalid map diff, cannot read version")
	}
	mapLen64, err := binary.ReadUvarint(r)
	if err != nil {
		return MapDiff{}, errs.DecodeWrap(err, "invalid map diff, cannot read map length")
	}
	fields := bytes.Split(r.Bytes(), []byte{0})
	if uint64(len(fields)) < 2*mapLen64 {
		return MapDiff{}, errs.Decode("invalid map diff, not enough fields, maplen:%d fields:%d", mapLen64, len(fields))
	}
	mapLen := int(mapLen64)
	rtn := MapDiff{ToAdd: make(map[string][]byte)}
	for i := 0; i < 2*mapLen; i += 2 {
		rtn.ToAdd[string(fields[i])] = fields[i+1]
	}
	for _, removeVal := range fields[2*mapLen:] {
		if len(removeVal) == 0 {
			continue
		}
		rtn.ToRemove = append(rtn.ToRemove, string(removeVal))
	}
	return rtn, nil
}

// MakeMapDiff returns the encoded diff between two maps, or nil when they are
// equal.
func MakeMapDiff(oldMap map[string][]byte, newMap map[string][]byte) []byte {
	diff := makeMapDiff(oldMap, newMap)
	if diff.IsEmpty() {
		return nil
	}
	return diff.Encode()
}

// ApplyMapDiff applies an encoded diff. An empty diff returns oldMap.
func ApplyMapDiff(oldMap map[string][]byte, diffBytes []byte) (map[string][]byte, error) {
	if len(diffBytes) == 0 {
		return oldMap, nil
	}
	diff, err := DecodeMapDiff(diffBytes)
	if err != nil {
		return nil, err
	}
	return diff.apply(oldMap), nil
}
