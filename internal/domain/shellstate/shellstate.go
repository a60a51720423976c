// Package shellstate holds the shell runtime state documents exchanged with
// remotes and the diff machinery that keeps them small on the wire.
//
// A ShellState is a full snapshot (version, cwd, variables, aliases,
// functions). A ShellStateDiff describes a new state relative to a base state
// identified by its hash. Both pack to a versioned WireCodec stream; their
// JSON form is the base64 of that stream.
package shellstate

import (
	"bytes"
	"slices"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/wavetermdev/waveterm-sub010/internal/domain/wire"
	"github.com/wavetermdev/waveterm-sub010/internal/shared/errs"
	"github.com/wavetermdev/waveterm-sub010/internal/shared/utils"
)

const (
	ShellStatePackVersion     = 0
	ShellStateDiffPackVersion = 0
)

const (
	ShellTypeBash = "bash"
	ShellTypeZsh  = "zsh"
)

var hasher = utils.DefaultHasher()

type ShellState struct {
	Version   string `json:"version"` // "<shelltype> <semver>"
	Cwd       string `json:"cwd,omitempty"`
	ShellVars []byte `json:"shellvars,omitempty"` // see EncodeVars
	Aliases   string `json:"aliases,omitempty"`
	Funcs     string `json:"funcs,omitempty"`
	Error     string `json:"error,omitempty"`
	HashVal   string `json:"-"`
}

type ShellStateDiff struct {
	Version     string   `json:"version"`
	BaseHash    string   `json:"basehash"`
	DiffHashArr []string `json:"diffhasharr,omitempty"`
	Cwd         string   `json:"cwd,omitempty"`
	VarsDiff    []byte   `json:"shellvarsdiff,omitempty"` // MapDiff
	AliasesDiff []byte   `json:"aliasesdiff,omitempty"`   // LineDiff
	FuncsDiff   []byte   `json:"funcsdiff,omitempty"`     // LineDiff
	Error       string   `json:"error,omitempty"`
	HashVal     string   `json:"-"`
}

// GetShellType returns the shell family named by Version.
func (state ShellState) GetShellType() string {
	if strings.HasPrefix(state.Version, ShellTypeZsh) {
		return ShellTypeZsh
	}
	return ShellTypeBash
}

func (state ShellState) IsEmpty() bool {
	return state.Version == "" && state.Cwd == "" && len(state.ShellVars) == 0 && state.Aliases == "" && state.Funcs == "" && state.Error == ""
}

// EncodeAndHash returns the state's hash and its packed bytes.
func (state ShellState) EncodeAndHash() (string, []byte) {
	var buf bytes.Buffer
	wire.PackInt(&buf, ShellStatePackVersion)
	wire.PackValue(&buf, []byte(state.Version))
	wire.PackValue(&buf, []byte(state.Cwd))
	wire.PackValue(&buf, state.ShellVars)
	wire.PackValue(&buf, []byte(state.Aliases))
	wire.PackValue(&buf, []byte(state.Funcs))
	wire.PackValue(&buf, []byte(state.Error))
	return hasher.Hash(buf.Bytes()), buf.Bytes()
}

// GetHashVal caches the hash on the struct.
func (state *ShellState) GetHashVal(force bool) string {
	if state.HashVal == "" || force {
		state.HashVal, _ = state.EncodeAndHash()
	}
	return state.HashVal
}

// Decode replaces state with the packed state in barr.
func (state *ShellState) Decode(barr []byte) error {
	u := wire.NewUnpacker(bytes.NewBuffer(barr))
	version := u.UnpackInt("ShellState pack version")
	if u.Error() == nil && version != ShellStatePackVersion {
		return errs.Decode("invalid ShellState pack version: %d", version)
	}
	var rtn ShellState
	rtn.Version = u.UnpackString("ShellState.Version")
	rtn.Cwd = u.UnpackString("ShellState.Cwd")
	rtn.ShellVars = u.UnpackValue("ShellState.ShellVars")
	rtn.Aliases = u.UnpackString("ShellState.Aliases")
	rtn.Funcs = u.UnpackString("ShellState.Funcs")
	rtn.Error = u.UnpackString("ShellState.Error")
	if err := u.Error(); err != nil {
		return err
	}
	rtn.HashVal = hasher.Hash(barr)
	*state = rtn
	return nil
}

func (state ShellState) MarshalJSON() ([]byte, error) {
	_, encoded := state.EncodeAndHash()
	return sonic.Marshal(encoded)
}

func (state *ShellState) UnmarshalJSON(jsonBytes []byte) error {
	var barr []byte
	if err := sonic.Unmarshal(jsonBytes, &barr); err != nil {
		return err
	}
	return state.Decode(barr)
}

// EncodeAndHash returns the diff's hash and its packed bytes.
func (sdiff ShellStateDiff) EncodeAndHash() (string, []byte) {
	var buf bytes.Buffer
	wire.PackInt(&buf, ShellStateDiffPackVersion)
	wire.PackValue(&buf, []byte(sdiff.Version))
	wire.PackValue(&buf, []byte(sdiff.BaseHash))
	wire.PackStrArr(&buf, sdiff.DiffHashArr)
	wire.PackValue(&buf, []byte(sdiff.Cwd))
	wire.PackValue(&buf, sdiff.VarsDiff)
	wire.PackValue(&buf, sdiff.AliasesDiff)
	wire.PackValue(&buf, sdiff.FuncsDiff)
	wire.PackValue(&buf, []byte(sdiff.Error))
	return hasher.Hash(buf.Bytes()), buf.Bytes()
}

func (sdiff *ShellStateDiff) GetHashVal(force bool) string {
	if sdiff.HashVal == "" || force {
		sdiff.HashVal, _ = sdiff.EncodeAndHash()
	}
	return sdiff.HashVal
}

// Decode replaces sdiff with the packed diff in barr.
func (sdiff *ShellStateDiff) Decode(barr []byte) error {
	u := wire.NewUnpacker(bytes.NewBuffer(barr))
	version := u.UnpackInt("ShellStateDiff pack version")
	if u.Error() == nil && version != ShellStateDiffPackVersion {
		return errs.Decode("invalid ShellStateDiff pack version: %d", version)
	}
	var rtn ShellStateDiff
	rtn.Version = u.UnpackString("ShellStateDiff.Version")
	rtn.BaseHash = u.UnpackString("ShellStateDiff.BaseHash")
	rtn.DiffHashArr = u.UnpackStrArr("ShellStateDiff.DiffHashArr")
	rtn.Cwd = u.UnpackString("ShellStateDiff.Cwd")
	rtn.VarsDiff = u.UnpackValue("ShellStateDiff.VarsDiff")
	rtn.AliasesDiff = u.UnpackValue("ShellStateDiff.AliasesDiff")
	rtn.FuncsDiff = u.UnpackValue("ShellStateDiff.FuncsDiff")
	rtn.Error = u.UnpackString("ShellStateDiff.Error")
	if err := u.Error(); err != nil {
		return err
	}
	rtn.HashVal = hasher.Hash(barr)
	*sdiff = rtn
	return nil
}

func (sdiff ShellStateDiff) MarshalJSON() ([]byte, error) {
	_, encoded := sdiff.EncodeAndHash()
	return sonic.Marshal(encoded)
}

func (sdiff *ShellStateDiff) UnmarshalJSON(jsonBytes []byte) error {
	var barr []byte
	if err := sonic.Unmarshal(jsonBytes, &barr); err != nil {
		return err
	}
	return sdiff.Decode(barr)
}

// EncodeVars packs a variable map as [uvarint n] followed by n sorted
// key/value WireValues.
func EncodeVars(vars map[string][]byte) []byte {
	if len(vars) == 0 {
		return nil
	}
	keys := make([]string, 0, len(vars))
	for key := range vars {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	var buf bytes.Buffer
	wire.PackInt(&buf, len(keys))
	for _, key := range keys {
		wire.PackValue(&buf, []byte(key))
		wire.PackValue(&buf, vars[key])
	}
	return buf.Bytes()
}

// DecodeVars is the inverse of EncodeVars.
func DecodeVars(barr []byte) (map[string][]byte, error) {
	rtn := make(map[string][]byte)
	if len(barr) == 0 {
		return rtn, nil
	}
	u := wire.NewUnpacker(bytes.NewBuffer(barr))
	numVars := u.UnpackInt("vars length")
	for i := 0; i < numVars && u.Error() == nil; i++ {
		key := u.UnpackString("var name")
		rtn[key] = u.UnpackValue("var value")
	}
	if err := u.Error(); err != nil {
		return nil, err
	}
	return rtn, nil
}
