package shellstate

import (
	"fmt"

	"github.com/wavetermdev/waveterm-sub010/internal/domain/statediff"
)

// MakeDiff describes newState relative to oldState. oldHash must be the hash
// of oldState; it becomes the diff's BaseHash.
func MakeDiff(oldState ShellState, oldHash string, newState ShellState) (ShellStateDiff, error) {
	oldVars, err := DecodeVars(oldState.ShellVars)
	if err != nil {
		return ShellStateDiff{}, fmt.Errorf("decoding base vars: %w", err)
	}
	newVars, err := DecodeVars(newState.ShellVars)
	if err != nil {
		return ShellStateDiff{}, fmt.Errorf("decoding new vars: %w", err)
	}
	rtn := ShellStateDiff{
		Version:  newState.Version,
		BaseHash: oldHash,
		Cwd:      newState.Cwd,
		Error:    newState.Error,
		VarsDiff: statediff.MakeMapDiff(oldVars, newVars),
	}
	if oldState.Aliases != newState.Aliases {
		rtn.AliasesDiff = statediff.MakeLineDiff(oldState.Aliases, newState.Aliases)
	}
	if oldState.Funcs != newState.Funcs {
		rtn.FuncsDiff = statediff.MakeLineDiff(oldState.Funcs, newState.Funcs)
	}
	return rtn, nil
}

// ApplyDiff rebuilds the new state from oldState. Diffs in a chain all name
// the chain's base in BaseHash, so oldState is not checked against it here.
func ApplyDiff(oldState ShellState, sdiff ShellStateDiff) (ShellState, error) {
	rtn := ShellState{
		Version: sdiff.Version,
		Cwd:     sdiff.Cwd,
		Error:   sdiff.Error,
		Aliases: oldState.Aliases,
		Funcs:   oldState.Funcs,
	}
	oldVars, err := DecodeVars(oldState.ShellVars)
	if err != nil {
		return ShellState{}, fmt.Errorf("decoding base vars: %w", err)
	}
	newVars, err := statediff.ApplyMapDiff(oldVars, sdiff.VarsDiff)
	if err != nil {
		return ShellState{}, fmt.Errorf("applying vars diff: %w", err)
	}
	rtn.ShellVars = EncodeVars(newVars)
	if len(sdiff.AliasesDiff) > 0 {
		rtn.Aliases, err = statediff.ApplyLineDiff(oldState.Aliases, sdiff.AliasesDiff)
		if err != nil {
			return ShellState{}, fmt.Errorf("applying aliases diff: %w", err)
		}
	}
	if len(sdiff.FuncsDiff) > 0 {
		rtn.Funcs, err = statediff.ApplyLineDiff(oldState.Funcs, sdiff.FuncsDiff)
		if err != nil {
			return ShellState{}, fmt.Errorf("applying funcs diff: %w", err)
		}
	}
	rtn.GetHashVal(true)
	return rtn, nil
}
