// Package screenmem holds per-screen state that lives only in memory: the
// draft command-line text, the status indicator and the number of running
// commands.
package screenmem

import (
	"slices"
	"sync"

	"github.com/wavetermdev/waveterm-sub010/internal/domain/feupdate"
)

var indicatorLevels = map[string]int{
	feupdate.IndicatorNone:    0,
	feupdate.IndicatorOutput:  1,
	feupdate.IndicatorSuccess: 2,
	feupdate.IndicatorError:   3,
}

// IsValidIndicator reports whether indicator is a known level.
func IsValidIndicator(indicator string) bool {
	_, ok := indicatorLevels[indicator]
	return ok
}

// StrWithPos is text plus a cursor position counted in runes.
type StrWithPos struct {
	Str string `json:"str"`
	Pos int    `json:"pos"`
}

type ScreenMemState struct {
	NumRunningCommands int        `json:"numrunningcommands,omitempty"`
	IndicatorType      string     `json:"indicatortype,omitempty"`
	CmdInputText       StrWithPos `json:"cmdinputtext,omitempty"`
	CmdInputSeqNum     int        `json:"cmdinputseqnum,omitempty"`
}

type Store struct {
	lock    sync.Mutex
	screens map[string]*ScreenMemState
}

func New() *Store {
	return &Store{screens: make(map[string]*ScreenMemState)}
}

// caller holds lock
func (s *Store) getOrCreate(screenId string) *ScreenMemState {
	state := s.screens[screenId]
	if state == nil {
		state = &ScreenMemState{}
		s.screens[screenId] = state
	}
	return state
}

// SetCmdInputText stores draft text for screenId. Writes whose seqNum is not
// newer than the stored one are ignored; the return value reports whether
// the text was stored.
func (s *Store) SetCmdInputText(screenId string, sp StrWithPos, seqNum int) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	state := s.getOrCreate(screenId)
	if seqNum <= state.CmdInputSeqNum {
		return false
	}
	state.CmdInputText = sp
	state.CmdInputSeqNum = seqNum
	return true
}

func (s *Store) SetNumRunningCommands(screenId string, num int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.getOrCreate(screenId).NumRunningCommands = num
}

// IncNumRunningCommands adds delta (never going below zero) and returns the
// new count.
func (s *Store) IncNumRunningCommands(screenId string, delta int) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	state := s.getOrCreate(screenId)
	state.NumRunningCommands = max(0, state.NumRunningCommands+delta)
	return state.NumRunningCommands
}

// CombineIndicator raises the screen's indicator to indicator if it is
// higher than the current one, and reports whether it changed.
func (s *Store) CombineIndicator(screenId string, indicator string) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	state := s.getOrCreate(screenId)
	if indicatorLevels[indicator] > indicatorLevels[state.IndicatorType] {
		state.IndicatorType = indicator
		return true
	}
	return false
}

// SetIndicator overwrites the screen's indicator, e.g. to clear it when the
// user looks at the screen.
func (s *Store) SetIndicator(screenId string, indicator string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.getOrCreate(screenId).IndicatorType = indicator
}

// Get returns a copy of the screen's state, or nil.
func (s *Store) Get(screenId string) *ScreenMemState {
	s.lock.Lock()
	defer s.lock.Unlock()
	ptr := s.screens[screenId]
	if ptr == nil {
		return nil
	}
	rtn := *ptr
	return &rtn
}

func (s *Store) Delete(screenId string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.screens, screenId)
}

func (s *Store) sortedIds() []string {
	ids := make([]string, 0, len(s.screens))
	for screenId := range s.screens {
		ids = append(ids, screenId)
	}
	slices.Sort(ids)
	return ids
}

// Indicators returns the non-empty indicators of every screen.
func (s *Store) Indicators() []*feupdate.ScreenStatusIndicator {
	s.lock.Lock()
	defer s.lock.Unlock()
	var rtn []*feupdate.ScreenStatusIndicator
	for _, screenId := range s.sortedIds() {
		if status := s.screens[screenId].IndicatorType; status != feupdate.IndicatorNone {
			rtn = append(rtn, &feupdate.ScreenStatusIndicator{ScreenId: screenId, Status: status})
		}
	}
	return rtn
}

// NumRunningCommands returns the non-zero running counts of every screen.
func (s *Store) NumRunningCommands() []*feupdate.ScreenNumRunningCommands {
	s.lock.Lock()
	defer s.lock.Unlock()
	var rtn []*feupdate.ScreenNumRunningCommands
	for _, screenId := range s.sortedIds() {
		if num := s.screens[screenId].NumRunningCommands; num > 0 {
			rtn = append(rtn, &feupdate.ScreenNumRunningCommands{ScreenId: screenId, Num: num})
		}
	}
	return rtn
}

// CmdInputTextUpdate returns the screen's draft text as an update item, or
// nil when none was ever set.
func (s *Store) CmdInputTextUpdate(screenId string) *feupdate.CmdInputTextUpdate {
	state := s.Get(screenId)
	if state == nil || state.CmdInputSeqNum == 0 {
		return nil
	}
	return &feupdate.CmdInputTextUpdate{
		ScreenId: screenId,
		SeqNum:   state.CmdInputSeqNum,
		Text:     state.CmdInputText.Str,
		Pos:      state.CmdInputText.Pos,
	}
}
