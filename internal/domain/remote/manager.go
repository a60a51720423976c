package remote

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wavetermdev/waveterm-sub010/internal/domain/feupdate"
	"github.com/wavetermdev/waveterm-sub010/internal/domain/packet"
	"github.com/wavetermdev/waveterm-sub010/internal/domain/shellstate"
	"github.com/wavetermdev/waveterm-sub010/internal/domain/statestore"
	"github.com/wavetermdev/waveterm-sub010/internal/infrastructure/resilience"
	"github.com/wavetermdev/waveterm-sub010/internal/shared/errs"
	"github.com/wavetermdev/waveterm-sub010/internal/shared/id"
	"github.com/wavetermdev/waveterm-sub010/internal/shared/utils"
)

// Config holds manager-wide defaults.
type Config struct {
	Shell            string
	WorkingDir       string
	Cols             int
	Rows             int
	ReadBufSize      int
	MaxRemotes       int
	BreakerThreshold uint32
	BreakerTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Shell == "" {
		c.Shell = os.Getenv("SHELL")
		if c.Shell == "" {
			c.Shell = "/bin/bash"
		}
	}
	if c.WorkingDir == "" {
		c.WorkingDir = os.Getenv("HOME")
		if c.WorkingDir == "" {
			c.WorkingDir = "/tmp"
		}
	}
	if c.Cols <= 0 {
		c.Cols = 80
	}
	if c.Rows <= 0 {
		c.Rows = 24
	}
	if c.ReadBufSize <= 0 {
		c.ReadBufSize = 4096
	}
	if c.MaxRemotes <= 0 {
		c.MaxRemotes = 64
	}
	return c
}

// Manager is the registry of remotes.
type Manager struct {
	cfg    Config
	sink   UpdateSink
	store  *statestore.Store
	logger *zap.Logger

	mu      sync.RWMutex
	remotes map[string]*Remote

	onBreakerChange func(remoteId string, from, to resilience.State)
	onExit          func(remoteId string, screenId string)
}

func NewManager(sink UpdateSink, store *statestore.Store, cfg Config, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:     cfg.withDefaults(),
		sink:    sink,
		store:   store,
		logger:  logger.Named("remote"),
		remotes: make(map[string]*Remote),
	}
}

// SetOnBreakerChange installs an observer for input breaker transitions.
// Call before creating remotes.
func (m *Manager) SetOnBreakerChange(fn func(remoteId string, from, to resilience.State)) {
	m.onBreakerChange = fn
}

// SetOnExit installs an observer called once when a remote's shell exits.
// Call before creating remotes.
func (m *Manager) SetOnExit(fn func(remoteId string, screenId string)) {
	m.onExit = fn
}

func (m *Manager) handleExit(r *Remote) {
	if m.onExit != nil {
		m.onExit(r.Id, r.ScreenId)
	}
}

func (m *Manager) breakerSettings(remoteId string) resilience.Settings {
	return resilience.Settings{
		FailureThreshold: m.cfg.BreakerThreshold,
		OpenTimeout:      m.cfg.BreakerTimeout,
		OnStateChange: func(name string, from, to resilience.State) {
			m.logger.Warn("input breaker state change",
				zap.String("remoteid", remoteId),
				zap.Stringer("from", from),
				zap.Stringer("to", to))
			if m.onBreakerChange != nil {
				m.onBreakerChange(remoteId, from, to)
			}
		},
	}
}

// Create starts a new local remote and announces it.
func (m *Manager) Create(opts Options) (*feupdate.RemoteRuntimeState, error) {
	if err := utils.ValidateString(opts.Alias, "alias", 0, utils.MaxNameLength, false); err != nil {
		return nil, err
	}
	if opts.Shell == "" {
		opts.Shell = m.cfg.Shell
	}
	if opts.WorkingDir == "" {
		opts.WorkingDir = m.cfg.WorkingDir
	}
	if opts.Cols <= 0 {
		opts.Cols = m.cfg.Cols
	}
	if opts.Rows <= 0 {
		opts.Rows = m.cfg.Rows
	}

	remoteId := string(id.NewRemoteID())
	r := newRemote(remoteId, opts, m.sink, m.breakerSettings(remoteId), m.logger)
	r.onExit = m.handleExit
	if err := m.add(r); err != nil {
		return nil, err
	}

	if err := r.start(opts.Env, m.cfg.ReadBufSize); err != nil {
		m.mu.Lock()
		delete(m.remotes, remoteId)
		m.mu.Unlock()
		return nil, err
	}
	m.logger.Info("remote started",
		zap.String("remoteid", remoteId),
		zap.String("shell", opts.Shell),
		zap.String("screenid", opts.ScreenId))
	r.publishState()
	return r.RuntimeState(), nil
}

// add registers r, failing once MaxRemotes are registered.
func (m *Manager) add(r *Remote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.remotes) >= m.cfg.MaxRemotes {
		return &errs.OverflowError{Key: "remotes", Capacity: m.cfg.MaxRemotes}
	}
	m.remotes[r.Id] = r
	return nil
}

func (m *Manager) Get(remoteId string) (*Remote, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.remotes[remoteId]
	return r, ok
}

func (m *Manager) getRemote(remoteId string) (*Remote, error) {
	if err := utils.ValidateID(remoteId, "remoteid", true); err != nil {
		return nil, err
	}
	r, ok := m.Get(remoteId)
	if !ok {
		return nil, errs.Validation("remoteid", "remote not found: %s", remoteId)
	}
	return r, nil
}

func (m *Manager) sortedRemotes() []*Remote {
	m.mu.RLock()
	rtn := make([]*Remote, 0, len(m.remotes))
	for _, r := range m.remotes {
		rtn = append(rtn, r)
	}
	m.mu.RUnlock()
	slices.SortFunc(rtn, func(a, b *Remote) int { return strings.Compare(a.Id, b.Id) })
	return rtn
}

// List returns a runtime snapshot of every remote, ordered by id.
func (m *Manager) List() []*feupdate.RemoteRuntimeState {
	remotes := m.sortedRemotes()
	rtn := make([]*feupdate.RemoteRuntimeState, 0, len(remotes))
	for _, r := range remotes {
		rtn = append(rtn, r.RuntimeState())
	}
	return rtn
}

// RuntimeStates returns snapshots of the remotes visible from screenId:
// remotes bound to that screen and unbound remotes.
func (m *Manager) RuntimeStates(screenId string) []*feupdate.RemoteRuntimeState {
	rtn := make([]*feupdate.RemoteRuntimeState, 0)
	for _, r := range m.sortedRemotes() {
		if r.ScreenId == "" || r.ScreenId == screenId {
			rtn = append(rtn, r.RuntimeState())
		}
	}
	return rtn
}

// Kill stops a remote and removes it from the registry.
func (m *Manager) Kill(remoteId string) error {
	m.mu.Lock()
	r, ok := m.remotes[remoteId]
	delete(m.remotes, remoteId)
	m.mu.Unlock()
	if !ok {
		return errs.Validation("remoteid", "remote not found: %s", remoteId)
	}
	r.kill()
	m.logger.Info("remote killed", zap.String("remoteid", remoteId))
	return nil
}

func (m *Manager) NumRemotes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.remotes)
}

// HandleFeInput applies a feinput frame: input bytes, then a signal, then a
// window size change. Callers serialize frames per remote.
func (m *Manager) HandleFeInput(pk *packet.FeInputPacket) error {
	r, err := m.getRemote(pk.Remote.RemoteId)
	if err != nil {
		return err
	}
	data, err := pk.DecodeInput()
	if err != nil {
		return err
	}
	if err := utils.ValidateInputSize(data); err != nil {
		return err
	}
	if err := r.Write(data); err != nil {
		return fmt.Errorf("writing input to remote %s: %w", r.Id, err)
	}
	if pk.SigName != "" {
		sig, err := ParseSignal(pk.SigName)
		if err != nil {
			return err
		}
		if err := r.Signal(sig); err != nil {
			return fmt.Errorf("signaling remote %s: %w", r.Id, err)
		}
	}
	if pk.WinSize != nil {
		if err := r.Resize(*pk.WinSize); err != nil {
			return fmt.Errorf("resizing remote %s: %w", r.Id, err)
		}
	}
	return nil
}

// HandleRemoteInput writes a remoteinput frame's bytes to the remote's
// terminal.
func (m *Manager) HandleRemoteInput(pk *packet.RemoteInputPacket) error {
	r, err := m.getRemote(pk.RemoteId)
	if err != nil {
		return err
	}
	data, err := pk.DecodeInput()
	if err != nil {
		return err
	}
	if err := utils.ValidateInputSize(data); err != nil {
		return err
	}
	if err := r.Write(data); err != nil {
		return fmt.Errorf("writing remote input to %s: %w", r.Id, err)
	}
	return nil
}

// ApplyState records a new shell state for a remote and broadcasts the
// remote's runtime snapshot. body is an encoded ShellState when full is set,
// otherwise an encoded ShellStateDiff whose base is already stored.
func (m *Manager) ApplyState(remoteId string, body []byte, full bool) (*feupdate.RemoteRuntimeState, error) {
	r, err := m.getRemote(remoteId)
	if err != nil {
		return nil, err
	}
	if len(body) > utils.MaxStateBodySize {
		return nil, errs.Validation("state", "state too large %d bytes, max %d", len(body), utils.MaxStateBodySize)
	}

	var ptr statestore.StatePtr
	if full {
		var state shellstate.ShellState
		if err := state.Decode(body); err != nil {
			return nil, err
		}
		ptr = statestore.StatePtr{BaseHash: m.store.StoreBase(state)}
	} else {
		var sdiff shellstate.ShellStateDiff
		if err := sdiff.Decode(body); err != nil {
			return nil, err
		}
		ptr, err = m.store.StoreDiff(sdiff)
		if err != nil {
			return nil, err
		}
	}
	state, err := m.store.GetFullState(ptr)
	if err != nil {
		return nil, err
	}
	r.setState(ptr, state)
	m.logger.Debug("remote state updated",
		zap.String("remoteid", remoteId),
		zap.String("basehash", utils.ShortHash(ptr.BaseHash)),
		zap.Int("chainlen", len(ptr.DiffHashArr)))
	r.publishState()
	return r.RuntimeState(), nil
}

// Close kills every remote.
func (m *Manager) Close() {
	m.mu.Lock()
	remotes := m.remotes
	m.remotes = make(map[string]*Remote)
	m.mu.Unlock()
	for _, r := range remotes {
		r.kill()
	}
}
