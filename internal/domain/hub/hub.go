// Package hub wires the state-sync components together. One Hub is built at
// process start, handed to every consumer and closed at shutdown.
package hub

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/wavetermdev/waveterm-sub010/internal/domain/feupdate"
	"github.com/wavetermdev/waveterm-sub010/internal/domain/mapqueue"
	"github.com/wavetermdev/waveterm-sub010/internal/domain/remote"
	"github.com/wavetermdev/waveterm-sub010/internal/domain/rpcbus"
	"github.com/wavetermdev/waveterm-sub010/internal/domain/screenmem"
	"github.com/wavetermdev/waveterm-sub010/internal/domain/statestore"
	"github.com/wavetermdev/waveterm-sub010/internal/infrastructure/config"
	"github.com/wavetermdev/waveterm-sub010/internal/infrastructure/monitoring"
	"github.com/wavetermdev/waveterm-sub010/internal/infrastructure/resilience"
)

type Hub struct {
	Config  *config.Config
	AuthKey string
	Models  *feupdate.ModelUpdateBus
	RPC     *rpcbus.Bus
	Input   *mapqueue.MapQueue
	Screens *screenmem.Store
	States  *statestore.Store
	Remotes *remote.Manager
	Metrics *monitoring.Metrics
	Logger  *zap.Logger
}

func New(cfg *config.Config, authKey string, metrics *monitoring.Metrics, logger *zap.Logger) (*Hub, error) {
	if authKey == "" {
		return nil, errors.New("auth key is required")
	}
	states, err := statestore.New()
	if err != nil {
		return nil, fmt.Errorf("creating state store: %w", err)
	}

	h := &Hub{
		Config:  cfg,
		AuthKey: authKey,
		Models:  feupdate.MakeModelUpdateBus(cfg.Bus.Capacity, logger),
		Input:   mapqueue.New(cfg.Input.QueueBacklog, cfg.Input.Workers, logger),
		Screens: screenmem.New(),
		States:  states,
		Metrics: metrics,
		Logger:  logger,
	}
	h.RPC = rpcbus.New(h.Models, rpcbus.Options{
		DefaultTimeout: cfg.RPC.DefaultTimeout.D(),
		SafetyMargin:   cfg.RPC.SafetyMargin.D(),
	}, logger)
	h.Remotes = remote.NewManager(&sink{hub: h}, states, remote.Config{
		Shell:            cfg.Remote.Shell,
		WorkingDir:       cfg.Remote.WorkingDir,
		Cols:             cfg.Remote.Cols,
		Rows:             cfg.Remote.Rows,
		MaxRemotes:       cfg.Remote.MaxRemotes,
		BreakerThreshold: cfg.Remote.BreakerThreshold,
		BreakerTimeout:   cfg.Remote.BreakerTimeout.D(),
	}, logger)

	h.Models.SetOnDrop(func(bus string, key string) { metrics.RecordDrop(bus) })
	h.RPC.SetObserver(metrics.RecordRPC)
	h.Input.SetOnReject(func(key string) { metrics.RecordInputRejected("queue_full") })
	h.Remotes.SetOnBreakerChange(func(remoteId string, from, to resilience.State) {
		metrics.RecordBreakerTransition(to.String())
	})
	h.Remotes.SetOnExit(h.remoteExited)
	return h, nil
}

// sink publishes remote output and derives screen indicators from it.
type sink struct {
	hub *Hub
}

func (s *sink) SendScopedUpdate(screenId string, update feupdate.UpdatePacket) int {
	n := s.hub.Models.SendScopedUpdate(screenId, update)
	if mu, ok := update.(*feupdate.ModelUpdate); ok && screenId != "" {
		if len(feupdate.GetUpdateItems[*feupdate.PtyDataUpdate](mu)) > 0 {
			s.hub.RaiseIndicator(screenId, feupdate.IndicatorOutput)
		}
	}
	return n
}

// RaiseIndicator combines indicator into the screen's status and broadcasts
// the result when it changed.
func (h *Hub) RaiseIndicator(screenId string, indicator string) {
	if !h.Screens.CombineIndicator(screenId, indicator) {
		return
	}
	h.Models.SendUpdate(feupdate.MakeModelUpdate(&feupdate.ScreenStatusIndicator{ScreenId: screenId, Status: indicator}))
}

// ClearIndicator resets a screen's status, e.g. when a client starts
// looking at it.
func (h *Hub) ClearIndicator(screenId string) {
	state := h.Screens.Get(screenId)
	if state == nil || state.IndicatorType == feupdate.IndicatorNone {
		return
	}
	h.Screens.SetIndicator(screenId, feupdate.IndicatorNone)
	h.Models.SendUpdate(feupdate.MakeModelUpdate(&feupdate.ScreenStatusIndicator{ScreenId: screenId, Status: feupdate.IndicatorNone}))
}

// SetCmdInputText stores a client's draft text and mirrors it to the other
// clients watching the screen. Stale seqnums are ignored.
func (h *Hub) SetCmdInputText(screenId string, text screenmem.StrWithPos, seqNum int) bool {
	if !h.Screens.SetCmdInputText(screenId, text, seqNum) {
		return false
	}
	h.Models.SendScopedUpdate(screenId, feupdate.MakeModelUpdate(&feupdate.CmdInputTextUpdate{
		ScreenId: screenId,
		SeqNum:   seqNum,
		Text:     text.Str,
		Pos:      text.Pos,
	}))
	return true
}

func (h *Hub) setNumRunning(screenId string, delta int) {
	if screenId == "" {
		return
	}
	num := h.Screens.IncNumRunningCommands(screenId, delta)
	h.Models.SendUpdate(feupdate.MakeModelUpdate(&feupdate.ScreenNumRunningCommands{ScreenId: screenId, Num: num}))
}

// CreateRemote starts a remote and counts it as running on its screen.
func (h *Hub) CreateRemote(opts remote.Options) (*feupdate.RemoteRuntimeState, error) {
	rs, err := h.Remotes.Create(opts)
	if err != nil {
		return nil, err
	}
	h.Metrics.SetRemotesActive(h.Remotes.NumRemotes())
	h.setNumRunning(opts.ScreenId, 1)
	return rs, nil
}

// KillRemote stops a remote. The running count drops when its shell exits.
func (h *Hub) KillRemote(remoteId string) error {
	if err := h.Remotes.Kill(remoteId); err != nil {
		return err
	}
	h.Metrics.SetRemotesActive(h.Remotes.NumRemotes())
	return nil
}

func (h *Hub) remoteExited(remoteId string, screenId string) {
	h.Logger.Debug("remote exited", zap.String("remoteid", remoteId))
	h.setNumRunning(screenId, -1)
	if rs, ok := h.Remotes.Get(remoteId); ok && rs.RuntimeState().Status == remote.StatusError {
		h.RaiseIndicator(screenId, feupdate.IndicatorError)
	} else if screenId != "" {
		h.RaiseIndicator(screenId, feupdate.IndicatorSuccess)
	}
}

// ApplyState records a remote's shell state and counts the result.
func (h *Hub) ApplyState(remoteId string, body []byte, full bool) (*feupdate.RemoteRuntimeState, error) {
	kind := "diff"
	if full {
		kind = "full"
	}
	rs, err := h.Remotes.ApplyState(remoteId, body, full)
	h.Metrics.RecordStateUpdate(kind, err)
	return rs, err
}

// ConnectSnapshot gathers the combined initial update for a client that
// starts watching screenId.
func (h *Hub) ConnectSnapshot(sessionId string, screenId string) *feupdate.ConnectUpdate {
	return &feupdate.ConnectUpdate{
		SessionId:                sessionId,
		ScreenId:                 screenId,
		Remotes:                  h.Remotes.RuntimeStates(screenId),
		ScreenStatusIndicators:   h.Screens.Indicators(),
		ScreenNumRunningCommands: h.Screens.NumRunningCommands(),
		CmdInputText:             h.Screens.CmdInputTextUpdate(screenId),
	}
}

// Close drains queued input, stops every remote and closes the buses.
func (h *Hub) Close(ctx context.Context) error {
	var errList []error
	if err := h.Input.Close(ctx); err != nil {
		errList = append(errList, fmt.Errorf("draining input queue: %w", err))
	}
	h.Remotes.Close()
	h.RPC.Close()
	h.Models.Close()
	if err := h.States.Close(); err != nil {
		errList = append(errList, fmt.Errorf("closing state store: %w", err))
	}
	return errors.Join(errList...)
}
