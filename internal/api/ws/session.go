package ws

import (
	"crypto/subtle"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wavetermdev/waveterm-sub010/internal/domain/feupdate"
	"github.com/wavetermdev/waveterm-sub010/internal/domain/hub"
	"github.com/wavetermdev/waveterm-sub010/internal/domain/packet"
	"github.com/wavetermdev/waveterm-sub010/internal/shared/errs"
	"github.com/wavetermdev/waveterm-sub010/internal/shared/id"
	"github.com/wavetermdev/waveterm-sub010/internal/shared/utils"
)

// Transport is the outbound half of a client connection.
type Transport interface {
	WriteJson(val any) error
	Close()
}

// Session is one connected client. It starts unauthenticated; the first
// watchscreen frame carrying the right auth key unlocks every other frame.
type Session struct {
	ClientId    string
	ConnectTime time.Time

	hub     *hub.Hub
	shell   Transport
	limiter *rate.Limiter
	logger  *zap.Logger

	mu            sync.Mutex
	authenticated bool
	sessionId     string
	screenId      string
	updateCh      chan feupdate.UpdatePacket
	drainWg       sync.WaitGroup
	closed        bool
}

func NewSession(h *hub.Hub, clientId string, shell Transport) *Session {
	limit := rate.Inf
	if h.Config.Input.RatePerSecond > 0 {
		limit = rate.Limit(h.Config.Input.RatePerSecond)
	}
	return &Session{
		ClientId:    clientId,
		ConnectTime: time.Now(),
		hub:         h,
		shell:       shell,
		limiter:     rate.NewLimiter(limit, h.Config.Input.Burst),
		logger:      h.Logger.With(zap.String("clientid", clientId)),
	}
}

// Run sends the hello frame and processes inbound frames until readCh
// closes.
func (s *Session) Run(readCh <-chan []byte) {
	defer s.Close()
	if err := s.shell.WriteJson(packet.MakeHelloPacket(s.ClientId)); err != nil {
		s.logger.Debug("cannot send hello", zap.Error(err))
		return
	}
	for data := range readCh {
		s.ProcessMessage(data)
	}
}

func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// Watching returns the current subscription, empty when unwatched.
func (s *Session) Watching() (sessionId string, screenId string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionId, s.screenId
}

func (s *Session) sendError(reqType string, err error) {
	if werr := s.shell.WriteJson(packet.MakeErrorPacket(reqType, err)); werr != nil {
		s.logger.Debug("cannot send error frame", zap.Error(werr))
	}
}

// ProcessMessage handles one inbound frame. Failures are reported to the
// client as error frames; the connection stays open.
func (s *Session) ProcessMessage(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic processing frame", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			s.sendError(packet.GetPacketType(data), fmt.Errorf("internal error"))
		}
	}()
	s.hub.Metrics.RecordWSMessage("in", packet.GetPacketType(data))

	pk, err := packet.ParseJsonPacket(data)
	if err != nil {
		s.logger.Debug("bad frame", zap.Error(err))
		s.sendError(packet.GetPacketType(data), err)
		return
	}
	if err := s.dispatch(pk); err != nil {
		s.sendError(pk.GetType(), err)
	}
}

func (s *Session) dispatch(pk packet.PacketType) error {
	if wpk, ok := pk.(*packet.WatchScreenPacket); ok {
		return s.handleWatchScreen(wpk)
	}
	if !s.IsAuthenticated() {
		return errs.Protocol("not authenticated")
	}
	switch p := pk.(type) {
	case *packet.FeInputPacket:
		if err := s.allowInput(); err != nil {
			return err
		}
		return s.handleFeInput(p)
	case *packet.RemoteInputPacket:
		if err := s.allowInput(); err != nil {
			return err
		}
		return s.handleRemoteInput(p)
	case *packet.CmdInputTextPacket:
		return s.handleCmdInputText(p)
	case *packet.UserInputResponsePacket:
		if !id.HasPrefix(p.RequestId, id.RequestPrefix) {
			return errs.Validation("requestid", "invalid requestid %q", p.RequestId)
		}
		if !s.hub.RPC.DeliverResponse(p) {
			s.logger.Debug("no pending request for response", zap.String("requestid", p.RequestId))
		}
		return nil
	}
	return errs.Protocol("unhandled frame type %q", pk.GetType())
}

func (s *Session) allowInput() error {
	if s.limiter.Allow() {
		return nil
	}
	s.hub.Metrics.RecordInputRejected("rate")
	return errs.Validation("input", "input rate exceeded")
}

func (s *Session) handleWatchScreen(pk *packet.WatchScreenPacket) error {
	if pk.SessionId != "" && !id.IsUUID(pk.SessionId) {
		return errs.Validation("sessionid", "invalid sessionid %q", pk.SessionId)
	}
	if pk.ScreenId != "" && !id.IsUUID(pk.ScreenId) {
		return errs.Validation("screenid", "invalid screenid %q", pk.ScreenId)
	}
	if subtle.ConstantTimeCompare([]byte(pk.AuthKey), []byte(s.hub.AuthKey)) != 1 {
		s.mu.Lock()
		s.authenticated = false
		s.mu.Unlock()
		s.unwatch()
		return errs.Protocol("invalid authkey")
	}

	s.mu.Lock()
	s.authenticated = true
	same := s.updateCh != nil && s.sessionId == pk.SessionId && s.screenId == pk.ScreenId
	s.mu.Unlock()

	if pk.IsUnwatch() {
		s.unwatch()
		return nil
	}
	if !same {
		s.watch(pk.SessionId, pk.ScreenId)
	}
	if pk.Connect {
		snapshot := s.hub.ConnectSnapshot(pk.SessionId, pk.ScreenId)
		update := feupdate.MakeModelUpdate(snapshot)
		update.Clean()
		if err := s.shell.WriteJson(update); err != nil {
			return err
		}
		s.hub.Metrics.RecordWSMessage("out", update.UpdateType())
	}
	return nil
}

func (s *Session) watch(sessionId string, screenId string) {
	s.unwatch()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	ch := s.hub.Models.RegisterChannel(s.ClientId, screenId)
	s.sessionId = sessionId
	s.screenId = screenId
	s.updateCh = ch
	s.drainWg.Add(1)
	s.mu.Unlock()

	go s.drain(ch)
	s.hub.ClearIndicator(screenId)
	s.hub.Metrics.SetWatching(true)
	s.logger.Debug("watching screen", zap.String("sessionid", sessionId), zap.String("screenid", screenId))
}

func (s *Session) unwatch() {
	s.mu.Lock()
	ch := s.updateCh
	s.updateCh = nil
	s.sessionId = ""
	s.screenId = ""
	s.mu.Unlock()
	if ch == nil {
		return
	}
	s.hub.Models.UnregisterChannelIf(s.ClientId, ch)
	s.drainWg.Wait()
	s.hub.Metrics.SetWatching(false)
}

// drain forwards bus updates to the client until the channel is
// unregistered.
func (s *Session) drain(ch chan feupdate.UpdatePacket) {
	defer s.drainWg.Done()
	for update := range ch {
		s.writeProtected(update)
	}
}

// writeProtected writes one update. A panic while serializing it is logged
// and the update skipped; later updates still go out.
func (s *Session) writeProtected(update feupdate.UpdatePacket) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic forwarding update",
				zap.String("updatetype", update.UpdateType()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	if err := s.shell.WriteJson(update); err != nil {
		s.logger.Debug("cannot forward update", zap.Error(err))
		return
	}
	s.hub.Metrics.RecordWSMessage("out", update.UpdateType())
}

func (s *Session) handleFeInput(pk *packet.FeInputPacket) error {
	if pk.Remote.OwnerId != "" {
		return errs.Validation("remote", "cannot send input to remote with an owner")
	}
	if pk.Remote.RemoteId == "" {
		return errs.Validation("remote", "remoteid is required")
	}
	if err := pk.CK.Validate(pk.GetType()); err != nil {
		return err
	}
	input, err := pk.DecodeInput()
	if err != nil {
		return err
	}
	if err := utils.ValidateInputSize(input); err != nil {
		return err
	}
	return s.hub.Input.Enqueue(pk.Remote.RemoteId, func() {
		if err := s.hub.Remotes.HandleFeInput(pk); err != nil {
			s.logger.Warn("feinput failed", zap.String("remoteid", pk.Remote.RemoteId), zap.Error(err))
			s.hub.Metrics.RecordInputError(pk.GetType())
		}
	})
}

func (s *Session) handleRemoteInput(pk *packet.RemoteInputPacket) error {
	if pk.RemoteId == "" {
		return errs.Validation("remoteid", "remoteid is required")
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic handling remoteinput", zap.Any("panic", r))
			}
		}()
		if err := s.hub.Remotes.HandleRemoteInput(pk); err != nil {
			s.logger.Warn("remoteinput failed", zap.String("remoteid", pk.RemoteId), zap.Error(err))
			s.hub.Metrics.RecordInputError(pk.GetType())
		}
	}()
	return nil
}

func (s *Session) handleCmdInputText(pk *packet.CmdInputTextPacket) error {
	if pk.ScreenId == "" {
		return errs.Validation("screenid", "screenid is required")
	}
	if err := utils.ValidateCmdInputText(pk.Text.Str); err != nil {
		return err
	}
	s.hub.SetCmdInputText(pk.ScreenId, pk.Text, pk.SeqNum)
	return nil
}

// Close drops the subscription and waits for the forwarding goroutine.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.unwatch()
	s.shell.Close()
}
