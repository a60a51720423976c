// Package rpcbus layers synchronous request/response calls on top of the
// asynchronous model update channel.
//
// A call registers a single-shot channel under a fresh correlation id, pushes
// the request to the client as a model update, and waits for either the
// client's response frame or the caller's deadline. The correlation channel
// is released on every exit path; responses arriving after that are
// discarded.
package rpcbus

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/wavetermdev/waveterm-sub010/internal/domain/feupdate"
	"github.com/wavetermdev/waveterm-sub010/internal/domain/updatebus"
	"github.com/wavetermdev/waveterm-sub010/internal/shared/errs"
	"github.com/wavetermdev/waveterm-sub010/internal/shared/id"
)

const (
	DefaultTimeout = 30 * time.Second
	// subtracted from the advertised timeout so the client gives up first
	DefaultSafetyMargin = 500 * time.Millisecond
)

// Outcomes reported to the observer.
const (
	OutcomeOK            = "ok"
	OutcomeError         = "error"
	OutcomeTimeout       = "timeout"
	OutcomeCancelled     = "cancelled"
	OutcomeProtocol      = "protocol"
	OutcomeUndeliverable = "undeliverable"
)

// Request is a model update item that expects a correlated response.
type Request interface {
	feupdate.ModelUpdateItem
	SetReqId(reqId string)
	SetTimeoutMs(timeoutMs int)
	ExpectedResponse() string
}

// Response is a client frame answering a Request.
type Response interface {
	GetType() string
	GetRequestId() string
	GetError() string
}

type Options struct {
	DefaultTimeout time.Duration
	SafetyMargin   time.Duration
	Capacity       int
}

type rpcChannel struct {
	ch chan Response
}

func (c *rpcChannel) GetChannel() chan Response  { return c.ch }
func (c *rpcChannel) SetChannel(ch chan Response) { c.ch = ch }
func (c *rpcChannel) Match(string) bool           { return true }

type Bus struct {
	pending  *updatebus.Bus[Response]
	models   *feupdate.ModelUpdateBus
	opts     Options
	logger   *zap.Logger
	observer func(outcome string)
}

func New(models *feupdate.ModelUpdateBus, opts Options, logger *zap.Logger) *Bus {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultTimeout
	}
	if opts.SafetyMargin <= 0 {
		opts.SafetyMargin = DefaultSafetyMargin
	}
	if opts.Capacity <= 0 {
		opts.Capacity = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		pending: updatebus.New[Response]("rpc", opts.Capacity, logger),
		models:  models,
		opts:    opts,
		logger:  logger.With(zap.String("component", "rpcbus")),
	}
}

// SetObserver installs a hook called once per DoRequest with its outcome.
func (b *Bus) SetObserver(fn func(outcome string)) {
	b.observer = fn
}

func (b *Bus) observe(outcome string) {
	if b.observer != nil {
		b.observer(outcome)
	}
}

// NumPending returns the number of calls waiting for a response.
func (b *Bus) NumPending() int {
	return b.pending.NumChannels()
}

// DoRequest sends req to clientId (all clients when empty) and waits for the
// matching response. A context without a deadline gets DefaultTimeout.
func (b *Bus) DoRequest(ctx context.Context, clientId string, req Request) (Response, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.DefaultTimeout)
		defer cancel()
	}
	reqId := id.NewRequestID().String()
	ch := b.pending.RegisterChannel(reqId, &rpcChannel{})
	defer b.pending.UnregisterChannel(reqId)

	deadline, _ := ctx.Deadline()
	timeoutMs := int((time.Until(deadline) - b.opts.SafetyMargin).Milliseconds())
	if timeoutMs < 0 {
		timeoutMs = 0
	}
	req.SetReqId(reqId)
	req.SetTimeoutMs(timeoutMs)

	update := feupdate.MakeModelUpdate(req)
	if clientId == "" {
		b.models.SendUpdate(update)
	} else if !b.models.SendToClient(clientId, update) {
		b.observe(OutcomeUndeliverable)
		return nil, errs.Validation("clientid", "client %s is not receiving updates", clientId)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			b.observe(OutcomeCancelled)
			return nil, errs.Protocol("rpc %s abandoned, bus closed", reqId)
		}
		if resp.GetType() != req.ExpectedResponse() {
			b.observe(OutcomeProtocol)
			return nil, errs.Protocol("rpc %s: expected %s response, got %s", reqId, req.ExpectedResponse(), resp.GetType())
		}
		if resp.GetError() != "" {
			b.observe(OutcomeError)
			return resp, errors.New(resp.GetError())
		}
		b.observe(OutcomeOK)
		return resp, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			b.observe(OutcomeTimeout)
			return nil, &errs.TimeoutError{Op: req.UpdateType() + " response", Err: ctx.Err()}
		}
		b.observe(OutcomeCancelled)
		return nil, ctx.Err()
	}
}

// DeliverResponse routes resp to its waiting call. It returns false when no
// call is waiting, in which case the response is discarded.
func (b *Bus) DeliverResponse(resp Response) bool {
	reqId := resp.GetRequestId()
	if reqId == "" {
		return false
	}
	if _, found := b.pending.GetChannel(reqId); !found {
		b.logger.Debug("discarding rpc response, no pending request", zap.String("requestid", reqId))
		return false
	}
	return b.pending.SendToKey(reqId, resp)
}

// Close abandons every pending call.
func (b *Bus) Close() {
	b.pending.Close()
}
