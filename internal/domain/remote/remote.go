package remote

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"

	"github.com/wavetermdev/waveterm-sub010/internal/domain/feupdate"
	"github.com/wavetermdev/waveterm-sub010/internal/domain/shellstate"
	"github.com/wavetermdev/waveterm-sub010/internal/domain/statestore"
	"github.com/wavetermdev/waveterm-sub010/internal/infrastructure/resilience"
)

const RemoteTypeLocal = "local"

const (
	StatusConnecting   = "connecting"
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusError        = "error"
)

var ErrRemoteClosed = errors.New("remote is closed")

// UpdateSink receives the updates a remote publishes.
type UpdateSink interface {
	SendScopedUpdate(screenId string, update feupdate.UpdatePacket) int
}

// Options describes a remote to create. Zero fields take the manager's
// defaults.
type Options struct {
	ScreenId   string            `json:"screenid,omitempty"`
	Alias      string            `json:"alias,omitempty"`
	Shell      string            `json:"shell,omitempty"`
	WorkingDir string            `json:"workingdir,omitempty"`
	Cols       int               `json:"cols,omitempty"`
	Rows       int               `json:"rows,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
}

// Remote is one running shell.
type Remote struct {
	Id         string
	Alias      string
	ScreenId   string
	Shell      string
	WorkingDir string
	StartedAt  time.Time

	sink    UpdateSink
	logger  *zap.Logger
	breaker *resilience.Breaker

	cmd    *exec.Cmd
	ptmx   *os.File
	done   chan struct{}
	onExit func(r *Remote)

	mu       sync.Mutex
	status   string
	errStr   string
	closed   bool
	ptyPos   int64
	winSize  feupdate.WinSize
	statePtr statestore.StatePtr
	state    *shellstate.ShellState
}

func newRemote(remoteId string, opts Options, sink UpdateSink, breaker resilience.Settings, logger *zap.Logger) *Remote {
	breaker.IsFailure = func(err error) bool {
		return err != nil && !errors.Is(err, ErrRemoteClosed)
	}
	r := &Remote{
		Id:         remoteId,
		Alias:      opts.Alias,
		ScreenId:   opts.ScreenId,
		Shell:      opts.Shell,
		WorkingDir: opts.WorkingDir,
		StartedAt:  time.Now(),
		sink:       sink,
		logger:     logger.With(zap.String("remoteid", remoteId)),
		done:       make(chan struct{}),
		status:     StatusConnecting,
		winSize:    feupdate.WinSize{Rows: opts.Rows, Cols: opts.Cols},
	}
	r.breaker = resilience.New("remote:"+remoteId, breaker)
	return r
}

// start launches the shell under a PTY and begins streaming its output.
func (r *Remote) start(env map[string]string, readBufSize int) error {
	cmd := exec.Command(r.Shell)
	cmd.Dir = r.WorkingDir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	for key, value := range env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}

	r.mu.Lock()
	winSize := r.winSize
	r.mu.Unlock()
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(winSize.Rows),
		Cols: uint16(winSize.Cols),
	})
	if err != nil {
		r.setStatus(StatusError, err.Error())
		close(r.done)
		return fmt.Errorf("failed to start PTY: %w", err)
	}
	r.mu.Lock()
	r.cmd = cmd
	r.ptmx = ptmx
	killed := r.closed
	if !killed {
		r.status = StatusConnected
		r.errStr = ""
	}
	r.mu.Unlock()
	// killed while starting: monitorProcess still reaps the process
	if killed {
		cmd.Process.Kill()
	}

	readDone := make(chan struct{})
	go r.readOutput(readBufSize, readDone)
	go r.monitorProcess(readDone)
	return nil
}

func (r *Remote) setStatus(status string, errStr string) {
	r.mu.Lock()
	r.status = status
	r.errStr = errStr
	r.mu.Unlock()
}

// readOutput publishes PTY output until the terminal closes. It is the only
// writer of ptyPos, so updates leave in offset order.
func (r *Remote) readOutput(bufSize int, readDone chan struct{}) {
	defer close(readDone)
	buf := make([]byte, bufSize)
	for {
		n, err := r.ptmx.Read(buf)
		if n > 0 {
			r.publishOutput(buf[:n])
		}
		if err != nil {
			// EIO is how linux reports the slave side going away
			if !errors.Is(err, io.EOF) && !errors.Is(err, syscall.EIO) && !errors.Is(err, os.ErrClosed) {
				r.logger.Warn("pty read failed", zap.Error(err))
			}
			return
		}
	}
}

func (r *Remote) publishOutput(data []byte) {
	r.mu.Lock()
	pos := r.ptyPos
	r.ptyPos += int64(len(data))
	r.mu.Unlock()

	update := &feupdate.PtyDataUpdate{
		ScreenId:   r.ScreenId,
		RemoteId:   r.Id,
		PtyPos:     pos,
		PtyData64:  base64.StdEncoding.EncodeToString(data),
		PtyDataLen: int64(len(data)),
	}
	r.sink.SendScopedUpdate(r.ScreenId, feupdate.MakeModelUpdate(update))
}

func (r *Remote) monitorProcess(readDone chan struct{}) {
	waitErr := r.cmd.Wait()
	// drain whatever output is left before announcing the exit
	select {
	case <-readDone:
	case <-time.After(time.Second):
	}

	r.mu.Lock()
	r.closed = true
	if waitErr != nil && r.status != StatusDisconnected {
		r.status = StatusError
		r.errStr = waitErr.Error()
	} else {
		r.status = StatusDisconnected
	}
	r.mu.Unlock()
	r.ptmx.Close()
	close(r.done)

	r.logger.Info("remote shell exited", zap.NamedError("exit", waitErr))
	r.publishState()
	if r.onExit != nil {
		r.onExit(r)
	}
}

// Done is closed once the shell has exited.
func (r *Remote) Done() <-chan struct{} {
	return r.done
}

// live returns the process and terminal while the remote is running.
func (r *Remote) live() (*exec.Cmd, *os.File, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.ptmx == nil {
		return nil, nil, false
	}
	return r.cmd, r.ptmx, true
}

// Write sends input bytes to the terminal.
func (r *Remote) Write(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return r.breaker.Do(func() error {
		_, ptmx, ok := r.live()
		if !ok {
			return ErrRemoteClosed
		}
		_, err := ptmx.Write(data)
		return err
	})
}

// Signal delivers sig to the shell process.
func (r *Remote) Signal(sig syscall.Signal) error {
	cmd, _, ok := r.live()
	if !ok || cmd.Process == nil {
		return ErrRemoteClosed
	}
	return cmd.Process.Signal(sig)
}

// Resize changes the terminal dimensions. Non-positive sizes are ignored.
func (r *Remote) Resize(size feupdate.WinSize) error {
	if size.Rows <= 0 || size.Cols <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.ptmx == nil {
		return ErrRemoteClosed
	}
	if size == r.winSize {
		return nil
	}
	r.winSize = size
	return pty.Setsize(r.ptmx, &pty.Winsize{
		Rows: uint16(size.Rows),
		Cols: uint16(size.Cols),
	})
}

func (r *Remote) kill() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.status = StatusDisconnected
	cmd, ptmx := r.cmd, r.ptmx
	r.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		cmd.Process.Kill()
	}
	if ptmx != nil {
		ptmx.Close()
	}
}

func (r *Remote) setState(ptr statestore.StatePtr, state shellstate.ShellState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statePtr = ptr
	r.state = &state
}

// StatePtr returns the stored location of the remote's current shell state.
func (r *Remote) StatePtr() statestore.StatePtr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statePtr
}

// RuntimeState builds a fresh snapshot. Callers own the result.
func (r *Remote) RuntimeState() *feupdate.RemoteRuntimeState {
	r.mu.Lock()
	defer r.mu.Unlock()
	winSize := r.winSize
	rtn := &feupdate.RemoteRuntimeState{
		RemoteType:   RemoteTypeLocal,
		RemoteId:     r.Id,
		RemoteAlias:  r.Alias,
		ScreenId:     r.ScreenId,
		Status:       r.status,
		ErrorStr:     r.errStr,
		PtyPos:       r.ptyPos,
		WinSize:      &winSize,
		Local:        true,
		InputBlocked: r.breaker.State() == resilience.StateOpen,
	}
	if r.state != nil {
		rtn.ShellType = r.state.GetShellType()
		rtn.Cwd = r.state.Cwd
		rtn.StateHash = r.statePtr.BaseHash
		if n := len(r.statePtr.DiffHashArr); n > 0 {
			rtn.StateHash = r.statePtr.DiffHashArr[n-1]
		}
		if vars, err := shellstate.DecodeVars(r.state.ShellVars); err == nil && len(vars) > 0 {
			rtn.RemoteVars = make(map[string]string, len(vars))
			for name, val := range vars {
				rtn.RemoteVars[name] = string(val)
			}
		}
	}
	return rtn
}

func (r *Remote) publishState() {
	r.sink.SendScopedUpdate(r.ScreenId, feupdate.MakeModelUpdate(r.RuntimeState()))
}
