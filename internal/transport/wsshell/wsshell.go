// Package wsshell wraps a gorilla websocket connection in a pair of pumps.
//
// The read pump delivers text frames on ReadChan and answers application
// level {"type":"ping"} frames itself. The write pump drains WriteChan and
// sends a control ping every PingInterval; the peer's pong (or any frame)
// extends the read deadline. When either pump stops the connection is
// closed, CloseChan is closed and ReadChan is closed.
package wsshell

import (
	"errors"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wavetermdev/waveterm-sub010/internal/shared/id"
)

var ErrClosed = errors.New("websocket closed")

// Config tunes the transport. Zero fields take defaults.
type Config struct {
	ReadLimit    int64
	PingInterval time.Duration
	ReadWait     time.Duration
	WriteWait    time.Duration
	ChanSize     int
	CheckOrigin  func(r *http.Request) bool
}

func (c Config) withDefaults() Config {
	if c.ReadLimit <= 0 {
		c.ReadLimit = 128 * 1024
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 10 * time.Second
	}
	if c.ReadWait <= 0 {
		c.ReadWait = 15 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.ChanSize <= 0 {
		c.ChanSize = 10
	}
	return c
}

type WSShell struct {
	Conn       *websocket.Conn
	RemoteAddr string
	ConnId     string
	Query      url.Values
	Header     http.Header
	OpenTime   time.Time

	CloseChan chan struct{}
	WriteChan chan []byte
	ReadChan  chan []byte

	cfg      Config
	logger   *zap.Logger
	lastRecv atomic.Int64
	numPings atomic.Int64
	stopOnce sync.Once
	stop     chan struct{}
}

// StartWS upgrades the request and starts both pumps.
func StartWS(w http.ResponseWriter, r *http.Request, cfg Config, logger *zap.Logger) (*WSShell, error) {
	cfg = cfg.withDefaults()
	upgrader := websocket.Upgrader{
		ReadBufferSize:   4 * 1024,
		WriteBufferSize:  4 * 1024,
		HandshakeTimeout: 5 * time.Second,
		CheckOrigin:      cfg.CheckOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	ws := &WSShell{
		Conn:       conn,
		RemoteAddr: r.RemoteAddr,
		ConnId:     id.NewConnID().String(),
		Query:      r.URL.Query(),
		Header:     r.Header,
		OpenTime:   time.Now(),
		CloseChan:  make(chan struct{}),
		WriteChan:  make(chan []byte, cfg.ChanSize),
		ReadChan:   make(chan []byte, cfg.ChanSize),
		cfg:        cfg,
		stop:       make(chan struct{}),
	}
	ws.logger = logger.With(zap.String("connid", ws.ConnId), zap.String("remoteaddr", ws.RemoteAddr))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ws.WritePump()
	}()
	go func() {
		defer wg.Done()
		ws.ReadPump()
	}()
	go func() {
		wg.Wait()
		close(ws.CloseChan)
		close(ws.ReadChan)
	}()
	return ws, nil
}

func (ws *WSShell) shutdown() {
	ws.stopOnce.Do(func() {
		close(ws.stop)
		ws.Conn.Close()
	})
}

// Close tears down the connection; the pumps exit on their own.
func (ws *WSShell) Close() {
	ws.shutdown()
}

func (ws *WSShell) IsClosed() bool {
	select {
	case <-ws.CloseChan:
		return true
	default:
		return false
	}
}

// NonBlockingWrite queues data unless the write channel is full.
func (ws *WSShell) NonBlockingWrite(data []byte) bool {
	select {
	case ws.WriteChan <- data:
		return true
	default:
		return false
	}
}

// WriteJson marshals val and queues it, waiting for room in the write
// channel until the connection closes.
func (ws *WSShell) WriteJson(val any) error {
	barr, err := sonic.Marshal(val)
	if err != nil {
		return err
	}
	select {
	case <-ws.stop:
		return ErrClosed
	default:
	}
	select {
	case ws.WriteChan <- barr:
		return nil
	case <-ws.stop:
		return ErrClosed
	}
}

func (ws *WSShell) LastRecv() time.Time {
	return time.Unix(0, ws.lastRecv.Load())
}

func (ws *WSShell) NumPings() int64 {
	return ws.numPings.Load()
}

func (ws *WSShell) writeMessage(messageType int, data []byte) error {
	_ = ws.Conn.SetWriteDeadline(time.Now().Add(ws.cfg.WriteWait))
	return ws.Conn.WriteMessage(messageType, data)
}

func (ws *WSShell) WritePump() {
	ticker := time.NewTicker(ws.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		ws.shutdown()
	}()
	for {
		select {
		case <-ws.stop:
			return

		case <-ticker.C:
			if err := ws.writeMessage(websocket.PingMessage, nil); err != nil {
				ws.logger.Debug("write pump ping failed", zap.Error(err))
				return
			}
			ws.numPings.Add(1)

		case msgBytes := <-ws.WriteChan:
			if err := ws.writeMessage(websocket.TextMessage, msgBytes); err != nil {
				ws.logger.Debug("write pump write failed", zap.Error(err))
				return
			}
		}
	}
}

func (ws *WSShell) extendDeadline() {
	ws.lastRecv.Store(time.Now().UnixNano())
	_ = ws.Conn.SetReadDeadline(time.Now().Add(ws.cfg.ReadWait))
}

func (ws *WSShell) ReadPump() {
	defer ws.shutdown()
	ws.Conn.SetReadLimit(ws.cfg.ReadLimit)
	ws.extendDeadline()
	ws.Conn.SetPongHandler(func(string) error {
		ws.extendDeadline()
		return nil
	})
	for {
		msgType, message, err := ws.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ws.logger.Debug("read pump closed", zap.Error(err))
			}
			return
		}
		ws.extendDeadline()
		if msgType != websocket.TextMessage {
			continue
		}
		if node, err := sonic.Get(message, "type"); err == nil {
			switch typeStr, _ := node.String(); typeStr {
			case "pong":
				continue
			case "ping":
				pong, _ := sonic.Marshal(map[string]any{"type": "pong", "stime": time.Now().Unix()})
				ws.NonBlockingWrite(pong)
				continue
			}
		}
		select {
		case ws.ReadChan <- message:
		case <-ws.stop:
			return
		}
	}
}
