package app

import (
	"errors"
	"sync"
	"time"

	"chat_realtime_service/pkg/logger"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

var (
	errTransportClosed = errors.New("transport closed")
	errSendBufferFull  = errors.New("send buffer full")
)

// wsTransport one ordered writer per connection
// Send never blocks: a full buffer drops the frame and the broadcaster counts it.
type wsTransport struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	pingInterval time.Duration
	writeWait    time.Duration
}

func newWSTransport(conn *websocket.Conn, buffer int, pingInterval, writeWait time.Duration) *wsTransport {
	return &wsTransport{
		conn:         conn,
		send:         make(chan []byte, buffer),
		done:         make(chan struct{}),
		pingInterval: pingInterval,
		writeWait:    writeWait,
	}
}

// Send implements hub.Transport
func (t *wsTransport) Send(frame []byte) error {
	select {
	case <-t.done:
		return errTransportClosed
	default:
	}

	select {
	case t.send <- frame:
		return nil
	case <-t.done:
		return errTransportClosed
	default:
		return errSendBufferFull
	}
}

func (t *wsTransport) start(connID string) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.writeLoop(connID)
	}()
}

// writeLoop 定期發送 Ping，並依序寫出 frame
func (t *wsTransport) writeLoop(connID string) {
	ticker := time.NewTicker(t.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame := <-t.send:
			_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeWait))
			if err := t.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Log.Warn("websocket write error", zap.String("connID", connID), zap.Error(err))
				t.close()
				return
			}
		case <-ticker.C:
			_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Log.Warn("websocket ping error", zap.String("connID", connID), zap.Error(err))
				t.close()
				return
			}
		case <-t.done:
			_ = t.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(t.writeWait))
			return
		}
	}
}

func (t *wsTransport) close() {
	t.closeOnce.Do(func() {
		close(t.done)
	})
}

// stop close and wait for the writer, the conn must not be written after the handler returns
func (t *wsTransport) stop() {
	t.close()
	t.wg.Wait()
}
