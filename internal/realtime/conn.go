package realtime

import (
	"context"

	"nhooyr.io/websocket"
)

// Conn is the minimal text-frame connection the Manager needs. The
// production implementation wraps a websocket; tests substitute fakes.
type Conn interface {
	// ReadMessage blocks until the next text frame arrives or the
	// connection fails.
	ReadMessage(ctx context.Context) (string, error)
	WriteMessage(ctx context.Context, msg string) error
	Close() error
}

// Dialer opens a Conn to the given URL.
type Dialer func(ctx context.Context, url string) (Conn, error)

// Dial is the production Dialer.
func Dial(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) ReadMessage(ctx context.Context) (string, error) {
	_, data, err := w.c.Read(ctx)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (w *wsConn) WriteMessage(ctx context.Context, msg string) error {
	return w.c.Write(ctx, websocket.MessageText, []byte(msg))
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "")
}
