package ws

import (
	"time"

	"github.com/gorilla/websocket"
)

// keepalive pings the server every heartbeat interval until done is closed.
// Pongs extend the read deadline; a silent server trips ReadTimeout in the
// read loop, which drops the connection.
func (c *client) keepalive(conn *websocket.Conn, done <-chan struct{}) {
	defer c.wg.Done()

	interval := c.config.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Warn("Failed to send ping", "error", err)
			}
		}
	}
}
