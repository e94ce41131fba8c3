package ws

import (
	"time"
)

// keepalive pings c every interval until it stops being open. A failed ping
// is treated like any other transport error.
func (s *Supervisor) keepalive(c *Connection, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Done():
			return
		case <-ticker.C:
			if err := c.WritePing(); err != nil {
				s.log.Warn().Err(err).Str("conn", c.ID).Msg("[ws] keepalive ping failed")
				s.fail(c, err)
				return
			}
		}
	}
}
