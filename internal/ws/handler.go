package ws

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/saturnino-fabrica-de-software/ponto/internal/notify"
)

// Handler upgrades the connection and streams events. ?kind=attendance or
// ?kind=enrollment narrows the feed.
func Handler(hub *Hub) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		kind, _ := c.Locals("kind").(notify.Kind)

		client := &Client{
			hub:  hub,
			conn: c,
			kind: kind,
			send: make(chan []byte, 256),
		}

		select {
		case hub.register <- client:
		case <-hub.done:
			_ = c.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()
	})
}

func UpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		switch kind := notify.Kind(c.Query("kind")); kind {
		case "", notify.KindAttendance, notify.KindEnrollment:
			c.Locals("kind", kind)
		default:
			return fiber.NewError(fiber.StatusBadRequest, "unknown event kind")
		}

		c.Locals("allowed", true)
		return c.Next()
	}
}
