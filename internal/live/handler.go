package live

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/HenshawIII/Galafy/internal/auth"
	"github.com/HenshawIII/Galafy/internal/event"
)

type clientMessage struct {
	Event string `json:"event"`
	Data  struct {
		EventID string `json:"eventId"`
	} `json:"data"`
}

type errorData struct {
	Message string `json:"message"`
}

type roomData struct {
	EventID string `json:"eventId"`
}

// UpgradeGuard authenticates the websocket handshake with the same HS256
// access token as the HTTP surface. The token travels in the `token` query
// parameter or as a bearer header.
func UpgradeGuard(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		token := c.Query("token")
		if token == "" {
			authz := c.Get(fiber.HeaderAuthorization)
			if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				token = strings.TrimSpace(authz[len("Bearer "):])
			}
		}
		if token == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing token")
		}

		claims, err := auth.ParseAndVerifyHS256(token, []byte(secret))
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		uid, err := auth.UserID(claims)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		c.Locals("user_id", uid)
		return c.Next()
	}
}

// Handler serves the persistent connection: auto-joins the user's private
// room, then processes event.join / event.leave messages until the client
// disconnects.
func Handler(hub *Hub, events event.Repository, logger *slog.Logger) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		userID, _ := c.Locals("user_id").(string)
		if userID == "" {
			c.Close()
			return
		}

		session := hub.Register(c, userID)
		defer hub.Unregister(session)
		logger.Info("live client connected", "user_id", userID)

		// Acknowledgments are fire and forget like hub emissions; a failed
		// write is logged and the read loop decides when the peer is gone.
		reply := func(name string, data any) {
			if err := session.write(name, data); err != nil {
				logger.Warn("live reply failed", "user_id", userID, "event", name, "error", err)
			}
		}

		for {
			var msg clientMessage
			if err := c.ReadJSON(&msg); err != nil {
				logger.Info("live client disconnected", "user_id", userID)
				return
			}

			switch msg.Event {
			case "event.join":
				if msg.Data.EventID == "" {
					reply("error", errorData{Message: "invalid eventId"})
					continue
				}
				if _, err := events.GetEvent(context.Background(), msg.Data.EventID); err != nil {
					reply("error", errorData{Message: "event not found"})
					continue
				}
				hub.JoinEvent(session, msg.Data.EventID)
				reply("event.joined", roomData{EventID: msg.Data.EventID})
			case "event.leave":
				if msg.Data.EventID == "" {
					continue
				}
				hub.LeaveEvent(session, msg.Data.EventID)
				reply("event.left", roomData{EventID: msg.Data.EventID})
			default:
				reply("error", errorData{Message: "unknown event"})
			}
		}
	})
}
