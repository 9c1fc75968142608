package dashboard

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/groovebox/internal/app/notification"
)

// wsStream delivers notification updates over one WebSocket connection.
type wsStream struct {
	conn *websocket.Conn
}

func (s *wsStream) Send(ctx context.Context, u *notification.Update) error {
	return wsjson.Write(ctx, s.conn, u)
}

// guildStream sends the current snapshot, then every update for the guild until
// the client goes away.
func (s *Server) guildStream(w http.ResponseWriter, r *http.Request) {
	guildID := r.PathValue("guild")
	snap, err := s.player.Snapshot(r.Context(), guildID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		zlog.Warn().Msgf("dashboard: websocket accept failed: guild=%s error=%v", guildID, err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	// The dashboard never sends; reading only watches for the close frame.
	ctx := conn.CloseRead(r.Context())

	if err := wsjson.Write(ctx, conn, &notification.Update{GuildID: guildID, Event: "snapshot", Snapshot: snap}); err != nil {
		zlog.Debug().Msgf("dashboard: initial snapshot write failed: guild=%s error=%v", guildID, err)
		return
	}

	id := s.notify.Subscribe(guildID, &wsStream{conn: conn})
	defer s.notify.Unsubscribe(id)
	zlog.Info().Msgf("dashboard: websocket subscribed: guild=%s subscription=%s", guildID, id)

	<-ctx.Done()
	zlog.Info().Msgf("dashboard: websocket closed: guild=%s subscription=%s", guildID, id)
}
