package ws

import (
	"context"
	nethttp "net/http"

	"github.com/gorilla/websocket"

	"hexhold/server/internal/net/intake"
	"hexhold/server/internal/net/proto"
	"hexhold/server/internal/telemetry"
	"hexhold/server/logging"
	logginglifecycle "hexhold/server/logging/lifecycle"
	loggingnetwork "hexhold/server/logging/network"
)

type HandlerConfig struct {
	Logger    telemetry.Logger
	Publisher logging.Publisher
	Clock     logging.Clock
}

// Handler upgrades player connections and feeds their requests to the
// action processor.
type Handler struct {
	hub       *Hub
	requester intake.Requester
	logger    telemetry.Logger
	publisher logging.Publisher
	clock     logging.Clock
	upgrader  websocket.Upgrader
}

func NewHandler(hub *Hub, requester intake.Requester, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.DiscardLogger()
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = logging.SystemClock{}
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		hub:       hub,
		requester: requester,
		logger:    logger,
		publisher: publisher,
		clock:     clock,
		upgrader:  upgrader,
	}
}

func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	playerID := r.URL.Query().Get("id")
	if playerID == "" {
		nethttp.Error(w, "missing id", nethttp.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed for %s: %v", playerID, err)
		return
	}

	ctx := r.Context()
	actor := logging.PlayerRef(playerID)
	sess, _ := h.hub.Register(playerID, conn)
	logginglifecycle.PlayerConnected(ctx, h.publisher, actor, logginglifecycle.PlayerConnectedPayload{RemoteAddr: r.RemoteAddr}, nil)

	reason := h.serve(ctx, sess)

	if h.hub.Unregister(sess) {
		conn.Close()
	}
	logginglifecycle.PlayerDisconnected(ctx, h.publisher, actor, logginglifecycle.PlayerDisconnectedPayload{Reason: reason}, nil)
}

// serve runs the read loop until the connection fails and returns why.
func (h *Handler) serve(ctx context.Context, sess *Session) string {
	playerID := sess.PlayerID()
	actor := logging.PlayerRef(playerID)

	writeJSON := func(payload any) bool {
		data, err := proto.Encode(payload)
		if err != nil {
			h.logger.Printf("failed to marshal response for %s: %v", playerID, err)
			return true
		}
		return sess.WriteMessage(websocket.TextMessage, data) == nil
	}

	reject := func(kind string, seq uint64, reason string, retry bool) bool {
		loggingnetwork.RequestRejected(ctx, h.publisher, actor, loggingnetwork.RequestRejectedPayload{Kind: kind, Reason: reason}, nil)
		return writeJSON(proto.NewRequestRejected(seq, reason, retry))
	}

	for {
		_, payload, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "closed"
			}
			return err.Error()
		}

		msg, err := proto.DecodeClientMessage(payload)
		if err != nil {
			h.logger.Printf("discarding malformed message from %s: %v", playerID, err)
			if !reject("", 0, proto.RejectInvalidMessage, false) {
				return "write failed"
			}
			continue
		}

		cmd, ok, reason := intake.StageClientCommand(playerID, msg)
		if !ok {
			if !reject(msg.Type, msg.Seq, reason, false) {
				return "write failed"
			}
			continue
		}

		switch cmd.Kind {
		case intake.KindBuildRoad, intake.KindBuildBuilding:
			if cmd.Seq > 0 {
				if last, actionID := sess.LastAccepted(); last > 0 && cmd.Seq <= last {
					ack := proto.RequestAccepted{Ver: proto.Version, Type: proto.TypeRequestAccepted, Seq: cmd.Seq}
					if cmd.Seq == last {
						ack.ActionID = actionID
					}
					if !writeJSON(ack) {
						return "write failed"
					}
					continue
				}
			}
			info, reason, retry := intake.Submit(ctx, h.requester, cmd)
			if reason != "" {
				if !reject(msg.Type, cmd.Seq, reason, retry) {
					return "write failed"
				}
				continue
			}
			if cmd.Seq > 0 {
				sess.StoreAccepted(cmd.Seq, info.ID)
			}
			if !writeJSON(proto.NewRequestAccepted(cmd.Seq, info)) {
				return "write failed"
			}
		case intake.KindSubscribe, intake.KindUnsubscribe:
			subscribed := cmd.Kind == intake.KindSubscribe
			var changed bool
			if subscribed {
				changed = sess.Subscribe(cmd.Chunk)
			} else {
				changed = sess.Unsubscribe(cmd.Chunk)
			}
			if changed {
				loggingnetwork.SubscriptionChanged(ctx, h.publisher, actor, loggingnetwork.SubscriptionPayload{Chunk: cmd.Chunk.String(), Subscribed: subscribed}, nil)
			}
			if !writeJSON(proto.Subscribed{Ver: proto.Version, Type: proto.TypeSubscribed, Chunk: cmd.Chunk, Subscribed: subscribed}) {
				return "write failed"
			}
		case intake.KindHeartbeat:
			ack := proto.Heartbeat{
				Ver:        proto.Version,
				Type:       proto.TypeHeartbeat,
				ServerTime: h.clock.Now().UnixMilli(),
				ClientTime: cmd.SentAt,
			}
			if !writeJSON(ack) {
				return "write failed"
			}
		}
	}
}
