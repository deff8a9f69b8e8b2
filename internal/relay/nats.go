// Package relay дублирует события комнат между узлами через NATS.
// Внутрипроцессная доставка остается за hub; relay нужен только
// при горизонтальном масштабировании.
package relay

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const subjectPrefix = "chatgate.room."

// Handler доставляет событие с другого узла в локальный hub
type Handler func(room string, payload []byte)

type envelope struct {
	Origin  string          `json:"origin"`
	Room    string          `json:"room"`
	Payload json.RawMessage `json:"payload"`
}

type NATSRelay struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	origin string
}

// Connect подключается к NATS и подписывается на события всех комнат.
// Свои публикации отфильтровываются по origin.
func Connect(url string, deliver Handler) (*NATSRelay, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(1*time.Second),
		nats.Name("chatgate-node"),
	)
	if err != nil {
		return nil, err
	}

	r := &NATSRelay{
		nc:     nc,
		origin: uuid.NewString(),
	}

	sub, err := nc.Subscribe(subjectPrefix+">", func(m *nats.Msg) {
		var env envelope
		if err := json.Unmarshal(m.Data, &env); err != nil {
			log.Printf("Relay: malformed envelope: %v", err)
			return
		}
		if env.Origin == r.origin {
			return
		}
		deliver(env.Room, env.Payload)
	})
	if err != nil {
		nc.Close()
		return nil, err
	}
	r.sub = sub

	return r, nil
}

func (r *NATSRelay) Publish(room string, payload []byte) error {
	data, err := json.Marshal(envelope{
		Origin:  r.origin,
		Room:    room,
		Payload: payload,
	})
	if err != nil {
		return err
	}
	return r.nc.Publish(subjectPrefix+room, data)
}

func (r *NATSRelay) Close() {
	if r.sub != nil {
		r.sub.Unsubscribe()
	}
	r.nc.Drain()
}
