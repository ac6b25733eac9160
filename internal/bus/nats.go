package bus

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/opensource-finance/fathom/internal/domain"
)

// Headers carrying the message envelope. The NATS payload is the raw
// domain payload.
const (
	headerMessageID = "Fathom-Message-Id"
	headerTimestamp = "Fathom-Timestamp"
	headerMetaPref  = "Fathom-Meta-"
)

// NATSBus is the pro tier bus. With a queue group configured, worker
// replicas share each subject and every request is computed once.
type NATSBus struct {
	mu            sync.Mutex
	conn          *nats.Conn
	subscriptions map[string]*natsSubscription
	queueGroup    string
	closed        bool
}

type natsSubscription struct {
	id     string
	topic  string
	sub    *nats.Subscription
	cancel context.CancelFunc
	bus    *NATSBus
}

// NewNATSBus connects to cfg.NATSUrl. When the server is not up yet the
// client keeps retrying in the background, and Ping fails until it connects.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	url := cfg.NATSUrl
	if url == "" {
		url = nats.DefaultURL
	}
	maxReconnects := cfg.NATSMaxReconnects
	if maxReconnects == 0 {
		maxReconnects = 10
	}
	wait := time.Duration(cfg.NATSReconnectWait) * time.Second
	if wait == 0 {
		wait = 5 * time.Second
	}

	opts := []nats.Option{
		nats.Name("fathom"),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(wait),
		nats.RetryOnFailedConnect(true),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.ConnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS connected", "url", nc.ConnectedUrl(), "server_id", nc.ConnectedServerId())
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("NATS disconnected", "error", err, "will_reconnect", !nc.IsClosed())
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			slog.Info("NATS connection closed")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subj := ""
			if sub != nil {
				subj = sub.Subject
			}
			slog.Error("NATS error", "error", err, "subject", subj)
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	return &NATSBus{
		conn:          conn,
		subscriptions: make(map[string]*natsSubscription),
		queueGroup:    cfg.NATSQueueGroup,
	}, nil
}

// Publish sends payload on the topic's subject with the envelope in headers.
func (b *NATSBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if b.isClosed() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.conn.PublishMsg(toNATS(newMessage(topic, payload)))
}

// Subscribe delivers each message on the topic's subject to handler.
// Handlers see a context cancelled on Unsubscribe or Close.
func (b *NATSBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	cb := func(m *nats.Msg) {
		msg := fromNATS(topic, m)
		if err := handler(subCtx, msg); err != nil {
			slog.Warn("bus handler failed",
				"subject", m.Subject,
				"message_id", msg.ID,
				"error", err,
			)
		}
	}

	var (
		ns  *nats.Subscription
		err error
	)
	if b.queueGroup != "" {
		ns, err = b.conn.QueueSubscribe(subject(topic), b.queueGroup, cb)
	} else {
		ns, err = b.conn.Subscribe(subject(topic), cb)
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject(topic), err)
	}

	sub := &natsSubscription{id: uuid.New().String(), topic: topic, sub: ns, cancel: cancel, bus: b}
	b.subscriptions[sub.id] = sub
	return sub, nil
}

// Ping fails while the connection is down.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("NATS not connected (status %s)", b.conn.Status())
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains in-flight messages to the handlers, then closes the
// connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subscriptions
	b.subscriptions = make(map[string]*natsSubscription)
	b.mu.Unlock()

	var err error
	if b.conn.IsConnected() {
		err = b.conn.Drain()
	} else {
		b.conn.Close()
	}
	for _, s := range subs {
		s.cancel()
	}
	return err
}

func (b *NATSBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Stats returns NATS connection statistics.
func (b *NATSBus) Stats() nats.Statistics {
	return b.conn.Stats()
}

func (s *natsSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subscriptions, s.id)
	s.bus.mu.Unlock()
	s.cancel()
	return s.sub.Unsubscribe()
}

func (s *natsSubscription) Topic() string {
	return s.topic
}

// subject maps a bus topic to its NATS subject.
func subject(topic string) string {
	return "fathom." + topic
}

func toNATS(msg *domain.Message) *nats.Msg {
	m := nats.NewMsg(subject(msg.Topic))
	m.Data = msg.Payload
	m.Header.Set(headerMessageID, msg.ID)
	m.Header.Set(nats.MsgIdHdr, msg.ID)
	m.Header.Set(headerTimestamp, strconv.FormatInt(msg.Timestamp, 10))
	for k, v := range msg.Metadata {
		m.Header.Set(headerMetaPref+k, v)
	}
	return m
}

// fromNATS rebuilds the envelope. Messages published without our headers
// get a fresh ID and the receive time.
func fromNATS(topic string, m *nats.Msg) *domain.Message {
	msg := &domain.Message{
		ID:       m.Header.Get(headerMessageID),
		Topic:    topic,
		Payload:  m.Data,
		Metadata: make(map[string]string),
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	ts, err := strconv.ParseInt(m.Header.Get(headerTimestamp), 10, 64)
	if err != nil {
		ts = time.Now().UnixNano()
	}
	msg.Timestamp = ts
	for k, vs := range m.Header {
		if name, ok := strings.CutPrefix(k, headerMetaPref); ok && name != "" && len(vs) > 0 {
			msg.Metadata[name] = vs[0]
		}
	}
	return msg
}
