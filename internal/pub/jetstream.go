package pub

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/tarshitsr24/Temp-ayur-trace/pkg/event"
)

const (
	// streamName is the JetStream stream holding every relayed lifecycle event
	streamName = "AYUR"
	// streamSubjectPattern matches AYUR.<EventName> for all contract events
	streamSubjectPattern = "AYUR.*"
	// streamCreateTimeout bounds stream creation at startup
	streamCreateTimeout = 10 * time.Second
	// duplicateWindow is how long the server remembers message ids, longer
	// than any backfill of a block the realtime syncer already relayed
	duplicateWindow = 20 * time.Minute
	// connectionName identifies the service in NATS monitoring
	connectionName = "ayur-trace"

	// kindHeader carries the schema independent lifecycle kind so consumers
	// can filter without decoding the payload
	kindHeader = "Ayur-Kind"
)

type (
	// JetStreamOpts contains configuration options for creating a new JetStream publisher.
	JetStreamOpts struct {
		Endpoint        string        // NATS server endpoint
		PersistDuration time.Duration // Message persistence duration
		Logg            *slog.Logger  // Structured logger
	}

	// jetStreamPub publishes lifecycle events to the AYUR stream.
	jetStreamPub struct {
		js       jetstream.JetStream
		natsConn *nats.Conn
		logg     *slog.Logger
	}
)

// NewJetStreamPub connects to NATS and creates or updates the AYUR stream.
func NewJetStreamPub(o JetStreamOpts) (Pub, error) {
	natsConn, err := nats.Connect(o.Endpoint,
		nats.Name(connectionName),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				o.Logg.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			o.Logg.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(natsConn)
	if err != nil {
		natsConn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), streamCreateTimeout)
	defer cancel()

	cfg := streamConfig(o.PersistDuration)
	if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
		natsConn.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	o.Logg.Info("JetStream publisher initialized",
		"stream", cfg.Name,
		"subjects", cfg.Subjects,
		"persist_duration", o.PersistDuration,
	)

	return &jetStreamPub{
		natsConn: natsConn,
		js:       js,
		logg:     o.Logg,
	}, nil
}

func streamConfig(persist time.Duration) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        streamName,
		Description: "Ayur supply chain lifecycle events",
		Subjects:    []string{streamSubjectPattern},
		MaxAge:      persist,
		Storage:     jetstream.FileStorage,
		Duplicates:  duplicateWindow,
	}
}

// eventMsg builds the message for e. The message id is set at publish time.
func eventMsg(e event.Event) (*nats.Msg, error) {
	data, err := e.Serialize()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize event: %w", err)
	}

	msg := nats.NewMsg(Subject(e))
	msg.Data = data
	msg.Header.Set(kindHeader, string(e.Kind))
	return msg, nil
}

// Close drains in-flight publishes before closing the connection.
func (p *jetStreamPub) Close() {
	if p.natsConn == nil {
		return
	}
	if err := p.natsConn.Drain(); err != nil {
		p.logg.Warn("NATS drain failed", "error", err)
		p.natsConn.Close()
	}
	p.logg.Debug("NATS connection closed")
}

// Send publishes an event under AYUR.<EventName>. Redelivery of the same log
// inside the duplicate window is acknowledged without storing a second copy.
func (p *jetStreamPub) Send(ctx context.Context, payload event.Event) error {
	msg, err := eventMsg(payload)
	if err != nil {
		return err
	}

	ack, err := p.js.PublishMsg(ctx, msg, jetstream.WithMsgID(MsgID(payload)))
	if err != nil {
		publishCounter("error").Inc()
		return fmt.Errorf("failed to publish event to %s: %w", msg.Subject, err)
	}
	if ack.Duplicate {
		publishCounter("duplicate").Inc()
		return nil
	}

	publishCounter("ok").Inc()
	return nil
}

func publishCounter(status string) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`ayur_publish_total{status=%q}`, status))
}
