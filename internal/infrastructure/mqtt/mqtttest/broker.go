// Package mqtttest provides an in-process MQTT broker for tests.
//
// The broker speaks enough MQTT 3.1.1 to drive a paho client through
// CONNECT, PUBLISH (QoS 0-2), SUBSCRIBE, UNSUBSCRIBE, PINGREQ and
// DISCONNECT. It records every session and published message so tests can
// assert on what reached the wire. It serves any net.Conn, which lets TLS
// and WebSocket tests reuse it.
package mqtttest

import (
	"crypto/tls"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"
)

// Session describes an accepted CONNECT packet.
type Session struct {
	ClientID     string
	Username     string
	Password     string
	CleanSession bool
	Keepalive    uint16

	WillTopic   string
	WillPayload []byte
	WillQoS     byte
	WillRetain  bool

	// PeerCommonName is the subject CN of the client certificate when the
	// session arrived over mutual TLS.
	PeerCommonName string
}

// Message is a PUBLISH received from a client.
type Message struct {
	ClientID string
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// Broker is a minimal MQTT broker.
type Broker struct {
	mu         sync.Mutex
	returnCode byte
	sessions   []Session
	published  []Message
	clients    map[*clientConn]struct{}
	changed    chan struct{}
	closed     bool

	wg sync.WaitGroup
}

type clientConn struct {
	conn    net.Conn
	writeMu sync.Mutex
	id      string
	filters map[string]byte
}

func (c *clientConn) write(p packets.ControlPacket) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return p.Write(c.conn)
}

// NewBroker returns a broker that accepts every CONNECT.
func NewBroker() *Broker {
	return &Broker{
		returnCode: packets.Accepted,
		clients:    make(map[*clientConn]struct{}),
		changed:    make(chan struct{}),
	}
}

// Listen starts a broker on a loopback port. When tlsCfg is non-nil the
// listener terminates TLS. The broker is shut down by t.Cleanup.
func Listen(t testing.TB, tlsCfg *tls.Config) (*Broker, net.Addr) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("mqtttest: listen: %v", err)
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}

	b := NewBroker()
	go b.Serve(ln)
	t.Cleanup(func() {
		ln.Close()
		b.Close()
	})
	return b, ln.Addr()
}

// SetReturnCode sets the CONNACK return code for subsequent CONNECTs.
// Anything other than packets.Accepted refuses the session.
func (b *Broker) SetReturnCode(code byte) {
	b.mu.Lock()
	b.returnCode = code
	b.mu.Unlock()
}

// Serve accepts connections until l is closed.
func (b *Broker) Serve(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.ServeConn(conn)
		}()
	}
}

// ServeConn runs one client session and blocks until it ends.
func (b *Broker) ServeConn(conn net.Conn) {
	c := &clientConn{conn: conn, filters: make(map[string]byte)}
	defer func() {
		b.mu.Lock()
		delete(b.clients, c)
		b.mu.Unlock()
		conn.Close()
	}()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.clients[c] = struct{}{}
	b.mu.Unlock()

	for {
		pkt, err := packets.ReadPacket(conn)
		if err != nil {
			return
		}
		if !b.handle(c, pkt) {
			return
		}
	}
}

// handle processes one packet and reports whether the session continues.
func (b *Broker) handle(c *clientConn, pkt packets.ControlPacket) bool {
	switch p := pkt.(type) {
	case *packets.ConnectPacket:
		return b.handleConnect(c, p)

	case *packets.PublishPacket:
		b.record(Message{
			ClientID: c.id,
			Topic:    p.TopicName,
			Payload:  append([]byte(nil), p.Payload...),
			QoS:      p.Qos,
			Retained: p.Retain,
		})
		b.route(p)
		switch p.Qos {
		case 1:
			ack := packets.NewControlPacket(packets.Puback).(*packets.PubackPacket)
			ack.MessageID = p.MessageID
			return c.write(ack) == nil
		case 2:
			rec := packets.NewControlPacket(packets.Pubrec).(*packets.PubrecPacket)
			rec.MessageID = p.MessageID
			return c.write(rec) == nil
		}
		return true

	case *packets.PubrelPacket:
		comp := packets.NewControlPacket(packets.Pubcomp).(*packets.PubcompPacket)
		comp.MessageID = p.MessageID
		return c.write(comp) == nil

	case *packets.PubackPacket, *packets.PubrecPacket, *packets.PubcompPacket:
		return true

	case *packets.SubscribePacket:
		b.mu.Lock()
		for i, topic := range p.Topics {
			c.filters[topic] = p.Qoss[i]
		}
		b.mu.Unlock()
		ack := packets.NewControlPacket(packets.Suback).(*packets.SubackPacket)
		ack.MessageID = p.MessageID
		ack.ReturnCodes = append([]byte(nil), p.Qoss...)
		return c.write(ack) == nil

	case *packets.UnsubscribePacket:
		b.mu.Lock()
		for _, topic := range p.Topics {
			delete(c.filters, topic)
		}
		b.mu.Unlock()
		ack := packets.NewControlPacket(packets.Unsuback).(*packets.UnsubackPacket)
		ack.MessageID = p.MessageID
		return c.write(ack) == nil

	case *packets.PingreqPacket:
		return c.write(packets.NewControlPacket(packets.Pingresp)) == nil

	case *packets.DisconnectPacket:
		return false
	}
	return true
}

func (b *Broker) handleConnect(c *clientConn, p *packets.ConnectPacket) bool {
	s := Session{
		ClientID:     p.ClientIdentifier,
		Username:     p.Username,
		Password:     string(p.Password),
		CleanSession: p.CleanSession,
		Keepalive:    p.Keepalive,
	}
	if p.WillFlag {
		s.WillTopic = p.WillTopic
		s.WillPayload = append([]byte(nil), p.WillMessage...)
		s.WillQoS = p.WillQos
		s.WillRetain = p.WillRetain
	}
	if tc, ok := c.conn.(*tls.Conn); ok {
		if peers := tc.ConnectionState().PeerCertificates; len(peers) > 0 {
			s.PeerCommonName = peers[0].Subject.CommonName
		}
	}

	b.mu.Lock()
	code := b.returnCode
	c.id = p.ClientIdentifier
	b.sessions = append(b.sessions, s)
	b.notifyLocked()
	b.mu.Unlock()

	ack := packets.NewControlPacket(packets.Connack).(*packets.ConnackPacket)
	ack.ReturnCode = code
	if err := c.write(ack); err != nil {
		return false
	}
	return code == packets.Accepted
}

func (b *Broker) record(m Message) {
	b.mu.Lock()
	b.published = append(b.published, m)
	b.notifyLocked()
	b.mu.Unlock()
}

// route forwards a publish at QoS 0 to every client with a matching filter.
func (b *Broker) route(p *packets.PublishPacket) {
	b.mu.Lock()
	var targets []*clientConn
	for c := range b.clients {
		for filter := range c.filters {
			if Match(filter, p.TopicName) {
				targets = append(targets, c)
				break
			}
		}
	}
	b.mu.Unlock()

	for _, c := range targets {
		out := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
		out.TopicName = p.TopicName
		out.Payload = p.Payload
		_ = c.write(out)
	}
}

func (b *Broker) notifyLocked() {
	close(b.changed)
	b.changed = make(chan struct{})
}

// Sessions returns every CONNECT the broker has seen.
func (b *Broker) Sessions() []Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Session(nil), b.sessions...)
}

// Published returns every PUBLISH the broker has received.
func (b *Broker) Published() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.published...)
}

// WaitSession waits for the first CONNECT.
func (b *Broker) WaitSession(t testing.TB, timeout time.Duration) Session {
	t.Helper()
	var got Session
	b.wait(t, timeout, "session", func() bool {
		if len(b.sessions) == 0 {
			return false
		}
		got = b.sessions[0]
		return true
	})
	return got
}

// WaitPublished waits for the first message matching match.
func (b *Broker) WaitPublished(t testing.TB, timeout time.Duration, match func(Message) bool) Message {
	t.Helper()
	var got Message
	b.wait(t, timeout, "publish", func() bool {
		for _, m := range b.published {
			if match(m) {
				got = m
				return true
			}
		}
		return false
	})
	return got
}

// OnTopic matches messages published on topic.
func OnTopic(topic string) func(Message) bool {
	return func(m Message) bool { return m.Topic == topic }
}

func (b *Broker) wait(t testing.TB, timeout time.Duration, what string, done func() bool) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		b.mu.Lock()
		ok := done()
		changed := b.changed
		b.mu.Unlock()
		if ok {
			return
		}
		select {
		case <-changed:
		case <-deadline:
			t.Fatalf("mqtttest: timed out after %v waiting for %s", timeout, what)
			return
		}
	}
}

// Close drops every client connection and waits for sessions started by
// Serve to finish.
func (b *Broker) Close() {
	b.mu.Lock()
	b.closed = true
	for c := range b.clients {
		c.conn.Close()
	}
	b.mu.Unlock()
	b.wg.Wait()
}

// DropClients closes every open client connection without a DISCONNECT,
// which makes the broker side look like a network failure.
func (b *Broker) DropClients() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		c.conn.Close()
	}
}

// Match reports whether topic matches the subscription filter.
func Match(filter, topic string) bool {
	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")
	for i, f := range fl {
		if f == "#" {
			return true
		}
		if i >= len(tl) {
			return false
		}
		if f != "+" && f != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}
