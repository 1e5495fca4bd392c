// Package client implements the client half of the netcode connection
// protocol: the SendingRequest -> SendingResponse -> Connected state
// machine, failover across a token's server-address list, and the
// loopback bypass, per spec.md §4.4.
package client

import (
	"fmt"
	"time"

	"netcode/netcode/addr"
	"netcode/netcode/codec"
	"netcode/netcode/replay"
	"netcode/netcode/token"
	"netcode/netlog"
)

// State is one of the client's totally ordered bookkeeping states.
// Negative values are terminal failure states.
type State int8

const (
	TokenExpired      State = -6
	InvalidToken      State = -5
	ConnectionTimeout State = -4
	ResponseTimeout   State = -3
	RequestTimeout    State = -2
	ConnectionDenied  State = -1
	Disconnected      State = 0
	SendingRequest    State = 1
	SendingResponse   State = 2
	Connected         State = 3
)

func (s State) String() string {
	switch s {
	case TokenExpired:
		return "token-expired"
	case InvalidToken:
		return "invalid-token"
	case ConnectionTimeout:
		return "connection-timeout"
	case ResponseTimeout:
		return "response-timeout"
	case RequestTimeout:
		return "request-timeout"
	case ConnectionDenied:
		return "connection-denied"
	case Disconnected:
		return "disconnected"
	case SendingRequest:
		return "sending-request"
	case SendingResponse:
		return "sending-response"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// IsTerminalFailure reports whether s is one of the negative failure states
// from which the client never recovers without a fresh Connect call.
func (s State) IsTerminalFailure() bool { return s < 0 }

// Transport is the non-blocking send side the client drives packets
// through.
type Transport interface {
	SendTo(to addr.Address, data []byte) error
}

const (
	sendRate             = 100 * time.Millisecond // 10 Hz
	numDisconnectPackets = 10
)

// Client is the tick-driven client state machine. All methods must be
// called from a single goroutine.
type Client struct {
	protocolID uint64
	transport  Transport
	logger     netlog.Logger

	onStateChange func(old, new State)

	state State

	pub token.PublicConnectToken

	serverIndex   int
	serverAddress addr.Address

	connectStartTime time.Time
	lastSend         time.Time
	lastReceive      time.Time

	sendSequence uint64
	shield       *replay.Shield

	challengeSequence uint64
	challengeToken    [codec.ChallengeTokenBytes]byte

	clientIndex uint32
	maxClients  uint32

	receiveQueue [][]byte

	loopback          bool
	sendLoopback      func([]byte)
	receiveLoopback   func() ([]byte, bool)
}

// Config configures a new Client.
type Config struct {
	ProtocolID    uint64
	Transport     Transport
	Logger        netlog.Logger
	OnStateChange func(old, new State)
}

// New returns a Disconnected client ready for Connect.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = netlog.NewNullLogger()
	}
	return &Client{
		protocolID:    cfg.ProtocolID,
		transport:     cfg.Transport,
		logger:        cfg.Logger,
		onStateChange: cfg.OnStateChange,
		state:         Disconnected,
		shield:        replay.New(),
	}
}

func (c *Client) setState(s State) {
	if s == c.state {
		return
	}
	old := c.state
	c.state = s
	if c.onStateChange != nil {
		c.onStateChange(old, s)
	}
}

// State returns the client's current state.
func (c *Client) State() State { return c.state }

// Connect parses tokenBytes (the 2048-byte public connect token wire form)
// and begins the handshake against its first server address.
func (c *Client) Connect(tokenBytes []byte, now time.Time) error {
	pub, err := token.Unmarshal(tokenBytes)
	if err != nil {
		c.setState(InvalidToken)
		return fmt.Errorf("client: invalid token: %w", err)
	}
	if pub.ProtocolID != c.protocolID {
		c.setState(InvalidToken)
		return fmt.Errorf("client: token protocol id %d does not match client protocol id %d", pub.ProtocolID, c.protocolID)
	}

	c.pub = pub
	c.serverIndex = 0
	c.connectStartTime = now
	c.beginAttempt(now)
	return nil
}

// beginAttempt (re)starts the handshake against c.serverIndex, resetting
// per-attempt state but keeping the token, keys, and overall start time.
func (c *Client) beginAttempt(now time.Time) {
	c.serverAddress = c.pub.ServerAddrs[c.serverIndex]
	c.lastSend = time.Time{}
	c.lastReceive = now
	c.shield.Reset()
	c.sendSequence = 0
	c.receiveQueue = nil
	c.setState(SendingRequest)
}

// ConnectLoopback bypasses the socket entirely, transitioning straight to
// Connected and wiring payload delivery through callbacks, per spec.md
// §4.5.
func (c *Client) ConnectLoopback(clientIndex, maxClients uint32, send func([]byte), receive func() ([]byte, bool)) {
	c.loopback = true
	c.clientIndex = clientIndex
	c.maxClients = maxClients
	c.sendLoopback = send
	c.receiveLoopback = receive
	c.setState(Connected)
}

// Tick drives the send cadence, timeout checks, and overall token-lifetime
// check. It should be called at a steady rate (e.g. sendRate).
func (c *Client) Tick(now time.Time) {
	if c.loopback || c.state.IsTerminalFailure() || c.state == Disconnected {
		return
	}

	if c.tokenLifetimeExceeded(now) {
		c.setState(TokenExpired)
		return
	}

	if c.pub.TimeoutSecond > 0 {
		deadline := c.lastReceive.Add(time.Duration(c.pub.TimeoutSecond) * time.Second)
		if !deadline.After(now) {
			c.handleAttemptTimeout(now)
			return
		}
	}

	if now.Sub(c.lastSend) >= sendRate {
		c.sendCadencePacket(now)
	}
}

func (c *Client) tokenLifetimeExceeded(now time.Time) bool {
	lifetime := int64(c.pub.ExpireTimestamp) - int64(c.pub.CreateTimestamp)
	return now.Sub(c.connectStartTime) >= time.Duration(lifetime)*time.Second
}

func (c *Client) handleAttemptTimeout(now time.Time) {
	switch c.state {
	case SendingRequest:
		c.failoverOrFail(now, RequestTimeout)
	case SendingResponse:
		c.failoverOrFail(now, ResponseTimeout)
	case Connected:
		c.setState(ConnectionTimeout)
	}
}

func (c *Client) failoverOrFail(now time.Time, failureIfNoMore State) {
	addrs := c.pub.ServerAddrs
	if c.serverIndex+1 < len(addrs) {
		c.serverIndex++
		c.beginAttempt(now)
		return
	}
	c.setState(failureIfNoMore)
}

func (c *Client) sendCadencePacket(now time.Time) {
	switch c.state {
	case SendingRequest:
		wire := codec.WriteConnectionRequest(codec.ConnectionRequestPacket{
			VersionInfo:     c.pub.VersionInfo,
			ProtocolID:      c.pub.ProtocolID,
			ExpireTimestamp: c.pub.ExpireTimestamp,
			Nonce:           c.pub.Nonce,
			PrivateData:     c.pub.PrivateData,
		})
		c.send(wire, now)
	case SendingResponse:
		wire, err := codec.WritePacket(codec.ResponsePacket{ChallengeSequence: c.challengeSequence, ChallengeTokenData: c.challengeToken}, c.pub.ClientKey, c.protocolID, c.nextSendSequence())
		if err != nil {
			c.logger.Printf("client: writing response packet: %v", err)
			return
		}
		c.send(wire, now)
	case Connected:
		wire, err := codec.WritePacket(codec.KeepAlivePacket{ClientIndex: 0, MaxClients: 0}, c.pub.ClientKey, c.protocolID, c.nextSendSequence())
		if err != nil {
			c.logger.Printf("client: writing keep-alive: %v", err)
			return
		}
		c.send(wire, now)
	}
}

func (c *Client) nextSendSequence() uint64 {
	seq := c.sendSequence
	c.sendSequence++
	return seq
}

func (c *Client) send(wire []byte, now time.Time) {
	c.lastSend = now
	_ = c.transport.SendTo(c.serverAddress, wire)
}

// Send transmits an application payload (or, while Connected, queues a
// loopback payload). Sending resets the send timer per spec.md §4.4.
func (c *Client) Send(payload []byte, now time.Time) error {
	if c.state != Connected {
		return fmt.Errorf("client: cannot send while in state %s", c.state)
	}
	if c.loopback {
		if c.sendLoopback != nil {
			c.sendLoopback(payload)
		}
		c.lastSend = now
		return nil
	}
	wire, err := codec.WritePacket(codec.PayloadPacket{Payload: payload}, c.pub.ClientKey, c.protocolID, c.nextSendSequence())
	if err != nil {
		return err
	}
	c.send(wire, now)
	return nil
}

// Receive pops the oldest undelivered application payload.
func (c *Client) Receive() ([]byte, bool) {
	if c.loopback {
		if c.receiveLoopback == nil {
			return nil, false
		}
		return c.receiveLoopback()
	}
	if len(c.receiveQueue) == 0 {
		return nil, false
	}
	payload := c.receiveQueue[0]
	c.receiveQueue = c.receiveQueue[1:]
	return payload, true
}

// ReceivePacket processes one inbound datagram, which must come from the
// client's current server address; anything else is ignored.
func (c *Client) ReceivePacket(from addr.Address, data []byte, now time.Time) {
	if c.loopback || c.state.IsTerminalFailure() || c.state == Disconnected {
		return
	}
	if !from.Equal(c.serverAddress) {
		return
	}

	switch c.state {
	case SendingRequest, SendingResponse:
		c.receiveDuringHandshake(data, now)
	case Connected:
		c.receiveConnected(data, now)
	}
}

func (c *Client) receiveDuringHandshake(data []byte, now time.Time) {
	allowed := codec.NewPacketTypeSet(codec.PacketDenied, codec.PacketChallenge, codec.PacketKeepAlive)
	pkt, _, err := codec.ReadPacket(data, allowed, c.protocolID, c.pub.ServerKey, nil)
	if err != nil {
		c.logger.Printf("client: handshake receive error: %v", err)
		return
	}

	switch p := pkt.(type) {
	case codec.DeniedPacket:
		c.setState(ConnectionDenied)
	case codec.ChallengePacket:
		if c.state != SendingRequest {
			return
		}
		c.challengeSequence = p.ChallengeSequence
		c.challengeToken = p.ChallengeTokenData
		c.lastReceive = now
		c.setState(SendingResponse)
	case codec.KeepAlivePacket:
		if c.state != SendingResponse {
			return
		}
		c.clientIndex = p.ClientIndex
		c.maxClients = p.MaxClients
		c.lastReceive = now
		c.setState(Connected)
	}
}

func (c *Client) receiveConnected(data []byte, now time.Time) {
	allowed := codec.NewPacketTypeSet(codec.PacketKeepAlive, codec.PacketPayload, codec.PacketDisconnect)
	pkt, _, err := codec.ReadPacket(data, allowed, c.protocolID, c.pub.ServerKey, c.shield)
	if err != nil {
		c.logger.Printf("client: connected receive error: %v", err)
		return
	}

	switch p := pkt.(type) {
	case codec.KeepAlivePacket:
		c.lastReceive = now
	case codec.PayloadPacket:
		c.lastReceive = now
		cp := make([]byte, len(p.Payload))
		copy(cp, p.Payload)
		c.receiveQueue = append(c.receiveQueue, cp)
	case codec.DisconnectPacket:
		c.setState(Disconnected)
	}
}

// Disconnect sends numDisconnectPackets disconnect packets if the client is
// Connected (and not loopback), then clears all per-connection data. In any
// other state, including the handshake states, no disconnect packets are
// sent.
func (c *Client) Disconnect(now time.Time) {
	if !c.loopback && !c.state.IsTerminalFailure() && c.state == Connected {
		for i := 0; i < numDisconnectPackets; i++ {
			wire, err := codec.WritePacket(codec.DisconnectPacket{}, c.pub.ClientKey, c.protocolID, c.nextSendSequence())
			if err != nil {
				break
			}
			c.send(wire, now)
		}
	}
	*c = Client{
		protocolID:    c.protocolID,
		transport:     c.transport,
		logger:        c.logger,
		onStateChange: c.onStateChange,
		state:         Disconnected,
		shield:        replay.New(),
	}
}

// ClientIndex and MaxClients report the values the server assigned at
// connect time; valid only once Connected.
func (c *Client) ClientIndex() uint32 { return c.clientIndex }
func (c *Client) MaxClients() uint32  { return c.maxClients }
