// Package session implements the MTProto Session state machine
// (spec.md §4.5, component C5): handshake bootstrap, a send-loop and
// recv-loop managed by internal/worker.Worker the way katzenpost's
// client session embeds worker.Worker for its own send/recv goroutines,
// an unbounded outbound queue via gopkg.in/eapache/channels.v1, and an
// invoke() facade with the service-message handling the message layer
// requires inline (msgs_ack, bad_server_salt, bad_msg_notification,
// new_session_created, pong, gzip_packed, rpc_result/rpc_error).
package session

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	channels "gopkg.in/eapache/channels.v1"

	"github.com/dstainton-labs/gomtproto/datacenter"
	"github.com/dstainton-labs/gomtproto/internal/worker"
	"github.com/dstainton-labs/gomtproto/internal/xrand"
	"github.com/dstainton-labs/gomtproto/metrics"
	"github.com/dstainton-labs/gomtproto/mtperrors"
	"github.com/dstainton-labs/gomtproto/mtproto"
	"github.com/dstainton-labs/gomtproto/schema"
	"github.com/dstainton-labs/gomtproto/wire"
)

// State is the Session's lifecycle state (spec.md §4.5 state diagram:
// Idle -> Connecting -> Handshaking -> Started -> (Reconnecting |
// Stopping) -> Idle).
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateHandshaking
	StateStarted
	StateReconnecting
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateStarted:
		return "started"
	case StateReconnecting:
		return "reconnecting"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Dialer opens the raw byte stream to a datacenter. The default dials
// TCP directly; client.New supplies an rpc.SOCKS5Dialer instead when
// the config has a proxy section.
type Dialer func(ctx context.Context, network, addr string) (net.Conn, error)

// Config configures one Session.
type Config struct {
	DC        *datacenter.Datacenter
	Transport wire.Variant
	RSAKeys   []mtproto.ServerRSAKey
	Registry  *schema.Registry
	Dialer    Dialer
	Metrics   *metrics.Session
	Logger    *log.Logger

	// PingInterval is how often the ping loop sends a keepalive ping.
	// Defaults to 60s, matching pylogram's default.
	PingInterval time.Duration
	// RequestTimeout bounds how long Invoke waits for a response before
	// returning mtperrors.ErrTimeout.
	RequestTimeout time.Duration
	// FloodSleepThreshold is the largest FLOOD_WAIT_N, in seconds, Invoke
	// will sleep out and retry transparently; larger values are surfaced
	// to the caller as *mtperrors.RpcError (spec.md §4.5 step 3).
	FloodSleepThreshold int
}

func (c *Config) setDefaults() {
	if c.PingInterval == 0 {
		c.PingInterval = 60 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.FloodSleepThreshold == 0 {
		c.FloodSleepThreshold = 10
	}
	if c.Dialer == nil {
		c.Dialer = func(ctx context.Context, network, addr string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		}
	}
	if c.Logger == nil {
		c.Logger = log.NewWithOptions(nil, log.Options{Prefix: "session"})
	} else {
		c.Logger = c.Logger.WithPrefix("session")
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NewSession()
	}
}

// Session is one authenticated, framed connection to a single
// datacenter.
type Session struct {
	worker.Worker

	cfg   Config
	codec *wire.Codec
	conn  net.Conn

	authKey    *mtproto.AuthKey
	serverSalt int64
	sessionID  int64

	msgIDs  mtproto.MsgIDGenerator
	seqNos  mtproto.SeqNoGenerator
	pending *mtproto.PendingTable
	replay  *mtproto.ReplayWindow

	outbound *channels.InfiniteChannel

	state atomic.Int32

	updates chan schema.Object

	acksMu sync.Mutex
	acks   []int64
}

// New constructs a Session against cfg.DC without connecting.
func New(cfg Config) *Session {
	cfg.setDefaults()
	var sessionID int64
	var idBuf [8]byte
	if _, err := xrand.Reader.Read(idBuf[:]); err != nil {
		panic(err)
	}
	for i, b := range idBuf {
		sessionID |= int64(b) << (8 * i)
	}

	s := &Session{
		cfg:       cfg,
		sessionID: sessionID,
		pending:   mtproto.NewPendingTable(),
		replay:    mtproto.NewReplayWindow(4096),
		outbound:  channels.NewInfiniteChannel(),
		updates:   make(chan schema.Object, 256),
	}
	s.state.Store(int32(StateIdle))
	return s
}

// State returns the Session's current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Updates returns the channel the dispatcher reads server-pushed update
// objects from.
func (s *Session) Updates() <-chan schema.Object { return s.updates }

// Start dials the configured datacenter, negotiates an auth key, and
// launches the send/recv/ping loops.
func (s *Session) Start(ctx context.Context) error {
	s.state.Store(int32(StateConnecting))

	addrs := s.cfg.DC.Addresses[datacenter.TransportIPv4]
	if len(addrs) == 0 {
		return errors.New("session: datacenter has no ipv4 addresses configured")
	}
	conn, err := s.cfg.Dialer(ctx, "tcp", addrs[0])
	if err != nil {
		s.state.Store(int32(StateIdle))
		return err
	}
	s.conn = conn

	codec, err := wire.NewCodec(conn, s.cfg.Transport)
	if err != nil {
		conn.Close()
		s.state.Store(int32(StateIdle))
		return err
	}
	s.codec = codec

	s.state.Store(int32(StateHandshaking))
	transport := &handshakeTransport{codec: codec, registry: s.cfg.Registry, msgIDs: &s.msgIDs}
	authKey, serverSalt, err := mtproto.Negotiate(transport, s.cfg.RSAKeys)
	if err != nil {
		conn.Close()
		s.state.Store(int32(StateIdle))
		return err
	}
	s.authKey = authKey
	s.serverSalt = serverSalt

	s.state.Store(int32(StateStarted))
	s.cfg.Logger.Info("session started", "dc", s.cfg.DC.ID, "auth_key_id", authKey.ID())

	s.Go(s.recvLoop)
	s.Go(s.sendLoop)
	s.Go(s.pingLoop)
	return nil
}

// Stop halts every loop and closes the underlying connection. It does
// not destroy the auth key — callers that are done with it permanently
// should call Session.AuthKey().Destroy() themselves.
func (s *Session) Stop() {
	s.state.Store(int32(StateStopping))
	s.Halt()
	s.Wait()
	if s.conn != nil {
		s.conn.Close()
	}
	s.state.Store(int32(StateIdle))
}

// AuthKey returns the negotiated auth key, or nil if the session hasn't
// completed its handshake.
func (s *Session) AuthKey() *mtproto.AuthKey { return s.authKey }

// Invoke sends req and blocks for its matching rpc_result, applying
// RequestTimeout and translating rpc_error into *mtperrors.RpcError. A
// FLOOD_WAIT_N at or below Config.FloodSleepThreshold is slept out and
// the request retried under a fresh msg_id, as many times as such a
// FLOOD_WAIT comes back (spec.md §4.5 step 3, scenario c); anything
// larger is returned to the caller.
func (s *Session) Invoke(ctx context.Context, req schema.Object) (schema.Object, error) {
	body := schema.Encode(req)
	for {
		obj, err := s.invokeOnce(ctx, body)
		var rpcErr *mtperrors.RpcError
		if errors.As(err, &rpcErr) && rpcErr.IsFloodWait() && rpcErr.FloodWaitSeconds <= s.cfg.FloodSleepThreshold {
			s.cfg.Metrics.FloodWaits.Inc()
			select {
			case <-time.After(time.Duration(rpcErr.FloodWaitSeconds) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-s.HaltCh():
				return nil, mtperrors.ErrConnectionClosed
			}
			continue
		}
		return obj, err
	}
}

func (s *Session) invokeOnce(ctx context.Context, body []byte) (schema.Object, error) {
	msgID := s.msgIDs.Next()
	sentAt := time.Now()
	pr := &mtproto.PendingResponse{
		MsgID:  msgID,
		SentAt: sentAt,
		Body:   body,
		RespCh: make(chan []byte, 1),
		ErrCh:  make(chan error, 1),
	}
	s.pending.Insert(pr)
	s.cfg.Metrics.RpcInFlight.Inc()
	defer s.cfg.Metrics.RpcInFlight.Dec()

	s.outbound.In() <- outboundMessage{msgID: msgID, seqNo: s.seqNos.Next(), body: body}

	timeout := s.cfg.RequestTimeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case respBody := <-pr.RespCh:
		s.cfg.Metrics.RpcLatency.Observe(time.Since(sentAt).Seconds())
		return s.cfg.Registry.Decode(respBody)
	case err := <-pr.ErrCh:
		return nil, err
	case <-timer.C:
		s.pending.Resolve(msgID)
		return nil, mtperrors.ErrTimeout
	case <-ctx.Done():
		s.pending.Resolve(msgID)
		return nil, ctx.Err()
	case <-s.HaltCh():
		return nil, mtperrors.ErrConnectionClosed
	}
}

// resend re-enqueues a previously sent request under a fresh msg_id,
// transplanting its waiter so the original caller still observes the
// eventual result (bad_server_salt retry, spec.md §4.4).
func (s *Session) resend(pr *mtproto.PendingResponse) {
	msgID := s.msgIDs.Next()
	pr.MsgID = msgID
	pr.SentAt = time.Now()
	s.pending.Insert(pr)
	s.outbound.In() <- outboundMessage{msgID: msgID, seqNo: s.seqNos.Next(), body: pr.Body}
}

type outboundMessage struct {
	msgID int64
	seqNo int32
	body  []byte
}

// sendLoopDrainLimit bounds how many already-queued outbound messages one
// send-loop iteration will coalesce into a single container, so a burst
// of invokes can't starve the codec write for an unbounded stretch.
const sendLoopDrainLimit = 32

func (s *Session) sendLoop() {
	out := s.outbound.Out()
	for {
		select {
		case <-s.HaltCh():
			return
		case v, ok := <-out:
			if !ok {
				return
			}
			batch := []outboundMessage{v.(outboundMessage)}
		drain:
			for len(batch) < sendLoopDrainLimit {
				select {
				case v, ok := <-out:
					if !ok {
						break drain
					}
					batch = append(batch, v.(outboundMessage))
				default:
					break drain
				}
			}

			if acks := s.drainAcks(); len(acks) > 0 {
				batch = append(batch, outboundMessage{
					msgID: s.msgIDs.NextNonContent(),
					seqNo: s.seqNos.Current(),
					body:  schema.Encode(schema.MsgsAck{MsgIDs: acks}),
				})
			}

			if err := s.sendBatch(batch); err != nil {
				s.cfg.Logger.Error("send failed", "err", err)
				return
			}
		}
	}
}

// sendBatch writes batch as a single msg_container when it holds more
// than one message, or as a bare message otherwise (spec.md §4.5
// send-loop coalescing rule).
func (s *Session) sendBatch(batch []outboundMessage) error {
	var msgID int64
	var seqNo int32
	var body []byte

	if len(batch) == 1 {
		msgID, seqNo, body = batch[0].msgID, batch[0].seqNo, batch[0].body
	} else {
		inner := make([]schema.InnerMessage, len(batch))
		for i, m := range batch {
			inner[i] = schema.InnerMessage{MsgID: m.msgID, SeqNo: m.seqNo, Body: m.body}
		}
		msgID = s.msgIDs.NextNonContent()
		seqNo = s.seqNos.Current()
		body = schema.Encode(schema.MsgContainer{Messages: inner})
	}

	frame, err := mtproto.Encrypt(s.authKey, s.serverSalt, s.sessionID, msgID, seqNo, body)
	if err != nil {
		return err
	}
	if err := s.codec.Send(frame); err != nil {
		return err
	}
	s.cfg.Metrics.MessagesSent.Add(float64(len(batch)))
	return nil
}

func (s *Session) recvLoop() {
	for {
		select {
		case <-s.HaltCh():
			return
		default:
		}

		frame, err := s.codec.Recv()
		if err != nil {
			s.cfg.Logger.Error("recv failed", "err", err)
			return
		}
		s.cfg.Metrics.MessagesReceived.Inc()

		env, err := mtproto.Decrypt(s.authKey, frame)
		if err != nil {
			s.cfg.Logger.Error("decrypt failed", "err", err)
			continue
		}
		if s.replay.Seen(env.MsgID) {
			continue
		}
		s.handleBody(env.MsgID, env.Body)
	}
}

func (s *Session) pingLoop() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.HaltCh():
			return
		case <-ticker.C:
			msgID := s.msgIDs.NextNonContent()
			ping := schema.Ping{PingID: xrand.Int63n(1 << 62)}
			s.outbound.In() <- outboundMessage{msgID: msgID, seqNo: s.seqNos.Current(), body: schema.Encode(ping)}
		}
	}
}

// handleBody decodes one message body and dispatches it, unwrapping
// msg_container and gzip_packed as needed. Unknown constructors are
// logged and dropped, never fatal (spec.md's closed-enum registry
// contract).
func (s *Session) handleBody(msgID int64, body []byte) {
	obj, err := s.cfg.Registry.Decode(body)
	if err != nil {
		var unknown *schema.ErrUnknownConstructor
		if errors.As(err, &unknown) {
			s.cfg.Logger.Debug("dropping unknown constructor", "id", unknown.ID)
			return
		}
		s.cfg.Logger.Error("decode failed", "err", err)
		return
	}
	switch obj.(type) {
	case schema.MsgsAck, schema.Pong, schema.MsgContainer:
		// Acks, pongs, and the container wrapper itself carry no content
		// of their own to acknowledge (spec.md §4.5 recv-loop rule).
	default:
		s.acksMu.Lock()
		s.acks = append(s.acks, msgID)
		s.acksMu.Unlock()
	}
	s.dispatchObject(msgID, obj)
}

// drainAcks returns and clears every inbound msg_id awaiting a
// msgs_ack, for the send loop to coalesce into the next outbound
// container (spec.md §4.5 send-loop rule).
func (s *Session) drainAcks() []int64 {
	s.acksMu.Lock()
	defer s.acksMu.Unlock()
	if len(s.acks) == 0 {
		return nil
	}
	out := s.acks
	s.acks = nil
	return out
}

func (s *Session) dispatchObject(msgID int64, obj schema.Object) {
	switch v := obj.(type) {
	case schema.MsgContainer:
		for _, inner := range v.Messages {
			s.handleBody(inner.MsgID, inner.Body)
		}
	case schema.GzipPacked:
		r, err := gzip.NewReader(bytes.NewReader(v.PackedData))
		if err != nil {
			s.cfg.Logger.Error("gzip_packed: bad stream", "err", err)
			return
		}
		defer r.Close()
		decompressed, err := io.ReadAll(r)
		if err != nil {
			s.cfg.Logger.Error("gzip_packed: read failed", "err", err)
			return
		}
		s.handleBody(msgID, decompressed)
	case schema.MsgsAck:
		// Nothing to do: we don't track our own outbound msg-ids for ack
		// purposes beyond the pending-response table keyed by rpc_result.
	case schema.BadServerSalt:
		s.serverSalt = v.NewServerSalt
		s.cfg.Logger.Warn("bad_server_salt: updated salt, resending offending request", "bad_msg_id", v.BadMsgID)
		if pr, ok := s.pending.Resolve(v.BadMsgID); ok {
			s.resend(pr)
		}
	case schema.BadMsgNotification:
		s.cfg.Logger.Warn("bad_msg_notification", "code", v.ErrorCode)
	case schema.NewSessionCreated:
		s.serverSalt = v.ServerSalt
		s.cfg.Logger.Info("new_session_created", "first_msg_id", v.FirstMsgID)
		for _, pr := range s.pending.SweepBelow(v.FirstMsgID) {
			pr.ErrCh <- mtperrors.ErrInvalidatedByNewSession
		}
	case schema.Pong:
		// keepalive acknowledged, nothing further to do
	case schema.RpcResult:
		s.handleRpcResult(v)
	case schema.Updates, schema.UpdateShort, schema.UpdateShortMessage:
		select {
		case s.updates <- obj:
		default:
			s.cfg.Logger.Warn("updates channel full, dropping update")
		}
	default:
		s.cfg.Logger.Debug("unhandled object reached session dispatch", "type", obj.ConstructorID())
	}
}

func (s *Session) handleRpcResult(v schema.RpcResult) {
	pr, ok := s.pending.Resolve(v.ReqMsgID)
	if !ok {
		s.cfg.Logger.Warn("rpc_result for unknown msg_id", "msg_id", v.ReqMsgID)
		return
	}

	innerObj, err := s.cfg.Registry.Decode(v.Result)
	if err == nil {
		if rpcErr, ok := innerObj.(schema.RpcError); ok {
			pr.ErrCh <- translateRpcError(rpcErr)
			return
		}
	}
	pr.RespCh <- v.Result
}

func translateRpcError(rpcErr schema.RpcError) error {
	out := &mtperrors.RpcError{Code: rpcErr.ErrorCode, Message: rpcErr.ErrorMessage}
	if n, ok := parseFloodWait(rpcErr.ErrorMessage); ok {
		out.FloodWaitSeconds = n
	}
	return out
}

func parseFloodWait(message string) (int, bool) {
	const prefix = "FLOOD_WAIT_"
	if len(message) <= len(prefix) || message[:len(prefix)] != prefix {
		return 0, false
	}
	n, err := strconv.Atoi(message[len(prefix):])
	if err != nil {
		return 0, false
	}
	return n, true
}

// handshakeTransport adapts a wire.Codec + schema.Registry into the
// mtproto.Transport interface the handshake needs, framing each
// handshake message in MTProto's plaintext envelope (auth_key_id=0).
type handshakeTransport struct {
	codec    *wire.Codec
	registry *schema.Registry
	msgIDs   *mtproto.MsgIDGenerator
}

func (h *handshakeTransport) Send(obj schema.Object) error {
	body := schema.Encode(obj)
	frame := mtproto.EncodeUnencrypted(h.msgIDs.NextNonContent(), body)
	return h.codec.Send(frame)
}

func (h *handshakeTransport) Recv() (schema.Object, error) {
	frame, err := h.codec.Recv()
	if err != nil {
		return nil, err
	}
	_, body, err := mtproto.DecodeUnencrypted(frame)
	if err != nil {
		return nil, err
	}
	return h.registry.Decode(body)
}
