package schema

// The constructor ids below match Telegram's published TL schema where
// the core touches it directly (handshake, service messages, the
// upload.* CDN family, help.getConfig). Everything else the real API
// exposes is out of scope per spec.md §1 and is left to the generated
// layer a real deployment would vendor alongside this module.
const (
	IDReqPqMulti           ConstructorID = 0xbe7e8ef1
	IDResPQ                ConstructorID = 0x05162463
	IDReqDHParams          ConstructorID = 0xd712e4be
	IDServerDHParamsOk     ConstructorID = 0xd0e8075c
	IDSetClientDHParams    ConstructorID = 0xf5045f1f
	IDDhGenOk              ConstructorID = 0x3bcbf734
	IDDhGenRetry           ConstructorID = 0x46dc1fb9
	IDDhGenFail            ConstructorID = 0xa69dae02
	IDMsgsAck              ConstructorID = 0x62d6b459
	IDBadServerSalt        ConstructorID = 0xedab447b
	IDBadMsgNotification   ConstructorID = 0xa7eff811
	IDNewSessionCreated    ConstructorID = 0x9ec20908
	IDPing                 ConstructorID = 0x7abe77ec
	IDPingDelayDisconnect  ConstructorID = 0xf3427b8c
	IDPong                 ConstructorID = 0x347773c5
	IDGzipPacked           ConstructorID = 0x3072cfa1
	IDRpcResult            ConstructorID = 0xf35c6d01
	IDRpcError             ConstructorID = 0x2144ca19
	IDMsgContainer         ConstructorID = 0x73f1f8dc
	IDHelpGetConfig        ConstructorID = 0xc4f9186b
	IDConfig               ConstructorID = 0x232d5905
	IDUploadGetCdnFile     ConstructorID = 0x395f69da
	IDUploadCdnFile        ConstructorID = 0xa99fca4f
	IDUploadFileCdnRedirect ConstructorID = 0xf18cda44
	IDUploadGetCdnFileHashes ConstructorID = 0x91dc3f31
	IDFileHash             ConstructorID = 0x6242c773
	IDUploadReuploadCdnFile ConstructorID = 0x9b2754a8
	IDCdnFileReuploadNeeded ConstructorID = 0xeea8e46e
	IDAuthExportAuthorization ConstructorID = 0xe5bfffcd
	IDAuthExportedAuthorization ConstructorID = 0xdf969c2d
	IDAuthImportAuthorization ConstructorID = 0xe3ef9613
	IDAuthAuthorization    ConstructorID = 0x2ea2c0d4
	IDUpdates              ConstructorID = 0x74ae4240
	IDUpdateShort          ConstructorID = 0x78d4dec1
	IDUpdateShortMessage   ConstructorID = 0x313bc7f8
	IDUpdateNewMessage     ConstructorID = 0x1f2b0afd
	IDMessage              ConstructorID = 0x85d6cbe2
	IDUpdatesGetState      ConstructorID = 0xedd4882a
	IDUpdatesState         ConstructorID = 0xa56c2a3e
	IDUpdatesGetChannelDifference ConstructorID = 0x03173d78
	IDUpdatesChannelDifference    ConstructorID = 0xf9ebf93a
)

// ReqPqMulti is the first message of the handshake (spec.md §4.3 step 1).
type ReqPqMulti struct {
	Nonce [16]byte
}

func (ReqPqMulti) ConstructorID() ConstructorID { return IDReqPqMulti }
func (r ReqPqMulti) Encode() []byte {
	w := NewWriter(16)
	w.Raw(r.Nonce[:])
	return w.Bytes()
}
func decodeReqPqMulti(body []byte) (Object, error) {
	r := NewReader(body)
	nonce, err := r.Raw(16)
	if err != nil {
		return nil, err
	}
	var out ReqPqMulti
	copy(out.Nonce[:], nonce)
	return out, nil
}

// ResPQ is the server's reply to ReqPqMulti.
type ResPQ struct {
	Nonce           [16]byte
	ServerNonce     [16]byte
	PQ              []byte
	Fingerprints    []int64
}

func (ResPQ) ConstructorID() ConstructorID { return IDResPQ }
func (r ResPQ) Encode() []byte {
	w := NewWriter(64)
	w.Raw(r.Nonce[:])
	w.Raw(r.ServerNonce[:])
	w.StringBytes(r.PQ)
	w.Int(int32(len(r.Fingerprints)))
	for _, fp := range r.Fingerprints {
		w.Long(fp)
	}
	return w.Bytes()
}
func decodeResPQ(body []byte) (Object, error) {
	r := NewReader(body)
	var out ResPQ
	nonce, err := r.Raw(16)
	if err != nil {
		return nil, err
	}
	copy(out.Nonce[:], nonce)
	serverNonce, err := r.Raw(16)
	if err != nil {
		return nil, err
	}
	copy(out.ServerNonce[:], serverNonce)
	out.PQ, err = r.StringBytes()
	if err != nil {
		return nil, err
	}
	n, err := r.Int()
	if err != nil {
		return nil, err
	}
	for i := int32(0); i < n; i++ {
		fp, err := r.Long()
		if err != nil {
			return nil, err
		}
		out.Fingerprints = append(out.Fingerprints, fp)
	}
	return out, nil
}

// ReqDHParams is step 2 of the handshake: the RSA-encrypted inner payload
// committing to (p, q, new_nonce, ...).
type ReqDHParams struct {
	Nonce        [16]byte
	ServerNonce  [16]byte
	P            []byte
	Q            []byte
	Fingerprint  int64
	EncryptedData []byte
}

func (ReqDHParams) ConstructorID() ConstructorID { return IDReqDHParams }
func (r ReqDHParams) Encode() []byte {
	w := NewWriter(128)
	w.Raw(r.Nonce[:])
	w.Raw(r.ServerNonce[:])
	w.StringBytes(r.P)
	w.StringBytes(r.Q)
	w.Long(r.Fingerprint)
	w.StringBytes(r.EncryptedData)
	return w.Bytes()
}
func decodeReqDHParams(body []byte) (Object, error) {
	r := NewReader(body)
	var out ReqDHParams
	nonce, err := r.Raw(16)
	if err != nil {
		return nil, err
	}
	copy(out.Nonce[:], nonce)
	serverNonce, err := r.Raw(16)
	if err != nil {
		return nil, err
	}
	copy(out.ServerNonce[:], serverNonce)
	if out.P, err = r.StringBytes(); err != nil {
		return nil, err
	}
	if out.Q, err = r.StringBytes(); err != nil {
		return nil, err
	}
	if out.Fingerprint, err = r.Long(); err != nil {
		return nil, err
	}
	if out.EncryptedData, err = r.StringBytes(); err != nil {
		return nil, err
	}
	return out, nil
}

// ServerDHParamsOk carries the AES-encrypted dh_prime/g_a answer
// (spec.md §4.3 step 3).
type ServerDHParamsOk struct {
	Nonce          [16]byte
	ServerNonce    [16]byte
	EncryptedAnswer []byte
}

func (ServerDHParamsOk) ConstructorID() ConstructorID { return IDServerDHParamsOk }
func (r ServerDHParamsOk) Encode() []byte {
	w := NewWriter(64)
	w.Raw(r.Nonce[:])
	w.Raw(r.ServerNonce[:])
	w.StringBytes(r.EncryptedAnswer)
	return w.Bytes()
}
func decodeServerDHParamsOk(body []byte) (Object, error) {
	r := NewReader(body)
	var out ServerDHParamsOk
	nonce, err := r.Raw(16)
	if err != nil {
		return nil, err
	}
	copy(out.Nonce[:], nonce)
	serverNonce, err := r.Raw(16)
	if err != nil {
		return nil, err
	}
	copy(out.ServerNonce[:], serverNonce)
	if out.EncryptedAnswer, err = r.StringBytes(); err != nil {
		return nil, err
	}
	return out, nil
}

// SetClientDHParams is step 3's client reply, carrying g_b encrypted the
// same way as the server's answer.
type SetClientDHParams struct {
	Nonce         [16]byte
	ServerNonce   [16]byte
	EncryptedData []byte
}

func (SetClientDHParams) ConstructorID() ConstructorID { return IDSetClientDHParams }
func (r SetClientDHParams) Encode() []byte {
	w := NewWriter(64)
	w.Raw(r.Nonce[:])
	w.Raw(r.ServerNonce[:])
	w.StringBytes(r.EncryptedData)
	return w.Bytes()
}
func decodeSetClientDHParams(body []byte) (Object, error) {
	r := NewReader(body)
	var out SetClientDHParams
	nonce, err := r.Raw(16)
	if err != nil {
		return nil, err
	}
	copy(out.Nonce[:], nonce)
	serverNonce, err := r.Raw(16)
	if err != nil {
		return nil, err
	}
	copy(out.ServerNonce[:], serverNonce)
	if out.EncryptedData, err = r.StringBytes(); err != nil {
		return nil, err
	}
	return out, nil
}

// DhGenOk/DhGenRetry/DhGenFail are the three possible outcomes of step 4.
type DhGenOk struct {
	Nonce, ServerNonce [16]byte
	NewNonceHash1      [16]byte
}
type DhGenRetry struct {
	Nonce, ServerNonce [16]byte
	NewNonceHash2      [16]byte
}
type DhGenFail struct {
	Nonce, ServerNonce [16]byte
	NewNonceHash3      [16]byte
}

func (DhGenOk) ConstructorID() ConstructorID    { return IDDhGenOk }
func (DhGenRetry) ConstructorID() ConstructorID { return IDDhGenRetry }
func (DhGenFail) ConstructorID() ConstructorID  { return IDDhGenFail }
func encodeDhGen(nonce, serverNonce, hash [16]byte) []byte {
	w := NewWriter(48)
	w.Raw(nonce[:])
	w.Raw(serverNonce[:])
	w.Raw(hash[:])
	return w.Bytes()
}
func (r DhGenOk) Encode() []byte    { return encodeDhGen(r.Nonce, r.ServerNonce, r.NewNonceHash1) }
func (r DhGenRetry) Encode() []byte { return encodeDhGen(r.Nonce, r.ServerNonce, r.NewNonceHash2) }
func (r DhGenFail) Encode() []byte  { return encodeDhGen(r.Nonce, r.ServerNonce, r.NewNonceHash3) }

func decodeDhGenTriple(body []byte) (nonce, serverNonce, hash [16]byte, err error) {
	r := NewReader(body)
	var n, sn, h []byte
	if n, err = r.Raw(16); err != nil {
		return
	}
	if sn, err = r.Raw(16); err != nil {
		return
	}
	if h, err = r.Raw(16); err != nil {
		return
	}
	copy(nonce[:], n)
	copy(serverNonce[:], sn)
	copy(hash[:], h)
	return
}
func decodeDhGenOk(body []byte) (Object, error) {
	n, sn, h, err := decodeDhGenTriple(body)
	if err != nil {
		return nil, err
	}
	return DhGenOk{Nonce: n, ServerNonce: sn, NewNonceHash1: h}, nil
}
func decodeDhGenRetry(body []byte) (Object, error) {
	n, sn, h, err := decodeDhGenTriple(body)
	if err != nil {
		return nil, err
	}
	return DhGenRetry{Nonce: n, ServerNonce: sn, NewNonceHash2: h}, nil
}
func decodeDhGenFail(body []byte) (Object, error) {
	n, sn, h, err := decodeDhGenTriple(body)
	if err != nil {
		return nil, err
	}
	return DhGenFail{Nonce: n, ServerNonce: sn, NewNonceHash3: h}, nil
}

// MsgsAck carries msg-ids the sender acknowledges having received.
type MsgsAck struct {
	MsgIDs []int64
}

func (MsgsAck) ConstructorID() ConstructorID { return IDMsgsAck }
func (r MsgsAck) Encode() []byte {
	w := NewWriter(8 + 8*len(r.MsgIDs))
	w.Int(int32(len(r.MsgIDs)))
	for _, id := range r.MsgIDs {
		w.Long(id)
	}
	return w.Bytes()
}
func decodeMsgsAck(body []byte) (Object, error) {
	r := NewReader(body)
	n, err := r.Int()
	if err != nil {
		return nil, err
	}
	out := MsgsAck{MsgIDs: make([]int64, 0, n)}
	for i := int32(0); i < n; i++ {
		id, err := r.Long()
		if err != nil {
			return nil, err
		}
		out.MsgIDs = append(out.MsgIDs, id)
	}
	return out, nil
}

// BadServerSalt tells the client which outbound msg-id was rejected and
// what salt to use instead.
type BadServerSalt struct {
	BadMsgID      int64
	BadMsgSeqno   int32
	ErrorCode     int32
	NewServerSalt int64
}

func (BadServerSalt) ConstructorID() ConstructorID { return IDBadServerSalt }
func (r BadServerSalt) Encode() []byte {
	w := NewWriter(24)
	w.Long(r.BadMsgID)
	w.Int(r.BadMsgSeqno)
	w.Int(r.ErrorCode)
	w.Long(r.NewServerSalt)
	return w.Bytes()
}
func decodeBadServerSalt(body []byte) (Object, error) {
	r := NewReader(body)
	var out BadServerSalt
	var err error
	if out.BadMsgID, err = r.Long(); err != nil {
		return nil, err
	}
	if out.BadMsgSeqno, err = r.Int(); err != nil {
		return nil, err
	}
	if out.ErrorCode, err = r.Int(); err != nil {
		return nil, err
	}
	if out.NewServerSalt, err = r.Long(); err != nil {
		return nil, err
	}
	return out, nil
}

// BadMsgNotification signals a time-skew or msg-id ordering problem.
type BadMsgNotification struct {
	BadMsgID    int64
	BadMsgSeqno int32
	ErrorCode   int32
}

func (BadMsgNotification) ConstructorID() ConstructorID { return IDBadMsgNotification }
func (r BadMsgNotification) Encode() []byte {
	w := NewWriter(16)
	w.Long(r.BadMsgID)
	w.Int(r.BadMsgSeqno)
	w.Int(r.ErrorCode)
	return w.Bytes()
}
func decodeBadMsgNotification(body []byte) (Object, error) {
	r := NewReader(body)
	var out BadMsgNotification
	var err error
	if out.BadMsgID, err = r.Long(); err != nil {
		return nil, err
	}
	if out.BadMsgSeqno, err = r.Int(); err != nil {
		return nil, err
	}
	if out.ErrorCode, err = r.Int(); err != nil {
		return nil, err
	}
	return out, nil
}

// NewSessionCreated tells the client the server started a fresh session
// state; pending responses below FirstMsgID must be resent.
type NewSessionCreated struct {
	FirstMsgID int64
	UniqueID   int64
	ServerSalt int64
}

func (NewSessionCreated) ConstructorID() ConstructorID { return IDNewSessionCreated }
func (r NewSessionCreated) Encode() []byte {
	w := NewWriter(24)
	w.Long(r.FirstMsgID)
	w.Long(r.UniqueID)
	w.Long(r.ServerSalt)
	return w.Bytes()
}
func decodeNewSessionCreated(body []byte) (Object, error) {
	r := NewReader(body)
	var out NewSessionCreated
	var err error
	if out.FirstMsgID, err = r.Long(); err != nil {
		return nil, err
	}
	if out.UniqueID, err = r.Long(); err != nil {
		return nil, err
	}
	if out.ServerSalt, err = r.Long(); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping / PingDelayDisconnect / Pong implement the session's keepalive.
type Ping struct{ PingID int64 }
type PingDelayDisconnect struct {
	PingID         int64
	DisconnectDelay int32
}
type Pong struct {
	MsgID  int64
	PingID int64
}

func (Ping) ConstructorID() ConstructorID                { return IDPing }
func (PingDelayDisconnect) ConstructorID() ConstructorID { return IDPingDelayDisconnect }
func (Pong) ConstructorID() ConstructorID                { return IDPong }
func (r Ping) Encode() []byte {
	w := NewWriter(8)
	w.Long(r.PingID)
	return w.Bytes()
}
func (r PingDelayDisconnect) Encode() []byte {
	w := NewWriter(12)
	w.Long(r.PingID)
	w.Int(r.DisconnectDelay)
	return w.Bytes()
}
func (r Pong) Encode() []byte {
	w := NewWriter(16)
	w.Long(r.MsgID)
	w.Long(r.PingID)
	return w.Bytes()
}
func decodePing(body []byte) (Object, error) {
	r := NewReader(body)
	id, err := r.Long()
	if err != nil {
		return nil, err
	}
	return Ping{PingID: id}, nil
}
func decodePong(body []byte) (Object, error) {
	r := NewReader(body)
	msgID, err := r.Long()
	if err != nil {
		return nil, err
	}
	pingID, err := r.Long()
	if err != nil {
		return nil, err
	}
	return Pong{MsgID: msgID, PingID: pingID}, nil
}

// GzipPacked wraps a gzip-deflated inner payload.
type GzipPacked struct {
	PackedData []byte
}

func (GzipPacked) ConstructorID() ConstructorID { return IDGzipPacked }
func (r GzipPacked) Encode() []byte {
	w := NewWriter(len(r.PackedData) + 4)
	w.StringBytes(r.PackedData)
	return w.Bytes()
}
func decodeGzipPacked(body []byte) (Object, error) {
	r := NewReader(body)
	data, err := r.StringBytes()
	if err != nil {
		return nil, err
	}
	return GzipPacked{PackedData: data}, nil
}

// RpcError carries an RPC failure's numeric code and symbolic message
// (e.g. "FLOOD_WAIT_3", "AUTH_KEY_UNREGISTERED").
type RpcError struct {
	ErrorCode    int32
	ErrorMessage string
}

func (RpcError) ConstructorID() ConstructorID { return IDRpcError }
func (r RpcError) Encode() []byte {
	w := NewWriter(16 + len(r.ErrorMessage))
	w.Int(r.ErrorCode)
	w.StringBytes([]byte(r.ErrorMessage))
	return w.Bytes()
}
func decodeRpcError(body []byte) (Object, error) {
	r := NewReader(body)
	code, err := r.Int()
	if err != nil {
		return nil, err
	}
	msg, err := r.StringBytes()
	if err != nil {
		return nil, err
	}
	return RpcError{ErrorCode: code, ErrorMessage: string(msg)}, nil
}

// RpcResult correlates a raw response body to the request msg-id it
// answers. Result is the still-encoded inner object (constructor id +
// body); the caller decodes it against whatever Registry it expects the
// response to come from, since an RpcResult's payload type depends on
// the request that provoked it and isn't self-describing beyond that.
type RpcResult struct {
	ReqMsgID int64
	Result   []byte
}

func (RpcResult) ConstructorID() ConstructorID { return IDRpcResult }
func (r RpcResult) Encode() []byte {
	w := NewWriter(16 + len(r.Result))
	w.Long(r.ReqMsgID)
	w.Raw(r.Result)
	return w.Bytes()
}
func decodeRpcResult(body []byte) (Object, error) {
	r := NewReader(body)
	reqMsgID, err := r.Long()
	if err != nil {
		return nil, err
	}
	return RpcResult{ReqMsgID: reqMsgID, Result: append([]byte{}, body[8:]...)}, nil
}

// InnerMessage is one element of a msg_container.
type InnerMessage struct {
	MsgID int64
	SeqNo int32
	Body  []byte
}

// MsgContainer packs N messages under one outer msg-id.
type MsgContainer struct {
	Messages []InnerMessage
}

func (MsgContainer) ConstructorID() ConstructorID { return IDMsgContainer }
func (r MsgContainer) Encode() []byte {
	w := NewWriter(32 * len(r.Messages))
	w.Int(int32(len(r.Messages)))
	for _, m := range r.Messages {
		w.Long(m.MsgID)
		w.Int(m.SeqNo)
		w.Int(int32(len(m.Body)))
		w.Raw(m.Body)
	}
	return w.Bytes()
}
func decodeMsgContainer(body []byte) (Object, error) {
	r := NewReader(body)
	n, err := r.Int()
	if err != nil {
		return nil, err
	}
	out := MsgContainer{Messages: make([]InnerMessage, 0, n)}
	for i := int32(0); i < n; i++ {
		msgID, err := r.Long()
		if err != nil {
			return nil, err
		}
		seqNo, err := r.Int()
		if err != nil {
			return nil, err
		}
		bodyLen, err := r.Int()
		if err != nil {
			return nil, err
		}
		body, err := r.Raw(int(bodyLen))
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, InnerMessage{MsgID: msgID, SeqNo: seqNo, Body: body})
	}
	return out, nil
}

// HelpGetConfig has no fields; used as the canonical "does the session
// work at all" smoke-test RPC.
type HelpGetConfig struct{}

func (HelpGetConfig) ConstructorID() ConstructorID { return IDHelpGetConfig }
func (HelpGetConfig) Encode() []byte               { return nil }
func decodeHelpGetConfig(body []byte) (Object, error) {
	return HelpGetConfig{}, nil
}

// DCOption is one reachable (ip, port) endpoint for a datacenter.
type DCOption struct {
	ID        int32
	IPAddress string
	Port      int32
	IPv6      bool
	MediaOnly bool
	TestMode  bool
}

// Config is help.getConfig's response.
type Config struct {
	ThisDC    int32
	DCOptions []DCOption
}

func (Config) ConstructorID() ConstructorID { return IDConfig }
func (r Config) Encode() []byte {
	w := NewWriter(64)
	w.Int(r.ThisDC)
	w.Int(int32(len(r.DCOptions)))
	for _, o := range r.DCOptions {
		w.Int(o.ID)
		w.StringBytes([]byte(o.IPAddress))
		w.Int(o.Port)
		flags := int32(0)
		if o.IPv6 {
			flags |= 1
		}
		if o.MediaOnly {
			flags |= 2
		}
		if o.TestMode {
			flags |= 4
		}
		w.Int(flags)
	}
	return w.Bytes()
}
func decodeConfig(body []byte) (Object, error) {
	r := NewReader(body)
	thisDC, err := r.Int()
	if err != nil {
		return nil, err
	}
	n, err := r.Int()
	if err != nil {
		return nil, err
	}
	out := Config{ThisDC: thisDC, DCOptions: make([]DCOption, 0, n)}
	for i := int32(0); i < n; i++ {
		var o DCOption
		if o.ID, err = r.Int(); err != nil {
			return nil, err
		}
		ip, err := r.StringBytes()
		if err != nil {
			return nil, err
		}
		o.IPAddress = string(ip)
		if o.Port, err = r.Int(); err != nil {
			return nil, err
		}
		flags, err := r.Int()
		if err != nil {
			return nil, err
		}
		o.IPv6 = flags&1 != 0
		o.MediaOnly = flags&2 != 0
		o.TestMode = flags&4 != 0
		out.DCOptions = append(out.DCOptions, o)
	}
	return out, nil
}

// DefaultRegistry returns a Registry with every constructor defined in
// this package registered, ready to decode handshake, service-message,
// and smoke-test RPC traffic.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(IDReqPqMulti, decodeReqPqMulti)
	r.Register(IDResPQ, decodeResPQ)
	r.Register(IDReqDHParams, decodeReqDHParams)
	r.Register(IDServerDHParamsOk, decodeServerDHParamsOk)
	r.Register(IDSetClientDHParams, decodeSetClientDHParams)
	r.Register(IDDhGenOk, decodeDhGenOk)
	r.Register(IDDhGenRetry, decodeDhGenRetry)
	r.Register(IDDhGenFail, decodeDhGenFail)
	r.Register(IDMsgsAck, decodeMsgsAck)
	r.Register(IDBadServerSalt, decodeBadServerSalt)
	r.Register(IDBadMsgNotification, decodeBadMsgNotification)
	r.Register(IDNewSessionCreated, decodeNewSessionCreated)
	r.Register(IDPing, decodePing)
	r.Register(IDPong, decodePong)
	r.Register(IDGzipPacked, decodeGzipPacked)
	r.Register(IDRpcError, decodeRpcError)
	r.Register(IDRpcResult, decodeRpcResult)
	r.Register(IDMsgContainer, decodeMsgContainer)
	r.Register(IDHelpGetConfig, decodeHelpGetConfig)
	r.Register(IDConfig, decodeConfig)
	registerUpdateTypes(r)
	registerCDNTypes(r)
	registerAuthTypes(r)
	registerInitConnectionTypes(r)
	return r
}
