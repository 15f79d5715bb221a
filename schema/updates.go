package schema

// Update types feed the dispatcher (spec.md §4.7, grounded on
// pylogram's dispatcher.py). Payload fields the dispatcher doesn't
// branch on (the actual Message/User/Chat bodies) are kept as opaque
// encoded bytes — the dispatcher routes on envelope shape and
// constructor id, not on message content.

// Message is a minimal stand-in for the real messages.Message union;
// enough fields to exercise routing and peer/min-pts bookkeeping.
type Message struct {
	ID      int32
	PeerID  int64
	Message string
	Date    int32
}

func (Message) ConstructorID() ConstructorID { return IDMessage }
func (r Message) Encode() []byte {
	w := NewWriter(32 + len(r.Message))
	w.Int(r.ID)
	w.Long(r.PeerID)
	w.StringBytes([]byte(r.Message))
	w.Int(r.Date)
	return w.Bytes()
}
func decodeMessage(body []byte) (Object, error) {
	r := NewReader(body)
	var out Message
	var err error
	if out.ID, err = r.Int(); err != nil {
		return nil, err
	}
	if out.PeerID, err = r.Long(); err != nil {
		return nil, err
	}
	msg, err := r.StringBytes()
	if err != nil {
		return nil, err
	}
	out.Message = string(msg)
	if out.Date, err = r.Int(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateNewMessage carries pts/pts_count, the gap-detection fields the
// dispatcher's channel-difference recovery logic watches.
type UpdateNewMessage struct {
	Message  Message
	Pts      int32
	PtsCount int32
}

func (UpdateNewMessage) ConstructorID() ConstructorID { return IDUpdateNewMessage }
func (r UpdateNewMessage) Encode() []byte {
	w := NewWriter(64)
	w.Raw(r.Message.Encode())
	w.Int(r.Pts)
	w.Int(r.PtsCount)
	return w.Bytes()
}
func decodeUpdateNewMessage(body []byte) (Object, error) {
	msgLen := len(body) - 8
	if msgLen < 0 {
		return nil, ErrShortBuffer
	}
	msgObj, err := decodeMessage(body[:msgLen])
	if err != nil {
		return nil, err
	}
	r := NewReader(body[msgLen:])
	pts, err := r.Int()
	if err != nil {
		return nil, err
	}
	ptsCount, err := r.Int()
	if err != nil {
		return nil, err
	}
	return UpdateNewMessage{Message: msgObj.(Message), Pts: pts, PtsCount: ptsCount}, nil
}

// Updates is the "envelope" constructor wrapping a batch of update
// objects plus the Users/Chats peer data referenced by them — the
// dispatcher's peer-min recovery (spec.md §4.7) inspects these before
// the individual updates are unwrapped and dispatched.
type Updates struct {
	UpdateBytes [][]byte
	Users       [][]byte
	Chats       [][]byte
	Date        int32
	Seq         int32
}

func (Updates) ConstructorID() ConstructorID { return IDUpdates }
func (r Updates) Encode() []byte {
	w := NewWriter(64)
	writeList := func(items [][]byte) {
		w.Int(int32(len(items)))
		for _, u := range items {
			w.Int(int32(len(u)))
			w.Raw(u)
		}
	}
	writeList(r.UpdateBytes)
	writeList(r.Users)
	writeList(r.Chats)
	w.Int(r.Date)
	w.Int(r.Seq)
	return w.Bytes()
}
func decodeUpdates(body []byte) (Object, error) {
	r := NewReader(body)
	readList := func() ([][]byte, error) {
		n, err := r.Int()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil
		}
		items := make([][]byte, 0, n)
		for i := int32(0); i < n; i++ {
			l, err := r.Int()
			if err != nil {
				return nil, err
			}
			b, err := r.Raw(int(l))
			if err != nil {
				return nil, err
			}
			items = append(items, b)
		}
		return items, nil
	}

	var out Updates
	var err error
	if out.UpdateBytes, err = readList(); err != nil {
		return nil, err
	}
	if out.Users, err = readList(); err != nil {
		return nil, err
	}
	if out.Chats, err = readList(); err != nil {
		return nil, err
	}
	if out.Date, err = r.Int(); err != nil {
		return nil, err
	}
	if out.Seq, err = r.Int(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateShort wraps a single update with no seq/pts batch bookkeeping.
type UpdateShort struct {
	UpdateBytes []byte
	Date        int32
}

func (UpdateShort) ConstructorID() ConstructorID { return IDUpdateShort }
func (r UpdateShort) Encode() []byte {
	w := NewWriter(32 + len(r.UpdateBytes))
	w.Int(int32(len(r.UpdateBytes)))
	w.Raw(r.UpdateBytes)
	w.Int(r.Date)
	return w.Bytes()
}
func decodeUpdateShort(body []byte) (Object, error) {
	r := NewReader(body)
	l, err := r.Int()
	if err != nil {
		return nil, err
	}
	u, err := r.Raw(int(l))
	if err != nil {
		return nil, err
	}
	date, err := r.Int()
	if err != nil {
		return nil, err
	}
	return UpdateShort{UpdateBytes: u, Date: date}, nil
}

// UpdateShortMessage is the compact envelope the server sends for a
// private-chat message when it doesn't need the full Updates wrapper.
type UpdateShortMessage struct {
	ID       int32
	UserID   int64
	Message  string
	Pts      int32
	PtsCount int32
	Date     int32
}

func (UpdateShortMessage) ConstructorID() ConstructorID { return IDUpdateShortMessage }
func (r UpdateShortMessage) Encode() []byte {
	w := NewWriter(48 + len(r.Message))
	w.Int(r.ID)
	w.Long(r.UserID)
	w.StringBytes([]byte(r.Message))
	w.Int(r.Pts)
	w.Int(r.PtsCount)
	w.Int(r.Date)
	return w.Bytes()
}
func decodeUpdateShortMessage(body []byte) (Object, error) {
	r := NewReader(body)
	var out UpdateShortMessage
	var err error
	if out.ID, err = r.Int(); err != nil {
		return nil, err
	}
	if out.UserID, err = r.Long(); err != nil {
		return nil, err
	}
	msg, err := r.StringBytes()
	if err != nil {
		return nil, err
	}
	out.Message = string(msg)
	if out.Pts, err = r.Int(); err != nil {
		return nil, err
	}
	if out.PtsCount, err = r.Int(); err != nil {
		return nil, err
	}
	if out.Date, err = r.Int(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdatesGetState wakes a quiet connection (spec.md §4.7 "updates
// watchdog"): the dispatcher sends this when no update has arrived
// within UPDATES_WATCHDOG_INTERVAL to confirm the server still has
// nothing to say rather than the connection having gone silent.
type UpdatesGetState struct{}

func (UpdatesGetState) ConstructorID() ConstructorID { return IDUpdatesGetState }
func (UpdatesGetState) Encode() []byte               { return nil }
func decodeUpdatesGetState(body []byte) (Object, error) {
	return UpdatesGetState{}, nil
}

// UpdatesState is the server's reply to UpdatesGetState/GetChannelDifference
// bookkeeping, carrying the pts/qts/seq counters the dispatcher could use
// to detect gaps. The core doesn't act on the counters itself (update-gap
// recovery beyond peer-min resolution is out of scope per spec.md §1),
// but keeps them so a caller built on top of this module can.
type UpdatesState struct {
	Pts  int32
	Qts  int32
	Date int32
	Seq  int32
}

func (UpdatesState) ConstructorID() ConstructorID { return IDUpdatesState }
func (r UpdatesState) Encode() []byte {
	w := NewWriter(16)
	w.Int(r.Pts)
	w.Int(r.Qts)
	w.Int(r.Date)
	w.Int(r.Seq)
	return w.Bytes()
}
func decodeUpdatesState(body []byte) (Object, error) {
	r := NewReader(body)
	var out UpdatesState
	var err error
	if out.Pts, err = r.Int(); err != nil {
		return nil, err
	}
	if out.Qts, err = r.Int(); err != nil {
		return nil, err
	}
	if out.Date, err = r.Int(); err != nil {
		return nil, err
	}
	if out.Seq, err = r.Int(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdatesGetChannelDifference is what the dispatcher issues when an
// incoming Updates batch references a "min" peer (spec.md §4.7 "peer-min
// recovery"): it re-fetches the channel's recent history from the
// origin, which comes back with full, non-min peer entries.
type UpdatesGetChannelDifference struct {
	ChannelID int64
	Pts       int32
	Limit     int32
}

func (UpdatesGetChannelDifference) ConstructorID() ConstructorID {
	return IDUpdatesGetChannelDifference
}
func (r UpdatesGetChannelDifference) Encode() []byte {
	w := NewWriter(16)
	w.Long(r.ChannelID)
	w.Int(r.Pts)
	w.Int(r.Limit)
	return w.Bytes()
}
func decodeUpdatesGetChannelDifference(body []byte) (Object, error) {
	r := NewReader(body)
	var out UpdatesGetChannelDifference
	var err error
	if out.ChannelID, err = r.Long(); err != nil {
		return nil, err
	}
	if out.Pts, err = r.Int(); err != nil {
		return nil, err
	}
	if out.Limit, err = r.Int(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdatesChannelDifference carries the resolved, full peer list the
// dispatcher folds into its peer store before parsing the update that
// triggered the gap recovery.
type UpdatesChannelDifference struct {
	Pts   int32
	Users [][]byte
	Chats [][]byte
}

func (UpdatesChannelDifference) ConstructorID() ConstructorID {
	return IDUpdatesChannelDifference
}
func (r UpdatesChannelDifference) Encode() []byte {
	w := NewWriter(64)
	w.Int(r.Pts)
	w.Int(int32(len(r.Users)))
	for _, u := range r.Users {
		w.Int(int32(len(u)))
		w.Raw(u)
	}
	w.Int(int32(len(r.Chats)))
	for _, c := range r.Chats {
		w.Int(int32(len(c)))
		w.Raw(c)
	}
	return w.Bytes()
}
func decodeUpdatesChannelDifference(body []byte) (Object, error) {
	r := NewReader(body)
	var out UpdatesChannelDifference
	var err error
	if out.Pts, err = r.Int(); err != nil {
		return nil, err
	}
	readList := func() ([][]byte, error) {
		n, err := r.Int()
		if err != nil {
			return nil, err
		}
		items := make([][]byte, 0, n)
		for i := int32(0); i < n; i++ {
			l, err := r.Int()
			if err != nil {
				return nil, err
			}
			b, err := r.Raw(int(l))
			if err != nil {
				return nil, err
			}
			items = append(items, b)
		}
		return items, nil
	}
	if out.Users, err = readList(); err != nil {
		return nil, err
	}
	if out.Chats, err = readList(); err != nil {
		return nil, err
	}
	return out, nil
}

func registerUpdateTypes(r *Registry) {
	r.Register(IDUpdatesGetState, decodeUpdatesGetState)
	r.Register(IDUpdatesState, decodeUpdatesState)
	r.Register(IDUpdatesGetChannelDifference, decodeUpdatesGetChannelDifference)
	r.Register(IDUpdatesChannelDifference, decodeUpdatesChannelDifference)
	r.Register(IDMessage, decodeMessage)
	r.Register(IDUpdateNewMessage, decodeUpdateNewMessage)
	r.Register(IDUpdates, decodeUpdates)
	r.Register(IDUpdateShort, decodeUpdateShort)
	r.Register(IDUpdateShortMessage, decodeUpdateShortMessage)
}
