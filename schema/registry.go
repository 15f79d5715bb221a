package schema

import "fmt"

// ConstructorID is the 32-bit schema-assigned identifier every TL object
// is prefixed with on the wire.
type ConstructorID uint32

// Object is any request, response, or service message the core needs to
// move across the wire without understanding its fields. The core only
// ever calls ConstructorID and Encode/Decode — it never branches on a
// concrete Go type except for the handful of service messages it must
// handle inline (msgs_ack, bad_server_salt, ...), which are named
// explicitly in package session.
type Object interface {
	ConstructorID() ConstructorID
	Encode() []byte
}

// Decoder builds an Object from its body (the bytes following the
// constructor id, which the Registry has already consumed).
type Decoder func(body []byte) (Object, error)

// Registry is the codec contract spec.md §6 describes:
// serialize(TypedRequest) -> bytes / deserialize(constructor_id, bytes) ->
// TypedResponse. The real schema registers thousands of variants at
// init() time from generated code; this one registers the closed set the
// core needs to exercise the handshake, message layer, and dispatcher.
type Registry struct {
	decoders map[ConstructorID]Decoder
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{decoders: make(map[ConstructorID]Decoder)}
}

// Register adds a decoder for id. Registering the same id twice panics,
// since the real schema is a closed enum with unique constructor ids.
func (r *Registry) Register(id ConstructorID, dec Decoder) {
	if _, exists := r.decoders[id]; exists {
		panic(fmt.Sprintf("schema: constructor %#x already registered", uint32(id)))
	}
	r.decoders[id] = dec
}

// Encode serializes obj as constructor_id || body.
func Encode(obj Object) []byte {
	w := NewWriter(4)
	w.UInt(uint32(obj.ConstructorID()))
	w.Raw(obj.Encode())
	return w.Bytes()
}

// Decode reads a leading constructor id off data and dispatches to the
// registered Decoder. ErrUnknownConstructor is non-fatal for callers: the
// spec requires unknown constructors to be logged and dropped, not to
// tear down the session.
func (r *Registry) Decode(data []byte) (Object, error) {
	rd := NewReader(data)
	id, err := rd.UInt()
	if err != nil {
		return nil, err
	}
	dec, ok := r.decoders[ConstructorID(id)]
	if !ok {
		return nil, &ErrUnknownConstructor{ID: ConstructorID(id)}
	}
	return dec(data[4:])
}

// ErrUnknownConstructor is returned by Decode for a constructor id the
// Registry has no Decoder for.
type ErrUnknownConstructor struct {
	ID ConstructorID
}

func (e *ErrUnknownConstructor) Error() string {
	return fmt.Sprintf("schema: unknown constructor %#x", uint32(e.ID))
}
