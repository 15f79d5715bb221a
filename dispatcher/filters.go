package dispatcher

import "github.com/dstainton-labs/gomtproto/schema"

// All matches every update; handlers that want to see everything
// (logging, metrics) register with this.
func All(schema.Object) bool { return true }

// NewMessage matches UpdateNewMessage and UpdateShortMessage, the two
// constructors a private or group text message arrives as.
func NewMessage(obj schema.Object) bool {
	switch obj.(type) {
	case schema.UpdateNewMessage, schema.UpdateShortMessage:
		return true
	default:
		return false
	}
}

// ConstructorIs returns a Filter matching only objects with the given
// constructor id.
func ConstructorIs(id schema.ConstructorID) Filter {
	return func(obj schema.Object) bool { return obj.ConstructorID() == id }
}
