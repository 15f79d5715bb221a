package store

import (
	"encoding/base64"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// sessionStringTagSet self-describes the envelope on the wire between
// tool versions, the same way server/cborplugin tags its Request and
// Response types with an unassigned CBOR tag number rather than relying
// on schema-less maps.
var sessionStringTagSet = cbor.NewTagSet()

const sessionStringCBORTag = 1501

func init() {
	sessionStringTagSet.Add(
		cbor.TagOptions{EncTag: cbor.EncTagRequired, DecTag: cbor.DecTagRequired},
		reflect.TypeOf(sessionStringEnvelope{}), sessionStringCBORTag,
	)
}

// sessionStringEnvelope is the payload a "session string" encodes:
// everything store.Meta carries except Date, which the envelope does not
// carry; DecodeSessionString leaves it zero.
type sessionStringEnvelope struct {
	DCID     int32
	APIID    int32
	TestMode bool
	AuthKey  [256]byte
	UserID   int64
	IsBot    bool
}

// EncodeSessionString packs meta into the compact base64(cbor(...))
// bootstrap string spec.md §6 calls an alternate to populating a Store.
func EncodeSessionString(meta *Meta) (string, error) {
	mode, err := cbor.PreferredUnsortedEncOptions().EncModeWithTags(sessionStringTagSet)
	if err != nil {
		return "", err
	}
	b, err := mode.Marshal(sessionStringEnvelope{
		DCID:     meta.DCID,
		APIID:    meta.APIID,
		TestMode: meta.TestMode,
		AuthKey:  meta.AuthKey,
		UserID:   meta.UserID,
		IsBot:    meta.IsBot,
	})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeSessionString reverses EncodeSessionString. Date is left zero;
// callers that go on to SaveMeta should stamp it themselves.
func DecodeSessionString(s string) (*Meta, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	mode, err := cbor.DecOptions{}.DecModeWithTags(sessionStringTagSet)
	if err != nil {
		return nil, err
	}
	var env sessionStringEnvelope
	if err := mode.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return &Meta{
		DCID:     env.DCID,
		APIID:    env.APIID,
		TestMode: env.TestMode,
		AuthKey:  env.AuthKey,
		UserID:   env.UserID,
		IsBot:    env.IsBot,
	}, nil
}
