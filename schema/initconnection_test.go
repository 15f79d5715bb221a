package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitConnectionRoundTrip(t *testing.T) {
	reg := DefaultRegistry()

	inner := InitConnection{
		APIID:          12345,
		DeviceModel:    "gomtproto",
		SystemVersion:  "linux",
		AppVersion:     "0.1.0",
		SystemLangCode: "en",
		LangPack:       "",
		LangCode:       "en",
		Query:          Encode(HelpGetConfig{}),
	}
	wrapped := InvokeWithLayer{Layer: 158, Query: Encode(inner)}

	encoded := Encode(wrapped)
	decoded, err := reg.Decode(encoded)
	require.NoError(t, err)

	got := decoded.(InvokeWithLayer)
	require.Equal(t, int32(158), got.Layer)

	innerDecoded, err := reg.Decode(got.Query)
	require.NoError(t, err)
	gotInner := innerDecoded.(InitConnection)
	require.Equal(t, inner.APIID, gotInner.APIID)
	require.Equal(t, inner.DeviceModel, gotInner.DeviceModel)

	queryDecoded, err := reg.Decode(gotInner.Query)
	require.NoError(t, err)
	require.Equal(t, HelpGetConfig{}, queryDecoded)
}
