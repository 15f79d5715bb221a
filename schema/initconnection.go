package schema

// invokeWithLayer/initConnection wrap every RPC a fresh session sends
// exactly once, advertising the client to the DC (spec.md §4.6 "layer +
// initConnection wrapping"). Query carries the already-encoded inner
// request; this package doesn't need to understand it any further than
// that.
const (
	IDInvokeWithLayer ConstructorID = 0xda9b0d0d
	IDInitConnection  ConstructorID = 0xc1cd5ea9
)

// InvokeWithLayer pins the TL schema layer version for the wrapped
// Query.
type InvokeWithLayer struct {
	Layer int32
	Query []byte
}

func (InvokeWithLayer) ConstructorID() ConstructorID { return IDInvokeWithLayer }
func (r InvokeWithLayer) Encode() []byte {
	w := NewWriter(8 + len(r.Query))
	w.Int(r.Layer)
	w.Raw(r.Query)
	return w.Bytes()
}
func decodeInvokeWithLayer(body []byte) (Object, error) {
	r := NewReader(body)
	layer, err := r.Int()
	if err != nil {
		return nil, err
	}
	return InvokeWithLayer{Layer: layer, Query: append([]byte{}, body[4:]...)}, nil
}

// InitConnection identifies the client application and device to the
// DC; every field mirrors pylogram's Client.invoke wrapping.
type InitConnection struct {
	APIID          int32
	DeviceModel    string
	SystemVersion  string
	AppVersion     string
	SystemLangCode string
	LangPack       string
	LangCode       string
	Query          []byte
}

func (InitConnection) ConstructorID() ConstructorID { return IDInitConnection }
func (r InitConnection) Encode() []byte {
	w := NewWriter(128 + len(r.Query))
	w.Int(r.APIID)
	w.StringBytes([]byte(r.DeviceModel))
	w.StringBytes([]byte(r.SystemVersion))
	w.StringBytes([]byte(r.AppVersion))
	w.StringBytes([]byte(r.SystemLangCode))
	w.StringBytes([]byte(r.LangPack))
	w.StringBytes([]byte(r.LangCode))
	w.Raw(r.Query)
	return w.Bytes()
}
func decodeInitConnection(body []byte) (Object, error) {
	r := NewReader(body)
	var out InitConnection
	var err error
	if out.APIID, err = r.Int(); err != nil {
		return nil, err
	}
	for _, dst := range []*string{&out.DeviceModel, &out.SystemVersion, &out.AppVersion, &out.SystemLangCode, &out.LangPack, &out.LangCode} {
		b, err := r.StringBytes()
		if err != nil {
			return nil, err
		}
		*dst = string(b)
	}
	out.Query = append([]byte{}, r.buf[r.off:]...)
	return out, nil
}

func registerInitConnectionTypes(r *Registry) {
	r.Register(IDInvokeWithLayer, decodeInvokeWithLayer)
	r.Register(IDInitConnection, decodeInitConnection)
}
