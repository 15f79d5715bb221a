package schema

// Cross-DC file access (spec.md §4.6 "cross-DC file location handling")
// works by exporting the current DC's authorization and importing it
// into a short-lived Session against the DC that actually holds the
// file.

// AuthExportAuthorization requests a transferable authorization for dcID.
type AuthExportAuthorization struct {
	DCID int32
}

func (AuthExportAuthorization) ConstructorID() ConstructorID { return IDAuthExportAuthorization }
func (r AuthExportAuthorization) Encode() []byte {
	w := NewWriter(4)
	w.Int(r.DCID)
	return w.Bytes()
}
func decodeAuthExportAuthorization(body []byte) (Object, error) {
	r := NewReader(body)
	dcID, err := r.Int()
	if err != nil {
		return nil, err
	}
	return AuthExportAuthorization{DCID: dcID}, nil
}

// AuthExportedAuthorization is the transferable token returned by export.
type AuthExportedAuthorization struct {
	ID    int64
	Bytes []byte
}

func (AuthExportedAuthorization) ConstructorID() ConstructorID { return IDAuthExportedAuthorization }
func (r AuthExportedAuthorization) Encode() []byte {
	w := NewWriter(16 + len(r.Bytes))
	w.Long(r.ID)
	w.StringBytes(r.Bytes)
	return w.Bytes()
}
func decodeAuthExportedAuthorization(body []byte) (Object, error) {
	r := NewReader(body)
	id, err := r.Long()
	if err != nil {
		return nil, err
	}
	b, err := r.StringBytes()
	if err != nil {
		return nil, err
	}
	return AuthExportedAuthorization{ID: id, Bytes: b}, nil
}

// AuthImportAuthorization redeems an exported token against the target
// DC's freshly negotiated Session.
type AuthImportAuthorization struct {
	ID    int64
	Bytes []byte
}

func (AuthImportAuthorization) ConstructorID() ConstructorID { return IDAuthImportAuthorization }
func (r AuthImportAuthorization) Encode() []byte {
	w := NewWriter(16 + len(r.Bytes))
	w.Long(r.ID)
	w.StringBytes(r.Bytes)
	return w.Bytes()
}
func decodeAuthImportAuthorization(body []byte) (Object, error) {
	r := NewReader(body)
	id, err := r.Long()
	if err != nil {
		return nil, err
	}
	b, err := r.StringBytes()
	if err != nil {
		return nil, err
	}
	return AuthImportAuthorization{ID: id, Bytes: b}, nil
}

// AuthAuthorization confirms the import succeeded; User is left as an
// opaque encoded object since its shape is outside this module's scope.
type AuthAuthorization struct {
	User []byte
}

func (AuthAuthorization) ConstructorID() ConstructorID { return IDAuthAuthorization }
func (r AuthAuthorization) Encode() []byte {
	w := NewWriter(len(r.User) + 4)
	w.Raw(r.User)
	return w.Bytes()
}
func decodeAuthAuthorization(body []byte) (Object, error) {
	return AuthAuthorization{User: append([]byte{}, body...)}, nil
}

func registerAuthTypes(r *Registry) {
	r.Register(IDAuthExportAuthorization, decodeAuthExportAuthorization)
	r.Register(IDAuthExportedAuthorization, decodeAuthExportedAuthorization)
	r.Register(IDAuthImportAuthorization, decodeAuthImportAuthorization)
	r.Register(IDAuthAuthorization, decodeAuthAuthorization)
}
