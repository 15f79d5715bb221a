package schema

// CDN file delivery (spec.md §4.6 "CDN redirect handling"): a regular DC
// can redirect a file download to a CDN edge, which serves AES-256-CTR
// encrypted chunks the client must decrypt and hash-verify itself.

// UploadGetCdnFile requests one chunk of a CDN-redirected file.
type UploadGetCdnFile struct {
	FileToken []byte
	Offset    int64
	Limit     int32
}

func (UploadGetCdnFile) ConstructorID() ConstructorID { return IDUploadGetCdnFile }
func (r UploadGetCdnFile) Encode() []byte {
	w := NewWriter(32 + len(r.FileToken))
	w.StringBytes(r.FileToken)
	w.Long(r.Offset)
	w.Int(r.Limit)
	return w.Bytes()
}
func decodeUploadGetCdnFile(body []byte) (Object, error) {
	r := NewReader(body)
	token, err := r.StringBytes()
	if err != nil {
		return nil, err
	}
	offset, err := r.Long()
	if err != nil {
		return nil, err
	}
	limit, err := r.Int()
	if err != nil {
		return nil, err
	}
	return UploadGetCdnFile{FileToken: token, Offset: offset, Limit: limit}, nil
}

// UploadCdnFile is the edge's response carrying a chunk's ciphertext
// bytes. When the edge needs the client to have the origin reupload, it
// answers with CdnFileReuploadNeeded instead.
type UploadCdnFile struct {
	Bytes []byte
}

func (UploadCdnFile) ConstructorID() ConstructorID { return IDUploadCdnFile }
func (r UploadCdnFile) Encode() []byte {
	w := NewWriter(len(r.Bytes) + 4)
	w.StringBytes(r.Bytes)
	return w.Bytes()
}
func decodeUploadCdnFile(body []byte) (Object, error) {
	r := NewReader(body)
	b, err := r.StringBytes()
	if err != nil {
		return nil, err
	}
	return UploadCdnFile{Bytes: b}, nil
}

// UploadFileCdnRedirect is returned in place of a regular file chunk when
// the DC wants the download handled by a CDN edge instead.
type UploadFileCdnRedirect struct {
	DCID              int32
	FileToken         []byte
	EncryptionKey     []byte
	EncryptionIV      []byte
	FileHashes        []FileHash
}

func (UploadFileCdnRedirect) ConstructorID() ConstructorID { return IDUploadFileCdnRedirect }
func (r UploadFileCdnRedirect) Encode() []byte {
	w := NewWriter(128)
	w.Int(r.DCID)
	w.StringBytes(r.FileToken)
	w.StringBytes(r.EncryptionKey)
	w.StringBytes(r.EncryptionIV)
	w.Int(int32(len(r.FileHashes)))
	for _, h := range r.FileHashes {
		w.Raw(h.Encode())
	}
	return w.Bytes()
}
func decodeUploadFileCdnRedirect(body []byte) (Object, error) {
	r := NewReader(body)
	var out UploadFileCdnRedirect
	var err error
	if out.DCID, err = r.Int(); err != nil {
		return nil, err
	}
	if out.FileToken, err = r.StringBytes(); err != nil {
		return nil, err
	}
	if out.EncryptionKey, err = r.StringBytes(); err != nil {
		return nil, err
	}
	if out.EncryptionIV, err = r.StringBytes(); err != nil {
		return nil, err
	}
	n, err := r.Int()
	if err != nil {
		return nil, err
	}
	for i := int32(0); i < n; i++ {
		obj, err := decodeFileHash(r)
		if err != nil {
			return nil, err
		}
		out.FileHashes = append(out.FileHashes, obj)
	}
	return out, nil
}

// UploadGetCdnFileHashes asks the origin DC for the SHA-256 hashes of a
// CDN file's chunks, used to verify what the edge served.
type UploadGetCdnFileHashes struct {
	FileToken []byte
	Offset    int64
}

func (UploadGetCdnFileHashes) ConstructorID() ConstructorID { return IDUploadGetCdnFileHashes }
func (r UploadGetCdnFileHashes) Encode() []byte {
	w := NewWriter(24 + len(r.FileToken))
	w.StringBytes(r.FileToken)
	w.Long(r.Offset)
	return w.Bytes()
}
func decodeUploadGetCdnFileHashes(body []byte) (Object, error) {
	r := NewReader(body)
	token, err := r.StringBytes()
	if err != nil {
		return nil, err
	}
	offset, err := r.Long()
	if err != nil {
		return nil, err
	}
	return UploadGetCdnFileHashes{FileToken: token, Offset: offset}, nil
}

// FileHash is one (offset, limit, sha256) triple covering a chunk range.
type FileHash struct {
	Offset int64
	Limit  int32
	Hash   []byte
}

func (FileHash) ConstructorID() ConstructorID { return IDFileHash }
func (r FileHash) Encode() []byte {
	w := NewWriter(16 + len(r.Hash))
	w.Long(r.Offset)
	w.Int(r.Limit)
	w.StringBytes(r.Hash)
	return w.Bytes()
}
func decodeFileHash(r *Reader) (FileHash, error) {
	var out FileHash
	var err error
	if out.Offset, err = r.Long(); err != nil {
		return out, err
	}
	if out.Limit, err = r.Int(); err != nil {
		return out, err
	}
	if out.Hash, err = r.StringBytes(); err != nil {
		return out, err
	}
	return out, nil
}
func decodeUploadFileHash(body []byte) (Object, error) {
	return decodeFileHash(NewReader(body))
}

// UploadReuploadCdnFile asks the origin to push a file's plaintext to the
// CDN edge again, after a hash mismatch or cdnFileReuploadNeeded.
type UploadReuploadCdnFile struct {
	FileToken    []byte
	RequestToken []byte
}

func (UploadReuploadCdnFile) ConstructorID() ConstructorID { return IDUploadReuploadCdnFile }
func (r UploadReuploadCdnFile) Encode() []byte {
	w := NewWriter(32 + len(r.FileToken) + len(r.RequestToken))
	w.StringBytes(r.FileToken)
	w.StringBytes(r.RequestToken)
	return w.Bytes()
}
func decodeUploadReuploadCdnFile(body []byte) (Object, error) {
	r := NewReader(body)
	token, err := r.StringBytes()
	if err != nil {
		return nil, err
	}
	reqToken, err := r.StringBytes()
	if err != nil {
		return nil, err
	}
	return UploadReuploadCdnFile{FileToken: token, RequestToken: reqToken}, nil
}

// CdnFileReuploadNeeded is the edge's signal that it doesn't have this
// chunk yet and the client must drive a reupload before retrying.
type CdnFileReuploadNeeded struct {
	RequestToken []byte
}

func (CdnFileReuploadNeeded) ConstructorID() ConstructorID { return IDCdnFileReuploadNeeded }
func (r CdnFileReuploadNeeded) Encode() []byte {
	w := NewWriter(len(r.RequestToken) + 4)
	w.StringBytes(r.RequestToken)
	return w.Bytes()
}
func decodeCdnFileReuploadNeeded(body []byte) (Object, error) {
	r := NewReader(body)
	token, err := r.StringBytes()
	if err != nil {
		return nil, err
	}
	return CdnFileReuploadNeeded{RequestToken: token}, nil
}

func registerCDNTypes(r *Registry) {
	r.Register(IDUploadGetCdnFile, decodeUploadGetCdnFile)
	r.Register(IDUploadCdnFile, decodeUploadCdnFile)
	r.Register(IDUploadFileCdnRedirect, decodeUploadFileCdnRedirect)
	r.Register(IDUploadGetCdnFileHashes, decodeUploadGetCdnFileHashes)
	r.Register(IDFileHash, decodeUploadFileHash)
	r.Register(IDUploadReuploadCdnFile, decodeUploadReuploadCdnFile)
	r.Register(IDCdnFileReuploadNeeded, decodeCdnFileReuploadNeeded)
}
