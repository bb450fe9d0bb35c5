package repository

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/grapheneos/appstore/pkg/errors"
)

const envelopeVersion int32 = 1

// encodeEnvelope lays out the cache file: format version, eTag and the
// verified JSON, each length-prefixed with a big-endian int32.
func encodeEnvelope(eTag string, data []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(12 + len(eTag) + len(data))
	_ = binary.Write(&buf, binary.BigEndian, envelopeVersion)
	writeChunk(&buf, []byte(eTag))
	writeChunk(&buf, data)
	return buf.Bytes()
}

func writeChunk(buf *bytes.Buffer, b []byte) {
	_ = binary.Write(buf, binary.BigEndian, int32(len(b)))
	buf.Write(b)
}

func decodeEnvelope(raw []byte) (eTag string, data []byte, err error) {
	r := bytes.NewReader(raw)
	var version int32
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return "", nil, errors.Wrap(errors.ErrRepoCacheFormat, "missing version")
	}
	if version > envelopeVersion {
		return "", nil, errors.Wrapf(errors.ErrRepoCacheFormat, "unknown version %d", version)
	}
	tag, err := readChunk(r)
	if err != nil {
		return "", nil, err
	}
	data, err = readChunk(r)
	if err != nil {
		return "", nil, err
	}
	if r.Len() != 0 {
		return "", nil, errors.Wrapf(errors.ErrRepoCacheFormat, "%d trailing bytes", r.Len())
	}
	return string(tag), data, nil
}

func readChunk(r *bytes.Reader) ([]byte, error) {
	var n int32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, errors.Wrap(errors.ErrRepoCacheFormat, "missing length")
	}
	if n < 0 || int(n) > r.Len() {
		return nil, errors.Wrapf(errors.ErrRepoCacheFormat, "invalid length %d", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, errors.Wrap(errors.ErrRepoCacheFormat, err.Error())
	}
	return b, nil
}
