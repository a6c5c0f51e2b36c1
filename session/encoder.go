package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"

	"github.com/MrEthical07/authcore/refresh"
)

// Record layout, version 1:
//
//	[0]      version
//	[1:33]   sha256(secret)
//	[33:41]  issuedAt unix millis, big endian
//	[41:49]  expiresAt unix millis, big endian
//	[49:51]  len(userID)
//	[51:]    userID
//
// The rotation script depends on these fixed offsets.
const (
	recordVersion1 = 1
	headerSize     = 51
)

var errCorruptRecord = errors.New("corrupt refresh record")

func encodeRecord(r *refresh.Record) ([]byte, error) {
	if len(r.UserID) > 65535 {
		return nil, errors.New("userID too long")
	}

	var buf bytes.Buffer
	buf.Grow(headerSize + len(r.UserID))
	buf.WriteByte(recordVersion1)
	buf.Write(r.SecretHash[:])
	buf.Write(encodeMillis(r.IssuedAt))
	buf.Write(encodeMillis(r.ExpiresAt))
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(r.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(r.UserID)

	return buf.Bytes(), nil
}

func decodeRecord(id string, data []byte) (*refresh.Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil || version != recordVersion1 {
		return nil, errCorruptRecord
	}

	r := &refresh.Record{ID: id}
	if _, err := io.ReadFull(reader, r.SecretHash[:]); err != nil {
		return nil, errCorruptRecord
	}

	var issued, expires int64
	if err := binary.Read(reader, binary.BigEndian, &issued); err != nil {
		return nil, errCorruptRecord
	}
	if err := binary.Read(reader, binary.BigEndian, &expires); err != nil {
		return nil, errCorruptRecord
	}
	r.IssuedAt = time.UnixMilli(issued)
	r.ExpiresAt = time.UnixMilli(expires)

	var userLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userLen); err != nil {
		return nil, errCorruptRecord
	}
	user := make([]byte, userLen)
	if _, err := io.ReadFull(reader, user); err != nil {
		return nil, errCorruptRecord
	}
	r.UserID = string(user)

	return r, nil
}

func encodeMillis(t time.Time) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(t.UnixMilli()))
	return b[:]
}
