package stores

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const recordVersion1 = 1

func writeString(buf *bytes.Buffer, s string) error {
	if len(s) > 65535 {
		return errors.New("field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(s))); err != nil {
		return err
	}
	buf.WriteString(s)
	return nil
}

func readString(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", ErrCorrupt
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", ErrCorrupt
	}
	return string(b), nil
}

func readHeader(data []byte) (*bytes.Reader, error) {
	r := bytes.NewReader(data)
	version, err := r.ReadByte()
	if err != nil || version != recordVersion1 {
		return nil, ErrCorrupt
	}
	return r, nil
}

func readUint(r *bytes.Reader, v any) error {
	if err := binary.Read(r, binary.BigEndian, v); err != nil {
		return ErrCorrupt
	}
	return nil
}
