package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// LenPrefix is the size of the big-endian length prefix on every frame.
	LenPrefix = 2
	// MaxFrameLen is the largest block a single frame may carry.
	MaxFrameLen = 1<<16 - 1
)

var (
	ErrShortFrame    = errors.New("frame: short frame")
	ErrFrameTooLarge = errors.New("frame: frame too large")
)

// Raw is one packet as two undecoded frames: the type tag and the payload.
type Raw struct {
	Type    []byte
	Payload []byte
}

// ReadFrame reads one length-prefixed block. A clean EOF before the prefix is
// returned as io.EOF; a cut inside the frame is ErrShortFrame.
func ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [LenPrefix]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortFrame
		}
		return nil, err
	}
	n := binary.BigEndian.Uint16(prefix[:])
	block := make([]byte, n)
	if n == 0 {
		return block, nil
	}
	if _, err := io.ReadFull(r, block); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, ErrShortFrame
		}
		return nil, err
	}
	return block, nil
}

// AppendFrame appends the length-prefixed form of block to dst.
func AppendFrame(dst, block []byte) ([]byte, error) {
	if len(block) > MaxFrameLen {
		return dst, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(block))
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(block)))
	return append(dst, block...), nil
}

// ReadRaw reads the two frames of one packet.
func ReadRaw(r io.Reader) (Raw, error) {
	typ, err := ReadFrame(r)
	if err != nil {
		return Raw{}, err
	}
	payload, err := ReadFrame(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Raw{}, ErrShortFrame
		}
		return Raw{}, err
	}
	return Raw{Type: typ, Payload: payload}, nil
}

// EncodeRaw returns both frames of one packet as a single buffer so the
// caller can hand them to the connection in one write.
func EncodeRaw(raw Raw) ([]byte, error) {
	buf := make([]byte, 0, 2*LenPrefix+len(raw.Type)+len(raw.Payload))
	buf, err := AppendFrame(buf, raw.Type)
	if err != nil {
		return nil, err
	}
	return AppendFrame(buf, raw.Payload)
}

// WriteRaw encodes raw and writes it with one Write call.
func WriteRaw(w io.Writer, raw Raw) error {
	buf, err := EncodeRaw(raw)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}
