package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WriteFrame encodes m and writes it to w as a single length-prefixed frame.
// The length prefix and body are assembled into one buffer before the
// write, so concurrent WriteFrame calls on a shared writer never interleave
// a partial frame as long as each call's single Write is not itself split
// by the writer (true of net.Conn).
func WriteFrame(w io.Writer, m Message) error {
	payload, err := Encode(m)
	if err != nil {
		return err
	}
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	_, err = w.Write(buf)
	return err
}

// ReadFrame reads exactly one length-prefixed frame from r and decodes it.
// It returns io.EOF unmodified when the peer closes before sending any
// bytes of a new frame, and a *FrameError for a declared length beyond
// MaxFrameSize or malformed JSON.
func ReadFrame(r io.Reader) (Message, error) {
	var lenBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Message{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return Message{}, &FrameError{Err: fmt.Errorf("declared frame length %d exceeds cap of %d", n, MaxFrameSize)}
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Message{}, err
	}
	return Decode(payload)
}

// ReadRawFrame reads one length-prefixed frame from r like ReadFrame, but
// also returns the raw bytes of the frame (length prefix included) so a
// broker can forward them to subscribers verbatim without re-encoding.
func ReadRawFrame(r io.Reader) (raw []byte, m Message, err error) {
	var lenBuf [LengthPrefixSize]byte
	if _, err = io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, Message{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return nil, Message{}, &FrameError{Err: fmt.Errorf("declared frame length %d exceeds cap of %d", n, MaxFrameSize)}
	}
	raw = make([]byte, LengthPrefixSize+int(n))
	copy(raw, lenBuf[:])
	if _, err = io.ReadFull(r, raw[LengthPrefixSize:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, Message{}, err
	}
	m, err = Decode(raw[LengthPrefixSize:])
	if err != nil {
		return nil, Message{}, err
	}
	return raw, m, nil
}

// DecodeStream reads as many complete frames as possible out of buf,
// returning them along with the unconsumed trailing bytes. It is used by
// tests and by any caller that receives data in arbitrary-sized chunks
// rather than through an io.Reader.
func DecodeStream(buf []byte) (messages []Message, leftover []byte, err error) {
	for {
		if len(buf) < LengthPrefixSize {
			return messages, buf, nil
		}
		n := binary.BigEndian.Uint32(buf[:LengthPrefixSize])
		if n > MaxFrameSize {
			return messages, buf, &FrameError{Err: fmt.Errorf("declared frame length %d exceeds cap of %d", n, MaxFrameSize)}
		}
		total := LengthPrefixSize + int(n)
		if len(buf) < total {
			return messages, buf, nil
		}
		m, err := Decode(buf[LengthPrefixSize:total])
		if err != nil {
			return messages, buf, err
		}
		messages = append(messages, m)
		buf = buf[total:]
	}
}
