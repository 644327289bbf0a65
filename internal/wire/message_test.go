package wire

import (
	"bytes"
	"reflect"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	msg := New("cheese", float64(1), float64(2), float64(3), "cool")

	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if decoded.Channel != msg.Channel {
		t.Errorf("channel mismatch: got %s, want %s", decoded.Channel, msg.Channel)
	}
	if !reflect.DeepEqual(decoded.Args, msg.Args) {
		t.Errorf("args mismatch: got %#v, want %#v", decoded.Args, msg.Args)
	}
}

func TestEncodeRejectsEmptyChannel(t *testing.T) {
	_, err := Encode(New(""))
	if err == nil {
		t.Fatal("expected an error for empty channel")
	}
	var encErr *EncodeError
	if !asEncodeError(err, &encErr) {
		t.Errorf("expected *EncodeError, got %T", err)
	}
}

func asEncodeError(err error, target **EncodeError) bool {
	e, ok := err.(*EncodeError)
	if ok {
		*target = e
	}
	return ok
}

func TestDecodeRejectsNonArrayRoot(t *testing.T) {
	_, err := Decode([]byte(`{"not": "an array"}`))
	if err == nil {
		t.Fatal("expected an error for non-array root")
	}
	if _, ok := err.(*FrameError); !ok {
		t.Errorf("expected *FrameError, got %T", err)
	}
}

func TestDecodeRejectsEmptyArray(t *testing.T) {
	_, err := Decode([]byte(`[]`))
	if err == nil {
		t.Fatal("expected an error for an empty array")
	}
}

func TestWriteThenReadFrame(t *testing.T) {
	var buf bytes.Buffer
	msg := New("potato", map[string]any{"n": float64(42)})

	if err := WriteFrame(&buf, msg); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if got.Channel != msg.Channel {
		t.Errorf("channel mismatch: got %s, want %s", got.Channel, msg.Channel)
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF}) // declares ~4GiB

	_, err := ReadFrame(&buf)
	if err == nil {
		t.Fatal("expected an error for an oversized declared length")
	}
	if _, ok := err.(*FrameError); !ok {
		t.Errorf("expected *FrameError, got %T", err)
	}
}

func TestDecodeStreamReturnsLeftover(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, New("a", float64(1))); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if err := WriteFrame(&buf, New("b", float64(2))); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	full := buf.Bytes()

	// Split mid-second-frame to exercise the leftover path.
	cut := len(full) - 2
	messages, leftover, err := DecodeStream(full[:cut])
	if err != nil {
		t.Fatalf("decode stream: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 complete message, got %d", len(messages))
	}
	if messages[0].Channel != "a" {
		t.Errorf("channel mismatch: got %s", messages[0].Channel)
	}
	if len(leftover) == 0 {
		t.Error("expected non-empty leftover bytes")
	}

	more, _, err := DecodeStream(append(leftover, full[cut:]...))
	if err != nil {
		t.Fatalf("decode remainder: %v", err)
	}
	if len(more) != 1 || more[0].Channel != "b" {
		t.Errorf("expected to recover message b, got %#v", more)
	}
}

func TestDecodeStreamSurfacesFrameError(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 2})
	buf.WriteString("{}")

	_, _, err := DecodeStream(buf.Bytes())
	if err == nil {
		t.Fatal("expected a frame error for a non-array payload")
	}
}
