package dex

import "testing"

func TestDecodeMUTF8StringEscapedNul(t *testing.T) {
	// utf16_size=3 (ULEB128 0x03), then 'a', C0 80 (escaped NUL), 'b', NUL.
	data := []byte{0x03, 0x61, 0xC0, 0x80, 0x62, 0x00}
	s, err := DecodeMUTF8String(data, 0, 0)
	if err != nil {
		t.Fatalf("DecodeMUTF8String: %v", err)
	}
	if s != "a\x00b" {
		t.Fatalf("got %q, want %q", s, "a\x00b")
	}
}

func TestDecodeMUTF8StringOffsetBeforeData(t *testing.T) {
	data := []byte{0x00, 0x00, 0x00, 0x00, 0x00}
	_, err := DecodeMUTF8String(data, 1, 4)
	if err == nil {
		t.Fatalf("expected ErrOffsetBeforeData")
	}
}

func TestDecodeMUTF8StringInvalidUTF8Fallback(t *testing.T) {
	// 0xFF is never a valid UTF-8 lead byte on its own.
	data := []byte{0x01, 0xFF, 0x00}
	s, err := DecodeMUTF8String(data, 0, 0)
	if err != nil {
		t.Fatalf("DecodeMUTF8String: %v", err)
	}
	if s != utfDecodeFailedSentinel {
		t.Fatalf("got %q, want sentinel", s)
	}
}
