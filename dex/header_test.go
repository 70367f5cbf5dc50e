package dex

import "testing"

func makeHeaderBytes(version string) []byte {
	data := make([]byte, HeaderSize)
	copy(data[0:4], []byte("dex\n"))
	copy(data[4:7], []byte(version))
	data[7] = 0x00
	return data
}

func TestDecodeHeaderVersion(t *testing.T) {
	data := makeHeaderBytes("038")
	h, err := DecodeHeader(data)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if err := ValidateMagic(h); err != nil {
		t.Fatalf("ValidateMagic: %v", err)
	}
	if h.Version() != "038" {
		t.Fatalf("got version %q, want 038", h.Version())
	}
}

func TestDecodeHeaderTooShort(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderSize-1))
	if err == nil {
		t.Fatalf("expected error for truncated header")
	}
}

func TestValidateMagicBadPrefix(t *testing.T) {
	data := makeHeaderBytes("038")
	data[0] = 'X'
	h, err := DecodeHeader(data)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if err := ValidateMagic(h); err == nil {
		t.Fatalf("expected error for bad magic prefix")
	}
}
