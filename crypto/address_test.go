package crypto

import (
	"bytes"
	"strings"
	"testing"
)

func TestDecodeAddressAcceptsBech32AndHex(t *testing.T) {
	raw := bytes.Repeat([]byte{0x11}, AddressLength)
	addr := MustNewAddress(AccountPrefix, raw)

	encoded := addr.String()
	if !strings.HasPrefix(encoded, "sub1") {
		t.Fatalf("unexpected prefix in %s", encoded)
	}
	fromBech, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode bech32: %v", err)
	}
	if fromBech.Array() != addr.Array() {
		t.Fatalf("bech32 round trip mismatch")
	}

	fromHex, err := DecodeAddress("0x" + strings.Repeat("11", AddressLength))
	if err != nil {
		t.Fatalf("decode hex: %v", err)
	}
	if fromHex.Array() != addr.Array() {
		t.Fatalf("hex decode mismatch")
	}
}

func TestDecodeAddressRejectsMalformedInput(t *testing.T) {
	for _, input := range []string{"", "0x1234", "not-an-address"} {
		if _, err := DecodeAddress(input); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
	if _, err := NewAddress(AccountPrefix, []byte{1, 2, 3}); err == nil {
		t.Fatalf("expected short address to be rejected")
	}
}

func TestZeroAddress(t *testing.T) {
	var zero Address
	if !zero.IsZero() {
		t.Fatalf("expected zero address")
	}
	if FromArray([AddressLength]byte{1}).IsZero() {
		t.Fatalf("expected non-zero address")
	}
}
