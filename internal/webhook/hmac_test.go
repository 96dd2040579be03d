package webhook

import (
	"encoding/hex"
	"strings"
	"testing"
)

func TestVerify(t *testing.T) {
	secret := "test-secret-key"
	body := []byte(`{"message_id":"m1","from":"+919876543210","to":"+14155550100","ts":"2025-01-15T10:00:00Z","text":"Hello"}`)

	expectedSig := Sign(secret, body)

	tests := []struct {
		name      string
		body      []byte
		signature string
		secret    string
		want      bool
	}{
		{name: "valid signature - plain hex", body: body, signature: expectedSig, secret: secret, want: true},
		{name: "valid signature - uppercase hex", body: body, signature: strings.ToUpper(expectedSig), secret: secret, want: true},
		{name: "valid signature - sha256 prefix", body: body, signature: Prefixed(expectedSig), secret: secret, want: true},
		{name: "valid signature - empty body", body: []byte{}, signature: Sign(secret, nil), secret: secret, want: true},
		{name: "wrong signature", body: body, signature: strings.Repeat("0", 64), secret: secret, want: false},
		{name: "tampered body", body: []byte(`{"message_id":"m2"}`), signature: expectedSig, secret: secret, want: false},
		{name: "whitespace appended to body", body: append(append([]byte{}, body...), '\n'), signature: expectedSig, secret: secret, want: false},
		{name: "wrong secret", body: body, signature: expectedSig, secret: "wrong-secret", want: false},
		{name: "empty signature", body: body, signature: "", secret: secret, want: false},
		{name: "empty secret", body: body, signature: Sign("", body), secret: "", want: false},
		{name: "malformed hex", body: body, signature: "not-valid-hex", secret: secret, want: false},
		{name: "odd length hex", body: body, signature: expectedSig[:63], secret: secret, want: false},
		{name: "truncated digest", body: body, signature: expectedSig[:32], secret: secret, want: false},
		{name: "extended digest", body: body, signature: expectedSig + "00", secret: secret, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Verify(tt.secret, tt.body, tt.signature); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifyRejectsEveryBitFlip(t *testing.T) {
	secret := "testsecret"
	bodies := [][]byte{
		nil,
		[]byte("x"),
		[]byte(`{"message_id":"m1","from":"+91","to":"+14","ts":"2025-01-15T10:00:00Z","text":"Hello"}`),
	}

	for _, body := range bodies {
		sig := Sign(secret, body)
		if !Verify(secret, body, sig) {
			t.Fatalf("Verify rejected its own signature for %q", body)
		}

		raw, err := hex.DecodeString(sig)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		for i := 0; i < len(raw)*8; i++ {
			flipped := append([]byte(nil), raw...)
			flipped[i/8] ^= 1 << (i % 8)
			if Verify(secret, body, hex.EncodeToString(flipped)) {
				t.Fatalf("bit %d flip accepted for body %q", i, body)
			}
		}
	}
}

func TestParseSignature(t *testing.T) {
	const hexSig = "3a8f7b2c1d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a"
	tests := []struct {
		name      string
		signature string
		wantErr   bool
	}{
		{name: "sha256 prefix", signature: "sha256=" + hexSig},
		{name: "plain hex", signature: hexSig},
		{name: "surrounding whitespace", signature: "  " + hexSig + " "},
		{name: "invalid hex", signature: "not-valid-hex", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSignature(tt.signature)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSignature() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && hex.EncodeToString(got) != hexSig {
				t.Errorf("parseSignature() = %x, want %s", got, hexSig)
			}
		})
	}
}

func TestSign(t *testing.T) {
	// Known vector: HMAC-SHA256(key="key", "The quick brown fox jumps over the lazy dog").
	got := Sign("key", []byte("The quick brown fox jumps over the lazy dog"))
	want := "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8"
	if got != want {
		t.Errorf("Sign() = %s, want %s", got, want)
	}
}
