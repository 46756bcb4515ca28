package rpcrypt

import "testing"

func TestInitAuthDeterministic(t *testing.T) {
	var nonce, morning [KeySize]byte
	for i := range nonce {
		nonce[i] = byte(i)
		morning[i] = byte(i * 3)
	}

	a, err := InitAuth(false, nonce, morning)
	if err != nil {
		t.Fatalf("InitAuth: %v", err)
	}
	b, err := InitAuth(false, nonce, morning)
	if err != nil {
		t.Fatalf("InitAuth: %v", err)
	}
	if a.key != b.key {
		t.Error("InitAuth is not deterministic for identical inputs")
	}
}

func TestInitAuthPS4PS5Differ(t *testing.T) {
	var nonce, morning [KeySize]byte
	for i := range nonce {
		nonce[i] = byte(i + 1)
		morning[i] = byte(i + 7)
	}

	ps4, err := InitAuth(false, nonce, morning)
	if err != nil {
		t.Fatalf("InitAuth: %v", err)
	}
	ps5, err := InitAuth(true, nonce, morning)
	if err != nil {
		t.Fatalf("InitAuth: %v", err)
	}
	if ps4.key == ps5.key {
		t.Error("PS4 and PS5 auth keys must differ for the same nonce/morning")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	var nonce, morning [KeySize]byte
	for i := range nonce {
		nonce[i] = byte(255 - i)
		morning[i] = byte(i)
	}
	ctx, err := InitAuth(true, nonce, morning)
	if err != nil {
		t.Fatalf("InitAuth: %v", err)
	}

	plaintext := []byte("request-session handshake payload")
	data := append([]byte(nil), plaintext...)

	if err := ctx.Encrypt(data); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if string(data) == string(plaintext) {
		t.Error("Encrypt left the buffer unchanged")
	}
	if err := ctx.Decrypt(data); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(data) != string(plaintext) {
		t.Errorf("Decrypt(Encrypt(x)) = %q, want %q", data, plaintext)
	}
}

func TestRandomHandshakeKeyNotConstant(t *testing.T) {
	a, err := RandomHandshakeKey()
	if err != nil {
		t.Fatalf("RandomHandshakeKey: %v", err)
	}
	b, err := RandomHandshakeKey()
	if err != nil {
		t.Fatalf("RandomHandshakeKey: %v", err)
	}
	if a == b {
		t.Error("two calls to RandomHandshakeKey produced the same value")
	}
}

func TestECDHSharedSecretAgreement(t *testing.T) {
	alice, err := NewECDH()
	if err != nil {
		t.Fatalf("NewECDH: %v", err)
	}
	bob, err := NewECDH()
	if err != nil {
		t.Fatalf("NewECDH: %v", err)
	}

	aliceSecret, err := alice.SharedSecret(bob.PublicKeyBytes())
	if err != nil {
		t.Fatalf("alice.SharedSecret: %v", err)
	}
	bobSecret, err := bob.SharedSecret(alice.PublicKeyBytes())
	if err != nil {
		t.Fatalf("bob.SharedSecret: %v", err)
	}

	if string(aliceSecret) != string(bobSecret) {
		t.Error("ECDH shared secrets disagree between the two parties")
	}
}
