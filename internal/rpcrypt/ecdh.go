package rpcrypt

import (
	"crypto/ecdh"
	"crypto/rand"
	"fmt"
)

// ECDH holds a session's local keypair for the ECDH exchange that follows
// the probe stage (session.c:493, chiaki_ecdh_init). Go's standard
// crypto/ecdh (P-256) is used directly — no ecosystem ECDH library appears
// anywhere in the retrieval pack (see DESIGN.md).
type ECDH struct {
	curve      ecdh.Curve
	privateKey *ecdh.PrivateKey
}

// NewECDH generates a fresh P-256 keypair.
func NewECDH() (*ECDH, error) {
	curve := ecdh.P256()
	priv, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("rpcrypt: ecdh keygen: %w", err)
	}
	return &ECDH{curve: curve, privateKey: priv}, nil
}

// PublicKeyBytes returns the uncompressed public key to send to the console.
func (e *ECDH) PublicKeyBytes() []byte {
	return e.privateKey.PublicKey().Bytes()
}

// SharedSecret computes the ECDH shared secret from the console's public
// key bytes.
func (e *ECDH) SharedSecret(peerPublic []byte) ([]byte, error) {
	pub, err := e.curve.NewPublicKey(peerPublic)
	if err != nil {
		return nil, fmt.Errorf("rpcrypt: parse peer public key: %w", err)
	}
	secret, err := e.privateKey.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("rpcrypt: ecdh: %w", err)
	}
	return secret, nil
}
