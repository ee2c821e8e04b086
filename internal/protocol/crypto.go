package protocol

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // OAEP hash choice, matches the original Crypto++ RSAES_OAEP_SHA_* scheme
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// DefaultRSAKeyBits is the handshake keypair size the original
// implementation defaults to, favoring handshake speed over long-term
// security margins. Callers that persist a keypair across sessions
// should generate at 2048 bits or higher; this default is only
// appropriate for ephemeral, short-lived keys.
const DefaultRSAKeyBits = 1024

// SymmetricKeyBits is the session key size: AES-128, matching the
// original's AES::DEFAULT_KEYLENGTH.
const SymmetricKeyBits = 128

// Encryptor turns plaintext bytes into ciphertext bytes.
type Encryptor interface {
	Encrypt(plaintext []byte) ([]byte, error)
}

// Decryptor turns ciphertext bytes back into plaintext bytes.
type Decryptor interface {
	Decrypt(ciphertext []byte) ([]byte, error)
}

// KeyPair is a long-lived RSA keypair. The public half encrypts; the
// private half decrypts. Encoding is PEM, matching the PEM_Save/PEM_Load
// calls in the original encryption.cpp.
type KeyPair struct {
	Private *rsa.PrivateKey
}

// GenerateKeyPair creates a new RSA keypair at the given bit size.
func GenerateKeyPair(bits int) (*KeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return &KeyPair{Private: key}, nil
}

// PublicKey returns the encrypting half of the pair.
func (k *KeyPair) PublicKey() *PublicKey {
	return &PublicKey{key: &k.Private.PublicKey}
}

// PrivateKeyDecryptor returns the decrypting half of the pair.
func (k *KeyPair) PrivateKeyDecryptor() *PrivateKey {
	return &PrivateKey{key: k.Private}
}

// EncodePEM encodes the private key as PKCS#1 PEM.
func (k *KeyPair) EncodePEM() string {
	der := x509.MarshalPKCS1PrivateKey(k.Private)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}
	return string(pem.EncodeToMemory(block))
}

// DecodeKeyPairPEM decodes a PKCS#1 PEM-encoded private key.
func DecodeKeyPairPEM(encoded string) (*KeyPair, error) {
	block, _ := pem.Decode([]byte(encoded))
	if block == nil {
		return nil, fmt.Errorf("decode private key pem: no PEM block found")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &KeyPair{Private: key}, nil
}

// PublicKey is the encrypting half of an RSA keypair.
type PublicKey struct {
	key *rsa.PublicKey
}

// Encrypt implements Encryptor using OAEP-padded RSA with SHA-1,
// matching the original's RSAES_OAEP_SHA_Encryptor.
func (p *PublicKey) Encrypt(plaintext []byte) ([]byte, error) {
	return rsa.EncryptOAEP(sha1.New(), rand.Reader, p.key, plaintext, nil)
}

// Encode encodes the public key as PKIX PEM, the wire format for the
// handshake's first Key message.
func (p *PublicKey) Encode() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(p.key)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// DecodePublicKeyPEM decodes a PKIX PEM-encoded RSA public key, as
// received in a handshake Key message.
func DecodePublicKeyPEM(encoded string) (*PublicKey, error) {
	block, _ := pem.Decode([]byte(encoded))
	if block == nil {
		return nil, fmt.Errorf("decode public key pem: no PEM block found")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA")
	}
	return &PublicKey{key: rsaPub}, nil
}

// PrivateKey is the decrypting half of an RSA keypair.
type PrivateKey struct {
	key *rsa.PrivateKey
}

// Decrypt implements Decryptor, the inverse of PublicKey.Encrypt.
func (p *PrivateKey) Decrypt(ciphertext []byte) ([]byte, error) {
	return rsa.DecryptOAEP(sha1.New(), rand.Reader, p.key, ciphertext, nil)
}

// SymmetricKey is the session's short-lived AES key. It both encrypts
// and decrypts, satisfying Encryptor and Decryptor.
//
// The original implementation runs AES in ECB mode with no
// authentication, leaking plaintext structure (identical blocks produce
// identical ciphertext) and allowing undetected tampering. Per spec.md
// §4.3 this is the one design decision an implementer is free, and
// encouraged, to change: this uses AES-GCM instead, keeping the wire
// layout (one opaque ciphertext blob replacing the frame body) intact.
// The GCM nonce is generated fresh per call and prepended to the
// ciphertext, so encode/decode stay self-contained without extending
// the frame header.
type SymmetricKey struct {
	raw []byte
}

// GenerateSymmetricKey creates a new random AES-128 key.
func GenerateSymmetricKey() (*SymmetricKey, error) {
	key := make([]byte, SymmetricKeyBits/8)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate symmetric key: %w", err)
	}
	return &SymmetricKey{raw: key}, nil
}

// DecodeSymmetricKey wraps raw key bytes received over the wire (sealed
// with RSA in the Key handshake message).
func DecodeSymmetricKey(raw []byte) *SymmetricKey {
	return &SymmetricKey{raw: append([]byte(nil), raw...)}
}

// Encode returns the raw key bytes, the wire format for the
// RSA-sealed Key handshake message.
func (s *SymmetricKey) Encode() []byte {
	return append([]byte(nil), s.raw...)
}

func (s *SymmetricKey) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.raw)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext with AES-GCM, prepending the nonce.
func (s *SymmetricKey) Encrypt(plaintext []byte) ([]byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens AES-GCM ciphertext produced by Encrypt.
func (s *SymmetricKey) Decrypt(ciphertext []byte) ([]byte, error) {
	gcm, err := s.gcm()
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return gcm.Open(nil, nonce, sealed, nil)
}
