package signer

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Encryption constants for the on-disk keystore format.
const (
	SaltSize = 32
	// Encrypted format: [salt(32)][memory(4)][iterations(4)][parallelism(1)][nonce(24)][ciphertext...]
	headerSize = SaltSize + 4 + 4 + 1
)

// EncryptionParams holds Argon2id parameters.
type EncryptionParams struct {
	Memory      uint32 // in KiB
	Iterations  uint32
	Parallelism uint8
}

// DefaultParams returns recommended Argon2id parameters for keystore
// encryption.
func DefaultParams() EncryptionParams {
	return EncryptionParams{
		Memory:      64 * 1024, // 64 MB
		Iterations:  3,
		Parallelism: 4,
	}
}

func deriveKey(password, salt []byte, params EncryptionParams) []byte {
	return argon2.IDKey(
		password,
		salt,
		params.Iterations,
		params.Memory,
		params.Parallelism,
		chacha20poly1305.KeySize,
	)
}

// Encrypt encrypts data with password using Argon2id + XChaCha20-Poly1305.
//
// Output format: salt(32) | memory(4) | iterations(4) | parallelism(1) | nonce(24) | ciphertext
func Encrypt(data, password []byte, params EncryptionParams) ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	key := deriveKey(password, salt, params)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, data, nil)

	out := make([]byte, 0, headerSize+len(nonce)+len(ciphertext))
	out = append(out, salt...)
	out = binary.LittleEndian.AppendUint32(out, params.Memory)
	out = binary.LittleEndian.AppendUint32(out, params.Iterations)
	out = append(out, params.Parallelism)
	out = append(out, nonce...)
	out = append(out, ciphertext...)

	for i := range key {
		key[i] = 0
	}

	return out, nil
}

// Decrypt decrypts data encrypted by Encrypt with the given password.
func Decrypt(encrypted, password []byte) ([]byte, error) {
	nonceSize := chacha20poly1305.NonceSizeX
	minSize := headerSize + nonceSize + chacha20poly1305.Overhead
	if len(encrypted) < minSize {
		return nil, fmt.Errorf("encrypted data too short: %d bytes, need at least %d", len(encrypted), minSize)
	}

	salt := encrypted[:SaltSize]
	memory := binary.LittleEndian.Uint32(encrypted[SaltSize:])
	iterations := binary.LittleEndian.Uint32(encrypted[SaltSize+4:])
	parallelism := encrypted[SaltSize+8]

	params := EncryptionParams{
		Memory:      memory,
		Iterations:  iterations,
		Parallelism: parallelism,
	}

	nonce := encrypted[headerSize : headerSize+nonceSize]
	ciphertext := encrypted[headerSize+nonceSize:]

	key := deriveKey(password, salt, params)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		for i := range key {
			key[i] = 0
		}
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)

	for i := range key {
		key[i] = 0
	}

	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}

	return plaintext, nil
}

// keystoreFile is the on-disk JSON format for an encrypted signing identity.
type keystoreFile struct {
	Version       int       `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	EncryptedSeed []byte    `json:"encrypted_seed"`
	Address       string    `json:"address"` // hex-encoded, derived at creation for lookup without decrypting
	Account       uint32    `json:"account"` // BIP-44 account index this identity derives from
}

// Keystore manages encrypted signing-identity files on disk. Unlike a UTXO
// wallet's keystore, an in3 identity has no change/external address chains:
// a request is signed by one address per signer, so each file holds exactly
// one derived key.
type Keystore struct {
	path string
}

// NewKeystore creates a keystore rooted at path, creating the directory if
// it doesn't exist.
func NewKeystore(path string) (*Keystore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{path: path}, nil
}

func (ks *Keystore) identityPath(name string) string {
	return filepath.Join(ks.path, name+".signer")
}

// Create derives account 0 from seed, encrypts seed with password, and
// records the resulting identity under name.
func (ks *Keystore) Create(name string, seed, password []byte, params EncryptionParams) (*LocalSigner, error) {
	path := ks.identityPath(name)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("signing identity %q already exists", name)
	}

	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("derive master key: %w", err)
	}
	account, err := master.DeriveAccount(0, ChangeExternal, 0)
	if err != nil {
		return nil, fmt.Errorf("derive account key: %w", err)
	}
	priv, err := account.Signer()
	if err != nil {
		return nil, fmt.Errorf("build signer: %w", err)
	}
	signer := NewLocalSigner(priv)

	encrypted, err := Encrypt(seed, password, params)
	if err != nil {
		return nil, fmt.Errorf("encrypt seed: %w", err)
	}

	kf := keystoreFile{
		Version:       1,
		CreatedAt:     time.Now().UTC(),
		EncryptedSeed: encrypted,
		Address:       signer.Address().String(),
		Account:       0,
	}
	if err := ks.writeFile(path, &kf); err != nil {
		return nil, err
	}
	return signer, nil
}

// Load decrypts the identity named name and rebuilds its signing key.
func (ks *Keystore) Load(name string, password []byte) (*LocalSigner, error) {
	kf, err := ks.readFile(ks.identityPath(name))
	if err != nil {
		return nil, err
	}

	seed, err := Decrypt(kf.EncryptedSeed, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt signing identity: %w", err)
	}
	defer func() {
		for i := range seed {
			seed[i] = 0
		}
	}()

	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("derive master key: %w", err)
	}
	account, err := master.DeriveAccount(kf.Account, ChangeExternal, 0)
	if err != nil {
		return nil, fmt.Errorf("derive account key: %w", err)
	}
	priv, err := account.Signer()
	if err != nil {
		return nil, fmt.Errorf("build signer: %w", err)
	}
	return NewLocalSigner(priv), nil
}

// Address returns the identity's address without decrypting its seed.
func (ks *Keystore) Address(name string) (string, error) {
	kf, err := ks.readFile(ks.identityPath(name))
	if err != nil {
		return "", err
	}
	return kf.Address, nil
}

// List returns the names of all signing identities in the keystore.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.path)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext == ".signer" {
			names = append(names, name[:len(name)-len(ext)])
		}
	}
	return names, nil
}

// Delete removes a signing identity file.
func (ks *Keystore) Delete(name string) error {
	path := ks.identityPath(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("signing identity %q not found", name)
	}
	return os.Remove(path)
}

func (ks *Keystore) writeFile(path string, kf *keystoreFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal signing identity: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write signing identity: %w", err)
	}
	return nil
}

func (ks *Keystore) readFile(path string) (*keystoreFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing identity: %w", err)
	}
	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse signing identity: %w", err)
	}
	if kf.Version != 1 {
		return nil, fmt.Errorf("unsupported signing identity version: %d", kf.Version)
	}
	return &kf, nil
}
