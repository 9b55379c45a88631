// Package keystore loads the signing key material the BFT2F protocol
// requires for every message signature. Key distribution itself is out of
// scope (spec.md §1 Non-goals): this package only loads keys that are
// already known a priori, from the directory named by BFT_KEYSTORE.
package keystore

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Principal is "replica-<id>" or "client-<id>", the keystore's file-naming
// convention for a principal's key pair.
type Principal string

func ReplicaPrincipal(id uint32) Principal { return Principal(fmt.Sprintf("replica-%d", id)) }
func ClientPrincipal(id uint32) Principal  { return Principal(fmt.Sprintf("client-%d", id)) }

type keyFile struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key,omitempty"`
}

// KeyStore holds this process's own signing key plus every known
// principal's public key, used to verify inbound message signatures.
type KeyStore struct {
	self       Principal
	privateKey ed25519.PrivateKey
	publicKeys map[Principal]ed25519.PublicKey
}

// Load reads <dir>/<principal>.json for the local signing key and every
// <dir>/*.json file for public keys of peers. An empty dir or a missing
// directory produces an empty keystore usable for tests: Sign then
// returns nil and Verify accepts every signature.
func Load(dir string, self Principal) (*KeyStore, error) {
	ks := &KeyStore{self: self, publicKeys: map[Principal]ed25519.PublicKey{}}
	if dir == "" {
		return ks, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return ks, nil
		}
		return nil, fmt.Errorf("keystore: read %s: %w", dir, err)
	}
	for _, ent := range entries {
		if ent.IsDir() || filepath.Ext(ent.Name()) != ".json" {
			continue
		}
		principal := Principal(ent.Name()[:len(ent.Name())-len(".json")])
		raw, err := os.ReadFile(filepath.Join(dir, ent.Name()))
		if err != nil {
			return nil, fmt.Errorf("keystore: read %s: %w", ent.Name(), err)
		}
		var kf keyFile
		if err := json.Unmarshal(raw, &kf); err != nil {
			return nil, fmt.Errorf("keystore: parse %s: %w", ent.Name(), err)
		}
		pub, err := hex.DecodeString(kf.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("keystore: %s public key: %w", ent.Name(), err)
		}
		ks.publicKeys[principal] = ed25519.PublicKey(pub)

		if principal == self && kf.PrivateKey != "" {
			priv, err := hex.DecodeString(kf.PrivateKey)
			if err != nil {
				return nil, fmt.Errorf("keystore: %s private key: %w", ent.Name(), err)
			}
			ks.privateKey = ed25519.PrivateKey(priv)
		}
	}
	return ks, nil
}

// Sign signs payload with this process's private key. Returns nil if no
// private key was loaded (unsigned operation, used in tests).
func (ks *KeyStore) Sign(payload []byte) []byte {
	if ks == nil || ks.privateKey == nil {
		return nil
	}
	return ed25519.Sign(ks.privateKey, payload)
}

// Verify checks a signature against the known public key for principal.
// An unknown principal fails closed. A nil keystore, or one holding no
// public keys at all (no directory, a missing directory, or a directory
// without key files), skips verification and accepts every signature.
func (ks *KeyStore) Verify(principal Principal, payload, sig []byte) bool {
	if ks == nil || len(ks.publicKeys) == 0 {
		return true
	}
	pub, ok := ks.publicKeys[principal]
	if !ok {
		return false
	}
	return ed25519.Verify(pub, payload, sig)
}

// GenerateKeyFiles writes a fresh ed25519 key pair for each principal into
// dir, for local development / test clusters. Not part of the protocol,
// and not wired to any command-line flag.
func GenerateKeyFiles(dir string, principals []Principal) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	for _, p := range principals {
		pub, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			return fmt.Errorf("keystore: generate key for %s: %w", p, err)
		}
		kf := keyFile{PublicKey: hex.EncodeToString(pub), PrivateKey: hex.EncodeToString(priv)}
		raw, err := json.MarshalIndent(kf, "", "  ")
		if err != nil {
			return err
		}
		path := filepath.Join(dir, string(p)+".json")
		if err := os.WriteFile(path, raw, 0o600); err != nil {
			return fmt.Errorf("keystore: write %s: %w", path, err)
		}
	}
	return nil
}
