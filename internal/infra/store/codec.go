package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"io"

	bolt "go.etcd.io/bbolt"

	"mcpreg/internal/domain"
)

// recordCipher seals server records with AES-256-GCM when a key is
// configured; a nil key passes bytes through untouched.
type recordCipher struct {
	aead cipher.AEAD
}

func newRecordCipher(key string) (*recordCipher, error) {
	if key == "" {
		return &recordCipher{}, nil
	}
	digest := sha256.Sum256([]byte(key))
	block, err := aes.NewCipher(digest[:])
	if err != nil {
		return nil, domain.E(domain.CodeRepository, "store.open", "init cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, domain.E(domain.CodeRepository, "store.open", "init gcm", err)
	}
	return &recordCipher{aead: aead}, nil
}

func (c *recordCipher) seal(plain []byte) ([]byte, error) {
	if c.aead == nil {
		return plain, nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plain, nil), nil
}

func (c *recordCipher) open(sealed []byte) ([]byte, error) {
	if c.aead == nil {
		return sealed, nil
	}
	size := c.aead.NonceSize()
	if len(sealed) < size {
		return nil, domain.E(domain.CodeRepository, "", "record too short to decrypt", nil)
	}
	return c.aead.Open(nil, sealed[:size], sealed[size:], nil)
}

func (s *Store) encodeServer(server domain.Server) ([]byte, error) {
	raw, err := json.Marshal(server)
	if err != nil {
		return nil, domain.E(domain.CodeRepository, "store.encode", "marshal server", err)
	}
	sealed, err := s.cipher.seal(raw)
	if err != nil {
		return nil, domain.E(domain.CodeRepository, "store.encode", "seal server", err)
	}
	return sealed, nil
}

func (s *Store) decodeServer(sealed []byte) (domain.Server, error) {
	raw, err := s.cipher.open(sealed)
	if err != nil {
		return domain.Server{}, domain.E(domain.CodeRepository, "store.decode", "open server", err)
	}
	var server domain.Server
	if err := json.Unmarshal(raw, &server); err != nil {
		return domain.Server{}, domain.E(domain.CodeRepository, "store.decode", "unmarshal server", err)
	}
	return server, nil
}

func (s *Store) readServer(tx *bolt.Tx, id domain.ServerID) (domain.Server, error) {
	bucket := tx.Bucket([]byte(serversBucketName))
	if bucket == nil {
		return domain.Server{}, domain.E(domain.CodeRepository, "store.read", "missing servers bucket", nil)
	}
	raw := bucket.Get([]byte(id))
	if raw == nil {
		return domain.Server{}, domain.ErrNotFound
	}
	return s.decodeServer(raw)
}

func (s *Store) writeServer(tx *bolt.Tx, server domain.Server) error {
	bucket := tx.Bucket([]byte(serversBucketName))
	if bucket == nil {
		return domain.E(domain.CodeRepository, "store.write", "missing servers bucket", nil)
	}
	encoded, err := s.encodeServer(server)
	if err != nil {
		return err
	}
	return bucket.Put([]byte(server.ID), encoded)
}

func (s *Store) scanServers(tx *bolt.Tx, visit func(domain.Server) error) error {
	bucket := tx.Bucket([]byte(serversBucketName))
	if bucket == nil {
		return domain.E(domain.CodeRepository, "store.scan", "missing servers bucket", nil)
	}
	return bucket.ForEach(func(_, value []byte) error {
		server, err := s.decodeServer(value)
		if err != nil {
			return err
		}
		return visit(server)
	})
}
