package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/and161185/lms-client/internal/crypto/clientcrypto"
)

type tokenEntry struct {
	AccessToken string     `json:"access_token,omitempty"`
	Sealed      []byte     `json:"sealed,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type tokenFile struct {
	Salt   []byte                `json:"salt,omitempty"`
	Tokens map[string]tokenEntry `json:"tokens"`
}

// File keeps credentials in a JSON file shared by all origins, one entry per origin.
// With a passphrase the token is sealed and bound to its origin.
type File struct {
	mu         sync.Mutex
	path       string
	origin     string
	passphrase []byte
}

// NewFile returns a file-backed store for origin. An empty passphrase stores tokens in clear.
func NewFile(path, origin string, passphrase []byte) *File {
	return &File{path: path, origin: origin, passphrase: passphrase}
}

// Path returns the backing file path.
func (f *File) Path() string { return f.path }

func (f *File) load() (*tokenFile, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return &tokenFile{Tokens: map[string]tokenEntry{}}, nil
	}
	if err != nil {
		return nil, err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return nil, fmt.Errorf("token file %s: %w", f.path, err)
	}
	if tf.Tokens == nil {
		tf.Tokens = map[string]tokenEntry{}
	}
	return &tf, nil
}

func (f *File) save(tf *tokenFile) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *File) key(tf *tokenFile) ([]byte, error) {
	if len(tf.Salt) == 0 {
		salt, err := clientcrypto.Rand(clientcrypto.SaltLen)
		if err != nil {
			return nil, err
		}
		tf.Salt = salt
	}
	return clientcrypto.DeriveKey(f.passphrase, tf.Salt), nil
}

func (f *File) Get(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	tf, err := f.load()
	if err != nil {
		return "", err
	}
	e, ok := tf.Tokens[f.origin]
	if !ok {
		return "", nil
	}
	if len(e.Sealed) == 0 {
		return e.AccessToken, nil
	}
	if len(f.passphrase) == 0 {
		return "", errors.New("token is sealed; passphrase required")
	}
	key, err := f.key(tf)
	if err != nil {
		return "", err
	}
	pt, err := clientcrypto.Open(key, e.Sealed, []byte(f.origin))
	if err != nil {
		return "", fmt.Errorf("unseal token: %w", err)
	}
	return string(pt), nil
}

func (f *File) Set(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tf, err := f.load()
	if err != nil {
		return err
	}
	var e tokenEntry
	if exp, ok := ExpiresAt(token); ok {
		e.ExpiresAt = &exp
	}
	if len(f.passphrase) == 0 {
		e.AccessToken = token
	} else {
		key, err := f.key(tf)
		if err != nil {
			return err
		}
		if e.Sealed, err = clientcrypto.Seal(key, []byte(token), []byte(f.origin)); err != nil {
			return err
		}
	}
	tf.Tokens[f.origin] = e
	return f.save(tf)
}

func (f *File) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tf, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := tf.Tokens[f.origin]; !ok {
		return nil
	}
	delete(tf.Tokens, f.origin)
	return f.save(tf)
}
