package crypto

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

const keystoreExt = ".keystore"

var (
	ErrKeyExists   = errors.New("crypto: key already exists")
	ErrKeyNotFound = errors.New("crypto: key not found")
)

// Keyring stores named secp256k1 keys as Ethereum v3 keystore files in a
// single directory.
type Keyring struct {
	dir     string
	scryptN int
	scryptP int
}

// NewKeyring returns a keyring rooted at dir using standard scrypt cost.
func NewKeyring(dir string) *Keyring {
	return &Keyring{dir: dir, scryptN: keystore.StandardScryptN, scryptP: keystore.StandardScryptP}
}

// NewLightKeyring uses the light scrypt parameters. Intended for tests.
func NewLightKeyring(dir string) *Keyring {
	return &Keyring{dir: dir, scryptN: keystore.LightScryptN, scryptP: keystore.LightScryptP}
}

// Path returns the keystore file backing name.
func (r *Keyring) Path(name string) string {
	return filepath.Join(r.dir, name+keystoreExt)
}

// Generate creates a fresh key under name.
func (r *Keyring) Generate(name, passphrase string) (*PrivateKey, error) {
	key, err := GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	if err := r.Import(name, key, passphrase); err != nil {
		return nil, err
	}
	return key, nil
}

// Import stores key under name. Existing keys are never overwritten.
func (r *Keyring) Import(name string, key *PrivateKey, passphrase string) error {
	if key == nil {
		return errors.New("crypto: nil private key")
	}
	if err := validateName(name); err != nil {
		return err
	}
	path := r.Path(name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrKeyExists, name)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return err
	}

	// The go-ethereum keystore names files after the account; import into a
	// scratch directory and move the single result into place.
	tmpDir, err := os.MkdirTemp(r.dir, "import-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmpDir)

	ks := keystore.NewKeyStore(tmpDir, r.scryptN, r.scryptP)
	if _, err := ks.ImportECDSA(key.PrivateKey, passphrase); err != nil {
		return err
	}
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return err
	}
	if len(entries) != 1 {
		return errors.New("crypto: failed to create keystore file")
	}
	if err := os.Rename(filepath.Join(tmpDir, entries[0].Name()), path); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// Load decrypts the key stored under name.
func (r *Keyring) Load(name, passphrase string) (*PrivateKey, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	keyJSON, err := os.ReadFile(r.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	decrypted, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypt %s: %w", name, err)
	}
	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}

// Names lists the stored keys in lexical order.
func (r *Keyring) Names() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), keystoreExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), keystoreExt))
	}
	sort.Strings(names)
	return names, nil
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("crypto: empty key name")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("crypto: invalid key name %q", name)
	}
	return nil
}
