package keys

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// KeyStore is a local-first directory of secp256k1 signing keys.
//
// EXPERIMENTAL: this filesystem-backed storage surface is not part of the
// stable API and may change in MINOR releases.
//
// Layout: one file per key, <Directory>/<name>.key, holding the private key
// as a single hex line. Files are created 0600 inside a 0700 directory.
type KeyStore struct {
	Directory string
}

type KeyEntry struct {
	Name    string
	Address string
}

func GetDefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".postledger", "keys"), nil
}

func CreateKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = GetDefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

func (ks *KeyStore) keyFilePath(name string) string {
	return filepath.Join(ks.Directory, name+".key")
}

func CheckKeyName(name string) error {
	if name == "" {
		return errors.New("key name cannot be empty")
	}
	for _, char := range name {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in key name", char)
	}
	return nil
}

// ParsePrivateKeyHex accepts a 32-byte secp256k1 scalar in hex, 0x optional.
func ParsePrivateKeyHex(keyHex string) (*ecdsa.PrivateKey, error) {
	keyHex = strings.TrimSpace(keyHex)
	keyHex = strings.TrimPrefix(strings.TrimPrefix(keyHex, "0x"), "0X")
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func (ks *KeyStore) saveKeyToFile(filePath string, key *ecdsa.PrivateKey, overwrite bool) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(filePath, flags, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.WriteString(hex.EncodeToString(crypto.FromECDSA(key)) + "\n"); err != nil {
		return err
	}
	return file.Close()
}

func (ks *KeyStore) loadKeyFromFile(filePath string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return ParsePrivateKeyHex(string(data))
}

// Generate creates a fresh key under name and returns its address.
func (ks *KeyStore) Generate(name string, overwrite bool) (address string, filePath string, err error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", "", err
	}
	return ks.Import(name, key, overwrite)
}

func (ks *KeyStore) Import(name string, key *ecdsa.PrivateKey, overwrite bool) (address string, filePath string, err error) {
	if err := CheckKeyName(name); err != nil {
		return "", "", err
	}
	if key == nil {
		return "", "", errors.New("missing private key")
	}
	filePath = ks.keyFilePath(name)
	if err := ks.saveKeyToFile(filePath, key, overwrite); err != nil {
		return "", "", err
	}
	return AddressOf(key), filePath, nil
}

func (ks *KeyStore) Address(name string) (string, error) {
	key, err := ks.Load(name)
	if err != nil {
		return "", err
	}
	return AddressOf(key), nil
}

func (ks *KeyStore) Load(name string) (*ecdsa.PrivateKey, error) {
	if err := CheckKeyName(name); err != nil {
		return nil, err
	}
	return ks.loadKeyFromFile(ks.keyFilePath(name))
}

// LoadSigner picks a key from, in order: a literal hex key, a key file, or a
// named entry in the store.
func (ks *KeyStore) LoadSigner(keyHex, name, keyFile string) (*ecdsa.PrivateKey, error) {
	if keyHex != "" {
		return ParsePrivateKeyHex(keyHex)
	}
	if keyFile != "" {
		return ks.loadKeyFromFile(keyFile)
	}
	if name != "" {
		return ks.Load(name)
	}
	return nil, errors.New("no signer provided")
}

func (ks *KeyStore) ListKeys() ([]KeyEntry, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".key") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".key"))
	}
	sort.Strings(names)

	var result []KeyEntry
	for _, name := range names {
		addr, err := ks.Address(name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		result = append(result, KeyEntry{Name: name, Address: addr})
	}
	return result, nil
}
