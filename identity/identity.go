// Package identity loads the key material the service signs with: the
// compaction authority's Solana keypair, the Arweave wallet, and the storage
// account address. Keys come from files or from one AWS Secrets Manager
// secret. Missing or invalid keys are fatal.
package identity

import (
	"crypto/ed25519"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/savaki/secrets"

	"github.com/spacecats-dao/spacecats-sync/durable/arweave"
	"github.com/spacecats-dao/spacecats-sync/errkind"
	"github.com/spacecats-dao/spacecats-sync/ledger"
	"github.com/spacecats-dao/spacecats-sync/ledger/solana"
)

type Identity struct {
	Authority      ed25519.PrivateKey
	StorageAccount ledger.PublicKey
	Wallet         *arweave.Wallet
}

// Sources says where each key lives. Values in the secret take precedence
// over files.
type Sources struct {
	AuthorityPath string
	// StorageAccount is a base58 address or the path of a keypair file.
	StorageAccount string
	WalletPath     string
	// SecretName, when set, names a secret holding a Secret document.
	SecretName string
	// NeedWallet is false for binaries that never write to the durable
	// store.
	NeedWallet bool
}

// Secret is the JSON document stored in Secrets Manager.
type Secret struct {
	CompactionAuthority string `json:"compaction_authority"` // keypair file contents
	StorageAccount      string `json:"storage_account"`      // base58
	ArweaveWallet       string `json:"arweave_wallet"`       // JWK
}

// SecretLoader decodes a named secret into v.
type SecretLoader interface {
	Load(name string, v interface{}) error
}

type secretsManager struct {
	session *session.Session
}

// SecretsManager loads secrets from AWS Secrets Manager.
func SecretsManager(s *session.Session) SecretLoader {
	return secretsManager{session: s}
}

func (s secretsManager) Load(name string, v interface{}) error {
	api := secrets.WithSecretsManager(secretsmanager.New(s.session))
	manager, err := secrets.NewManager(api)
	if err != nil {
		return fmt.Errorf("failed to initialize secrets: %w", err)
	}
	if err := manager.Decode(name, v); err != nil {
		return fmt.Errorf("failed to load secret %v: %w", name, err)
	}
	return nil
}

func fatal(err error) error {
	return errkind.NewFatal("identity", err)
}

// Load reads every key named by src. loader may be nil when no secret is
// configured.
func Load(src Sources, loader SecretLoader) (*Identity, error) {
	var secret Secret
	if src.SecretName != "" {
		if loader == nil {
			return nil, fatal(fmt.Errorf("secret %v configured without a secret loader", src.SecretName))
		}
		if err := loader.Load(src.SecretName, &secret); err != nil {
			return nil, fatal(err)
		}
	}

	var (
		id  Identity
		err error
	)

	authority := []byte(secret.CompactionAuthority)
	if len(authority) == 0 {
		if authority, err = readFile("compaction authority", src.AuthorityPath); err != nil {
			return nil, err
		}
	}
	if id.Authority, err = solana.ParseKeypair(authority); err != nil {
		return nil, fatal(fmt.Errorf("compaction authority: %w", err))
	}

	storage := secret.StorageAccount
	if storage == "" {
		storage = src.StorageAccount
	}
	if id.StorageAccount, err = storageAccount(storage); err != nil {
		return nil, err
	}

	if src.NeedWallet {
		wallet := []byte(secret.ArweaveWallet)
		if len(wallet) == 0 {
			if wallet, err = readFile("arweave wallet", src.WalletPath); err != nil {
				return nil, err
			}
		}
		if id.Wallet, err = arweave.ParseWallet(wallet); err != nil {
			return nil, fatal(fmt.Errorf("arweave wallet: %w", err))
		}
	}

	return &id, nil
}

func readFile(what, path string) ([]byte, error) {
	if path == "" {
		return nil, fatal(fmt.Errorf("no %v configured", what))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fatal(fmt.Errorf("unable to read %v: %w", what, err))
	}
	if len(data) == 0 {
		return nil, fatal(fmt.Errorf("%v file %v is empty", what, path))
	}
	return data, nil
}

// storageAccount accepts an address or a keypair file, which is how the
// account is created.
func storageAccount(value string) (ledger.PublicKey, error) {
	if value == "" {
		return ledger.PublicKey{}, fatal(fmt.Errorf("no storage account configured"))
	}
	if _, err := os.Stat(value); err == nil {
		data, err := readFile("storage account", value)
		if err != nil {
			return ledger.PublicKey{}, err
		}
		key, err := solana.ParseKeypair(data)
		if err != nil {
			return ledger.PublicKey{}, fatal(fmt.Errorf("storage account: %w", err))
		}
		return solana.PublicKeyOf(key), nil
	}

	key, err := ledger.ParsePublicKey(value)
	if err != nil {
		return ledger.PublicKey{}, fatal(fmt.Errorf("storage account: %w", err))
	}
	return key, nil
}
