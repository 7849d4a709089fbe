package solana

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/tng25/lino/internal/crypto"
	"github.com/tng25/lino/internal/domain"
)

// Wallet holds the bot's signing keypair.
type Wallet struct {
	key solana.PrivateKey
}

// WalletConfig names the keypair sources. A plaintext keypair file (the
// solana-keygen JSON byte array) takes precedence; otherwise an encrypted
// keypair file plus password.
type WalletConfig struct {
	KeypairPath      string
	EncryptedKeyPath string
	KeyPassword      string
}

// LoadWallet resolves the keypair from the configured source.
func LoadWallet(cfg WalletConfig) (*Wallet, error) {
	if cfg.KeypairPath != "" {
		key, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.KeypairPath)
		if err != nil {
			return nil, fmt.Errorf("solana: load keypair %s: %w", cfg.KeypairPath, err)
		}
		return &Wallet{key: key}, nil
	}

	if cfg.EncryptedKeyPath != "" {
		raw, err := crypto.DecryptKeypairFile(cfg.EncryptedKeyPath, cfg.KeyPassword)
		if err != nil {
			return nil, fmt.Errorf("solana: decrypt keypair: %w", err)
		}
		return &Wallet{key: solana.PrivateKey(raw)}, nil
	}

	return nil, errors.New("solana: no keypair source configured")
}

// PublicKey returns the wallet's address.
func (w *Wallet) PublicKey() solana.PublicKey {
	return w.key.PublicKey()
}

// SignTransaction signs tx in place with the wallet key.
func (w *Wallet) SignTransaction(tx *solana.Transaction) error {
	_, err := tx.Sign(func(pub solana.PublicKey) *solana.PrivateKey {
		if pub.Equals(w.key.PublicKey()) {
			return &w.key
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("solana: sign transaction: %v: %w", err, domain.ErrSigningFailed)
	}
	return nil
}
