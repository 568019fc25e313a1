package chain

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcutil"
	"github.com/btcsuite/btcutil/base58"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/Problemsolver0070/rahu-escrow-bot/internal/models"
)

// Address version bytes
const (
	btcP2PKHVersion byte = 0x00
	btcWIFVersion   byte = 0x80
	ltcP2PKHVersion byte = 0x30
	ltcWIFVersion   byte = 0xB0
	tronVersion     byte = 0x41
)

// Wallet is a freshly derived escrow keypair. The private key material
// is network-convention encoded (WIF for UTXO chains, hex for the
// rest) and must never leave the deal record.
type Wallet struct {
	Address    string
	PrivateKey string
}

// Generate derives a new escrow wallet for the given network from a
// cryptographically random secp256k1 scalar. Any failure is returned
// as-is; there is deliberately no deterministic fallback, since a
// predictable escrow address would silently forfeit custody.
func Generate(network string) (*Wallet, error) {
	priv, err := gethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	privBytes := gethcrypto.FromECDSA(priv)

	switch network {
	case models.NetworkBTC:
		return utxoWallet(privBytes, btcP2PKHVersion, btcWIFVersion)
	case models.NetworkLTC:
		return utxoWallet(privBytes, ltcP2PKHVersion, ltcWIFVersion)
	case models.NetworkETH, models.NetworkUSDTBEP20:
		addr := gethcrypto.PubkeyToAddress(priv.PublicKey)
		return &Wallet{
			Address:    addr.Hex(),
			PrivateKey: "0x" + hex.EncodeToString(privBytes),
		}, nil
	case models.NetworkUSDTTRC20:
		return tronWallet(privBytes)
	default:
		return nil, fmt.Errorf("unsupported network: %s", network)
	}
}

func utxoWallet(privBytes []byte, addrVersion, wifVersion byte) (*Wallet, error) {
	key, err := gethcrypto.ToECDSA(privBytes)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	compressed := gethcrypto.CompressPubkey(&key.PublicKey)

	// hash160 of the compressed public key, base58check with the
	// network's P2PKH version byte
	address := base58.CheckEncode(btcutil.Hash160(compressed), addrVersion)

	// WIF with the compressed-key suffix byte
	wif := base58.CheckEncode(append(append([]byte{}, privBytes...), 0x01), wifVersion)

	return &Wallet{Address: address, PrivateKey: wif}, nil
}

func tronWallet(privBytes []byte) (*Wallet, error) {
	key, err := gethcrypto.ToECDSA(privBytes)
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}

	// Keccak over the uncompressed public key minus the 0x04 prefix,
	// last 20 bytes, then base58check with the Tron 0x41 version.
	pub := gethcrypto.FromECDSAPub(&key.PublicKey)
	hash := gethcrypto.Keccak256(pub[1:])
	address := base58.CheckEncode(hash[12:], tronVersion)

	return &Wallet{Address: address, PrivateKey: hex.EncodeToString(privBytes)}, nil
}
