package arweave

import (
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
)

var b64 = base64.RawURLEncoding

// jwk is the RSA JSON web key format Arweave wallets are stored in.
type jwk struct {
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
	D   string `json:"d"`
	P   string `json:"p"`
	Q   string `json:"q"`
	Dp  string `json:"dp"`
	Dq  string `json:"dq"`
	Qi  string `json:"qi"`
}

// Wallet signs transactions. Owner is the raw RSA modulus.
type Wallet struct {
	key   *rsa.PrivateKey
	owner []byte
}

func decodeInt(field, s string) (*big.Int, error) {
	raw, err := b64.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid jwk field %v: %w", field, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("missing jwk field %v", field)
	}
	return new(big.Int).SetBytes(raw), nil
}

// ParseWallet decodes an RSA JWK wallet file.
func ParseWallet(data []byte) (*Wallet, error) {
	var k jwk
	if err := json.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("wallet is not a JSON web key: %w", err)
	}
	if k.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported wallet key type %q", k.Kty)
	}

	fields := map[string]string{"n": k.N, "e": k.E, "d": k.D, "p": k.P, "q": k.Q}
	ints := map[string]*big.Int{}
	for name, value := range fields {
		v, err := decodeInt(name, value)
		if err != nil {
			return nil, err
		}
		ints[name] = v
	}
	if !ints["e"].IsInt64() {
		return nil, fmt.Errorf("jwk exponent too large")
	}

	key := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{N: ints["n"], E: int(ints["e"].Int64())},
		D:         ints["d"],
		Primes:    []*big.Int{ints["p"], ints["q"]},
	}
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("invalid wallet key: %w", err)
	}
	key.Precompute()

	return &Wallet{key: key, owner: key.N.Bytes()}, nil
}

// NewWallet wraps an RSA key. Arweave expects 4096 bit keys.
func NewWallet(key *rsa.PrivateKey) *Wallet {
	key.Precompute()
	return &Wallet{key: key, owner: key.N.Bytes()}
}

// MarshalJSON writes the wallet as a JWK.
func (w *Wallet) MarshalJSON() ([]byte, error) {
	enc := func(i *big.Int) string { return b64.EncodeToString(i.Bytes()) }
	return json.Marshal(jwk{
		Kty: "RSA",
		N:   enc(w.key.N),
		E:   enc(big.NewInt(int64(w.key.E))),
		D:   enc(w.key.D),
		P:   enc(w.key.Primes[0]),
		Q:   enc(w.key.Primes[1]),
		Dp:  enc(w.key.Precomputed.Dp),
		Dq:  enc(w.key.Precomputed.Dq),
		Qi:  enc(w.key.Precomputed.Qinv),
	})
}

// Address is the base64url sha256 of the owner modulus.
func (w *Wallet) Address() string {
	sum := sha256.Sum256(w.owner)
	return b64.EncodeToString(sum[:])
}

// Owner is the base64url owner field of transactions signed by w.
func (w *Wallet) Owner() string {
	return b64.EncodeToString(w.owner)
}
