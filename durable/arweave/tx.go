package arweave

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"

	"github.com/spacecats-dao/spacecats-sync/durable"
)

type tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// transaction is a format 1 transaction as posted to /tx. Binary fields are
// base64url encoded; amounts are decimal winston strings.
type transaction struct {
	Format    int    `json:"format"`
	ID        string `json:"id"`
	LastTx    string `json:"last_tx"`
	Owner     string `json:"owner"`
	Tags      []tag  `json:"tags"`
	Target    string `json:"target"`
	Quantity  string `json:"quantity"`
	Data      string `json:"data"`
	DataSize  string `json:"data_size"`
	DataRoot  string `json:"data_root"`
	Reward    string `json:"reward"`
	Signature string `json:"signature"`
}

func newTransaction(w *Wallet, anchor, reward string, payload []byte, tags []durable.Tag) *transaction {
	tx := &transaction{
		Format:   1,
		LastTx:   anchor,
		Owner:    w.Owner(),
		Target:   "",
		Quantity: "0",
		Data:     b64.EncodeToString(payload),
		DataSize: fmt.Sprint(len(payload)),
		Reward:   reward,
	}
	for _, t := range tags {
		tx.Tags = append(tx.Tags, tag{
			Name:  b64.EncodeToString([]byte(t.Name)),
			Value: b64.EncodeToString([]byte(t.Value)),
		})
	}
	return tx
}

// signatureData is the format 1 message: owner, target, data, quantity,
// reward, last_tx, then each tag's name and value.
func (tx *transaction) signatureData() ([]byte, error) {
	var buf []byte
	for _, field := range []string{tx.Owner, tx.Target, tx.Data} {
		raw, err := b64.DecodeString(field)
		if err != nil {
			return nil, fmt.Errorf("invalid transaction field: %w", err)
		}
		buf = append(buf, raw...)
	}
	buf = append(buf, tx.Quantity...)
	buf = append(buf, tx.Reward...)

	anchor, err := b64.DecodeString(tx.LastTx)
	if err != nil {
		return nil, fmt.Errorf("invalid anchor: %w", err)
	}
	buf = append(buf, anchor...)

	for _, t := range tx.Tags {
		for _, field := range []string{t.Name, t.Value} {
			raw, err := b64.DecodeString(field)
			if err != nil {
				return nil, fmt.Errorf("invalid tag: %w", err)
			}
			buf = append(buf, raw...)
		}
	}
	return buf, nil
}

// sign fills Signature and ID. The id is the sha256 of the signature.
func (tx *transaction) sign(w *Wallet) error {
	data, err := tx.signatureData()
	if err != nil {
		return err
	}
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPSS(rand.Reader, w.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: 32,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}
	id := sha256.Sum256(sig)
	tx.Signature = b64.EncodeToString(sig)
	tx.ID = b64.EncodeToString(id[:])
	return nil
}

// verify checks the signature and id against w's public key.
func (tx *transaction) verify(w *Wallet) error {
	data, err := tx.signatureData()
	if err != nil {
		return err
	}
	sig, err := b64.DecodeString(tx.Signature)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	digest := sha256.Sum256(data)
	if err := rsa.VerifyPSS(&w.key.PublicKey, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{SaltLength: 32, Hash: crypto.SHA256}); err != nil {
		return err
	}
	id := sha256.Sum256(sig)
	if b64.EncodeToString(id[:]) != tx.ID {
		return fmt.Errorf("transaction id does not match signature")
	}
	return nil
}
