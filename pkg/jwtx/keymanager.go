package jwtx

import (
	"fmt"
	"math/rand/v2"

	"github.com/aussiebroadwan/propulse/pkg/cryptox"
)

const (
	AlgorithmRS256 = "RS256"
	AlgorithmEdDSA = "EdDSA"
)

const (
	defaultNumKeys = 3
	maxNumKeys     = 10
	defaultRSABits = 3072
)

// KeyManager owns the signing keys of one issuer and the verifier for the
// access tokens it mints.
type KeyManager struct {
	KeySet   *KeySet
	Verifier Verifier

	algorithm string
	issuer    string
	signers   []Signer
}

type KeyManagerOptions struct {
	Algorithm string // RS256 or EdDSA
	Issuer    string
	RSABits   int // RS256 only, default 3072
	NumKeys   int // default 3, capped at 10
}

// NewEphemeralKeyManager generates in-memory keys. They are lost on restart,
// which invalidates every outstanding access and identity token.
func NewEphemeralKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("jwtx: Issuer is required")
	}
	if opts.Algorithm != AlgorithmEdDSA && opts.Algorithm != AlgorithmRS256 {
		return nil, fmt.Errorf("jwtx: unsupported algorithm %q (supported: RS256, EdDSA)", opts.Algorithm)
	}

	numKeys := opts.NumKeys
	if numKeys <= 0 {
		numKeys = defaultNumKeys
	}
	numKeys = min(numKeys, maxNumKeys)

	keyset := NewKeySet()
	signers := make([]Signer, 0, numKeys)
	for i := range numKeys {
		signer, err := generateSigner(opts.Algorithm, opts.RSABits)
		if err != nil {
			return nil, fmt.Errorf("jwtx: generate signer %d: %w", i+1, err)
		}
		if err := keyset.AddSigner(signer); err != nil {
			return nil, fmt.Errorf("jwtx: add signer %d: %w", i+1, err)
		}
		signers = append(signers, signer)
	}

	return &KeyManager{
		KeySet: keyset,
		Verifier: NewVerifier(keyset, VerifyOptions{
			Algorithm: opts.Algorithm,
			Issuer:    opts.Issuer,
			Type:      TypeAccessToken,
		}),
		algorithm: opts.Algorithm,
		issuer:    opts.Issuer,
		signers:   signers,
	}, nil
}

func generateSigner(algorithm string, rsaBits int) (Signer, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return nil, err
	}
	kid := "propulse-" + token

	switch algorithm {
	case AlgorithmRS256:
		if rsaBits == 0 {
			rsaBits = defaultRSABits
		}
		pemBytes, err := cryptox.GenerateRSAKey(rsaBits)
		if err != nil {
			return nil, err
		}
		return NewSignerRS256(kid, pemBytes)
	default:
		pemBytes, err := cryptox.GenerateEd25519Key()
		if err != nil {
			return nil, err
		}
		return NewSignerEdDSA(kid, pemBytes)
	}
}

func (km *KeyManager) Algorithm() string { return km.algorithm }
func (km *KeyManager) Issuer() string    { return km.issuer }
func (km *KeyManager) IsReady() bool     { return km.KeySet.IsReady() }
func (km *KeyManager) NumSigners() int   { return len(km.signers) }

// GetSigner picks one of the signing keys at random.
func (km *KeyManager) GetSigner() Signer {
	switch len(km.signers) {
	case 0:
		return nil
	case 1:
		return km.signers[0]
	default:
		return km.signers[rand.IntN(len(km.signers))]
	}
}

// IDTokenVerifier verifies identity tokens issued to clientID.
func (km *KeyManager) IDTokenVerifier(clientID string) Verifier {
	return NewVerifier(km.KeySet, VerifyOptions{
		Algorithm: km.algorithm,
		Issuer:    km.issuer,
		Audience:  []string{clientID},
		Type:      TypeIDToken,
	})
}
