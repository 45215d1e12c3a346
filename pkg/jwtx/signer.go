package jwtx

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// JOSE "typ" header values. Access tokens follow RFC 9068 so that an
// identity token can never be replayed as a bearer token.
const (
	TypeAccessToken = "at+jwt"
	TypeIDToken     = "JWT"
)

// Signer signs claims under a single key.
type Signer interface {
	Alg() string
	KID() string
	Sign(claims Claims, typ string) (string, error)
	PublicJWK() JWK
}

type keySigner struct {
	kid    string
	method jwt.SigningMethod
	key    crypto.Signer
	jwk    JWK
}

// NewSignerEdDSA loads a PKCS8 Ed25519 private key.
func NewSignerEdDSA(kid string, pemKey []byte) (Signer, error) {
	priv, err := parsePrivateKey(pemKey)
	if err != nil {
		return nil, err
	}
	key, ok := priv.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("jwtx: not an Ed25519 private key")
	}
	alg := jwt.SigningMethodEdDSA.Alg()
	return &keySigner{
		kid:    kid,
		method: jwt.SigningMethodEdDSA,
		key:    key,
		jwk:    NewEd25519JWK(kid, "sig", alg, key.Public().(ed25519.PublicKey)),
	}, nil
}

// NewSignerRS256 loads an RSA private key in PKCS1 or PKCS8 form.
func NewSignerRS256(kid string, pemKey []byte) (Signer, error) {
	priv, err := parsePrivateKey(pemKey)
	if err != nil {
		return nil, err
	}
	key, ok := priv.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("jwtx: not an RSA private key")
	}
	alg := jwt.SigningMethodRS256.Alg()
	return &keySigner{
		kid:    kid,
		method: jwt.SigningMethodRS256,
		key:    key,
		jwk:    NewRSAJWK(kid, "sig", alg, &key.PublicKey),
	}, nil
}

func parsePrivateKey(pemKey []byte) (any, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("jwtx: invalid PEM private key")
	}
	switch block.Type {
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jwtx: parse PKCS8: %w", err)
		}
		return key, nil
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jwtx: parse PKCS1: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("jwtx: unsupported PEM type %q", block.Type)
	}
}

func (s *keySigner) Alg() string    { return s.method.Alg() }
func (s *keySigner) KID() string    { return s.kid }
func (s *keySigner) PublicJWK() JWK { return s.jwk }

func (s *keySigner) Sign(claims Claims, typ string) (string, error) {
	t := jwt.NewWithClaims(s.method, claims)
	t.Header["kid"] = s.kid
	if typ != "" {
		t.Header["typ"] = typ
	}
	return t.SignedString(s.key)
}
