// Package auth signs the WebSocket handshake with RSA-PSS.
package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Handshake header names.
const (
	HeaderKey       = "X-UMSG-KEY"
	HeaderTimestamp = "X-UMSG-TIMESTAMP"
	HeaderSignature = "X-UMSG-SIGNATURE"
)

// handshakeMethod is the HTTP method of a WebSocket upgrade.
const handshakeMethod = http.MethodGet

var (
	ErrMissingKeyID   = errors.New("key id is required")
	ErrMissingKeyPath = errors.New("private key path is required")
	ErrBadSignature   = errors.New("signature does not verify")
)

// Credentials holds the key id and private key for signing handshakes.
type Credentials struct {
	KeyID      string
	PrivateKey *rsa.PrivateKey

	now func() time.Time
}

// LoadCredentials loads credentials from a key id and a PEM file.
func LoadCredentials(keyID, privateKeyPath string) (*Credentials, error) {
	if keyID == "" {
		return nil, ErrMissingKeyID
	}
	if privateKeyPath == "" {
		return nil, ErrMissingKeyPath
	}

	privateKey, err := LoadPrivateKey(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}

	return &Credentials{
		KeyID:      keyID,
		PrivateKey: privateKey,
	}, nil
}

// LoadPrivateKey loads an RSA private key from a PEM file, PKCS#8 or PKCS#1.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return ParsePrivateKey(data)
}

// ParsePrivateKey decodes a PEM encoded RSA private key.
func ParsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("key is not an RSA private key")
		}
		return rsaKey, nil
	}

	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return rsaKey, nil
}

// SignHandshake returns the headers authenticating an upgrade request to
// serverURL. Only the URL path is signed.
func (c *Credentials) SignHandshake(serverURL string) (http.Header, error) {
	path, err := signedPath(serverURL)
	if err != nil {
		return nil, err
	}

	ts := c.clock().UnixMilli()
	signature, err := c.sign(ts, path)
	if err != nil {
		return nil, err
	}

	h := http.Header{}
	h.Set(HeaderKey, c.KeyID)
	h.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	h.Set(HeaderSignature, signature)
	return h, nil
}

// HeaderFunc returns a builder that signs a fresh header set per dial, so
// every reconnect carries a current timestamp.
func (c *Credentials) HeaderFunc(serverURL string) func() (http.Header, error) {
	return func() (http.Header, error) {
		return c.SignHandshake(serverURL)
	}
}

// Verify checks headers produced by SignHandshake against the public key.
// maxSkew of zero disables the timestamp window.
func Verify(pub *rsa.PublicKey, h http.Header, path string, now time.Time, maxSkew time.Duration) error {
	ts, err := strconv.ParseInt(h.Get(HeaderTimestamp), 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", HeaderTimestamp, err)
	}
	if maxSkew > 0 {
		skew := now.Sub(time.UnixMilli(ts))
		if skew < 0 {
			skew = -skew
		}
		if skew > maxSkew {
			return fmt.Errorf("%w: timestamp skew %v", ErrBadSignature, skew)
		}
	}

	sig, err := base64.StdEncoding.DecodeString(h.Get(HeaderSignature))
	if err != nil {
		return fmt.Errorf("decode %s: %w", HeaderSignature, err)
	}

	hashed := sha256.Sum256([]byte(message(ts, path)))
	opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}
	if err := rsa.VerifyPSS(pub, crypto.SHA256, hashed[:], sig, opts); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return nil
}

// sign creates a base64 RSA-PSS signature over timestamp_ms + method + path.
func (c *Credentials) sign(timestampMs int64, path string) (string, error) {
	hashed := sha256.Sum256([]byte(message(timestampMs, path)))

	signature, err := rsa.SignPSS(
		rand.Reader,
		c.PrivateKey,
		crypto.SHA256,
		hashed[:],
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash},
	)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}

	return base64.StdEncoding.EncodeToString(signature), nil
}

func (c *Credentials) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

func message(timestampMs int64, path string) string {
	return strconv.FormatInt(timestampMs, 10) + handshakeMethod + path
}

func signedPath(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	if u.Path == "" {
		return "/", nil
	}
	return u.Path, nil
}
