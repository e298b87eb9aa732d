package app

import (
	"fmt"

	"github.com/aussiebroadwan/pulse/pkg/jwtx"
)

// InitTokenKeys builds the HS256 signer and verifier from the shared secret.
// Every instance sharing the secret accepts the others' tokens, and the
// revocation watermark lives in the store, so any number of instances can
// run side by side.
func InitTokenKeys(cfg AuthConfig) (*jwtx.HS256Signer, *jwtx.HS256Verifier, error) {
	secret := []byte(cfg.Secret)

	signer, err := jwtx.NewSignerHS256(secret)
	if err != nil {
		return nil, nil, fmt.Errorf("token signer: %w", err)
	}

	verifier, err := jwtx.NewVerifierHS256(secret, jwtx.VerifyOptions{
		Issuer: cfg.Issuer,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("token verifier: %w", err)
	}

	return signer, verifier, nil
}
