package config

import (
	"context"
	"fmt"

	"github.com/viant/scy/cred/secret"
)

// resolveSecret resolves an MCPGATE_AUTH_SECRET resource reference (the
// same kind of secret.Resource URL the stdio transport accepts for SSH
// credentials, via secret.New().GetCredentials) into a bearer token,
// generalizing that pattern to HTTP auth for a transport that never
// shells out. The exact Basic/Generic field names on the resolved
// credential are not exercised anywhere in the stdio transport, so both
// common shapes are tried before giving up.
func resolveSecret(resource string) (string, error) {
	secrets := secret.New()
	cred, err := secrets.GetCredentials(context.Background(), resource)
	if err != nil {
		return "", fmt.Errorf("failed to resolve auth secret: %w", err)
	}
	switch {
	case cred.Basic != nil && cred.Basic.Password != "":
		return cred.Basic.Password, nil
	case cred.Generic != nil && cred.Generic.Password != "":
		return cred.Generic.Password, nil
	}
	return "", fmt.Errorf("auth secret %s did not resolve to a usable token", resource)
}
