package credential

import (
	"encoding/json"
	"fmt"
)

// serviceAccountFile mirrors the fields we use from a Google service-account JSON key.
type serviceAccountFile struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// LoadServiceAccountJSON reads a service-account JSON key. Audience and scope
// are not part of the key file and are taken from the caller.
func LoadServiceAccountJSON(data []byte, audience, scope string) (ServiceAccount, error) {
	var f serviceAccountFile
	if err := json.Unmarshal(data, &f); err != nil {
		return ServiceAccount{}, fmt.Errorf("%w: malformed service account json: %w", ErrInvalidConfig, err)
	}
	if f.Type != "" && f.Type != "service_account" {
		return ServiceAccount{}, fmt.Errorf("%w: unexpected credential type %q", ErrInvalidConfig, f.Type)
	}

	sa := ServiceAccount{
		IssuerEmail:   f.ClientEmail,
		PrivateKeyPEM: f.PrivateKey,
		Audience:      audience,
		Scope:         scope,
		ProjectID:     f.ProjectID,
	}
	if err := sa.validate(); err != nil {
		return ServiceAccount{}, err
	}
	return sa, nil
}
