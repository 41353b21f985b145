package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
)

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (secretManagerClient, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// SecretManager reads the key from Google Secret Manager. Name is a full
// version resource name, e.g. projects/p/secrets/gemini-key/versions/latest.
// A name without "/versions/" gets "/versions/latest" appended.
type SecretManager struct {
	Name    string
	Options []option.ClientOption
}

// Key fetches the secret payload.
func (s SecretManager) Key(ctx context.Context) (string, error) {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return "", errors.New("secret manager: secret name is required")
	}
	if !strings.Contains(name, "/versions/") {
		name += "/versions/latest"
	}

	client, err := secretManagerClientFactory(ctx, s.Options...)
	if err != nil {
		return "", fmt.Errorf("secret manager: create client: %w", err)
	}
	defer func() { _ = client.Close() }()

	resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("secret manager: access %s: %w", name, err)
	}
	if resp == nil || resp.Payload == nil {
		return "", fmt.Errorf("secret manager returned empty payload for %s", name)
	}

	key := strings.TrimSpace(string(resp.Payload.GetData()))
	if key == "" {
		return "", fmt.Errorf("secret manager: %s is empty", name)
	}
	return key, nil
}
