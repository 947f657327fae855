package gcpauth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaumb/streamlit/pkg/connection"
	"github.com/schaumb/streamlit/pkg/errors"
)

func TestClientOptions(t *testing.T) {
	ctx := context.Background()

	opts, project, err := ClientOptions(ctx, connection.Params{"project_id": "analytics", "credentials_file": "key.json"})
	require.NoError(t, err)
	assert.Equal(t, "analytics", project)
	assert.Len(t, opts, 1)

	opts, project, err = ClientOptions(ctx, connection.Params{"endpoint": "http://localhost:9050", "without_authentication": true})
	require.NoError(t, err)
	assert.Empty(t, project)
	assert.Len(t, opts, 2)

	opts, _, err = ClientOptions(ctx, connection.Params{})
	require.NoError(t, err)
	assert.Empty(t, opts, "application default credentials")

	_, _, err = ClientOptions(ctx, connection.Params{"type": "not_a_credential_type"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), "got %v", err)
}

func TestServiceAccountInfo(t *testing.T) {
	params := connection.Params{
		"type":         "service_account",
		"project_id":   "analytics",
		"client_email": "svc@analytics.iam.gserviceaccount.com",
		"location":     "EU",
		"dry_run_ping": true,
	}
	assert.Equal(t, map[string]any{
		"type":         "service_account",
		"project_id":   "analytics",
		"client_email": "svc@analytics.iam.gserviceaccount.com",
	}, ServiceAccountInfo(params))

	nested := connection.Params{
		"project":     "billing",
		"credentials": map[string]any{"type": "service_account"},
	}
	assert.Equal(t, map[string]any{"type": "service_account"}, ServiceAccountInfo(nested))
}
