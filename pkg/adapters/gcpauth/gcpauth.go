// Package gcpauth turns Google Cloud service account fields from secrets into
// client options.
package gcpauth

import (
	"context"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"github.com/schaumb/streamlit/pkg/connection"
	"github.com/schaumb/streamlit/pkg/errors"
)

// Adapter options, never forwarded as credential fields.
var adapterOptions = map[string]bool{
	"project":                true,
	"location":               true,
	"endpoint":               true,
	"bucket":                 true,
	"prefix":                 true,
	"dry_run_ping":           true,
	"credentials_file":       true,
	"without_authentication": true,
}

// ClientOptions derives client options and the project id from params. The
// credentials come from, in order: without_authentication, credentials_file,
// the service account fields, or the application default credentials.
func ClientOptions(ctx context.Context, params connection.Params, scopes ...string) ([]option.ClientOption, string, error) {
	project := params.StringOr("project", params.String("project_id"))

	var opts []option.ClientOption
	if endpoint := params.String("endpoint"); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}

	switch {
	case params.Bool("without_authentication", false):
		opts = append(opts, option.WithoutAuthentication())
	case params.String("credentials_file") != "":
		opts = append(opts, option.WithCredentialsFile(params.String("credentials_file")))
	case params.Has("type") || params.Has("credentials"):
		key, err := json.Marshal(ServiceAccountInfo(params))
		if err != nil {
			return nil, "", errors.Wrap(err, errors.ErrorTypeConfig, "invalid service account fields")
		}
		creds, err := google.CredentialsFromJSON(ctx, key, scopes...)
		if err != nil {
			return nil, "", errors.Wrap(err, errors.ErrorTypeConfig, "invalid service account credentials")
		}
		opts = append(opts, option.WithCredentials(creds))
		if project == "" {
			project = creds.ProjectID
		}
	}
	return opts, project, nil
}

// ServiceAccountInfo returns the service account key fields: the nested
// credentials table if present, otherwise every parameter that is not an
// adapter option.
func ServiceAccountInfo(params connection.Params) map[string]any {
	if nested := params.Map("credentials"); nested != nil {
		return nested
	}
	info := make(map[string]any, len(params))
	for k, v := range params {
		if !adapterOptions[k] {
			info[k] = v
		}
	}
	return info
}
