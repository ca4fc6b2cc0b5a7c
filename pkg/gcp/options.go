// Package gcp holds what the Pub/Sub and BigQuery clients share.
package gcp

import (
	"strings"

	"google.golang.org/api/option"

	"github.com/angelmondragon/freshcart-backend/pkg/config"
)

// ClientOptions picks inline credentials over a credentials file. With
// neither set the libraries fall back to application default credentials,
// which is what runs on GKE and Cloud Run.
func ClientOptions(cfg config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(cfg.CredentialsJSON))}
	case strings.TrimSpace(cfg.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(cfg.ApplicationCredentials)}
	}
	return nil
}
