package gcp

import (
	"testing"

	"github.com/angelmondragon/freshcart-backend/pkg/config"
)

func TestClientOptions(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.GCPConfig
		want int
	}{
		{"inline wins", config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/secrets/sa.json"}, 1},
		{"file", config.GCPConfig{ApplicationCredentials: "/secrets/sa.json"}, 1},
		{"blank inline ignored", config.GCPConfig{CredentialsJSON: "  "}, 0},
		{"default credentials", config.GCPConfig{}, 0},
	}
	for _, tc := range cases {
		if got := len(ClientOptions(tc.cfg)); got != tc.want {
			t.Fatalf("%s: expected %d options, got %d", tc.name, tc.want, got)
		}
	}
}
