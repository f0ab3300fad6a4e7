package cmd

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/darmiel/entitled/pkg/client"
)

func getClient() (*client.Client, error) {
	// we need the user to provide some server address first
	server := viper.GetString(EntitledAddrKey)
	if server == "" {
		return nil, fmt.Errorf("server address not configured, provide via --server or env")
	}

	token := viper.GetString(AdminTokenKey)
	return client.New(server, client.WithAuthToken(token)), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
