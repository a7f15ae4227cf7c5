package main

import (
	"strings"
	"testing"

	"dokkan/backend/internal/config"
)

func TestValidateSecurityConfig(t *testing.T) {
	strongSecret := strings.Repeat("s3cr3t--", 4)

	cases := []struct {
		name    string
		secret  string
		pin     string
		wantErr bool
	}{
		{"strong values", strongSecret, "739154", false},
		{"short secret", "short", "739154", true},
		{"missing pin", strongSecret, "", true},
		{"short pin", strongSecret, "4217", true},
		{"ascending pin", strongSecret, "123456", true},
		{"descending pin", strongSecret, "987654", true},
		{"repeated pin", strongSecret, "777777", true},
		{"popular pin", strongSecret, "112233", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateSecurityConfig(config.Config{AuthSecret: tc.secret, ManagerPIN: tc.pin})
			if tc.wantErr && err == nil {
				t.Fatal("expected config to be rejected")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("expected config to pass, got %v", err)
			}
		})
	}
}
