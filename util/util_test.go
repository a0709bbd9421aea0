package util

import (
	"strings"
	"testing"
)

func TestDomainFromLink(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{
			name:     "plain URL",
			input:    "https://alice.example/post/1",
			expected: "alice.example",
		},
		{
			name:     "URL with port",
			input:    "http://alice.example:8080/post/1",
			expected: "alice.example",
		},
		{
			name:     "home page",
			input:    "https://alice.example/",
			expected: "alice.example",
		},
		{
			name:    "no host",
			input:   "/just/a/path",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DomainFromLink(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error for %s, got domain '%s'", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("DomainFromLink(%s) failed: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("Expected '%s', got '%s'", tt.expected, got)
			}
		})
	}
}

func TestFragment(t *testing.T) {
	if got := Fragment("https://alice.example/post#comment-3"); got != "comment-3" {
		t.Errorf("Expected fragment 'comment-3', got '%s'", got)
	}
	if got := Fragment("https://alice.example/post"); got != "" {
		t.Errorf("Expected empty fragment, got '%s'", got)
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		base     string
		ref      string
		expected string
	}{
		{"https://remote.example/users/bob", "/inbox", "https://remote.example/inbox"},
		{"https://remote.example/users/bob", "https://other.example/inbox", "https://other.example/inbox"},
		{"https://remote.example/users/bob/", "inbox", "https://remote.example/users/bob/inbox"},
	}

	for _, tt := range tests {
		if got := ResolveURL(tt.base, tt.ref); got != tt.expected {
			t.Errorf("ResolveURL(%s, %s) = '%s', expected '%s'", tt.base, tt.ref, got, tt.expected)
		}
	}
}

func TestGeneratePemKeypair(t *testing.T) {
	keypair := GeneratePemKeypair()

	if !strings.Contains(keypair.Private, "RSA PRIVATE KEY") {
		t.Error("Private key missing PEM header")
	}
	if !strings.Contains(keypair.Public, "RSA PUBLIC KEY") {
		t.Error("Public key missing PEM header")
	}
}
