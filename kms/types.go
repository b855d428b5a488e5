package kms

import (
	"context"

	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
)

// Provider represents a KMS provider
type Provider interface {
	// GetWrapper returns the underlying KMS wrapper
	GetWrapper() wrapping.Wrapper

	// Test performs a test encryption/decryption
	Test(ctx context.Context) error

	// HealthCheck performs a comprehensive health check
	HealthCheck(ctx context.Context) error

	// GetLastHealthCheckError returns the last health check error
	GetLastHealthCheckError() error
}

// Credential keys recognized in SealerConfig.Credentials, per provider
const (
	CredAccessKeyID     = "accessKeyId"     // aws
	CredSecretAccessKey = "secretAccessKey" // aws
	CredSessionToken    = "sessionToken"    // aws
	CredTenantID        = "tenantId"        // azure
	CredClientID        = "clientId"        // azure
	CredClientSecret    = "clientSecret"    // azure
	CredCredentialsJSON = "credentialsJson" // gcp
	CredToken           = "token"           // vault
)

// AeadKeySize is the AES-256-GCM key length
const AeadKeySize = 32
