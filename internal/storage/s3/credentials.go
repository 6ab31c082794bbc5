package s3

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	appconfig "github.com/policytracker/policy-tracker/internal/config"
)

// Supported values of storage.s3.auth_method.
const (
	AuthDefault    = "default"
	AuthStatic     = "static"
	AuthOIDC       = "oidc"
	AuthAssumeRole = "assume_role"
)

// authMethod infers static auth when keys are present and nothing is set.
func authMethod(cfg *appconfig.S3StorageConfig) string {
	if cfg.AuthMethod != "" {
		return cfg.AuthMethod
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		return AuthStatic
	}
	return AuthDefault
}

// loadAWSConfig resolves credentials for the configured auth method.
//
//   - default: the SDK credential chain (env, shared config, IMDS, pod identity)
//   - static: access_key_id / secret_access_key
//   - oidc: web identity token file exchanged for role_arn via STS
//   - assume_role: role_arn assumed from the default chain, optional external_id
func loadAWSConfig(ctx context.Context, cfg *appconfig.S3StorageConfig) (aws.Config, error) {
	method := authMethod(cfg)
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}

	switch method {
	case AuthStatic:
		if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
			return aws.Config{}, fmt.Errorf("access_key_id and secret_access_key are required for static auth")
		}
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	case AuthOIDC:
		if cfg.RoleARN == "" {
			return aws.Config{}, fmt.Errorf("role_arn is required for oidc auth")
		}
		if cfg.WebIdentityTokenFile == "" {
			return aws.Config{}, fmt.Errorf("web_identity_token_file is required for oidc auth")
		}
	case AuthAssumeRole:
		if cfg.RoleARN == "" {
			return aws.Config{}, fmt.Errorf("role_arn is required for assume_role auth")
		}
	case AuthDefault:
	default:
		return aws.Config{}, fmt.Errorf("unsupported auth_method %q (must be default, static, oidc or assume_role)", method)
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	switch method {
	case AuthOIDC:
		provider := stscreds.NewWebIdentityRoleProvider(
			sts.NewFromConfig(awsCfg),
			cfg.RoleARN,
			stscreds.IdentityTokenFile(cfg.WebIdentityTokenFile),
			func(o *stscreds.WebIdentityRoleOptions) {
				if cfg.RoleSessionName != "" {
					o.RoleSessionName = cfg.RoleSessionName
				}
			},
		)
		awsCfg.Credentials = aws.NewCredentialsCache(provider)
	case AuthAssumeRole:
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(awsCfg), cfg.RoleARN,
			func(o *stscreds.AssumeRoleOptions) {
				if cfg.RoleSessionName != "" {
					o.RoleSessionName = cfg.RoleSessionName
				}
				if cfg.ExternalID != "" {
					o.ExternalID = aws.String(cfg.ExternalID)
				}
			},
		)
		awsCfg.Credentials = aws.NewCredentialsCache(provider)
	}

	return awsCfg, nil
}
