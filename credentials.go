package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

const DEFAULT_S3_REGION = "us-east-1"

// CredentialResolver turns one of the supported credential inputs into SDK load options.
// It is chosen once at startup by selectCredentialResolver.
type CredentialResolver interface {
	LoadOptions() []func(*awsconfig.LoadOptions) error
	String() string
}

type StaticKeys struct {
	AccessKey string
	SecretKey string
}

func (c StaticKeys) LoadOptions() []func(*awsconfig.LoadOptions) error {
	return []func(*awsconfig.LoadOptions) error{
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")),
	}
}

func (c StaticKeys) String() string {
	return "static keys"
}

type StaticKeysWithToken struct {
	AccessKey    string
	SecretKey    string
	SessionToken string
}

func (c StaticKeysWithToken) LoadOptions() []func(*awsconfig.LoadOptions) error {
	return []func(*awsconfig.LoadOptions) error{
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, c.SessionToken)),
	}
}

func (c StaticKeysWithToken) String() string {
	return "static keys with session token"
}

type Profile struct {
	Name string
}

func (c Profile) LoadOptions() []func(*awsconfig.LoadOptions) error {
	return []func(*awsconfig.LoadOptions) error{
		awsconfig.WithSharedConfigProfile(c.Name),
	}
}

func (c Profile) String() string {
	return fmt.Sprintf("profile %s", c.Name)
}

// Ambient defers to the SDK's default chain (environment, shared config, instance role)
type Ambient struct{}

func (c Ambient) LoadOptions() []func(*awsconfig.LoadOptions) error {
	return nil
}

func (c Ambient) String() string {
	return "default credential chain"
}

// selectCredentialResolver applies the precedence session-token keys, static keys,
// named profile, ambient chain
func selectCredentialResolver(accessKey string, secretKey string, sessionToken string, profile string) CredentialResolver {
	haveKeys := accessKey != "" && secretKey != ""
	switch {
	case haveKeys && sessionToken != "":
		return StaticKeysWithToken{AccessKey: accessKey, SecretKey: secretKey, SessionToken: sessionToken}
	case haveKeys:
		return StaticKeys{AccessKey: accessKey, SecretKey: secretKey}
	case profile != "":
		return Profile{Name: profile}
	default:
		return Ambient{}
	}
}

func loadAWSConfig(ctx context.Context, region string, endpoint string, resolver CredentialResolver) (aws.Config, error) {
	if region == "" && endpoint != "" {
		region = DEFAULT_S3_REGION
	}
	opts := resolver.LoadOptions()
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awscfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("error loading AWS configuration using %s: %w", resolver, err)
	}
	return awscfg, nil
}
