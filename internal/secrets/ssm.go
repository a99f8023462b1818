// Package secrets resolves API token indirections. A token of the form
// "SSM:/path/to/param" is fetched (decrypted) from AWS Systems Manager
// Parameter Store; anything else is returned as-is.
package secrets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

const ssmPrefix = "SSM:"

// parameterGetter matches the one SSM call we make; swapped out in tests.
type parameterGetter interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, opts ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

var newGetter = func(ctx context.Context) (parameterGetter, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return ssm.NewFromConfig(cfg), nil
}

// ResolveToken returns the literal token, or the decrypted SSM parameter
// value when the token carries the SSM: prefix.
func ResolveToken(token string) (string, error) {
	if !strings.HasPrefix(token, ssmPrefix) {
		return token, nil
	}
	name := strings.TrimPrefix(token, ssmPrefix)
	if name == "" {
		return "", fmt.Errorf("empty SSM parameter name in token")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := newGetter(ctx)
	if err != nil {
		return "", fmt.Errorf("loading AWS config: %w", err)
	}
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("fetching SSM parameter %s: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("SSM parameter %s has no value", name)
	}
	return *out.Parameter.Value, nil
}
