package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGetter struct {
	params map[string]string
	err    error

	requested      string
	withDecryption bool
}

func (f *fakeGetter) GetParameter(ctx context.Context, in *ssm.GetParameterInput, opts ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.requested = aws.ToString(in.Name)
	f.withDecryption = aws.ToBool(in.WithDecryption)
	value, ok := f.params[f.requested]
	if !ok {
		return nil, errors.New("ParameterNotFound")
	}
	return &ssm.GetParameterOutput{
		Parameter: &types.Parameter{Value: aws.String(value)},
	}, nil
}

func withFakeGetter(t *testing.T, f *fakeGetter) {
	t.Helper()
	orig := newGetter
	newGetter = func(ctx context.Context) (parameterGetter, error) { return f, nil }
	t.Cleanup(func() { newGetter = orig })
}

func TestResolveTokenLiteralPassesThrough(t *testing.T) {
	tok, err := ResolveToken("glpat-abc123")
	require.NoError(t, err)
	assert.Equal(t, "glpat-abc123", tok)
}

func TestResolveTokenFetchesSSMParameter(t *testing.T) {
	f := &fakeGetter{params: map[string]string{"/glautomata/gitlab-token": "secret-value"}}
	withFakeGetter(t, f)

	tok, err := ResolveToken("SSM:/glautomata/gitlab-token")
	require.NoError(t, err)
	assert.Equal(t, "secret-value", tok)
	assert.Equal(t, "/glautomata/gitlab-token", f.requested)
	assert.True(t, f.withDecryption)
}

func TestResolveTokenMissingParameterFails(t *testing.T) {
	withFakeGetter(t, &fakeGetter{params: map[string]string{}})

	_, err := ResolveToken("SSM:/glautomata/missing")
	assert.Error(t, err)
}

func TestResolveTokenEmptyParameterNameFails(t *testing.T) {
	_, err := ResolveToken("SSM:")
	assert.Error(t, err)
}

func TestResolveTokenEmptyTokenStaysEmpty(t *testing.T) {
	tok, err := ResolveToken("")
	require.NoError(t, err)
	assert.Equal(t, "", tok)
}
