// Package paramstore reads bot secrets from AWS SSM Parameter Store.
package paramstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// ErrParameterNotFound is returned when SSM has no parameter by that name.
var ErrParameterNotFound = errors.New("paramstore: parameter not found")

type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Parameter is a decrypted parameter value and the metadata the bot logs.
type Parameter struct {
	Name    string
	Value   string
	Version int64
	// Secure is false for plain String parameters, which SSM keeps unencrypted.
	Secure bool
}

type Fetcher interface {
	Fetch(ctx context.Context, name string) (Parameter, error)
}

type Client struct {
	api ssmAPI
}

func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

// Fetch reads name with decryption enabled.
func (c *Client) Fetch(ctx context.Context, name string) (Parameter, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Parameter{}, errors.New("paramstore: parameter name is empty")
	}
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	var notFound *types.ParameterNotFound
	switch {
	case errors.As(err, &notFound):
		return Parameter{}, fmt.Errorf("%w: %s", ErrParameterNotFound, name)
	case err != nil:
		return Parameter{}, fmt.Errorf("paramstore: fetch %s: %w", name, err)
	case out == nil || out.Parameter == nil || out.Parameter.Value == nil:
		return Parameter{}, fmt.Errorf("paramstore: %s has no value", name)
	}
	p := out.Parameter
	return Parameter{
		Name:    aws.ToString(p.Name),
		Value:   aws.ToString(p.Value),
		Version: p.Version,
		Secure:  p.Type == types.ParameterTypeSecureString,
	}, nil
}
