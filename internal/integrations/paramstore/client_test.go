package paramstore

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
)

const tokenParam = "/layoutbot/telegram-token"

type fakeAPI struct {
	getOut *ssm.GetParameterOutput
	getErr error
	lastIn *ssm.GetParameterInput
}

func (f *fakeAPI) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.lastIn = in
	return f.getOut, f.getErr
}

func strPtr(s string) *string { return &s }

func paramOut(v string, typ types.ParameterType) *ssm.GetParameterOutput {
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{
		Name: strPtr(tokenParam), Value: strPtr(v), Type: typ, Version: 3,
	}}
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	c, err := New(api)
	require.NoError(t, err)
	return c
}

func TestFetch_DecryptsAndReportsMetadata(t *testing.T) {
	api := &fakeAPI{getOut: paramOut("123:ABC", types.ParameterTypeSecureString)}
	p, err := newTestClient(t, api).Fetch(context.Background(), " "+tokenParam+" ")
	require.NoError(t, err)
	require.Equal(t, Parameter{Name: tokenParam, Value: "123:ABC", Version: 3, Secure: true}, p)
	require.Equal(t, tokenParam, *api.lastIn.Name)
	require.True(t, *api.lastIn.WithDecryption)
}

func TestFetch_PlainStringIsNotSecure(t *testing.T) {
	api := &fakeAPI{getOut: paramOut("123:ABC", types.ParameterTypeString)}
	p, err := newTestClient(t, api).Fetch(context.Background(), tokenParam)
	require.NoError(t, err)
	require.False(t, p.Secure)
}

func TestFetch_NotFound(t *testing.T) {
	api := &fakeAPI{getErr: &types.ParameterNotFound{Message: strPtr("no such parameter")}}
	_, err := newTestClient(t, api).Fetch(context.Background(), tokenParam)
	require.ErrorIs(t, err, ErrParameterNotFound)
	require.ErrorContains(t, err, tokenParam)
}

func TestFetch_Errors(t *testing.T) {
	cases := []struct {
		name    string
		api     *fakeAPI
		param   string
		wantErr string
	}{
		{"api error", &fakeAPI{getErr: errors.New("AccessDeniedException")}, "p", "AccessDeniedException"},
		{"missing value", &fakeAPI{getOut: &ssm.GetParameterOutput{Parameter: &types.Parameter{Name: strPtr("p")}}}, "p", "has no value"},
		{"nil output", &fakeAPI{}, "p", "has no value"},
		{"empty name", &fakeAPI{}, "  ", "name is empty"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newTestClient(t, tc.api).Fetch(context.Background(), tc.param)
			require.ErrorContains(t, err, tc.wantErr)
			require.NotErrorIs(t, err, ErrParameterNotFound)
		})
	}
}

func TestNew_NilAPI(t *testing.T) {
	_, err := New(nil)
	require.ErrorContains(t, err, "must not be nil")
}

func TestBotToken_PlainAndJSON(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "123:ABC", "123:ABC"},
		{"plain with newline", "123:ABC\n", "123:ABC"},
		{"json", `{"token":"456:DEF"}`, "456:DEF"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, &fakeAPI{getOut: paramOut(tc.raw, types.ParameterTypeSecureString)})
			bt, err := NewBotToken(client, tokenParam, nil)
			require.NoError(t, err)
			got, err := bt.Token(context.Background())
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestBotToken_WarnsOnPlainString(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	client := newTestClient(t, &fakeAPI{getOut: paramOut("123:ABC", types.ParameterTypeString)})
	bt, err := NewBotToken(client, tokenParam, log)
	require.NoError(t, err)

	got, err := bt.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "123:ABC", got)
	require.Contains(t, buf.String(), "not a SecureString")
	require.NotContains(t, buf.String(), "123:ABC")
}

func TestBotToken_Invalid(t *testing.T) {
	for _, raw := range []string{`{"token":""}`, `{"token":`, "   "} {
		client := newTestClient(t, &fakeAPI{getOut: paramOut(raw, types.ParameterTypeSecureString)})
		bt, err := NewBotToken(client, "p", nil)
		require.NoError(t, err)
		_, err = bt.Token(context.Background())
		require.Error(t, err, "raw=%q", raw)
	}
}

func TestBotToken_MissingParameter(t *testing.T) {
	client := newTestClient(t, &fakeAPI{getErr: &types.ParameterNotFound{}})
	bt, err := NewBotToken(client, tokenParam, nil)
	require.NoError(t, err)
	_, err = bt.Token(context.Background())
	require.ErrorIs(t, err, ErrParameterNotFound)
}

func TestNewBotToken_Validates(t *testing.T) {
	_, err := NewBotToken(nil, "p", nil)
	require.Error(t, err)
	_, err = NewBotToken(&Client{api: &fakeAPI{}}, " ", nil)
	require.Error(t, err)
}
