package security

import (
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProperty_SealedValuesOnlyOpenWithTheirPassphrase(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	right := NewSealer("correct horse")
	wrong := NewSealer("battery staple")

	properties.Property("sealed text hides the plaintext and opens only with the same passphrase", prop.ForAll(
		func(plain string) bool {
			sealed, err := right.Seal(plain)
			if err != nil || !IsSealed(sealed) {
				return false
			}
			if len(plain) >= 4 && strings.Contains(sealed, plain) {
				return false
			}
			opened, err := right.Open(sealed)
			if err != nil || opened != plain {
				return false
			}
			_, err = wrong.Open(sealed)
			return err != nil
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

func TestSealUsesFreshSaltAndNonce(t *testing.T) {
	s := NewSealer("pw")
	a, err := s.Seal("token-value")
	require.NoError(t, err)
	b, err := s.Seal("token-value")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpenRejectsMalformedInput(t *testing.T) {
	s := NewSealer("pw")
	for _, in := range []string{"plain", "enc:v1:!!!", "enc:v1:AAAA"} {
		_, err := s.Open(in)
		assert.Error(t, err, in)
	}
}

func TestNewSealerNeedsPassphrase(t *testing.T) {
	assert.Nil(t, NewSealer(""))

	t.Setenv(PassphraseEnv, "")
	assert.Nil(t, SealerFromEnv())
	t.Setenv(PassphraseEnv, "pw")
	assert.NotNil(t, SealerFromEnv())
}

func TestIsSecretKey(t *testing.T) {
	for _, k := range []string{"gateway.token", "analyzers.llm.api_key", "store.redis_password", "store.postgres_dsn", "GATEWAY.TOKEN"} {
		assert.True(t, IsSecretKey(k), k)
	}
	for _, k := range []string{"risk.max_lot", "gateway.base_url", "agent.enabled"} {
		assert.False(t, IsSecretKey(k), k)
	}
}

func TestRedact(t *testing.T) {
	assert.Equal(t, Masked, Redact("gateway.token", "s3cret"))
	assert.Equal(t, "", Redact("gateway.token", ""))
	assert.Equal(t, 0.5, Redact("risk.max_lot", 0.5))
}

func TestMaskString(t *testing.T) {
	testCases := []struct {
		in     string
		leaked string
	}{
		{`{"error":"bad token","token":"abc123xyz"}`, "abc123xyz"},
		{"Authorization: Bearer abcdef0123456789", "abcdef0123456789"},
		{"api_key=sk-abcdefghijklmnopqrstuvwx rejected", "sk-abcdefghijklmnopqrstuvwx"},
		{"dial postgres://trader:hunter2@db:5432/fx failed", "hunter2"},
	}
	for _, tc := range testCases {
		out := MaskString(tc.in)
		assert.NotContains(t, out, tc.leaked, tc.in)
		assert.Contains(t, out, Masked, tc.in)
	}

	assert.Equal(t, "market closed", MaskString("market closed"))
}

func TestValidateSymbol(t *testing.T) {
	for _, s := range []string{"EURUSD", "XAUUSD", "US500"} {
		assert.NoError(t, ValidateSymbol(s), s)
	}
	for _, s := range []string{"", "eurusd", "EUR/USD", "EURUSD;DROP", "E"} {
		assert.Error(t, ValidateSymbol(s), s)
	}
}

func TestValidateSettingKey(t *testing.T) {
	for _, k := range []string{"agent.enabled", "risk.regime_boost.max_boost_percent"} {
		assert.NoError(t, ValidateSettingKey(k), k)
	}
	for _, k := range []string{"enabled", "risk..max_lot", "risk.max lot", "risk.max_lot;"} {
		assert.Error(t, ValidateSettingKey(k), k)
	}
}
