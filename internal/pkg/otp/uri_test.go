package otp

import (
	"testing"

	"github.com/pquerna/otp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvisioningURI(t *testing.T) {
	t.Parallel()

	secret, err := DecodeSecret("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	tests := []struct {
		name    string
		account string
		issuer  string
		want    string
	}{
		{
			name:    "plain",
			account: "alice",
			issuer:  "Acme",
			want:    "otpauth://totp/Acme:alice?secret=JBSWY3DPEHPK3PXP&issuer=Acme&algorithm=SHA1&digits=6&period=30",
		},
		{
			name:    "spaces and email",
			account: "alice@example.com",
			issuer:  "Acme Co",
			want:    "otpauth://totp/Acme%20Co:alice%40example.com?secret=JBSWY3DPEHPK3PXP&issuer=Acme%20Co&algorithm=SHA1&digits=6&period=30",
		},
		{
			name:    "reserved characters",
			account: "a:b",
			issuer:  "R&D",
			want:    "otpauth://totp/R%26D:a%3Ab?secret=JBSWY3DPEHPK3PXP&issuer=R%26D&algorithm=SHA1&digits=6&period=30",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ProvisioningURI(secret, tt.account, tt.issuer))
		})
	}
}

func TestProvisioningURI_ParsesAsAuthenticatorKey(t *testing.T) {
	t.Parallel()

	secret, err := GenerateSecret()
	require.NoError(t, err)

	key, err := otp.NewKeyFromURL(ProvisioningURI(secret.Bytes(), "alice@example.com", "Acme Co"))
	require.NoError(t, err)

	assert.Equal(t, "totp", key.Type())
	assert.Equal(t, "Acme Co", key.Issuer())
	assert.Equal(t, "alice@example.com", key.AccountName())
	assert.Equal(t, EncodeSecret(secret.Bytes()), key.Secret())
	assert.Equal(t, uint64(30), key.Period())
	assert.Equal(t, otp.DigitsSix, key.Digits())
	assert.Equal(t, otp.AlgorithmSHA1, key.Algorithm())
}
