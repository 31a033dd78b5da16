package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("report-secret", time.Hour)

	token, expiresAt, err := signer.Generate("job-42", "2026/09/roster.csv")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	jobID, relPath, parsedExpiry, err := signer.Parse(token, false)
	require.NoError(t, err)
	assert.Equal(t, "job-42", jobID)
	assert.Equal(t, "2026/09/roster.csv", relPath)
	assert.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestSignedURLExpiry(t *testing.T) {
	signer := NewSignedURLSigner("report-secret", 10*time.Millisecond)

	token, _, err := signer.Generate("job-42", "roster.csv")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	_, _, _, err = signer.Parse(token, false)
	require.Error(t, err)

	// cleanup jobs still need the path out of expired tokens
	jobID, relPath, _, err := signer.Parse(token, true)
	require.NoError(t, err)
	assert.Equal(t, "job-42", jobID)
	assert.Equal(t, "roster.csv", relPath)
}

func TestSignedURLRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("report-secret", time.Hour)

	token, _, err := signer.Generate("job-42", "roster.csv")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 4)

	swapped := strings.Join(append([]string{"job-99"}, parts[1:]...), ".")
	_, _, _, err = signer.Parse(swapped, false)
	assert.Error(t, err, "changing the job id must break the signature")

	_, _, _, err = signer.Parse(token+"x", false)
	assert.Error(t, err)

	_, _, _, err = signer.Parse("not-a-token", false)
	assert.Error(t, err)
}

func TestSignedURLRejectsForeignSecret(t *testing.T) {
	minter := NewSignedURLSigner("secret-a", time.Hour)
	verifier := NewSignedURLSigner("secret-b", time.Hour)

	token, _, err := minter.Generate("job-42", "roster.csv")
	require.NoError(t, err)

	_, _, _, err = verifier.Parse(token, false)
	require.Error(t, err)
}
