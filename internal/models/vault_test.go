package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVaultItemExpired(t *testing.T) {
	now := time.Now()

	noExpiry := VaultItem{}
	assert.False(t, noExpiry.Expired(now))

	future := now.Add(time.Hour)
	assert.False(t, (&VaultItem{ExpiresAt: &future}).Expired(now))

	past := now.Add(-time.Second)
	assert.True(t, (&VaultItem{ExpiresAt: &past}).Expired(now))
}
