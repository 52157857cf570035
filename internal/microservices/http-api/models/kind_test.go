package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		input   string
		want    Kind
		wantErr bool
	}{
		{input: "SYSTEM", want: KindSystem},
		{input: "message", want: KindMessage},
		{input: "  Announcement ", want: KindAnnouncement},
		{input: "info", want: KindInfo},
		{input: "", wantErr: true},
		{input: "urgent", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseKind(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKind_Protected(t *testing.T) {
	for _, k := range Kinds {
		assert.Equal(t, k == KindSystem, k.Protected(), "kind %s", k)
		assert.Equal(t, k == KindSystem, k.AdminOnly(), "kind %s", k)
	}
}

func TestKind_ScanNormalizesCase(t *testing.T) {
	var k Kind
	require.NoError(t, k.Scan([]byte("warning")))
	assert.Equal(t, KindWarning, k)

	assert.Error(t, k.Scan(42))
	assert.Error(t, k.Scan("bogus"))
}

func TestKind_ValueRejectsInvalid(t *testing.T) {
	_, err := Kind("nope").Value()
	assert.Error(t, err)

	v, err := KindAlert.Value()
	require.NoError(t, err)
	assert.Equal(t, "ALERT", v)
}

func TestNotification_IsExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.False(t, (&Notification{}).IsExpired(now))
	assert.True(t, (&Notification{ExpiresAt: &past}).IsExpired(now))
	assert.False(t, (&Notification{ExpiresAt: &future}).IsExpired(now))
}

func TestRoles(t *testing.T) {
	assert.True(t, IsSuperAdmin(RoleSuperAdmin))
	assert.False(t, IsSuperAdmin(RoleAdmin))
	assert.True(t, IsAdministrator(RoleAdmin))
	assert.True(t, IsAdministrator(RoleSuperAdmin))
	assert.False(t, IsAdministrator(RoleUser))
}
