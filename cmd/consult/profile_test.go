package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astroveda/consult/internal/consultation"
	"github.com/astroveda/consult/internal/models"
)

const validProfile = `
api_url: https://api.astroveda.example/
token: tok-7
participant_id: "7"
display_name: Asha
role: user
`

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile([]byte(validProfile), "")
	require.NoError(t, err)

	assert.Equal(t, "https://api.astroveda.example", p.APIURL)
	assert.Equal(t, p.APIURL, p.SignalURL)
	assert.Equal(t, consultation.DefaultICEServers, p.ICEServers)

	id := p.Identity()
	assert.Equal(t, models.ID("7"), id.ParticipantID)
	assert.Equal(t, "Asha", id.DisplayName)
	assert.Equal(t, models.RoleUser, id.Role)
	assert.Equal(t, "tok-7", id.Token)
	assert.NoError(t, id.Validate())
}

func TestParseProfile_Defaults(t *testing.T) {
	p, err := ParseProfile([]byte("token: t\nparticipant_id: 9\nrole: astrologer\n"), "")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", p.APIURL)
	assert.Equal(t, "9", p.ParticipantID)
	assert.Equal(t, consultation.PartnerAstrologer, p.DisplayName)
	assert.True(t, p.Identity().IsAstrologer())

	p.ICEServers[0] = "stun:changed"
	assert.Equal(t, "stun:stun.l.google.com:19302", consultation.DefaultICEServers[0])
}

func TestParseProfile_TokenOverride(t *testing.T) {
	p, err := ParseProfile([]byte("participant_id: \"7\"\n"), "from-env")
	require.NoError(t, err)
	assert.Equal(t, "from-env", p.Token)
}

func TestParseProfile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing token", "participant_id: \"7\"\n", "token is required"},
		{"missing participant", "token: t\n", "participant_id is required"},
		{"admin role", "token: t\nparticipant_id: \"1\"\nrole: admin\n", `role "admin"`},
		{"bad ice server", "token: t\nparticipant_id: \"1\"\nice_servers: [\"http://x\"]\n", "ice_servers[0]"},
		{"bad yaml", "token: [\n", "profile: parse"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseProfile([]byte(tc.yaml), "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadProfile(t *testing.T) {
	t.Setenv("CONSULT_TOKEN", "")
	path := filepath.Join(t.TempDir(), "consult.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validProfile), 0o600))

	p, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, "tok-7", p.Token)

	_, err = LoadProfile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
