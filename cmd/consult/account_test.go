package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astroveda/consult/internal/dtos"
)

func writeProfile(t *testing.T, apiURL string) string {
	t.Helper()
	t.Setenv("CONSULT_TOKEN", "")
	path := filepath.Join(t.TempDir(), "consult.yaml")
	body := fmt.Sprintf("api_url: %s\ntoken: tok-7\nparticipant_id: \"7\"\nrole: user\n", apiURL)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestWalletCmd(t *testing.T) {
	var gotAuth, gotAmount string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/wallet/balance":
			json.NewEncoder(w).Encode(dtos.WalletBalanceResponse{UserID: "7", Balance: 250, Currency: "INR"})
		case "/api/wallet/add-funds":
			gotAmount = r.URL.Query().Get("amount")
			json.NewEncoder(w).Encode(dtos.AddFundsResponse{Message: "Funds added.", NewBalance: 750})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	profile := writeProfile(t, srv.URL)

	t.Run("balance", func(t *testing.T) {
		cmd := newRootCmd()
		buf := new(bytes.Buffer)
		cmd.SetOut(buf)
		cmd.SetArgs([]string{"wallet", "-p", profile})

		require.NoError(t, cmd.Execute())
		assert.Equal(t, "Balance: 250.00 INR\n", buf.String())
		assert.Equal(t, "Bearer tok-7", gotAuth)
	})

	t.Run("add funds", func(t *testing.T) {
		cmd := newRootCmd()
		buf := new(bytes.Buffer)
		cmd.SetOut(buf)
		cmd.SetArgs([]string{"wallet", "-p", profile, "--add", "500"})

		require.NoError(t, cmd.Execute())
		assert.Equal(t, "500", gotAmount)
		assert.Equal(t, "Funds added. New balance: 750.00\n", buf.String())
	})
}

func TestSessionsCmd_BackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(dtos.ErrorResponse{Detail: "invalid or expired token", Code: "INVALID_TOKEN"})
	}))
	defer srv.Close()

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"sessions", "-p", writeProfile(t, srv.URL)})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid or expired token")
}

func TestPrintSessions(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sessions := []dtos.SessionResponse{
		{
			ID:          "42",
			Type:        "call",
			StartTime:   now.Add(-95 * time.Second),
			IsFreeTrial: true,
			Astrologer:  &dtos.AstrologerProfile{Name: "Pandit Rao"},
		},
		{ID: "43", Type: "chat", StartTime: now.Add(-10 * time.Minute)},
	}

	buf := new(bytes.Buffer)
	printSessions(buf, sessions, now)
	assert.Equal(t, "42\tPandit Rao\tcall\t01:35 (free trial)\n43\t-\tchat\t10:00\n", buf.String())

	buf.Reset()
	printSessions(buf, nil, now)
	assert.Equal(t, "No active sessions.\n", buf.String())
}

func TestPrintWallet(t *testing.T) {
	buf := new(bytes.Buffer)
	printWallet(buf, &dtos.WalletBalanceResponse{
		Balance: 40,
		Transactions: []dtos.WalletTransaction{
			{Amount: -60, Description: "Consultation with Pandit Rao", Timestamp: time.Date(2026, 3, 1, 10, 2, 0, 0, time.UTC)},
		},
	})

	assert.Equal(t, "Balance: 40.00 INR\n  2026-03-01 10:02     -60.00  Consultation with Pandit Rao\n", buf.String())
}
