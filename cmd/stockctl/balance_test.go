package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exported = `[
  {"id":"b","catalogName":"Laptop","receiptDate":"2024-01-03","issueQuantity":4},
  {"id":"a","catalogName":"Laptop","receiptDate":"2024-01-01","quantityReceived":10},
  {"id":"c","catalogName":"Laptop","receiptDate":"2024-01-02","quantityReceived":5},
  {"id":"m","catalogName":"Mouse","receiptDate":"2024-01-01","quantityReceived":2}
]`

func TestBalanceCommandFoldsPerCatalog(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(exported))
	cmd.SetArgs([]string{"balance", "--catalog", "Laptop"})

	require.NoError(t, cmd.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "BALANCE")
	assert.Equal(t, []string{"10", "15", "11"}, []string{
		strings.Fields(lines[1])[4],
		strings.Fields(lines[2])[4],
		strings.Fields(lines[3])[4],
	})
	assert.NotContains(t, out.String(), "Mouse")
}

func TestBalanceCommandUnknownCatalog(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(exported))
	cmd.SetArgs([]string{"balance", "--catalog", "Keyboard"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Keyboard")
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "stockctl version dev")
}
