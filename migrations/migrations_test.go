package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedSchemaCoversLedgerTables(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	require.Equal(t, "0001_stockledger.sql", names[0])

	body, err := Files.ReadFile(names[0])
	require.NoError(t, err)
	schema := string(body)
	for _, table := range []string{"stock_items", "stock_batches", "consumption_events", "audit_logs", "idempotency_keys"} {
		require.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table)
	}
	require.Contains(t, schema, "ON stock_items (category, name_key)")
	require.True(t, strings.Contains(schema, "CHECK (remaining >= 0)"))
}
