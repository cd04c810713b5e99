package migration

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add receipts table", "add_receipts_table"},
		{"Add-Receipt-Sequence", "add_receipt_sequence"},
		{"add__bill__items", "add_bill_items"},
		{"   spaces   ", "spaces"},
		{"special!@#$chars", "specialchars"},
		{"_leading", "leading"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeName(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	t.Run("numbers migrations sequentially", func(t *testing.T) {
		dir := t.TempDir()

		first, err := CreateMigration(dir, "create fee tables", "catalog and bills")
		require.NoError(t, err)
		assert.Equal(t, "000001", first.Version)
		assert.Equal(t, filepath.Join(dir, "000001_create_fee_tables.up.sql"), first.UpPath)

		second, err := CreateMigration(dir, "add receipts", "")
		require.NoError(t, err)
		assert.Equal(t, "000002", second.Version)

		content, err := os.ReadFile(first.UpPath)
		require.NoError(t, err)
		assert.Contains(t, string(content), "catalog and bills")
		_, err = os.Stat(second.DownPath)
		assert.NoError(t, err)
	})

	t.Run("rejects empty names", func(t *testing.T) {
		_, err := CreateMigration(t.TempDir(), "!!!", "")
		assert.Error(t, err)
	})
}

func TestListMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"000010_add_indexes.up.sql":    {},
		"000010_add_indexes.down.sql":  {},
		"000002_create_bills.up.sql":   {},
		"000002_create_bills.down.sql": {},
		"000001_create_catalog.up.sql": {},
		"README.md":                    {},
		"archive/000003_old.up.sql":    {},
	}

	migrations, err := ListMigrations(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_create_catalog", "000002_create_bills", "000010_add_indexes"}, migrations)
}
