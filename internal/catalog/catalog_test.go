package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omega-realm/economy/internal/apperr"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	t.Run("should price a pet", func(t *testing.T) {
		item, err := c.PriceOf(TypePet, "dragon")
		require.NoError(t, err)
		assert.Equal(t, int64(15000), item.Price)
		assert.Equal(t, 2.0, item.Bonus)
		assert.Equal(t, "epic", item.Rarity)
	})

	t.Run("should price an accessory", func(t *testing.T) {
		item, err := c.PriceOf(TypeAccessory, "crown")
		require.NoError(t, err)
		assert.Equal(t, int64(2000), item.Price)
		assert.Equal(t, "hat", item.Slot)
	})

	t.Run("should report unknown items", func(t *testing.T) {
		_, err := c.PriceOf(TypePet, "griffin")
		assert.ErrorIs(t, err, apperr.ErrItemNotFound)

		_, err = c.PriceOf("vehicle", "cat")
		assert.ErrorIs(t, err, apperr.ErrItemNotFound)
	})

	t.Run("should list pets before accessories by price", func(t *testing.T) {
		all := c.All()
		require.Len(t, all, 22)
		assert.Equal(t, TypePet, all[0].Type)
		assert.Equal(t, int64(0), all[0].Price)
		assert.Equal(t, "unicorn", all[9].Name)
		assert.Equal(t, "cap", all[10].Name)
	})
}

func TestLoadRejectsNegativePrice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.toml")
	require.NoError(t, os.WriteFile(path, []byte("[pets.cat]\nprice = -1\n"), 0o600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "negative price")
}
