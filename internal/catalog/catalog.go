// Package catalog prices shop items. The default catalog is embedded; an
// operator may supply a replacement TOML file.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/omega-realm/economy/internal/apperr"
)

//go:embed default.toml
var defaultCatalog []byte

// Item types
const (
	TypePet       = "pet"
	TypeAccessory = "accessory"
)

// Item is one purchasable entry
type Item struct {
	Type        string  `json:"type"`
	Name        string  `json:"name"`
	Price       int64   `json:"price" toml:"price"`
	Bonus       float64 `json:"bonus,omitempty" toml:"bonus"`
	Rarity      string  `json:"rarity,omitempty" toml:"rarity"`
	Slot        string  `json:"slot,omitempty" toml:"slot"`
	Description string  `json:"description,omitempty" toml:"description"`
}

type file struct {
	Pets        map[string]Item `toml:"pets"`
	Accessories map[string]Item `toml:"accessories"`
}

// Catalog is an immutable price list
type Catalog struct {
	items map[string]map[string]Item
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return parse(defaultCatalog)
}

// Load reads a catalog from a TOML file.
func Load(path string) (*Catalog, error) {
	var f file
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return build(f)
}

func parse(data []byte) (*Catalog, error) {
	var f file
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	return build(f)
}

func build(f file) (*Catalog, error) {
	c := &Catalog{items: map[string]map[string]Item{
		TypePet:       {},
		TypeAccessory: {},
	}}
	add := func(itemType string, entries map[string]Item) error {
		for name, item := range entries {
			if item.Price < 0 {
				return fmt.Errorf("catalog: %s %q has negative price", itemType, name)
			}
			item.Type = itemType
			item.Name = name
			c.items[itemType][name] = item
		}
		return nil
	}
	if err := add(TypePet, f.Pets); err != nil {
		return nil, err
	}
	if err := add(TypeAccessory, f.Accessories); err != nil {
		return nil, err
	}
	return c, nil
}

// PriceOf looks up an item. Unknown types and names yield apperr.ErrItemNotFound.
func (c *Catalog) PriceOf(itemType, name string) (Item, error) {
	item, ok := c.items[itemType][name]
	if !ok {
		return Item{}, apperr.ErrItemNotFound
	}
	return item, nil
}

// All lists every item ordered by type, price and name.
func (c *Catalog) All() []Item {
	var out []Item
	for _, entries := range c.items {
		for _, item := range entries {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type > out[j].Type
		}
		if out[i].Price != out[j].Price {
			return out[i].Price < out[j].Price
		}
		return out[i].Name < out[j].Name
	})
	return out
}
