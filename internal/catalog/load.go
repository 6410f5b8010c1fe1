package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

//go:embed seed.json
var seedCatalog []byte

// Decode reads a JSON catalog and validates it.
func Decode(r io.Reader) (*Store, error) {
	data, err := DecodeData(r)
	if err != nil {
		return nil, err
	}
	return New(data)
}

// DecodeData reads a JSON catalog without validating it. Unknown fields are
// rejected.
func DecodeData(r io.Reader) (Data, error) {
	var data Data
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&data); err != nil {
		return Data{}, fmt.Errorf("decode catalog: %w", err)
	}
	return data, nil
}

// LoadFile reads a JSON catalog from disk.
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// Seed returns the catalog bundled with the binary.
func Seed() (*Store, error) {
	return Decode(bytes.NewReader(seedCatalog))
}

// SeedData returns the bundled catalog without building a store, for tools
// that write it elsewhere.
func SeedData() (Data, error) {
	var data Data
	if err := json.Unmarshal(seedCatalog, &data); err != nil {
		return Data{}, fmt.Errorf("decode seed catalog: %w", err)
	}
	return data, nil
}
