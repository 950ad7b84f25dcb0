package deploy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-lottery/lottery"
)

// Front-end file names, relative to the constants directory of the web app.
const (
	ABIFile       = "abi.json"
	AddressesFile = "contractAddresses.json"
)

// PublishFrontend writes the lottery ABI into dir and records addr under
// chainID in the address book, keeping every address already listed.
func PublishFrontend(dir string, chainID uint64, addr common.Address) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	var abi bytes.Buffer
	if err := json.Compact(&abi, []byte(lottery.ContractABI)); err != nil {
		return fmt.Errorf("compact abi: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ABIFile), abi.Bytes(), 0644); err != nil {
		return err
	}

	book, err := ReadAddresses(dir)
	if err != nil {
		return err
	}
	key := strconv.FormatUint(chainID, 10)
	hex := addr.Hex()
	found := false
	for _, have := range book[key] {
		if have == hex {
			found = true
			break
		}
	}
	if !found {
		book[key] = append(book[key], hex)
	}
	out, err := json.Marshal(book)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, AddressesFile), out, 0644)
}

// ReadAddresses loads the address book in dir. A missing file is an empty
// book.
func ReadAddresses(dir string) (map[string][]string, error) {
	book := make(map[string][]string)
	raw, err := os.ReadFile(filepath.Join(dir, AddressesFile))
	if os.IsNotExist(err) {
		return book, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return book, nil
	}
	if err := json.Unmarshal(raw, &book); err != nil {
		return nil, fmt.Errorf("parse %s: %w", AddressesFile, err)
	}
	if book == nil {
		book = make(map[string][]string)
	}
	return book, nil
}
