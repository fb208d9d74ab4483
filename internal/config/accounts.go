package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// accountMapFile is the on-disk shape of the chart-of-accounts mapping:
//
//	accounts:
//	  "4930": "Bürobedarf"
//	  "6815": "Software und Lizenzen"
type accountMapFile struct {
	Accounts map[string]string `yaml:"accounts"`
}

// LoadAccountLabels reads the account code to label mapping used when
// rendering export workbooks. An empty path means no mapping is configured
// and export rows fall back to the raw account code.
func LoadAccountLabels(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read account map %s: %w", path, err)
	}

	var parsed accountMapFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse account map %s: %w", path, err)
	}
	if parsed.Accounts == nil {
		parsed.Accounts = map[string]string{}
	}
	return parsed.Accounts, nil
}
