package wms

import (
	"fmt"
	"os"

	"wmsreceipt/internal/browser"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Selectors lists the candidate element queries per role, most specific
// first. Entries are CSS with an optional trailing :has-text("...").
type Selectors struct {
	Username []string `yaml:"username"`
	Password []string `yaml:"password"`
	Submit   []string `yaml:"submit"`
	Search   []string `yaml:"search"`
	Table    []string `yaml:"table"`
}

// DefaultSelectors returns the candidates known to work on the portal.
func DefaultSelectors() Selectors {
	return Selectors{
		Username: []string{
			`#username`,
			`input[name="username"]`,
			`input[type="text"]`,
			`input[placeholder*="用戶"]`,
			`input[placeholder*="帳號"]`,
		},
		Password: []string{
			`#password`,
			`input[name="password"]`,
			`input[type="password"]`,
		},
		Submit: []string{
			`button[type="submit"]`,
			`input[type="submit"]`,
			`button:has-text("登入")`,
			`button:has-text("Login")`,
		},
		Search: []string{
			`input[placeholder*='搜尋']`,
			`input[type='search']`,
			`input[name*='search']`,
			`input[class*='search']`,
			`input[placeholder*='Search']`,
		},
		Table: []string{
			`.table.table-striped`,
			`.table`,
			`table`,
		},
	}
}

// LoadSelectors reads a YAML selector profile and merges it over the
// defaults. Roles missing from the file keep their default candidates. An
// empty path returns the defaults.
func LoadSelectors(path string) (Selectors, error) {
	out := DefaultSelectors()
	if path == "" {
		return out, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return out, fmt.Errorf("failed to read selector profile: %w", err)
	}

	var override Selectors
	if err := yaml.Unmarshal(data, &override); err != nil {
		return out, fmt.Errorf("failed to parse selector profile %s: %w", path, err)
	}
	if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
		return out, fmt.Errorf("failed to merge selector profile: %w", err)
	}

	if _, err := out.Compile(); err != nil {
		return out, err
	}
	return out, nil
}

// Candidates holds the parsed locators of a selector profile.
type Candidates struct {
	Username []browser.Locator
	Password []browser.Locator
	Submit   []browser.Locator
	Search   []browser.Locator
	Table    []browser.Locator
}

// Compile parses every entry. Each role needs at least one candidate.
func (s Selectors) Compile() (Candidates, error) {
	var c Candidates
	for _, role := range []struct {
		name string
		in   []string
		out  *[]browser.Locator
	}{
		{"username", s.Username, &c.Username},
		{"password", s.Password, &c.Password},
		{"submit", s.Submit, &c.Submit},
		{"search", s.Search, &c.Search},
		{"table", s.Table, &c.Table},
	} {
		if len(role.in) == 0 {
			return c, fmt.Errorf("selector profile: no %s candidates", role.name)
		}
		locs, err := browser.ParseLocators(role.in)
		if err != nil {
			return c, fmt.Errorf("selector profile: %s: %w", role.name, err)
		}
		*role.out = locs
	}
	return c, nil
}
