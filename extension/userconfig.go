package extension

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/go-git/go-billy/v5"
)

// UserConfig holds the disabled-extension set read from
// "<user>/config.xml".
type UserConfig struct {
	DisabledExtensions map[string]bool
}

// LoadUserConfig reads userDir/config.xml. userDir is only treated as
// a genuine user folder if uidata.xml is present alongside it;
// otherwise an empty, all-enabled UserConfig is returned.
func LoadUserConfig(fs billy.Filesystem, userDir string) (UserConfig, error) {
	cfg := UserConfig{DisabledExtensions: map[string]bool{}}

	if _, err := fs.Stat(userDir + "/uidata.xml"); err != nil {
		return cfg, nil
	}

	f, err := fs.Open(userDir + "/config.xml")
	if err != nil {
		return cfg, nil
	}
	defer f.Close()

	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(f); err != nil {
		return cfg, fmt.Errorf("extension: parsing %s/config.xml: %w", userDir, err)
	}
	root := doc.Root()
	if root == nil {
		return cfg, nil
	}

	for _, e := range root.FindElements("//extension") {
		id := strings.ToLower(e.SelectAttrValue("id", ""))
		if id == "" {
			continue
		}
		if e.SelectAttrValue("enabled", "true") == "false" {
			cfg.DisabledExtensions[id] = true
		}
	}
	return cfg, nil
}
