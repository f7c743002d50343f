package validator

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var embeddedRules []byte

// GesteRule lists what a structurally valid detected geste of a given
// type must carry.
type GesteRule struct {
	RequiredFields []string `yaml:"required_fields"`
}

// Rules maps geste type to its rule. Types without an entry have no
// structural requirements beyond the type field itself.
type Rules map[string]GesteRule

// DefaultRules returns the embedded rule table.
func DefaultRules() (Rules, error) {
	return parseRules(embeddedRules)
}

// LoadRules reads a rule table from a YAML file, for deployments that
// override the embedded defaults.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "validator: read rules %s", path)
	}
	return parseRules(data)
}

func parseRules(data []byte) (Rules, error) {
	var doc struct {
		Gestes Rules `yaml:"gestes"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "validator: parse rules")
	}
	return doc.Gestes, nil
}
