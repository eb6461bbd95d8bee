package config

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/expert-registry/internal/model"
)

// LoadRubric reads a screener rubric from a yaml file. A missing path
// returns an empty rubric: screening works without one, just less
// opinionated.
func LoadRubric(path string) (model.Rubric, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Rubric{}, nil
		}
		return model.Rubric{}, eris.Wrapf(err, "config: read rubric %s", path)
	}

	var rubric model.Rubric
	if err := yaml.Unmarshal(data, &rubric); err != nil {
		return model.Rubric{}, eris.Wrapf(err, "config: parse rubric %s", path)
	}
	return rubric, nil
}
