package priority

import (
	"bytes"
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed sample_areas.yaml
var sampleAreas []byte

type datasetFile struct {
	Areas []AreaRecord `yaml:"areas"`
}

// LoadDataset reads area records from a YAML file. An empty path returns the
// built-in sample study area.
func LoadDataset(path string) ([]AreaRecord, error) {
	if path == "" {
		return ParseDataset(sampleAreas)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "priority: read dataset %s", path)
	}
	return ParseDataset(data)
}

// SampleDataset returns the built-in sample records.
func SampleDataset() []AreaRecord {
	records, err := ParseDataset(sampleAreas)
	if err != nil {
		panic(err)
	}
	return records
}

// ParseDataset decodes a YAML dataset. Records must have unique, non-empty
// IDs; unknown actions are kept but logged since they carry no impact.
func ParseDataset(data []byte) ([]AreaRecord, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f datasetFile
	if err := dec.Decode(&f); err != nil {
		return nil, eris.Wrap(err, "priority: decode dataset")
	}

	seen := make(map[string]bool, len(f.Areas))
	for i, r := range f.Areas {
		if r.ID == "" {
			return nil, eris.Errorf("priority: area %d has no id", i)
		}
		if seen[r.ID] {
			return nil, eris.Errorf("priority: duplicate area id %q", r.ID)
		}
		seen[r.ID] = true

		if !r.RecommendedAction.Known() {
			zap.L().Warn("priority: area has unknown action, impact will be zero",
				zap.String("id", r.ID),
				zap.String("action", string(r.RecommendedAction)),
			)
		}
	}
	return f.Areas, nil
}

// FindRecord returns the record with the given id.
func FindRecord(records []AreaRecord, id string) (AreaRecord, bool) {
	for _, r := range records {
		if r.ID == id {
			return r, true
		}
	}
	return AreaRecord{}, false
}
