package socrata

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Catalog names the Socrata datasets the tracker polls. The defaults point
// at the Seattle OPA open-data portal; a YAML file can override them when
// the city renames a dataset.
type Catalog struct {
	ClosedCaseSummaries  string `yaml:"closed_case_summaries" json:"closed_case_summaries"`
	NewComplaints        string `yaml:"new_complaints" json:"new_complaints"`
	ClosedInvestigations string `yaml:"closed_investigations" json:"closed_investigations"`
	CaseDetails          string `yaml:"case_details" json:"case_details"`
}

func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultCatalog(), err
	}

	var cat Catalog
	if err := yaml.Unmarshal(content, &cat); err != nil {
		return Catalog{}, err
	}

	if cat.ClosedCaseSummaries == "" || cat.NewComplaints == "" ||
		cat.ClosedInvestigations == "" || cat.CaseDetails == "" {
		return Catalog{}, errors.New("source catalog must name all four datasets")
	}

	return cat, nil
}

func DefaultCatalog() Catalog {
	return Catalog{
		ClosedCaseSummaries:  "m33m-84uk",
		NewComplaints:        "pafy-bfmu",
		ClosedInvestigations: "99yi-dthu",
		CaseDetails:          "hyay-5x7b",
	}
}
