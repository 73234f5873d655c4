// Package scenario generates synthetic patient answers for test scenarios and
// runs them through the assessment pipeline in batches.
package scenario

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jonathan/ckd-assistant/internal/export"
)

// Scenario is one row of the scenario definition file.
type Scenario struct {
	Bucket         string `yaml:"bucket"`
	RiskLevel      string `yaml:"risk_level"`
	Age            string `yaml:"age"`
	Gender         string `yaml:"gender"`
	T1D            string `yaml:"t1d"`
	T2D            string `yaml:"t2d"`
	Hypertension   string `yaml:"hypertension"`
	Cardiovascular string `yaml:"cardiovascular"`
	Fatigue        string `yaml:"fatigue"`
	PedalEdema     string `yaml:"pedal_edema"`
	Description    string `yaml:"scenario_desc"`
}

// Meta returns the labels used in the scenario's consolidated CSVs.
func (s Scenario) Meta() export.ScenarioMeta {
	return export.ScenarioMeta{Bucket: s.Bucket, RiskLevel: s.RiskLevel, Description: s.Description}
}

// Columns lists the CSV header of a scenario file.
var Columns = []string{
	"bucket", "risk_level", "age", "gender", "t1d", "t2d",
	"hypertension", "cardiovascular", "fatigue", "pedal_edema", "scenario_desc",
}

// LoadScenarios reads scenarios from a CSV file, or from YAML when the file
// extension is .yaml or .yml.
func LoadScenarios(path string) ([]Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scenarios file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var scenarios []Scenario
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(f).Decode(&scenarios); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse scenarios YAML: %w", err)
		}
	default:
		scenarios, err = ParseCSV(f)
		if err != nil {
			return nil, err
		}
	}

	for i, s := range scenarios {
		if strings.TrimSpace(s.Description) == "" {
			return nil, fmt.Errorf("scenario %d has no scenario_desc", i+1)
		}
	}
	return scenarios, nil
}

// ParseCSV reads scenarios from CSV with a header row. Only scenario_desc is required.
func ParseCSV(r io.Reader) ([]Scenario, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read scenarios header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(strings.ToLower(h))] = i
	}
	if _, ok := cols["scenario_desc"]; !ok {
		return nil, fmt.Errorf("scenarios file is missing the scenario_desc column")
	}

	var out []Scenario
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read scenario row: %w", err)
		}
		get := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		out = append(out, Scenario{
			Bucket:         get("bucket"),
			RiskLevel:      get("risk_level"),
			Age:            get("age"),
			Gender:         get("gender"),
			T1D:            get("t1d"),
			T2D:            get("t2d"),
			Hypertension:   get("hypertension"),
			Cardiovascular: get("cardiovascular"),
			Fatigue:        get("fatigue"),
			PedalEdema:     get("pedal_edema"),
			Description:    get("scenario_desc"),
		})
	}
	return out, nil
}
