// Package history loads the past and present patient cohorts used to calibrate risk scores.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonathan/ckd-assistant/internal/logging"
	"github.com/jonathan/ckd-assistant/internal/schemas"
	"github.com/jonathan/ckd-assistant/internal/types"
	rootschemas "github.com/jonathan/ckd-assistant/schemas"
)

// Cohort file names inside the history directory.
const (
	PastFile    = "past_patient_responses.json"
	PresentFile = "present_patient_responses.json"
)

// DefaultSampleSize is the number of records taken from each cohort.
const DefaultSampleSize = 5

// DataUnavailableError reports that cohort files are missing. Cohorts are empty
// when it is returned and callers proceed without historical calibration.
type DataUnavailableError struct {
	Path  string
	Cause error
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("historical data unavailable at %s: %v", e.Path, e.Cause)
}

func (e *DataUnavailableError) Unwrap() error {
	return e.Cause
}

// Repository reads the two cohort snapshots from a directory.
type Repository struct {
	Dir        string
	SampleSize int
	logger     *slog.Logger
}

// NewRepository creates a repository rooted at dir.
func NewRepository(dir string, sampleSize int) *Repository {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	return &Repository{Dir: dir, SampleSize: sampleSize, logger: logging.New("history")}
}

// LoadCohorts returns the past and present records of the first SampleSize
// patients present in both cohorts. The slices are index-aligned by patient id.
// Missing files yield empty cohorts and a DataUnavailableError; unreadable or
// invalid files yield empty cohorts and are logged.
func (r *Repository) LoadCohorts(ctx context.Context) (past, present []types.HistoricalPatientRecord, err error) {
	pairs, err := r.LoadPairs(ctx)
	if err != nil {
		return []types.HistoricalPatientRecord{}, []types.HistoricalPatientRecord{}, err
	}
	past, present = Split(pairs)
	return past, present, nil
}

// LoadPairs joins the full cohorts by patient id and keeps the first
// SampleSize pairs in past-file order.
func (r *Repository) LoadPairs(ctx context.Context) ([]CohortPair, error) {
	past, err := r.loadFile(ctx, PastFile)
	if err != nil {
		return []CohortPair{}, err
	}
	present, err := r.loadFile(ctx, PresentFile)
	if err != nil {
		return []CohortPair{}, err
	}

	pairs := Join(past, present)
	if unmatched := len(past) + len(present) - 2*len(pairs); unmatched > 0 {
		r.log().DebugContext(ctx, "dropped cohort records without a matching patient", slog.Int("count", unmatched))
	}
	n := r.SampleSize
	if n <= 0 {
		n = DefaultSampleSize
	}
	if len(pairs) > n {
		pairs = pairs[:n]
	}
	return pairs, nil
}

func (r *Repository) loadFile(ctx context.Context, name string) ([]types.HistoricalPatientRecord, error) {
	path := filepath.Join(r.Dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &DataUnavailableError{Path: path, Cause: err}
		}
		r.log().WarnContext(ctx, "failed to read cohort file", slog.String("path", path), slog.String("error", err.Error()))
		return []types.HistoricalPatientRecord{}, nil
	}

	records, err := Parse(data)
	if err != nil {
		r.log().WarnContext(ctx, "ignoring invalid cohort file", slog.String("path", path), slog.String("error", err.Error()))
		return []types.HistoricalPatientRecord{}, nil
	}
	return records, nil
}

func (r *Repository) log() *slog.Logger {
	if r.logger == nil {
		r.logger = logging.New("history")
	}
	return r.logger
}

type rawRecord struct {
	PatientID json.RawMessage `json:"patient_id"`
	Responses []types.Answer  `json:"responses"`
}

// Parse validates a cohort document and decodes it. Numeric patient ids are
// converted to strings.
func Parse(data []byte) ([]types.HistoricalPatientRecord, error) {
	if err := schemas.Validate(rootschemas.History, data); err != nil {
		return nil, err
	}

	var raw []rawRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse cohort: %w", err)
	}

	records := make([]types.HistoricalPatientRecord, 0, len(raw))
	for _, rr := range raw {
		records = append(records, types.HistoricalPatientRecord{
			PatientID: patientID(rr.PatientID),
			Responses: rr.Responses,
		})
	}
	return records, nil
}

func patientID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return strings.TrimSpace(string(raw))
}

// CohortPair is one patient's past and present record.
type CohortPair struct {
	PatientID string
	Past      types.HistoricalPatientRecord
	Present   types.HistoricalPatientRecord
}

// Join matches past and present records by patient id, in past order.
// Patients missing from either cohort are dropped.
func Join(past, present []types.HistoricalPatientRecord) []CohortPair {
	byID := make(map[string]types.HistoricalPatientRecord, len(present))
	for _, p := range present {
		byID[p.PatientID] = p
	}

	pairs := []CohortPair{}
	for _, p := range past {
		if cur, ok := byID[p.PatientID]; ok {
			pairs = append(pairs, CohortPair{PatientID: p.PatientID, Past: p, Present: cur})
		}
	}
	return pairs
}

// Split returns the past and present halves of pairs, index-aligned.
func Split(pairs []CohortPair) (past, present []types.HistoricalPatientRecord) {
	past = make([]types.HistoricalPatientRecord, len(pairs))
	present = make([]types.HistoricalPatientRecord, len(pairs))
	for i, p := range pairs {
		past[i], present[i] = p.Past, p.Present
	}
	return past, present
}

// NormalizeAnswer maps yes/no style responses onto yes, no or maybe.
// Other responses are returned trimmed.
func NormalizeAnswer(s string) string {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "yes", "y", "true", "1":
		return "yes"
	case "no", "n", "false", "0":
		return "no"
	case "maybe", "unknown", "unsure", "na", "n/a", "none", "":
		return "maybe"
	default:
		return strings.TrimSpace(s)
	}
}

// FormatCohort renders records as indented JSON for prompt context.
func FormatCohort(records []types.HistoricalPatientRecord) string {
	if len(records) == 0 {
		return "[]"
	}
	normalized := make([]types.HistoricalPatientRecord, len(records))
	for i, r := range records {
		responses := make([]types.Answer, len(r.Responses))
		for j, a := range r.Responses {
			responses[j] = types.Answer{Question: a.Question, Response: NormalizeAnswer(a.Response)}
		}
		normalized[i] = types.HistoricalPatientRecord{PatientID: r.PatientID, Responses: responses}
	}
	data, err := json.MarshalIndent(normalized, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}
