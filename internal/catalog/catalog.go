// Package catalog parses and fingerprints the ordered interview question catalog.
package catalog

import (
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/jonathan/ckd-assistant/internal/types"
	"golang.org/x/crypto/blake2b"
)

//go:embed questions.txt
var defaultQuestions string

var (
	linePattern = regexp.MustCompile(`^\s*(\d+)[.)]\s*(.*?)\s*$`)
	hintPattern = regexp.MustCompile(`\(([^()]*)\)\s*$`)
)

// Catalog is an immutable, ordered question list with a content fingerprint.
type Catalog struct {
	questions   []types.Question
	Fingerprint string
}

// New builds a catalog from already parsed questions.
func New(questions []types.Question) *Catalog {
	qs := make([]types.Question, len(questions))
	copy(qs, questions)
	return &Catalog{questions: qs, Fingerprint: fingerprint(qs)}
}

// Load returns the built-in catalog.
func Load() (*Catalog, error) {
	qs, err := Parse(defaultQuestions)
	if err != nil {
		return nil, err
	}
	return New(qs), nil
}

// MustLoad returns the built-in catalog, panicking if it cannot be parsed.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load built-in catalog: %v", err))
	}
	return c
}

// LoadFile parses a catalog from a numbered text file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	qs, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	return New(qs), nil
}

// Len returns the number of questions.
func (c *Catalog) Len() int {
	return len(c.questions)
}

// At returns the question at index i.
func (c *Catalog) At(i int) (types.Question, bool) {
	if i < 0 || i >= len(c.questions) {
		return types.Question{}, false
	}
	return c.questions[i], true
}

// Questions returns a copy of the ordered questions.
func (c *Catalog) Questions() []types.Question {
	qs := make([]types.Question, len(c.questions))
	copy(qs, c.questions)
	return qs
}

// Parse converts a numbered text block into ordered questions.
// Blank, unnumbered, empty and out-of-sequence lines are skipped.
func Parse(text string) ([]types.Question, error) {
	var questions []types.Question
	last := 0

	for _, line := range strings.Split(text, "\n") {
		m := linePattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= last {
			continue
		}
		body := strings.TrimSpace(m[2])
		if body == "" {
			continue
		}

		q := parseBody(body)
		if q.Text == "" {
			continue
		}
		q.Number = n
		questions = append(questions, q)
		last = n
	}

	if len(questions) == 0 {
		return nil, fmt.Errorf("no questions found")
	}
	return questions, nil
}

func parseBody(body string) types.Question {
	q := types.Question{Text: body, Domain: types.DomainFreeText}

	loc := hintPattern.FindStringSubmatchIndex(body)
	if loc == nil {
		return q
	}
	hint := strings.TrimSpace(body[loc[2]:loc[3]])
	q.Text = strings.TrimSpace(body[:loc[0]])
	q.Hint = hint
	q.Domain, q.Options = inferDomain(hint)
	return q
}

func inferDomain(hint string) (types.Domain, []string) {
	if !strings.Contains(hint, "/") {
		return types.DomainFreeText, nil
	}

	var options []string
	for _, part := range strings.Split(hint, "/") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			options = append(options, p)
		}
	}
	if isTriState(options) {
		return types.DomainBooleanTriState, options
	}
	return types.DomainCategorical, options
}

func isTriState(options []string) bool {
	if len(options) != 3 {
		return false
	}
	seen := map[string]bool{}
	for _, o := range options {
		seen[o] = true
	}
	return seen["yes"] && seen["no"] && seen["maybe"]
}

func fingerprint(qs []types.Question) string {
	h, _ := blake2b.New256(nil)
	for _, q := range qs {
		h.Write([]byte(strings.ToLower(strings.Join(strings.Fields(q.Prompt()), " "))))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
