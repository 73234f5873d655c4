package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"regexp"
	"strings"
	"sync"

	"github.com/jonathan/ckd-assistant/internal/catalog"
	"github.com/jonathan/ckd-assistant/internal/llm"
	"github.com/jonathan/ckd-assistant/internal/logging"
	"github.com/jonathan/ckd-assistant/internal/prompts"
	"github.com/jonathan/ckd-assistant/internal/schemas"
	"github.com/jonathan/ckd-assistant/internal/types"
	rootschemas "github.com/jonathan/ckd-assistant/schemas"
)

// Response types
const (
	ResponseYesNoMaybe = "yes_no_maybe"
	ResponseText       = "text"
)

// NotSureText is the fallback free-text answer.
const NotSureText = "I'm not sure"

var agePattern = regexp.MustCompile(`(\d+)\s*year`)

// Generated is an answer set for one simulated patient.
type Generated struct {
	Answers      []types.Answer
	FallbackUsed bool
}

// Generator asks the model to answer the catalog as a described patient.
type Generator struct {
	Client  llm.Client
	Catalog *catalog.Catalog

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGenerator creates a generator. The seed drives the fallback's random answers.
func NewGenerator(client llm.Client, c *catalog.Catalog, seed int64) *Generator {
	return &Generator{Client: client, Catalog: c, rnd: rand.New(rand.NewSource(seed))}
}

// Generate returns answers for every catalog question. Model or parse failures
// fall back to keyword-derived answers and never fail the call.
func (g *Generator) Generate(ctx context.Context, desc, responseType string) Generated {
	logger := logging.New("scenario")
	if g.Client != nil {
		answers, err := g.generate(ctx, desc, responseType)
		if err == nil {
			return Generated{Answers: answers}
		}
		logger.WarnContext(ctx, "using fallback response generation", slog.String("error", err.Error()))
	}
	return Generated{Answers: g.Fallback(desc, responseType), FallbackUsed: true}
}

func (g *Generator) generate(ctx context.Context, desc, responseType string) ([]types.Answer, error) {
	key := "text"
	if responseType == ResponseYesNoMaybe {
		key = "yes-no-maybe"
	}
	prompt, err := prompts.Render("scenario.json", key, map[string]string{
		"Scenario":  desc,
		"Questions": g.numberedQuestions(),
	})
	if err != nil {
		return nil, err
	}

	resp, err := g.Client.GenerateContent(ctx, prompt, llm.TierLite)
	if err != nil {
		return nil, fmt.Errorf("LLM generation failed: %w", err)
	}
	return g.ParseAnswers(resp)
}

type rawAnswer struct {
	Question string          `json:"question"`
	Answer   json.RawMessage `json:"answer"`
}

// ParseAnswers extracts the JSON answer array from a model response.
func (g *Generator) ParseAnswers(resp string) ([]types.Answer, error) {
	block, ok := llm.ExtractJSONArray(resp)
	if !ok {
		block = llm.CleanJSONBlock(resp)
	}
	if err := schemas.Validate(rootschemas.ScenarioAnswers, []byte(block)); err != nil {
		return nil, err
	}

	var raw []rawAnswer
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse answers: %w", err)
	}

	questions := g.Catalog.Questions()
	answers := make([]types.Answer, 0, len(raw))
	for i, r := range raw {
		a := types.Answer{Question: strings.TrimSpace(r.Question), Response: scalarString(r.Answer)}
		if i < len(questions) {
			a.Index = questions[i].Number
			if a.Question == "" {
				a.Question = questions[i].Prompt()
			}
		}
		answers = append(answers, a)
	}
	return answers, nil
}

// Fallback derives answers from keywords in the scenario description. Answers
// not implied by the description are random yes/no/maybe values, or NotSureText
// for text responses.
func (g *Generator) Fallback(desc, responseType string) []types.Answer {
	lower := strings.ToLower(desc)

	age := "unknown"
	if m := agePattern.FindStringSubmatch(lower); m != nil {
		age = m[1]
	}
	gender := "unknown"
	if strings.Contains(lower, "female") {
		gender = "female"
	} else if strings.Contains(lower, "male") {
		gender = "male"
	}

	questions := g.Catalog.Questions()
	answers := make([]types.Answer, 0, len(questions))
	for _, q := range questions {
		text := strings.ToLower(q.Text)
		var answer string
		switch {
		case strings.Contains(text, "age"):
			answer = age
		case strings.Contains(text, "gender"):
			answer = gender
		case hasAny(lower, "diabetes", "diabetic") && strings.Contains(text, "diabetes"):
			answer = "yes"
		case hasAny(lower, "blood pressure", "hypertension") && strings.Contains(text, "blood pressure"):
			answer = "yes"
		case hasAny(lower, "swelling", "swollen", "edema") && hasAny(text, "swelling", "edema"):
			answer = "yes"
		case hasAny(lower, "fatigue", "tired", "weakness") && hasAny(text, "fatigue", "tired"):
			answer = "yes"
		case responseType == ResponseYesNoMaybe:
			answer = g.randomTriState()
		default:
			answer = NotSureText
		}
		answers = append(answers, types.Answer{Index: q.Number, Question: q.Prompt(), Response: answer})
	}
	return answers
}

func (g *Generator) randomTriState() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rnd == nil {
		g.rnd = rand.New(rand.NewSource(1))
	}
	return []string{"yes", "no", "maybe"}[g.rnd.Intn(3)]
}

func (g *Generator) numberedQuestions() string {
	var sb strings.Builder
	for i, q := range g.Catalog.Questions() {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, q.Prompt())
	}
	return strings.TrimRight(sb.String(), "\n")
}

func scalarString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(string(raw))
}

func hasAny(s string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
