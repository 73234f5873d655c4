package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/jonathan/ckd-assistant/internal/export"
	"github.com/jonathan/ckd-assistant/internal/interview"
	"github.com/jonathan/ckd-assistant/internal/observability"
	"github.com/jonathan/ckd-assistant/internal/pipeline"
	"github.com/jonathan/ckd-assistant/internal/types"
)

var (
	interviewImage   string
	interviewSave    bool
	interviewOutDir  string
	interviewHTML    bool
	interviewVerbose bool
)

// stdin is swapped by tests.
var stdin io.Reader = os.Stdin

// Commands recognised at the interview prompt.
const (
	resetCommand = "/reset"
	quitCommand  = "/quit"
)

// errInterviewAborted is returned when the patient quits or input ends early.
var errInterviewAborted = errors.New("interview aborted before all questions were answered")

var interviewCmd = &cobra.Command{
	Use:   "interview",
	Short: "Run an interactive patient interview and assessment in the terminal",
	Long: `Asks the question catalog one question at a time, then runs the assessment pipeline
on the collected answers and prints the report.

Type /reset to start over or /quit to leave without an assessment.`,
	RunE: runInterview,
}

func init() {
	interviewCmd.Flags().StringVar(&interviewImage, "image", "", "Reference to an optional medical image")
	interviewCmd.Flags().BoolVar(&interviewSave, "save", false, "Save the markdown report to the export directory")
	interviewCmd.Flags().StringVarP(&interviewOutDir, "out", "o", "", "Export directory (overrides config)")
	interviewCmd.Flags().BoolVar(&interviewHTML, "html", false, "Also save an HTML rendering of the report")
	interviewCmd.Flags().BoolVarP(&interviewVerbose, "verbose", "v", false, "Print every stage result")
	rootCmd.AddCommand(interviewCmd)
}

// palette colours terminal output. Colours are dropped when stdout is not a TTY.
type palette struct {
	question *color.Color
	hint     *color.Color
	warn     *color.Color
	ok       *color.Color
}

func newPalette(w io.Writer) palette {
	p := palette{
		question: color.New(color.FgCyan, color.Bold),
		hint:     color.New(color.Faint),
		warn:     color.New(color.FgYellow),
		ok:       color.New(color.FgGreen),
	}
	if f, isFile := w.(*os.File); !isFile || !isatty.IsTerminal(f.Fd()) {
		for _, c := range []*color.Color{p.question, p.hint, p.warn, p.ok} {
			c.DisableColor()
		}
	}
	return p
}

func runInterview(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := appConfig
	if cmd.Flags().Changed("out") {
		cfg.ExportDir = interviewOutDir
	}
	if interviewVerbose {
		cfg.Verbose = true
	}

	a := newApp(cfg)
	defer a.Close()

	source, err := a.catalogSource()
	if err != nil {
		return err
	}
	c, err := source.Current()
	if err != nil {
		return err
	}
	session := interview.NewSession(uuid.NewString(), c)

	pal := newPalette(stdout)
	answers, err := collectAnswers(stdin, stdout, session, pal)
	if err != nil {
		return err
	}
	_, _ = pal.ok.Fprintf(stdout, "\nThank you. All %d questions answered, running the assessment...\n\n", len(answers))

	if err := a.withClient(ctx); err != nil {
		return err
	}
	a.withKnowledge(ctx)
	if err := a.withDB(ctx); err != nil {
		a.logger.Warn("continuing without run persistence", "error", err)
	}

	started := time.Now()
	rep, runErr := a.runner(stdout).Run(ctx, pipeline.Input{
		Answers:   answers,
		ImageRef:  interviewImage,
		SessionID: session.ID,
	})
	if runErr == nil {
		printReport(stdout, rep, cfg.Verbose)
	}

	if interviewSave {
		result := export.RunResult{
			Scenario:  "interactive interview",
			StartedAt: started,
			Elapsed:   time.Since(started),
			Provider:  cfg.Provider,
			Model:     a.modelName(),
			Answers:   answers,
			Report:    rep,
			Err:       runErr,
		}
		sink := export.DirSink{Dir: cfg.ExportDir}
		names, err := export.ExportRun(ctx, sink, result, export.Options{HTML: interviewHTML})
		if err != nil {
			return err
		}
		for _, name := range names {
			_, _ = fmt.Fprintf(stdout, "Saved: %s\n", sink.Path(name))
		}
	}
	return runErr
}

// collectAnswers drives session to completion from line-oriented input.
func collectAnswers(in io.Reader, out io.Writer, s *interview.Session, pal palette) ([]types.Answer, error) {
	scanner := bufio.NewScanner(in)
	for !s.IsComplete() {
		q := s.Pose()
		if q == nil {
			break
		}
		_, _ = pal.question.Fprintf(out, "\nQuestion %d/%d: %s\n", s.CurrentIndex()+1, s.Total(), q.Text)
		if q.Hint != "" {
			_, _ = pal.hint.Fprintf(out, "(%s)\n", q.Hint)
		}
		_, _ = fmt.Fprint(out, "> ")

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, fmt.Errorf("failed to read answer: %w", err)
			}
			return nil, errInterviewAborted
		}
		line := strings.TrimSpace(scanner.Text())

		switch strings.ToLower(line) {
		case quitCommand:
			return nil, errInterviewAborted
		case resetCommand:
			s.Reset()
			_, _ = pal.warn.Fprintln(out, "Interview restarted.")
			continue
		}

		if err := s.SubmitAnswer(line); err != nil {
			var empty *interview.EmptyAnswerError
			if errors.As(err, &empty) {
				_, _ = pal.warn.Fprintln(out, "Please provide an answer.")
				continue
			}
			return nil, err
		}
	}
	return s.CollectedAnswers(), nil
}

// printReport writes the display report, preceded by per-stage boxes in verbose mode.
func printReport(out io.Writer, rep *types.AssessmentReport, verbose bool) {
	printer := observability.NewPrinter(out)
	if verbose {
		for _, r := range rep.StageResults {
			printer.PrintStageResult(r)
		}
		printer.PrintFindings(rep.Findings)
	}
	printer.PrintReportSummary(rep)
	_, _ = fmt.Fprintf(out, "\n%s\n", rep.DisplayText)
}
