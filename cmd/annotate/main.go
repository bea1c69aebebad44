// Command annotate is the terminal annotation workbench. It renders one
// email at a time and drives the full judge/note/tag workflow against the
// annotation server with single-key commands.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mettafore/evals-workshop/internal/client"
	"github.com/mettafore/evals-workshop/internal/config"
	"github.com/mettafore/evals-workshop/internal/session"
	"github.com/mettafore/evals-workshop/internal/view"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var errStyle = lipgloss.NewStyle().Bold(true).
	Foreground(lipgloss.AdaptiveColor{Light: "#8c1a1a", Dark: "#ff5f5f"})

func main() {
	configPath := flag.String("config", "configs/config.yml", "path to config file")
	serverURL := flag.String("server", "", "annotation server base URL (overrides config)")
	runID := flag.String("run", "", "trace run to annotate (default: latest)")
	flag.Parse()

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "annotate requires an interactive terminal")
		os.Exit(1)
	}

	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		*configPath = ""
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	baseURL := cfg.Client.BaseURL
	if *serverURL != "" {
		baseURL = *serverURL
	}

	// Logs go to a file so they never scribble over the screen.
	logCfg := zap.NewDevelopmentConfig()
	logCfg.OutputPaths = []string{filepath.Join(os.TempDir(), "annotate.log")}
	logCfg.ErrorOutputPaths = logCfg.OutputPaths
	logger, err := logCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	app := &app{
		session: session.New(client.NewClient(baseURL)),
		logger:  logger,
	}

	if err := app.run(context.Background(), *runID); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render(err.Error()))
		os.Exit(1)
	}
}

type app struct {
	session *session.Session
	logger  *zap.Logger
	status  string
}

func (a *app) run(ctx context.Context, runID string) error {
	status, err := a.session.LoadContext(ctx, runID)
	if err != nil {
		return fmt.Errorf("cannot reach annotation server: %w", err)
	}

	if status == session.NeedsLabelerSetup {
		if err := a.pickLabeler(ctx); err != nil {
			return err
		}
	}

	for {
		a.draw()

		key, err := readKey()
		if err != nil {
			return err
		}

		intent := session.IntentForKey(key)
		if intent == session.IntentQuit {
			fmt.Print("\033[2J\033[H")
			return nil
		}

		a.status = ""
		if err := a.dispatch(ctx, intent); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				continue
			}
			a.logger.Warn("Command failed", zap.Int("intent", int(intent)), zap.Error(err))
			a.status = err.Error()
		}
	}
}

func (a *app) dispatch(ctx context.Context, intent session.Intent) error {
	handled, err := a.session.Apply(ctx, intent)
	if err != nil || handled {
		return err
	}

	switch intent {
	case session.IntentEditNote:
		return a.editNote(ctx)
	case session.IntentAttachMode:
		return a.attachMode(ctx)
	case session.IntentDetachMode:
		return a.detachMode(ctx)
	case session.IntentSuggest:
		return a.suggestModes(ctx)
	case session.IntentSwitchLabeler:
		return a.pickLabeler(ctx)
	}
	return nil
}

func (a *app) draw() {
	pos, total := a.session.Position()
	labelerID, labelerName := a.session.Labeler()

	vm := view.Project(view.State{
		Detail:      a.session.Current(),
		RunID:       a.session.RunID(),
		LabelerID:   labelerID,
		LabelerName: labelerName,
		Roster:      a.session.Roster(),
		Position:    pos,
		Total:       total,
	})

	fmt.Print("\033[2J\033[H")
	fmt.Print(view.Render(vm))
	if a.status != "" {
		fmt.Println(errStyle.Render(a.status))
	}
}

// readKey reads one key in raw mode, folding arrow keys onto h/l.
func readKey() (byte, error) {
	fd := int(os.Stdin.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return 0, err
	}
	defer term.Restore(fd, state)

	buf := make([]byte, 3)
	n, err := os.Stdin.Read(buf)
	if err != nil {
		return 0, err
	}

	if n >= 3 && buf[0] == 0x1b && buf[1] == '[' {
		switch buf[2] {
		case 'C':
			return 'l', nil
		case 'D':
			return 'h', nil
		}
		return 0, nil
	}

	// Ctrl-C quits like 'q'.
	if buf[0] == 0x03 {
		return 'q', nil
	}

	return buf[0], nil
}

func (a *app) pickLabeler(ctx context.Context) error {
	roster := a.session.Roster()

	const newEntry = "__new__"
	options := make([]huh.Option[string], 0, len(roster)+1)
	for _, pair := range roster {
		options = append(options, huh.NewOption(pair[1], pair[0]))
	}
	options = append(options, huh.NewOption("Create new labeler...", newEntry))

	var choice string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Who is annotating?").
			Options(options...).
			Value(&choice),
	))
	if err := form.Run(); err != nil {
		return err
	}

	if choice != newEntry {
		for _, pair := range roster {
			if pair[0] == choice {
				return a.session.SetLabeler(ctx, pair[0], pair[1])
			}
		}
	}

	var name string
	form = huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Your name").
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("name cannot be empty")
				}
				return nil
			}).
			Value(&name),
	))
	if err := form.Run(); err != nil {
		return err
	}

	return a.session.CreateLabeler(ctx, strings.TrimSpace(name))
}

func (a *app) editNote(ctx context.Context) error {
	note := a.session.Note()
	if note == session.PlaceholderNote {
		note = ""
	}

	form := huh.NewForm(huh.NewGroup(
		huh.NewText().
			Title("Open code").
			Description("What did you observe? Free text, saved verbatim.").
			Value(&note),
	))
	if err := form.Run(); err != nil {
		return err
	}

	return a.session.SaveNote(ctx, note)
}

func (a *app) attachMode(ctx context.Context) error {
	detail := a.session.Current()
	if detail == nil {
		return session.ErrNoEmails
	}

	const newEntry = "__new__"
	options := make([]huh.Option[string], 0, len(detail.AvailableFailureModes)+1)
	for _, fm := range detail.AvailableFailureModes {
		options = append(options, huh.NewOption(fm.DisplayName, fm.DisplayName))
	}
	options = append(options, huh.NewOption("New failure mode...", newEntry))

	var choice string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Attach failure mode").
			Options(options...).
			Value(&choice),
	))
	if err := form.Run(); err != nil {
		return err
	}

	definition := ""
	if choice == newEntry {
		form = huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Failure mode name").Value(&choice),
			huh.NewInput().Title("Definition (optional)").Value(&definition),
		))
		if err := form.Run(); err != nil {
			return err
		}
	}

	return a.session.AttachFailureMode(ctx, choice, definition)
}

func (a *app) detachMode(ctx context.Context) error {
	detail := a.session.Current()
	if detail == nil || len(detail.FailureModes) == 0 {
		return session.ErrNoSuchLink
	}

	options := make([]huh.Option[string], 0, len(detail.FailureModes))
	for _, fm := range detail.FailureModes {
		options = append(options, huh.NewOption(fm.DisplayName, fm.FailureModeID))
	}

	var choice string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Detach failure mode").
			Options(options...).
			Value(&choice),
	))
	if err := form.Run(); err != nil {
		return err
	}

	return a.session.DetachFailureMode(ctx, choice)
}

func (a *app) suggestModes(ctx context.Context) error {
	suggestions, err := a.session.Suggest(ctx)
	if err != nil {
		return err
	}
	if len(suggestions) == 0 {
		return errors.New("no suggestions for this email")
	}

	options := make([]huh.Option[int], 0, len(suggestions))
	for i, s := range suggestions {
		label := s.DisplayName
		if s.Definition != "" {
			label += ": " + s.Definition
		}
		options = append(options, huh.NewOption(label, i))
	}

	var pick int
	var confirm bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[int]().
			Title("Suggested failure modes").
			Options(options...).
			Value(&pick),
		huh.NewConfirm().
			Title("Attach the selected mode?").
			Value(&confirm),
	))
	if err := form.Run(); err != nil {
		return err
	}
	if !confirm {
		return nil
	}

	chosen := suggestions[pick]
	return a.session.AttachFailureMode(ctx, chosen.DisplayName, chosen.Definition)
}
