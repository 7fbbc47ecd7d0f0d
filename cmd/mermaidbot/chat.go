package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/PabloGalante/mermaidbot/internal/app/conversation"
	"github.com/PabloGalante/mermaidbot/internal/domain"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Design a diagram in an interactive terminal session",
	Long: `Start a terminal conversation. Press Enter to send; end a line with "\" to
keep typing on the next one. Type /help for commands.`,
	RunE: runChat,
}

const chatHelp = `Commands:
  /new          start a new session
  /copy         copy the current diagram source to the clipboard
  /diagram      print the current diagram source
  /svg <file>   write the rendered preview to a file
  /help         show this help
  /quit         leave

Start an entry with "//" to send text that begins with "/".
`

var chatCommands = map[string]bool{
	"/new": true, "/copy": true, "/diagram": true, "/svg": true,
	"/help": true, "/quit": true, "/exit": true,
}

// isCommand reports whether entry is meant for the REPL rather than the
// model. Known command words always are. A lone unknown word such as
// "/hlep" is treated as a mistyped command; anything longer or path-like
// ("/api/login flow") goes to the model.
func isCommand(entry string) bool {
	if !strings.HasPrefix(entry, "/") || strings.HasPrefix(entry, "//") {
		return false
	}
	fields := strings.Fields(entry)
	if chatCommands[fields[0]] {
		return true
	}
	return len(fields) == 1 && !strings.Contains(fields[0][1:], "/")
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("log-level") && cfg.LogFile == "" {
		cfg.LogLevel = "warn"
	}

	a, err := newApp(ctx, cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	out, err := a.svc.StartSession(ctx)
	if err != nil {
		return err
	}
	ctrl, err := a.svc.Get(ctx, out.Session.ID)
	if err != nil {
		return err
	}

	r := &repl{
		ctrl: ctrl,
		in:   bufio.NewScanner(cmd.InOrStdin()),
		out:  cmd.OutOrStdout(),
		copy: clipboard.WriteAll,
	}
	return r.run(ctx)
}

// repl drives one Controller from line-oriented input.
type repl struct {
	ctrl *conversation.Controller
	in   *bufio.Scanner
	out  io.Writer
	copy func(string) error
}

func (r *repl) run(ctx context.Context) error {
	r.printMessage(r.ctrl.Snapshot().Transcript[0])

	for {
		text, ok := r.readEntry()
		if !ok {
			return r.in.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		trimmed := strings.TrimSpace(text)
		if isCommand(trimmed) {
			if quit := r.command(trimmed); quit {
				return nil
			}
			continue
		}
		if strings.HasPrefix(trimmed, "//") {
			text = trimmed[1:]
		}

		turn, err := r.ctrl.Send(ctx, text)
		switch {
		case errors.Is(err, domain.ErrEmptyInput):
			continue
		case err != nil:
			fmt.Fprintf(r.out, "! %v\n", err)
			continue
		}

		r.printMessage(turn.AssistantMessage)
		if turn.AssistantMessage.DiagramSource != "" {
			r.ctrl.Wait()
			r.printPreview()
		}
	}
}

// readEntry reads one entry; lines ending in a backslash continue it.
func (r *repl) readEntry() (string, bool) {
	var lines []string
	prompt := "you> "
	for {
		fmt.Fprint(r.out, prompt)
		if !r.in.Scan() {
			return strings.Join(lines, "\n"), len(lines) > 0
		}
		line := r.in.Text()
		if strings.HasSuffix(line, `\`) {
			lines = append(lines, strings.TrimSuffix(line, `\`))
			prompt = "...> "
			continue
		}
		lines = append(lines, line)
		return strings.Join(lines, "\n"), true
	}
}

func (r *repl) command(line string) (quit bool) {
	fields := strings.Fields(line)
	snap := r.ctrl.Snapshot()

	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprint(r.out, chatHelp)
	case "/new":
		fresh := r.ctrl.Reset()
		fmt.Fprintln(r.out, "-- new session --")
		r.printMessage(fresh.Transcript[0])
	case "/diagram":
		if snap.LatestDiagramSource == "" {
			fmt.Fprintln(r.out, "No diagram yet.")
			return false
		}
		fmt.Fprintln(r.out, snap.LatestDiagramSource)
	case "/copy":
		if snap.LatestDiagramSource == "" {
			fmt.Fprintln(r.out, "No diagram yet.")
			return false
		}
		if err := r.copy(snap.LatestDiagramSource); err != nil {
			fmt.Fprintf(r.out, "! copy failed: %v\n", err)
			return false
		}
		fmt.Fprintln(r.out, "Diagram source copied to clipboard.")
	case "/svg":
		if len(fields) < 2 {
			fmt.Fprintln(r.out, "usage: /svg <file>")
			return false
		}
		if snap.Preview == nil || !snap.Preview.IsRendered() {
			fmt.Fprintln(r.out, "No rendered diagram to save.")
			return false
		}
		if err := os.WriteFile(fields[1], []byte(snap.Preview.SVG), 0o644); err != nil {
			fmt.Fprintf(r.out, "! %v\n", err)
			return false
		}
		fmt.Fprintf(r.out, "Saved %s\n", fields[1])
	default:
		fmt.Fprintf(r.out, "Unknown command %s. Type /help.\n", fields[0])
	}
	return false
}

func (r *repl) printMessage(m domain.Message) {
	fmt.Fprintf(r.out, "bot> %s\n", m.Content)
}

func (r *repl) printPreview() {
	p := r.ctrl.Snapshot().Preview
	switch {
	case p == nil:
		return
	case p.IsRendered():
		fmt.Fprintf(r.out, "[diagram rendered: %s, /svg <file> to save, /copy for source]\n", p.RenderID)
	default:
		fmt.Fprintf(r.out, "[diagram error] %s\n%s\n%s\n", p.Message, p.RawSource, p.Hint)
	}
}
