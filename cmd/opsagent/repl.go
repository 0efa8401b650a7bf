package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/opsagent/internal/nlp"
	"github.com/fyrsmithlabs/opsagent/internal/session"
	"github.com/fyrsmithlabs/opsagent/internal/workflow"
)

const prompt = "opsagent> "

// processor runs one request against a session.
type processor interface {
	Process(ctx context.Context, sess *session.Session, text string) workflow.Result
}

type styles struct {
	title  lipgloss.Style
	hint   lipgloss.Style
	prompt lipgloss.Style
	ok     lipgloss.Style
	notice lipgloss.Style
	failed lipgloss.Style
}

func newStyles(out io.Writer) styles {
	r := lipgloss.NewRenderer(out)
	return styles{
		title:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("51")),
		hint:   r.NewStyle().Faint(true),
		prompt: r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		ok:     r.NewStyle().Foreground(lipgloss.Color("42")),
		notice: r.NewStyle().Foreground(lipgloss.Color("214")),
		failed: r.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

type repl struct {
	router  processor
	session *session.Session
	in      io.Reader
	out     io.Writer
	styles  styles

	policy       string
	cloud, local string
}

func runREPL(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	reg, err := a.Services()
	if err != nil {
		return err
	}
	sess, err := reg.Sessions().Create(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = reg.Sessions().Delete(context.Background(), sess.ID) }()

	r := &repl{
		router:  reg.Router(),
		session: sess,
		in:      cmd.InOrStdin(),
		out:     cmd.OutOrStdout(),
		styles:  newStyles(cmd.OutOrStdout()),
	}
	if g := reg.Gate(); g != nil {
		r.policy = string(g.Policy())
	}
	r.cloud, r.local = reg.Models()
	return r.run(ctx)
}

// run reads one request per line until an exit word, EOF or ctx is done.
func (r *repl) run(ctx context.Context) error {
	fmt.Fprintln(r.out, r.banner())

	done := make(chan struct{})
	defer close(done)
	lines, errc := readLines(r.in, done)

	for {
		fmt.Fprint(r.out, r.styles.prompt.Render(prompt))
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				return <-errc
			}
			line = strings.TrimSpace(line)
			switch {
			case isExit(line):
				return nil
			case strings.EqualFold(line, "help"):
				fmt.Fprintln(r.out, r.help())
			default:
				fmt.Fprintln(r.out, r.render(r.router.Process(ctx, r.session, line)))
			}
		}
	}
}

// maxLineBytes bounds one request line; pasted manifests and log excerpts
// exceed bufio's 64 KiB default.
const maxLineBytes = 1 << 20

func readLines(in io.Reader, done <-chan struct{}) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineBytes)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				errc <- nil
				return
			}
		}
		errc <- scanner.Err()
	}()
	return lines, errc
}

func isExit(line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "exit", "quit", "q":
		return true
	}
	return false
}

func (r *repl) banner() string {
	var b strings.Builder
	b.WriteString(r.styles.title.Render("opsagent " + version))
	b.WriteString("\n")

	var details []string
	if r.policy != "" {
		details = append(details, "safety policy: "+r.policy)
	}
	switch {
	case r.cloud != "" && r.local != "":
		details = append(details, fmt.Sprintf("models: %s, %s (fallback)", r.cloud, r.local))
	case r.cloud != "":
		details = append(details, "model: "+r.cloud)
	case r.local != "":
		details = append(details, "model: "+r.local)
	default:
		details = append(details, "explanations off")
	}
	b.WriteString(r.styles.hint.Render(strings.Join(details, " | ")))
	b.WriteString("\n")
	b.WriteString(r.styles.hint.Render("Type a request, 'help' for examples, 'exit' to quit."))
	return b.String()
}

func (r *repl) help() string {
	var b strings.Builder
	b.WriteString(r.styles.title.Render("Recognized requests"))
	for _, intent := range nlp.AllIntents() {
		kw := nlp.Keywords(intent)
		if len(kw) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n  %-9s %s", intent, r.styles.hint.Render(strings.Join(kw, ", ")))
	}
	b.WriteString("\n")
	b.WriteString(r.styles.hint.Render("Entities: app, replicas (\"3 replicas\"), namespace (\"in prod\"), image, version, provider."))
	return b.String()
}

func (r *repl) render(res workflow.Result) string {
	msg := res.Message()
	switch res.Kind {
	case workflow.KindOK:
		return r.styles.ok.Render(msg)
	case workflow.KindExecutionError, workflow.KindRouterError:
		return r.styles.failed.Render(msg)
	default:
		return r.styles.notice.Render(msg)
	}
}
