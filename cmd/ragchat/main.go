// Command ragchat runs the question answering service and its maintenance tasks.
//
//	ragchat serve [-ingest]       start the HTTP server
//	ragchat ingest [source]       load a source into the vector store
//	ragchat ask [-stream] <q>     answer one question on the terminal
//	ragchat graph [-mermaid]      print the pipeline graph
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/smallnest/ragchat/config"
	"github.com/smallnest/ragchat/log"
	"github.com/smallnest/ragchat/rag"
	"github.com/smallnest/ragchat/rag/generator"
	"github.com/smallnest/ragchat/rag/ingest"
	"github.com/smallnest/ragchat/server"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	answerStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: ragchat <serve|ingest|ask|graph> [flags]")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1], os.Args[2:], os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "serve", "ingest", "ask", "graph":
	case "help", "-h", "--help":
		usage(out)
		return nil
	default:
		usage(os.Stderr)
		return fmt.Errorf("unknown command %q", cmd)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := log.NewServiceLogger(level)
	log.SetDefaultLogger(logger)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	switch cmd {
	case "serve":
		return a.serve(ctx, args)
	case "ingest":
		return a.ingest(ctx, args, out)
	case "ask":
		return a.ask(ctx, args, out)
	default:
		return a.graph(args, out)
	}
}

func (a *app) serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	ingestFirst := fs.Bool("ingest", false, "ingest the configured source before serving")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *ingestFirst {
		report, err := a.ingester.Ingest(ctx, a.cfg.Ingest.SourceURL)
		if err != nil {
			return err
		}
		a.logger.Info("ingested %d chunks from %s", report.Chunks, report.Source)
	}

	srv, err := server.New(server.Options{
		Pipeline:      a.engine,
		Chatter:       a.generator,
		Ingester:      a.ingester,
		DefaultSource: a.cfg.Ingest.SourceURL,
		CORSOrigins:   a.cfg.Server.CORSOrigins,
		Logger:        a.logger,
	})
	if err != nil {
		return err
	}
	return srv.Run(ctx, a.cfg.Addr())
}

func (a *app) ingest(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	source := a.cfg.Ingest.SourceURL
	if fs.NArg() > 0 {
		source = fs.Arg(0)
	}

	report, err := a.ingester.Ingest(ctx, source)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, renderReport(report))
	return nil
}

func (a *app) ask(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	stream := fs.Bool("stream", false, "print the answer as it is generated")
	if err := fs.Parse(args); err != nil {
		return err
	}
	question := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(question) == "" {
		return errors.New("ask: a question is required")
	}

	if !*stream {
		state, err := a.engine.Answer(ctx, question)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, renderAnswer(state))
		return nil
	}

	state, s, err := a.engine.AnswerStream(ctx, question)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, renderQuery(state))
	var b strings.Builder
	for fragment := range s.Fragments() {
		b.WriteString(fragment)
		fmt.Fprint(out, fragment)
	}
	fmt.Fprintln(out)
	if err := s.Err(); err != nil {
		return err
	}
	if s.Outcome() == generator.OutcomeFallback {
		fmt.Fprintln(out, mutedStyle.Render("(streaming unavailable, showing full response)"))
	}
	state.Answer = b.String()
	return a.engine.Record(ctx, *state, s.Outcome())
}

func (a *app) graph(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("graph", flag.ContinueOnError)
	mermaid := fs.Bool("mermaid", false, "print a mermaid diagram instead of ASCII")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *mermaid {
		fmt.Fprintln(out, a.engine.Mermaid())
	} else {
		fmt.Fprintln(out, a.engine.ASCII())
	}
	return nil
}

func renderQuery(state *rag.State) string {
	if state.Query == nil || state.Query.Section == "" {
		return mutedStyle.Render(fmt.Sprintf("searched all sections, %d chunks", len(state.Context)))
	}
	return mutedStyle.Render(fmt.Sprintf("searched %q in section %s, %d chunks",
		state.Query.Query, state.Query.Section, len(state.Context)))
}

func renderAnswer(state *rag.State) string {
	var b strings.Builder
	b.WriteString(renderQuery(state))
	b.WriteString("\n")
	b.WriteString(answerStyle.Render(state.Answer))
	if sources := state.Sources(); len(sources) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("Sources"))
		for _, src := range sources {
			b.WriteString("\n  ")
			b.WriteString(src)
		}
	}
	return b.String()
}

func renderReport(r *ingest.Report) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Ingested %d chunks", r.Chunks)))
	b.WriteString(mutedStyle.Render(fmt.Sprintf(" from %s in %s", r.Source, r.Duration)))
	for _, section := range rag.Sections {
		fmt.Fprintf(&b, "\n  %-9s %d", section, r.Sections[section])
	}
	return b.String()
}
