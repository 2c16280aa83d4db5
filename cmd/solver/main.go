// Command solver plays a Pathpath session through the REST API. For each
// level it searches waypoint plans whose walks never meet, submits them one
// agent at a time and runs the simulation, retrying with the next plan when
// the server reports a collision.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/wricardo/pathpath/game/engine"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand().Run(ctx, os.Args); err != nil {
		log.Fatalf("%v", err)
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "solver",
		Usage: "solve Pathpath levels through the REST API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:8080", Usage: "Game server URL"},
			&cli.StringFlag{Name: "level", Usage: "Level to start from (default: first level)"},
			&cli.StringFlag{Name: "continue", Usage: "Resume an existing session by ID"},
			&cli.IntFlag{Name: "max-attempts", Value: 10, Usage: "Maximum simulation runs per level"},
			&cli.IntFlag{Name: "candidates", Value: 20, Usage: "Candidate routes considered per agent"},
			&cli.BoolFlag{Name: "keep-going", Usage: "Advance past levels that could not be cleared"},
			&cli.BoolFlag{Name: "v", Usage: "Verbose output"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return run(ctx, cmd.Root().Writer, options{
				url:        cmd.String("url"),
				level:      cmd.String("level"),
				session:    cmd.String("continue"),
				attempts:   int(cmd.Int("max-attempts")),
				candidates: int(cmd.Int("candidates")),
				keepGoing:  cmd.Bool("keep-going"),
				verbose:    cmd.Bool("v"),
			})
		},
	}
}

type options struct {
	url        string
	level      string
	session    string
	attempts   int
	candidates int
	keepGoing  bool
	verbose    bool
}

func run(ctx context.Context, w io.Writer, opts options) error {
	log.Printf("Connecting to game server at %s", opts.url)
	client := NewClient(opts.url)

	levels, err := client.Levels(ctx)
	if err != nil {
		return fmt.Errorf("list levels: %w", err)
	}
	strict := make(map[int]bool, len(levels))
	for _, l := range levels {
		strict[l.ID] = l.StrictSegments
	}

	var snap *engine.Snapshot
	if opts.session != "" {
		log.Printf("🔄 Resuming session: %s", opts.session)
		snap, err = client.Resume(ctx, opts.session)
	} else {
		snap, err = client.CreateSession(ctx, opts.level)
		if err == nil {
			log.Printf("✨ Session created: %s", client.sessionID)
		}
	}
	if err != nil {
		return err
	}

	if opts.attempts < 1 {
		opts.attempts = 1
	}
	solver := &Solver{
		client:     client,
		strict:     strict,
		candidates: opts.candidates,
		attempts:   opts.attempts,
		keepGoing:  opts.keepGoing,
		verbose:    opts.verbose,
	}

	results, err := solver.Solve(ctx, snap)
	if err != nil {
		return err
	}

	cleared := 0
	for _, r := range results {
		status := "❌"
		if r.Cleared {
			status = "✅"
			cleared++
		}
		outcome := "no run"
		if r.Outcome != nil {
			outcome = r.Outcome.String()
		}
		fmt.Fprintf(w, "%s %s: %d attempt(s), %s\n", status, r.Name, r.Attempts, outcome)
	}
	fmt.Fprintf(w, "Session: %s\n", client.sessionID)

	if cleared != len(results) || len(results) == 0 {
		return fmt.Errorf("cleared %d of %d levels", cleared, len(results))
	}
	fmt.Fprintf(w, "🎉 All %d levels cleared\n", cleared)
	return nil
}
