package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/MJE43/coindle/internal/engine"
	"github.com/MJE43/coindle/internal/session"
	"github.com/MJE43/coindle/internal/stats"
)

// errQuit ends the game loop without an error exit.
var errQuit = errors.New("quit")

// game drives a session from line-oriented terminal input.
type game struct {
	sess        *session.Session
	in          *bufio.Scanner
	out         io.Writer
	revealDelay time.Duration
}

func newGame(sess *session.Session, in io.Reader, out io.Writer, revealDelay time.Duration) *game {
	return &game{
		sess:        sess,
		in:          bufio.NewScanner(in),
		out:         out,
		revealDelay: revealDelay,
	}
}

// run plays until the day is finalized, the player quits or input ends.
func (g *game) run(ctx context.Context) error {
	if err := g.sess.Load(ctx); err != nil {
		return err
	}

	view := g.sess.View()
	fmt.Fprintf(g.out, "🪙 Coindle %s\n", view.Day)
	if view.State == session.Finalized {
		fmt.Fprintf(g.out, "You already played today. Final streak: %d\n", view.Streak)
		g.finish()
		return nil
	}

	for {
		if reset, err := g.sess.Refresh(ctx); err != nil {
			return err
		} else if reset {
			fmt.Fprintf(g.out, "A new day has started: %s\n", g.sess.View().Day)
		}

		side, err := g.prompt()
		if errors.Is(err, errQuit) {
			fmt.Fprintln(g.out, "Bye! Your streak was not recorded.")
			return nil
		}
		if err != nil {
			return err
		}

		if !g.sess.Guess(side) {
			continue
		}
		res, err := g.flip(ctx)
		if err != nil {
			return err
		}

		if res.Won {
			fmt.Fprintf(g.out, "It's %s! Streak: %d\n", res.Outcome, res.Streak)
			if err := g.sess.Continue(); err != nil {
				return err
			}
			continue
		}

		fmt.Fprintf(g.out, "It's %s. Game over! Final streak: %d\n", res.Outcome, res.Streak)
		g.finish()
		return nil
	}
}

// prompt reads lines until one names a side.
func (g *game) prompt() (engine.Side, error) {
	for {
		fmt.Fprintf(g.out, "Streak %d. Heads or tails? [h/t, q to quit] ", g.sess.View().Streak)
		if !g.in.Scan() {
			if err := g.in.Err(); err != nil {
				return "", err
			}
			return "", errQuit
		}

		line := strings.TrimSpace(g.in.Text())
		if strings.EqualFold(line, "q") || strings.EqualFold(line, "quit") {
			return "", errQuit
		}
		side, err := engine.ParseSide(line)
		if err != nil {
			fmt.Fprintln(g.out, "Please type h or t.")
			continue
		}
		return side, nil
	}
}

// flip paces the reveal and applies the outcome.
func (g *game) flip(ctx context.Context) (session.Result, error) {
	fmt.Fprint(g.out, "Flipping...")
	select {
	case <-time.After(g.revealDelay):
	case <-ctx.Done():
		return session.Result{}, ctx.Err()
	}
	fmt.Fprintln(g.out)

	if _, err := g.sess.Reveal(); err != nil {
		return session.Result{}, err
	}
	return g.sess.Resolve(ctx)
}

// finish waits for the background submit or query and prints stats and the share text.
func (g *game) finish() {
	if g.sess.View().Stats.Status == session.StatsPending {
		fmt.Fprintln(g.out, "Fetching today's stats...")
	}
	g.sess.Wait()

	printStats(g.out, g.sess.View().Stats)
	fmt.Fprintf(g.out, "\n%s\n", g.sess.ShareText())
}

func printStats(out io.Writer, v session.StatsView) {
	switch v.Status {
	case session.StatsReady:
		printSnapshot(out, v.Snapshot)
	case session.StatsRejected:
		fmt.Fprintln(out, "The stats server did not accept this score.")
	case session.StatsUnavailable, session.StatsPending:
		fmt.Fprintln(out, "Stats are unavailable right now. Your result is saved.")
	}
}

func printSnapshot(out io.Writer, s stats.Snapshot) {
	fmt.Fprintf(out, "Players today: %d\n", s.TotalPlayers)
	fmt.Fprintf(out, "Average streak: %.2f\n", s.AverageScore)
	fmt.Fprintf(out, "Top streak: %d\n", s.TopScore)
	if s.Percentile != nil {
		fmt.Fprintf(out, "You beat %d%% of players\n", *s.Percentile)
	}
}
