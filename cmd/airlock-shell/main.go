// Copyright 2026 The Airlock Authors
// SPDX-License-Identifier: Apache-2.0

// Airlock-shell is the controller-side REPL for a running agent. It
// spawns the agent command, sends one line per prompt, and prints the
// agent's event lines until the end-of-turn marker, colorizing tool
// and error lines when stdout is a terminal.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/airlock-foundation/airlock/bridge"
	"github.com/airlock-foundation/airlock/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var agentCommand string
	var noColor bool
	var showVersion bool

	pflag.StringVar(&agentCommand, "agent", "airlock-agent", "agent command to spawn (arguments after -- are passed through)")
	pflag.BoolVar(&noColor, "no-color", false, "disable colored output")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Printf("airlock-shell %s\n", version.Info())
		return nil
	}

	styles := newStyles(!noColor && term.IsTerminal(int(os.Stdout.Fd())))

	command := exec.Command(agentCommand, pflag.Args()...)
	command.Stderr = os.Stderr

	agentInput, err := command.StdinPipe()
	if err != nil {
		return fmt.Errorf("creating agent stdin pipe: %w", err)
	}
	agentOutput, err := command.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating agent stdout pipe: %w", err)
	}
	if err := command.Start(); err != nil {
		return fmt.Errorf("starting agent: %w", err)
	}

	replErr := repl(os.Stdin, agentInput, agentOutput, styles)

	agentInput.Close()
	if waitErr := command.Wait(); replErr == nil && waitErr != nil {
		return fmt.Errorf("agent exited: %w", waitErr)
	}
	return replErr
}

// repl reads prompts from the user and turn output from the agent,
// strictly alternating: one prompt, then lines until the marker.
func repl(userInput io.Reader, agentInput io.Writer, agentOutput io.Reader, styles styles) error {
	userLines := bufio.NewScanner(userInput)
	agentLines := bufio.NewScanner(agentOutput)
	agentLines.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print(styles.prompt.Render("> "))
		if !userLines.Scan() {
			if err := userLines.Err(); err != nil {
				return fmt.Errorf("reading prompt: %w", err)
			}
			fmt.Println()
			return nil
		}
		prompt := userLines.Text()
		if strings.TrimSpace(prompt) == "" {
			continue
		}

		if _, err := io.WriteString(agentInput, prompt+"\n"); err != nil {
			return fmt.Errorf("writing to agent: %w", err)
		}

		for agentLines.Scan() {
			line := agentLines.Text()
			if line == bridge.EndTurnMarker {
				break
			}
			fmt.Println(styles.render(line))
		}
		if err := agentLines.Err(); err != nil {
			return fmt.Errorf("reading agent output: %w", err)
		}
	}
}

type styles struct {
	enabled bool
	prompt  lipgloss.Style
	tool    lipgloss.Style
	failure lipgloss.Style
}

func newStyles(enabled bool) styles {
	if !enabled {
		plain := lipgloss.NewStyle()
		return styles{prompt: plain, tool: plain, failure: plain}
	}
	return styles{
		enabled: true,
		prompt:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		tool:    lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		failure: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
}

// render styles one agent output line: tool invocations ("[bash] …")
// in cyan, errors in red, prose untouched.
func (s styles) render(line string) string {
	if !s.enabled {
		return line
	}
	switch {
	case strings.HasPrefix(line, "[error]"):
		return s.failure.Render(line)
	case strings.HasPrefix(line, "[") && strings.Contains(line, "]"):
		return s.tool.Render(line)
	default:
		return line
	}
}
