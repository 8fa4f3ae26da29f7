/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Comcast/experiences/util"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Stdio is a fairly simple Couplings that writes renders to stdout
// and (optionally) reads commands from stdin.
type Stdio struct {
	// In, if not nil, provides commands, one per line.  A line is
	// either JSON (see Command) or one of "navigate SCREEN",
	// "refresh", or "quit".  Lines starting with '#' are ignored.
	In io.Reader

	// Out receives renders.
	Out io.Writer

	// Timestamps prepends a timestamp to each output line.
	Timestamps bool

	// Tags prefixes tags indicating type of output ("render").
	Tags bool

	// Pretty writes indented JSON.
	Pretty bool

	// Short abbreviates each render.
	Short bool

	// SnapshotFilename, if not empty, is where the last render is
	// written (as JSON) when the Stdio stops.
	SnapshotFilename string

	Logger *zap.Logger

	last *Render

	sync.Mutex
	WG sync.WaitGroup
}

// NewStdio creates a new Stdio with In and Out initialized with
// os.Stdin and os.Stdout respectively.
func NewStdio() *Stdio {
	return &Stdio{
		In:  os.Stdin,
		Out: os.Stdout,
	}
}

// Start does nothing.
func (s *Stdio) Start(ctx context.Context) error {
	return nil
}

func (s *Stdio) printf(tag, format string, args ...interface{}) {
	if s.Tags {
		format = tag + " " + format
	}
	if s.Timestamps {
		ts := fmt.Sprintf("%-31s", time.Now().UTC().Format(time.RFC3339Nano))
		format = ts + " " + format
	}
	fmt.Fprintf(s.Out, format, args...)
}

// Publish writes the render.
func (s *Stdio) Publish(ctx context.Context, r *Render) error {
	s.Lock()
	defer s.Unlock()

	s.last = r

	switch {
	case s.Short:
		s.printf("render", "%s\n", abbrev(JS(r), 70))
	case s.Pretty:
		s.printf("render", "%s\n", marshal(r, "  "))
	default:
		s.printf("render", "%s\n", JS(r))
	}
	return nil
}

// ParseCommand parses a line of input.  Returns nil for blank lines
// and comments.
func ParseCommand(line string) (*Command, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil, nil
	}
	if strings.HasPrefix(line, "{") {
		var cmd Command
		if err := json.Unmarshal([]byte(line), &cmd); err != nil {
			return nil, err
		}
		return &cmd, nil
	}
	parts := strings.Fields(line)
	switch parts[0] {
	case "navigate", "nav", "go":
		if len(parts) != 2 {
			return nil, fmt.Errorf("usage: %s SCREEN", parts[0])
		}
		return &Command{Navigate: parts[1]}, nil
	case "refresh":
		return &Command{Refresh: true}, nil
	case "quit":
		return &Command{Quit: true}, nil
	}
	return nil, fmt.Errorf("unknown command %q", parts[0])
}

// Commands reads commands from In.  EOF is treated like "quit".
func (s *Stdio) Commands(ctx context.Context) (<-chan *Command, error) {
	cmds := make(chan *Command)
	if s.In == nil {
		close(cmds)
		return cmds, nil
	}

	logger := util.OrNop(s.Logger)

	s.WG.Add(1)
	go func() {
		defer s.WG.Done()
		defer close(cmds)
		send := func(cmd *Command) bool {
			select {
			case <-ctx.Done():
				return false
			case cmds <- cmd:
				return true
			}
		}
		in := bufio.NewReader(s.In)
		for {
			line, err := in.ReadString('\n')
			if err != nil && err != io.EOF {
				logger.Warn("stdin", zap.Error(err))
				return
			}
			cmd, perr := ParseCommand(line)
			if perr != nil {
				fmt.Fprintf(os.Stderr, "bad input: %s\n", perr)
			}
			if cmd != nil && !send(cmd) {
				return
			}
			if err == io.EOF {
				send(&Command{Quit: true})
				return
			}
		}
	}()

	return cmds, nil
}

// Stop writes the snapshot if requested.
//
// Stop doesn't wait for the reader goroutine, which can be blocked
// reading In.
func (s *Stdio) Stop(ctx context.Context) error {
	s.Lock()
	defer s.Unlock()

	if s.SnapshotFilename == "" || s.last == nil {
		return nil
	}
	js, err := json.MarshalIndent(s.last, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.SnapshotFilename, js, 0644)
}
