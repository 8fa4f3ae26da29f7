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
	"context"
	"sync"

	"github.com/Comcast/experiences/util"

	"go.uber.org/zap"
)

// Couplings deliver renders somewhere.
//
// For example, an implementation could write renders to stdout or
// publish them to an MQTT broker.
type Couplings interface {
	// Start initializes the Couplings.
	Start(context.Context) error

	// Publish delivers a render.
	Publish(context.Context, *Render) error

	// Stop shuts down the Couplings.
	Stop(context.Context) error
}

// Commander is implemented by Couplings that can also drive a
// session.
type Commander interface {
	// Commands returns a channel of commands, which is closed
	// when there will be no more.
	Commands(context.Context) (<-chan *Command, error)
}

// Command is a request from a client.
type Command struct {
	// Navigate, if not empty, is a screen id.
	Navigate string `json:"navigate,omitempty"`

	// Refresh refetches all data sources.
	Refresh bool `json:"refresh,omitempty"`

	// Quit ends the session.
	Quit bool `json:"quit,omitempty"`
}

// Exec performs the command on the session.
func (c *Command) Exec(ctx context.Context, s *Session) error {
	if c.Navigate != "" {
		if err := s.Navigate(ctx, c.Navigate); err != nil {
			return err
		}
	}
	if c.Refresh {
		if err := s.Refresh(ctx); err != nil {
			return err
		}
	}
	if c.Quit {
		return s.Close()
	}
	return nil
}

// Pump starts the couplings, forwards the session's renders to all of
// them, and executes commands from those that are Commanders.
//
// Pump returns after the session's Out is closed (or ctx is done),
// and it stops the couplings before returning.  Publishing errors
// are logged, not returned.
func Pump(ctx context.Context, s *Session, logger *zap.Logger, cs ...Couplings) error {
	logger = util.OrNop(logger)

	for i, c := range cs {
		if err := c.Start(ctx); err != nil {
			stopAll(cs[:i], logger)
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	for _, c := range cs {
		cmdr, is := c.(Commander)
		if !is {
			continue
		}
		cmds, err := cmdr.Commands(ctx)
		if err != nil {
			cancel()
			wg.Wait()
			stopAll(cs, logger)
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case cmd, ok := <-cmds:
					if !ok {
						return
					}
					if err := cmd.Exec(ctx, s); err != nil {
						logger.Warn("command", zap.Any("cmd", cmd), zap.Error(err))
					}
				}
			}
		}()
	}

LOOP:
	for {
		select {
		case <-ctx.Done():
			break LOOP
		case r, ok := <-s.Out:
			if !ok {
				break LOOP
			}
			for _, c := range cs {
				if err := c.Publish(ctx, r); err != nil {
					logger.Warn("publish", zap.Uint64("seq", r.Seq), zap.Error(err))
				}
			}
		}
	}

	cancel()
	wg.Wait()

	var err error
	for _, c := range cs {
		if e := c.Stop(context.Background()); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// stopAll stops couplings that Pump started but can't use.
func stopAll(cs []Couplings, logger *zap.Logger) {
	for _, c := range cs {
		if err := c.Stop(context.Background()); err != nil {
			logger.Warn("stop", zap.Error(err))
		}
	}
}
