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

// Package goja provides a core.Interpreter for Conditional scripts
// using Goja, which is a Go implementation of ECMAScript 5.1+.
//
// See https://github.com/dop251/goja.
package goja

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Comcast/experiences/core"
	"github.com/Comcast/experiences/expr"
	"github.com/Comcast/experiences/util"

	"github.com/dop251/goja"
	json "github.com/goccy/go-json"
	"github.com/gorhill/cronexpr"
	"go.uber.org/zap"
)

// Interrupted is returned by Exec when a script is stopped by its
// context or its Timeout.
var Interrupted = errors.New("RuntimeError: timeout")

// DefaultTimeout is the Timeout that NewInterpreter sets.
const DefaultTimeout = time.Second

func init() {
	core.DefaultInterpreters["goja"] = NewInterpreter()
}

// Interpreter implements core.Interpreter.
//
// A script is the body of a function that returns the script's
// result.  The script sees the scopes at _.data, _.urlParameters,
// _.userInfo, and _.deviceContext, along with some helpers:
//
//	_.esc(s)       query-escape s
//	_.cronNext(e)  the next time (RFC3339) for a cron expression
//	_.log(x)       log x at debug level and return it
//
// The scopes are copies, so a script can't change a session's data.
type Interpreter struct {
	// Libraries are the sources that a script can name in
	// "requires".  A library can require others with top-level
	// require("name") statements.  Scripts can't load code from
	// anywhere else.
	Libraries map[string]string

	// Timeout bounds each Exec.  Zero leaves only the context's
	// deadline.
	Timeout time.Duration

	// Testing adds sleep(ms) to the runtime.
	Testing bool

	Logger *zap.Logger
}

// NewInterpreter makes an Interpreter with DefaultTimeout and no
// libraries.
func NewInterpreter() *Interpreter {
	return &Interpreter{
		Timeout: DefaultTimeout,
	}
}

// source is a script's code and the libraries it requires.
type source struct {
	code     string
	requires []string
}

// parseSource accepts either a string or an object with "code" and
// optional "requires", which is a name or a list of names.
func parseSource(src interface{}) (*source, error) {
	switch vv := src.(type) {
	case string:
		return &source{code: vv}, nil
	case map[string]interface{}:
		code, is := vv["code"].(string)
		if !is {
			return nil, errors.New("script has no code")
		}
		s := &source{code: code}
		switch rs := vv["requires"].(type) {
		case nil:
		case string:
			s.requires = []string{rs}
		case []interface{}:
			for _, r := range rs {
				name, is := r.(string)
				if !is {
					return nil, fmt.Errorf("bad library name %#v", r)
				}
				s.requires = append(s.requires, name)
			}
		default:
			return nil, fmt.Errorf("bad requires (%T)", rs)
		}
		return s, nil
	}
	return nil, fmt.Errorf("bad script source (%T)", src)
}

// Compile links the required libraries ahead of the script and
// compiles the result to a *goja.Program.
func (i *Interpreter) Compile(ctx context.Context, src interface{}) (interface{}, error) {
	s, err := parseSource(src)
	if err != nil {
		return nil, err
	}
	libs, err := i.link(s.requires)
	if err != nil {
		return nil, err
	}
	code := libs + "(function() {\n" + s.code + "\n}());\n"
	p, err := goja.Compile("", code, true)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	return p, nil
}

// Exec runs the script (compiling it first if compiled is nil) and
// returns its result as plain JSON-like values.
func (i *Interpreter) Exec(ctx context.Context, s expr.Scopes, src interface{}, compiled interface{}) (interface{}, error) {
	if compiled == nil {
		var err error
		if compiled, err = i.Compile(ctx, src); err != nil {
			return nil, err
		}
	}
	p, is := compiled.(*goja.Program)
	if !is {
		return nil, fmt.Errorf("not a compiled script: %T", compiled)
	}

	env, err := scopesEnv(s)
	if err != nil {
		return nil, err
	}

	o := goja.New()
	i.helpers(o, env)
	o.Set("_", env)

	if 0 < i.Timeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.Timeout)
		defer cancel()
	}
	// Once RunProgram returns, an interrupt is moot.
	stop := context.AfterFunc(ctx, func() {
		o.Interrupt(Interrupted)
	})
	v, err := o.RunProgram(p)
	stop()

	if err != nil {
		var ie *goja.InterruptedError
		if errors.As(err, &ie) {
			return nil, Interrupted
		}
		return nil, err
	}

	return core.Plain(v.Export())
}

func (i *Interpreter) helpers(o *goja.Runtime, env map[string]interface{}) {
	throw := func(msg string) {
		panic(o.ToValue(msg))
	}

	env["esc"] = func(s string) string {
		return url.QueryEscape(s)
	}

	env["cronNext"] = func(e string) string {
		c, err := cronexpr.Parse(e)
		if err != nil {
			throw(err.Error())
		}
		return c.Next(time.Now()).UTC().Format(time.RFC3339)
	}

	logger := util.OrNop(i.Logger)
	env["log"] = func(x goja.Value) goja.Value {
		logger.Debug("script", zap.Any("x", x.Export()))
		return x
	}

	if i.Testing {
		o.Set("sleep", func(ms int) {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		})
	}
}

// scopesEnv copies the scopes into a fresh map for the runtime's _.
func scopesEnv(s expr.Scopes) (map[string]interface{}, error) {
	js, err := json.Marshal(map[string]interface{}{
		expr.DataScope:          s.Data,
		expr.URLParametersScope: s.URLParameters,
		expr.UserInfoScope:      s.UserInfo,
		expr.DeviceContextScope: s.DeviceContext,
	})
	if err != nil {
		return nil, err
	}
	var env map[string]interface{}
	if err = json.Unmarshal(js, &env); err != nil {
		return nil, err
	}
	return env, nil
}
