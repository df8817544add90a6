package omnifocus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
	"time"
)

// Executor runs one automation script against the application.
type Executor interface {
	Execute(ctx context.Context, script Script, params map[string]any) (json.RawMessage, error)
}

const DefaultTimeout = 2 * time.Minute

/*
OsascriptExecutor runs embedded JXA scripts through `osascript -l JavaScript`, feeding the
script on stdin. A script signals an expected failure by returning {"error": true, "message"}.
*/
type OsascriptExecutor struct {
	// Path of the osascript binary.
	Path    string
	Timeout time.Duration
	Logger  *log.Logger
}

func NewOsascriptExecutor(path string, timeout time.Duration, logger *log.Logger) *OsascriptExecutor {
	if path == "" {
		path = "osascript"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &OsascriptExecutor{Path: path, Timeout: timeout, Logger: logger}
}

func (x *OsascriptExecutor) Execute(ctx context.Context, script Script, params map[string]any) (json.RawMessage, error) {
	src, err := Build(script, params)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, x.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, x.Path, "-l", "JavaScript")
	cmd.Stdin = strings.NewReader(src)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err = cmd.Run()
	x.Logger.Printf("script %s finished in %s", script, time.Since(start).Round(time.Millisecond))

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &Error{Kind: KindTimeout, Script: script, Message: "script timed out after " + x.Timeout.String(), Err: ctx.Err()}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		kind := classify(msg)
		if kind == KindPermission {
			msg += ". " + permissionHint
		}
		return nil, &Error{Kind: kind, Script: script, Message: msg, Err: err}
	}

	return Decode(script, stdout.Bytes())
}

/*
Decode validates script output: it must be JSON, and an object with "error": true is turned
into a *Error of kind script.
*/
func Decode(script Script, out []byte) (json.RawMessage, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return nil, &Error{Kind: KindScript, Script: script, Message: "script produced no output"}
	}
	if !json.Valid(out) {
		return nil, &Error{Kind: KindScript, Script: script, Message: fmt.Sprintf("script returned invalid JSON: %.200s", out)}
	}

	if out[0] == '{' {
		var flag struct {
			Error   bool   `json:"error"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(out, &flag); err == nil && flag.Error {
			return nil, &Error{Kind: classify(flag.Message), Script: script, Message: flag.Message}
		}
	}
	return json.RawMessage(out), nil
}
