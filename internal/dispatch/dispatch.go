// Package dispatch routes contact commands to the builder, the finder and
// the record store and encodes their replies.
package dispatch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/dbsmedya/gocontacts/internal/document"
	"github.com/dbsmedya/gocontacts/internal/finder"
	"github.com/dbsmedya/gocontacts/internal/logger"
	"github.com/dbsmedya/gocontacts/internal/metrics"
	"github.com/dbsmedya/gocontacts/internal/types"
)

var (
	// ErrUnknownCommand is returned for a cmd outside the command set.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMalformedMessage is returned for messages that are not JSON
	// objects or lack a required key.
	ErrMalformedMessage = errors.New("malformed message")
)

// Command is a contact command.
type Command string

const (
	CmdSave   Command = "save"
	CmdFind   Command = "find"
	CmdRemove Command = "remove"
)

// ParseCommand validates a command name.
func ParseCommand(s string) (Command, error) {
	switch c := Command(s); c {
	case CmdSave, CmdFind, CmdRemove:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, s)
	}
}

// Saver builds contact documents into the store.
type Saver interface {
	Build(ctx context.Context, doc document.Document) (document.Document, error)
}

// Finder looks contacts up.
type Finder interface {
	Find(ctx context.Context, opts finder.Options) ([]document.Document, error)
}

// Remover deletes a logical record and all of its raw records.
type Remover interface {
	DeleteLogicalRecord(ctx context.Context, id int64) error
}

// Reply is the response to one message. PromiseID echoes the request's
// _promise_id verbatim.
type Reply struct {
	PromiseID json.RawMessage `json:"_promise_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Dispatcher handles contact messages.
type Dispatcher struct {
	saver   Saver
	finder  Finder
	remover Remover
	logger  *logger.Logger
}

// New creates a Dispatcher.
func New(saver Saver, f Finder, remover Remover, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Dispatcher{saver: saver, finder: f, remover: remover, logger: log.WithComponent("dispatch")}
}

// Handle processes one message and returns its reply. It never panics on
// bad input; failures are reported in Reply.Error.
func (d *Dispatcher) Handle(ctx context.Context, message []byte) Reply {
	if !gjson.ValidBytes(message) || !gjson.ParseBytes(message).IsObject() {
		d.logger.Warnf("Dropping malformed message: %.80s", message)
		return Reply{Error: ErrMalformedMessage.Error()}
	}
	msg := gjson.ParseBytes(message)

	reply := Reply{}
	if p := msg.Get("_promise_id"); p.Exists() {
		reply.PromiseID = json.RawMessage(p.Raw)
	}

	log := d.logger.WithCommand(msg.Get("cmd").String(), correlationID(msg))

	cmd, err := ParseCommand(msg.Get("cmd").String())
	if err != nil {
		log.Warnf("Rejected message: %v", err)
		metrics.ObserveCommand("unknown", err)
		reply.Error = err.Error()
		return reply
	}

	var data json.RawMessage
	switch cmd {
	case CmdSave:
		data, err = d.save(ctx, msg)
	case CmdFind:
		data, err = d.find(ctx, msg)
	case CmdRemove:
		err = d.remove(ctx, msg)
	}
	metrics.ObserveCommand(string(cmd), err)

	reply.Data = data
	if err != nil {
		log.Errorf("Command failed: %v", err)
		reply.Error = err.Error()
		return reply
	}
	log.Debug("Command completed")
	return reply
}

// correlationID returns the promise id, or a fresh UUIDv7 when the message
// has none.
func correlationID(msg gjson.Result) string {
	if p := msg.Get("_promise_id"); p.Exists() {
		return p.String()
	}
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// payload reads a nested document that may also arrive as a JSON string.
func payload(msg gjson.Result, key string) (document.Document, error) {
	v := msg.Get(key)
	switch {
	case !v.Exists():
		return document.Empty(), fmt.Errorf("%w: missing %q", ErrMalformedMessage, key)
	case v.Type == gjson.String:
		doc, err := document.Parse([]byte(v.Str))
		if err != nil {
			return document.Empty(), fmt.Errorf("%w: %q: %v", ErrMalformedMessage, key, err)
		}
		return doc, nil
	default:
		doc, ok := document.FromResult(v)
		if !ok {
			return document.Empty(), fmt.Errorf("%w: %q is not an object", ErrMalformedMessage, key)
		}
		return doc, nil
	}
}

func (d *Dispatcher) save(ctx context.Context, msg gjson.Result) (json.RawMessage, error) {
	doc, err := payload(msg, "contact")
	if err != nil {
		return json.RawMessage(document.Empty().String()), err
	}
	out, err := d.saver.Build(ctx, doc)
	return json.RawMessage(out.String()), err
}

func (d *Dispatcher) find(ctx context.Context, msg gjson.Result) (json.RawMessage, error) {
	opts := finder.Options{}
	if msg.Get("options").Exists() {
		doc, err := payload(msg, "options")
		if err != nil {
			return nil, err
		}
		opts = finder.ParseOptions(doc)
	}

	docs, err := d.finder.Find(ctx, opts)
	if err != nil {
		return json.RawMessage("[]"), err
	}
	if docs == nil {
		docs = []document.Document{}
	}
	b, err := json.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode find result: %w", err)
	}
	return b, nil
}

func (d *Dispatcher) remove(ctx context.Context, msg gjson.Result) error {
	raw := msg.Get("contactId")
	if !raw.Exists() {
		return fmt.Errorf("%w: missing %q", ErrMalformedMessage, "contactId")
	}
	id, ok := types.ParseID(raw.String())
	if !ok {
		return fmt.Errorf("%w: invalid contactId %q", ErrMalformedMessage, raw.String())
	}
	if err := d.remover.DeleteLogicalRecord(ctx, id); err != nil {
		return fmt.Errorf("failed to remove contact %d: %w", id, err)
	}
	return nil
}

// Serve reads one message per line from r and writes one reply per line
// to w until r is exhausted or ctx is done. Blank lines are skipped.
func (d *Dispatcher) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if err := enc.Encode(d.Handle(ctx, line)); err != nil {
			return fmt.Errorf("failed to write reply: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read messages: %w", err)
	}
	return nil
}
