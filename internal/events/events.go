// Package events encodes detector change sets as contact change events and
// delivers them to listeners.
package events

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gookit/color"

	"github.com/dbsmedya/gocontacts/internal/detector"
	"github.com/dbsmedya/gocontacts/internal/logger"
	"github.com/dbsmedya/gocontacts/internal/types"
)

// EventName is the name carried by every change event.
const EventName = "oncontactschange"

// Data lists changed logical ids as decimal strings in ascending order.
// Empty subsets are omitted.
type Data struct {
	Added    []string `json:"added,omitempty"`
	Removed  []string `json:"removed,omitempty"`
	Modified []string `json:"modified,omitempty"`
}

// Event is a contact change event.
type Event struct {
	EventName string `json:"eventName"`
	Data      Data   `json:"data"`
}

// FromChangeSet builds the event for cs.
func FromChangeSet(cs detector.ChangeSet) Event {
	return Event{
		EventName: EventName,
		Data: Data{
			Added:    idStrings(cs.Added),
			Removed:  idStrings(cs.Removed),
			Modified: idStrings(cs.Modified),
		},
	}
}

func idStrings(s *types.IDSet) []string {
	if s.IsEmpty() {
		return nil
	}
	return s.Strings()
}

// Marshal encodes the event for cs as a single JSON object.
func Marshal(cs detector.ChangeSet) ([]byte, error) {
	return json.Marshal(FromChangeSet(cs))
}

// JSONWriter writes one event per line.
type JSONWriter struct {
	mu     sync.Mutex
	w      io.Writer
	logger *logger.Logger
}

// NewJSONWriter creates a JSON lines listener writing to w.
func NewJSONWriter(w io.Writer, log *logger.Logger) *JSONWriter {
	if log == nil {
		log = logger.NewDefault()
	}
	return &JSONWriter{w: w, logger: log.WithComponent("events")}
}

// ContactsChanged implements detector.Listener.
func (j *JSONWriter) ContactsChanged(cs detector.ChangeSet) {
	b, err := Marshal(cs)
	if err != nil {
		j.logger.Errorf("Failed to encode change event: %v", err)
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.w.Write(append(b, '\n')); err != nil {
		j.logger.Errorf("Failed to write change event: %v", err)
	}
}

// ConsolePrinter prints a colored summary of each change set.
type ConsolePrinter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsolePrinter creates a console listener. Colors are dropped when the
// terminal does not support them.
func NewConsolePrinter(w io.Writer) *ConsolePrinter {
	return &ConsolePrinter{w: w}
}

// Format renders cs as a single line.
func (p *ConsolePrinter) Format(cs detector.ChangeSet) string {
	var parts []string
	add := func(style color.Color, sign string, s *types.IDSet) {
		if s.IsEmpty() {
			return
		}
		parts = append(parts, style.Sprintf("%s%s", sign, strings.Join(s.Strings(), ",")))
	}
	add(color.Green, "+", cs.Added)
	add(color.Red, "-", cs.Removed)
	add(color.Yellow, "~", cs.Modified)
	return fmt.Sprintf("%s %s", color.Bold.Sprint(EventName), strings.Join(parts, " "))
}

// ContactsChanged implements detector.Listener.
func (p *ConsolePrinter) ContactsChanged(cs detector.ChangeSet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, p.Format(cs))
}

// Multi fans a change set out to every listener in order.
type Multi []detector.Listener

// ContactsChanged implements detector.Listener.
func (m Multi) ContactsChanged(cs detector.ChangeSet) {
	for _, l := range m {
		if l != nil {
			l.ContactsChanged(cs)
		}
	}
}
