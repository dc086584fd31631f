// Package queryapi is the flat name -> handler dispatch table behind the
// single analytics query endpoint.
package queryapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"tally/internal/apperr"
	"tally/internal/auth"
)

// ErrInvalidVariables is returned when variables do not decode into the
// operation's request struct.
var ErrInvalidVariables = apperr.Validation("Invalid variables")

// Envelope is the body of every query API response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func OK(message string, data any) Envelope {
	return Envelope{Success: true, Message: message, Data: data}
}

func Fail(message string, data any) Envelope {
	return Envelope{Success: false, Message: message, Data: data}
}

// Failure turns err into a failed envelope. Classified errors keep their own
// message; anything else is logged and reported as fallback.
func Failure(req *Request, err error, fallback string, zero any) Envelope {
	if apperr.KindOf(err) == apperr.KindStorage {
		req.Logger.Error(fallback, slog.String("operation", req.Operation), slog.Any("error", err))
		return Fail(fallback, zero)
	}
	return Fail(apperr.MessageOf(err, fallback), zero)
}

// Request is what an operation handler gets to work with.
type Request struct {
	Ctx       context.Context
	Operation string
	DBManager cartridge.DBManager
	Logger    *slog.Logger
	Identity  *auth.Identity
	Variables json.RawMessage
	Now       time.Time
}

func (r *Request) DB() *gorm.DB {
	return r.DBManager.GetConnection().WithContext(r.Ctx)
}

// Validator is implemented by request structs that check themselves after
// decoding.
type Validator interface {
	Validate() error
}

// Decode unmarshals the request variables into dst and validates it. Absent
// variables decode as an empty object. Variables wrapped as {"input": {...}}
// are unwrapped first.
func Decode(req *Request, dst any) error {
	raw := bytes.TrimSpace(req.Variables)
	var wrapped struct {
		Input json.RawMessage `json:"input"`
	}
	if json.Unmarshal(raw, &wrapped) == nil && len(wrapped.Input) > 0 && wrapped.Input[0] == '{' {
		raw = wrapped.Input
	}
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if err := json.Unmarshal(raw, dst); err != nil {
			return ErrInvalidVariables
		}
	}
	if v, ok := dst.(Validator); ok {
		return v.Validate()
	}
	return nil
}

// HandlerFunc runs one operation.
type HandlerFunc func(req *Request) Envelope

type Operation struct {
	Name    string
	Aliases []string
	Handler HandlerFunc
}

// OperationSet groups the operations of one feature area.
type OperationSet struct {
	Area       string
	Operations []Operation
}

// Registry resolves operation names and aliases to handlers.
type Registry struct {
	handlers map[string]Operation
}

// NewRegistry builds the dispatch table. A name or alias registered twice is
// a programming error and panics.
func NewRegistry(sets ...OperationSet) *Registry {
	r := &Registry{handlers: make(map[string]Operation)}
	for _, set := range sets {
		for _, op := range set.Operations {
			if op.Handler == nil {
				panic(fmt.Sprintf("queryapi: operation %q in %s has no handler", op.Name, set.Area))
			}
			for _, name := range append([]string{op.Name}, op.Aliases...) {
				if _, exists := r.handlers[name]; exists {
					panic(fmt.Sprintf("queryapi: duplicate operation %q in %s", name, set.Area))
				}
				r.handlers[name] = op
			}
		}
	}
	return r
}

// Lookup finds an operation by name or alias. Names are case-sensitive.
func (r *Registry) Lookup(name string) (Operation, bool) {
	op, ok := r.handlers[strings.TrimSpace(name)]
	return op, ok
}

// Names lists every registered name and alias, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
