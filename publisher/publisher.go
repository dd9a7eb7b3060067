package publisher

import (
	"context"
	"sort"
	"sync"

	"github.com/autom8ter/sql2hub/errors"
	"github.com/autom8ter/sql2hub/util"
)

// Publisher hands a payload to a message sink. Delivery and retries are the sink's concern.
type Publisher interface {
	// Publish sends the payload as one opaque message body
	Publish(ctx context.Context, payload []byte) error
	// Close releases the sink's resources
	Close() error
}

// Params are the settings a publisher is opened with
type Params struct {
	// ConnectionString locates the sink (a redis url, a storage path, ...)
	ConnectionString string `json:"connection_string"`
	// Topic is the channel, stream or key prefix messages are published under
	Topic string `json:"topic" validate:"required"`
	// Options are provider specific settings
	Options map[string]any `json:"options"`
}

// DecodeParams decodes a params map into a Params value and validates it
func DecodeParams(params map[string]any) (Params, error) {
	var p Params
	if err := util.Decode(params, &p); err != nil {
		return Params{}, errors.Wrap(err, errors.Configuration, "invalid publisher params")
	}
	if err := util.ValidateStruct(p); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Opener opens a publisher
type Opener func(params Params) (Publisher, error)

var (
	mu                sync.RWMutex
	registeredOpeners = map[string]Opener{}
)

// Register registers an Opener by name. Providers register themselves in init.
func Register(name string, opener Opener) {
	mu.Lock()
	defer mu.Unlock()
	registeredOpeners[name] = opener
}

// Open opens a registered publisher
func Open(name string, params map[string]any) (Publisher, error) {
	mu.RLock()
	opener, ok := registeredOpeners[name]
	mu.RUnlock()
	if !ok {
		return nil, errors.New(errors.Configuration, "publisher %s is not registered: must be one of %v", name, Registered())
	}
	p, err := DecodeParams(params)
	if err != nil {
		return nil, err
	}
	pub, err := opener(p)
	if err != nil {
		if _, ok := err.(*errors.Error); ok {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.Publish, "failed to open %s publisher", name)
	}
	return pub, nil
}

// Registered returns the sorted names of the registered publishers
func Registered() []string {
	mu.RLock()
	defer mu.RUnlock()
	var names []string
	for name := range registeredOpeners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Func adapts a function to the Publisher interface
type Func func(ctx context.Context, payload []byte) error

func (f Func) Publish(ctx context.Context, payload []byte) error {
	return f(ctx, payload)
}

func (f Func) Close() error {
	return nil
}
