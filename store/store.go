// Package store persists serialized distributions under structured keys.
// Several hosts may write partial distributions for the same key; a store
// keeps all of them and readers merge.
package store

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrUnableToPut wraps backend failures while writing.
	ErrUnableToPut = errors.New("unable to put")
	// ErrUnableToGet wraps backend failures while reading.
	ErrUnableToGet = errors.New("unable to get")
	// ErrInvalidKey is returned for keys with missing fields.
	ErrInvalidKey = errors.New("invalid key")
	// ErrInvalidValue is returned for values with missing fields.
	ErrInvalidValue = errors.New("invalid value")
)

// Key addresses the distributions of one column of one stream within one
// time bin. DataType carries the type tag of the stored encoding.
type Key struct {
	TimestampBin int64
	StreamID     string
	ColumnName   string
	DataType     uint16
}

// NewKey returns a validated key.
func NewKey(timestampBin int64, streamID, columnName string, dataType uint16) (Key, error) {
	k := Key{TimestampBin: timestampBin, StreamID: streamID, ColumnName: columnName, DataType: dataType}
	return k, k.Validate()
}

func (k Key) Validate() error {
	if k.StreamID == "" || k.ColumnName == "" {
		return errors.Wrapf(ErrInvalidKey, "you must provide all of the parameters for a key: %s", k)
	}
	return nil
}

var keyEscaper = strings.NewReplacer(`\`, `\\`, ":", `\:`)

// String renders the key unambiguously; it doubles as the backend key.
func (k Key) String() string {
	var sb strings.Builder
	sb.WriteString(keyEscaper.Replace(k.StreamID))
	sb.WriteByte(':')
	sb.WriteString(keyEscaper.Replace(k.ColumnName))
	sb.WriteByte(':')
	sb.WriteString(strconv.FormatUint(uint64(k.DataType), 10))
	sb.WriteByte(':')
	sb.WriteString(strconv.FormatInt(k.TimestampBin, 10))
	return sb.String()
}

// Value is one host's contribution to a key.
type Value struct {
	HostID           string `msgpack:"host"`
	ComputeTimestamp int64  `msgpack:"ts"`
	Data             []byte `msgpack:"data"`
}

func (v Value) Validate() error {
	if v.HostID == "" || v.Data == nil {
		return errors.Wrapf(ErrInvalidValue, "you must provide all of the parameters for a value: host=%q, data=%d bytes",
			v.HostID, len(v.Data))
	}
	return nil
}

// Batch groups values by key.
type Batch struct {
	entries map[Key][]Value
}

func NewBatch() *Batch {
	return &Batch{entries: make(map[Key][]Value)}
}

func (b *Batch) Add(k Key, v Value) {
	b.entries[k] = append(b.entries[k], v)
}

// Values returns the values added under k.
func (b *Batch) Values(k Key) []Value {
	return b.entries[k]
}

// Keys returns the keys of the batch in no particular order.
func (b *Batch) Keys() []Key {
	keys := make([]Key, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	return keys
}

func (b *Batch) Len() int {
	return len(b.entries)
}

func (b *Batch) validate() error {
	for k, values := range b.entries {
		if err := k.Validate(); err != nil {
			return err
		}
		for _, v := range values {
			if err := v.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Store appends values under keys. Get returns every value ever put under a
// key, in insertion order per writer.
type Store interface {
	Put(ctx context.Context, k Key, v Value) error
	PutBatch(ctx context.Context, b *Batch) error
	Get(ctx context.Context, k Key) ([]Value, error)
	// GetBatch returns a batch holding the values of every requested key
	// that has any.
	GetBatch(ctx context.Context, keys []Key) (*Batch, error)
}
