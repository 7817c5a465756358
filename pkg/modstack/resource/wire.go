package resource

import (
	"fmt"

	"github.com/jamesainslie/modstack/pkg/modstack/codec"
	"github.com/jamesainslie/modstack/pkg/modstack/collections"
)

const (
	wireBinary  = "binary"
	wireArchive = "archive"
)

// envelope is the CBOR form of a Value: the variant tag (a document
// magic, "binary" or "archive") and the encoded body.
type envelope struct {
	_    struct{} `cbor:",toarray"`
	Kind string
	Body codec.RawMessage
}

type wireArchiveBody struct {
	_         struct{} `cbor:",toarray"`
	Alignment uint32
	Members   *collections.SortedDeleteSet[MemberName]
}

// MarshalValue encodes v as CBOR. Mod layers store their diffs in this
// form, tombstones included.
func MarshalValue(v Value) ([]byte, error) {
	var (
		kind string
		body any
	)
	switch v := v.(type) {
	case Binary:
		kind, body = wireBinary, []byte(v)
	case *ParamDoc:
		kind, body = MagicParam, v.Root
	case *RecordDoc:
		kind, body = MagicRecord, v.Record
	case *TableDoc:
		kind, body = MagicTable, v.Rows
	case *ListDoc:
		kind, body = MagicList, v.Names
	case *FlagDoc:
		kind, body = MagicFlags, v.Flags
	case *Archive:
		kind, body = wireArchive, wireArchiveBody{Alignment: v.Alignment, Members: v.Members}
	default:
		return nil, fmt.Errorf("cannot encode %s value", KindName(v))
	}
	raw, err := codec.Marshal(body)
	if err != nil {
		return nil, err
	}
	return codec.Marshal(envelope{Kind: kind, Body: raw})
}

// UnmarshalValue decodes data written by MarshalValue.
func UnmarshalValue(data []byte) (Value, error) {
	var env envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return nil, err
	}

	switch env.Kind {
	case wireBinary:
		var b []byte
		if err := codec.Unmarshal(env.Body, &b); err != nil {
			return nil, err
		}
		return Binary(b), nil
	case wireArchive:
		body := wireArchiveBody{Members: collections.NewSortedDeleteSet[MemberName]()}
		if err := codec.Unmarshal(env.Body, &body); err != nil {
			return nil, err
		}
		return &Archive{Alignment: body.Alignment, Members: body.Members}, nil
	}

	c, ok := docCodecs[env.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown value kind %q", env.Kind)
	}
	doc := c.empty()
	var target any
	switch d := doc.(type) {
	case *ParamDoc:
		target = d.Root
	case *RecordDoc:
		target = d.Record
	case *TableDoc:
		target = d.Rows
	case *ListDoc:
		target = d.Names
	case *FlagDoc:
		target = d.Flags
	}
	if err := codec.Unmarshal(env.Body, target); err != nil {
		return nil, err
	}
	return doc, nil
}
