package wire

import "github.com/vmihailenco/msgpack/v5"

// Protocol v1 bundles are MessagePack arrays of typed maps. These two helpers are the only place
// that touches the msgpack wire format directly; every other package
// works with the normalised Go structs in this file/messages.go.

func MarshalMsgPack(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func UnmarshalMsgPack(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}
