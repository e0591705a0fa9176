package server

import (
	"context"

	"github.com/pithecene-io/tether/types"
	"github.com/pithecene-io/tether/wire"
)

// Mux routes commands to per-opcode handlers. Opcodes without a handler
// are answered with StatusInvalidCall. OpPing is answered by default.
type Mux struct {
	handlers map[types.Opcode]Handler
}

// NewMux returns a Mux that only answers OpPing.
func NewMux() *Mux {
	m := &Mux{handlers: make(map[types.Opcode]Handler)}
	m.RegisterFunc(types.OpPing, func(context.Context, *wire.Command) (types.Status, []byte) {
		return types.StatusOK, nil
	})
	return m
}

// Register routes op to h, replacing any previous handler.
func (m *Mux) Register(op types.Opcode, h Handler) {
	m.handlers[op] = h
}

// RegisterFunc routes op to f.
func (m *Mux) RegisterFunc(op types.Opcode, f func(context.Context, *wire.Command) (types.Status, []byte)) {
	m.Register(op, HandlerFunc(f))
}

// Handle dispatches cmd to the handler registered for its opcode.
func (m *Mux) Handle(ctx context.Context, cmd *wire.Command) (types.Status, []byte) {
	h, ok := m.handlers[cmd.Opcode]
	if !ok {
		return types.StatusInvalidCall, nil
	}
	return h.Handle(ctx, cmd)
}
