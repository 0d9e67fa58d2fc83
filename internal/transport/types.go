// Package transport defines the chat transport seam between the command
// router and a concrete messenger adapter.
package transport

import "context"

// Update is an inbound chat message.
type Update struct {
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic thread id, 0 if none
	FromID       int64
	FromUsername string
	Text         string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Adapter connects to a messenger. Start must not block; updates are
// delivered on out until Stop.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// BotCommand is one entry of the messenger's command menu.
type BotCommand struct {
	Command     string
	Description string
}

// MenuUpdater is implemented by adapters that can publish a command menu.
type MenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
