// Package chatapi defines the outbound interfaces the scheduler core
// drives the chat-handler collaborator through: progress updates (a
// progress.Sink implementation) and file delivery. Chat-platform command
// parsing, menus, and everything else user-facing stay out of scope; this
// package only owns the boundary and a minimal net/http default adapter
// for each, since no chat-platform SDK appears anywhere in the example
// pack.
package chatapi

import (
	"context"
)

// Metadata accompanies a delivered file: enough for the chat-handler to
// caption it without re-deriving anything from the Worker.
type Metadata struct {
	Title        string
	Artist       string
	SizeBytes    int64
	DurationSecs int
}

// RemoteFileRef identifies a file already held by the chat platform, so a
// later re-send can reference it without re-uploading.
type RemoteFileRef string

// Delivery sends a local file to a chat, or re-references one already
// uploaded. Send is retried by the implementation up to its own configured
// attempt count; transport errors are surfaced to the caller as
// apperr.KindTransport so the Worker can classify them.
type Delivery interface {
	Send(ctx context.Context, chatID int64, localPath string, meta Metadata, asDocument bool) (RemoteFileRef, error)
	SendReference(ctx context.Context, chatID int64, ref RemoteFileRef, meta Metadata) error
}
