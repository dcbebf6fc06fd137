// Package mail defines the mail transport collaborator consumed by the sync
// and extraction jobs: list UIDs, fetch envelope metadata, fetch a body.
package mail

import (
	"context"
	"errors"
	"time"

	"mailops/internal/model"
)

var (
	ErrConnection = errors.New("mail transport connection failed")
	ErrAuth       = errors.New("mail transport authentication failed")
	ErrTimeout    = errors.New("mail transport timed out")
)

// Envelope is the metadata slice of one message. Bodies are fetched
// separately and never persisted.
type Envelope struct {
	UID             uint32
	MessageID       string
	Subject         string
	FromEmail       string
	FromName        string
	To              []string
	Cc              []string
	Date            time.Time
	Size            int
	Flags           []string
	AttachmentNames []string
}

// Transport opens sessions. A Session holds one live connection to a single
// account folder, so a batch of fetches reuses it instead of redialing per
// message.
type Transport interface {
	Open(ctx context.Context, account *model.MailboxAccount, folder string) (Session, error)
}

type Session interface {
	ListUIDs(ctx context.Context) ([]uint32, error)
	FetchEnvelope(ctx context.Context, uid uint32) (*Envelope, error)
	FetchBody(ctx context.Context, uid uint32) ([]byte, error)
	Close() error
}
