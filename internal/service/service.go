// Package service implements the message pipeline and the read-side services
// on top of the store, hub, crypto and notify packages. All websocket and
// HTTP handlers dispatch here.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/CCVpopular/appchatonlinev2/internal/crypto"
	"github.com/CCVpopular/appchatonlinev2/internal/domain"
	"github.com/CCVpopular/appchatonlinev2/internal/events"
	"github.com/CCVpopular/appchatonlinev2/internal/hub"
	"github.com/CCVpopular/appchatonlinev2/internal/store"
)

// RecalledBody replaces the body of recalled messages on every read path.
// The stored ciphertext is never decrypted once the message is recalled.
const RecalledBody = "Message recalled"

// Placeholders shown in conversation previews and push notifications for
// media messages.
const (
	previewImage = "[Image]"
	previewFile  = "[File]"
)

// BlobStore is the external object-storage collaborator. Upload returns the
// blob id, a direct URL and a view link.
type BlobStore interface {
	Upload(ctx context.Context, key, contentType string, r io.Reader) (id, url, viewLink string, err error)
}

// Journal records persisted-message events for downstream consumers.
// Optional; a nil journal disables journaling.
type Journal interface {
	MessagePersisted(ctx context.Context, ev events.MessagePersisted) error
}

// Notifier is the push side of the pipeline. Failures here never fail a send.
type Notifier interface {
	DirectMessage(ctx context.Context, senderID, senderName string, receiver *domain.User, body string) error
	GroupMessage(ctx context.Context, group *domain.Group, senderName, body string, member *domain.User) error
	CallInvite(ctx context.Context, caller, receiver *domain.User) (string, error)
	GroupCallInvite(ctx context.Context, group *domain.Group, initiatorName string, member *domain.User) error
}

type Deps struct {
	Cipher   *crypto.Cipher
	Direct   store.DirectStore
	Groups   store.GroupStore
	Users    store.UserDirectory
	Router   *hub.Router
	Notifier Notifier
	Blobs    BlobStore
	Journal  Journal
	TempDir  string
	Log      *zap.SugaredLogger
}

type Service struct {
	cipher   *crypto.Cipher
	direct   store.DirectStore
	groups   store.GroupStore
	users    store.UserDirectory
	router   *hub.Router
	notifier Notifier
	blobs    BlobStore
	journal  Journal
	tempDir  string
	log      *zap.SugaredLogger
}

func New(d Deps) *Service {
	return &Service{
		cipher:   d.Cipher,
		direct:   d.Direct,
		groups:   d.Groups,
		users:    d.Users,
		router:   d.Router,
		notifier: d.Notifier,
		blobs:    d.Blobs,
		journal:  d.Journal,
		tempDir:  d.TempDir,
		log:      d.Log,
	}
}

func (s *Service) journalDirect(ctx context.Context, m *domain.DirectMessage) {
	if s.journal == nil {
		return
	}
	ev := events.MessagePersisted{
		ID:        m.ID,
		Room:      hub.DirectRoomName(m.Sender, m.Receiver),
		Sender:    m.Sender,
		Kind:      string(m.Kind),
		CreatedAt: m.CreatedAt,
	}
	if err := s.journal.MessagePersisted(ctx, ev); err != nil {
		s.log.Warnw("journal publish failed", "message_id", m.ID, "err", err)
	}
}

func (s *Service) journalGroup(ctx context.Context, m *domain.GroupMessage) {
	if s.journal == nil {
		return
	}
	ev := events.MessagePersisted{
		ID:        m.ID,
		Room:      m.GroupID,
		GroupID:   m.GroupID,
		Sender:    m.Sender,
		Kind:      string(m.Kind),
		CreatedAt: m.CreatedAt,
	}
	if err := s.journal.MessagePersisted(ctx, ev); err != nil {
		s.log.Warnw("journal publish failed", "message_id", m.ID, "err", err)
	}
}

// readableBody renders a stored body for a read path: recalled marker first,
// decryption for text and system kinds, locator passthrough for media.
func (s *Service) readableBody(m domain.MessageKind, body string, recalled bool) string {
	if recalled {
		return RecalledBody
	}
	switch m {
	case domain.KindText, domain.KindSystem:
		plain, err := s.cipher.DecryptString(body)
		if err != nil {
			s.log.Warnw("body decrypt failed, returning stored form", "err", err)
			return body
		}
		return plain
	default:
		return body
	}
}

// previewBody renders a stored body for conversation summaries. Media kinds
// collapse to placeholders instead of leaking locators.
func (s *Service) previewBody(kind domain.MessageKind, body string, recalled bool) string {
	if recalled {
		return RecalledBody
	}
	switch kind {
	case domain.KindImage:
		return previewImage
	case domain.KindFile:
		var loc fileLocator
		if err := json.Unmarshal([]byte(body), &loc); err == nil && loc.FileName != "" {
			return fmt.Sprintf("[File: %s]", loc.FileName)
		}
		return previewFile
	default:
		return s.readableBody(kind, body, recalled)
	}
}
