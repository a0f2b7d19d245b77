package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/CCVpopular/appchatonlinev2/internal/apperr"
	"github.com/CCVpopular/appchatonlinev2/internal/domain"
	"github.com/CCVpopular/appchatonlinev2/internal/metrics"
	"github.com/CCVpopular/appchatonlinev2/internal/protocol"
	"github.com/CCVpopular/appchatonlinev2/internal/store"
)

const thumbnailEdge = 320

// fileLocator is the stored body of file-kind messages.
type fileLocator struct {
	FileName string `json:"fileName"`
	FileID   string `json:"fileId"`
	ViewLink string `json:"viewLink"`
}

type stagedBlob struct {
	path string
	key  string
	name string
}

func (b *stagedBlob) cleanup() { _ = os.Remove(b.path) }

// stageUpload decodes inline base64 media to a temp file keyed by a fresh
// operation id, so two concurrent uploads of the same filename never collide.
func (s *Service) stageUpload(data, fileName string) (*stagedBlob, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, apperr.Validation("media data is not valid base64")
	}
	if len(raw) == 0 {
		return nil, apperr.Validation("media data is empty")
	}
	opID := uuid.NewString()
	key := opID + "_" + filepath.Base(fileName)
	path := filepath.Join(s.tempDir, key)
	if err := os.MkdirAll(s.tempDir, 0o755); err != nil {
		return nil, apperr.Internal("create temp dir", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return nil, apperr.Internal("stage media file", err)
	}
	return &stagedBlob{path: path, key: key, name: filepath.Base(fileName)}, nil
}

func contentTypeFor(fileName, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// uploadStaged ships the staged file to blob storage and, for images, a
// best-effort thumbnail alongside it.
func (s *Service) uploadStaged(ctx context.Context, blob *stagedBlob, contentType string, isImage bool) (string, string, string, error) {
	f, err := os.Open(blob.path)
	if err != nil {
		return "", "", "", apperr.Internal("open staged media", err)
	}
	defer f.Close()

	id, url, viewLink, err := s.blobs.Upload(ctx, blob.key, contentType, f)
	if err != nil {
		return "", "", "", apperr.External("upload media", err)
	}
	if isImage {
		s.uploadThumbnail(ctx, blob)
	}
	return id, url, viewLink, nil
}

func (s *Service) uploadThumbnail(ctx context.Context, blob *stagedBlob) {
	img, err := imaging.Open(blob.path)
	if err != nil {
		s.log.Warnw("thumbnail: decode failed", "file", blob.name, "err", err)
		return
	}
	thumb := imaging.Fit(img, thumbnailEdge, thumbnailEdge, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		s.log.Warnw("thumbnail: encode failed", "file", blob.name, "err", err)
		return
	}
	if _, _, _, err := s.blobs.Upload(ctx, "thumbs/"+blob.key, "image/jpeg", &buf); err != nil {
		s.log.Warnw("thumbnail: upload failed", "file", blob.name, "err", err)
	}
}

// SendDirectImage uploads the image and runs the direct pipeline with the
// image URL as the stored body. Media bodies are locators, not secrets, and
// are stored in the clear.
func (s *Service) SendDirectImage(ctx context.Context, in *protocol.SendImage) (*domain.DirectMessage, error) {
	if err := in.Validate(); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	blob, err := s.stageUpload(in.ImageData, in.FileName)
	if err != nil {
		return nil, err
	}
	defer blob.cleanup()
	_, url, _, err := s.uploadStaged(ctx, blob, contentTypeFor(in.FileName, ""), true)
	if err != nil {
		return nil, err
	}
	m := &domain.DirectMessage{
		ID:         uuid.NewString(),
		Sender:     in.Sender,
		Receiver:   in.Receiver,
		Body:       url,
		Kind:       domain.KindImage,
		Status:     domain.StatusSent,
		ReadStatus: domain.ReadStatusUnread,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.direct.SaveDirect(ctx, m); err != nil {
		return nil, apperr.Persistence("save direct image", err)
	}
	s.journalDirect(ctx, m)
	s.deliverDirect(ctx, m, url, previewImage)
	metrics.MessagesSent.WithLabelValues("direct", string(domain.KindImage)).Inc()
	return m, nil
}

// SendDirectFile uploads the file and stores a JSON locator with name, id and
// view link as the body.
func (s *Service) SendDirectFile(ctx context.Context, in *protocol.SendFile) (*domain.DirectMessage, error) {
	if err := in.Validate(); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	blob, err := s.stageUpload(in.FileData, in.FileName)
	if err != nil {
		return nil, err
	}
	defer blob.cleanup()
	id, _, viewLink, err := s.uploadStaged(ctx, blob, contentTypeFor(in.FileName, in.FileType), false)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(fileLocator{FileName: blob.name, FileID: id, ViewLink: viewLink})
	if err != nil {
		return nil, apperr.Internal("encode file locator", err)
	}
	m := &domain.DirectMessage{
		ID:         uuid.NewString(),
		Sender:     in.Sender,
		Receiver:   in.Receiver,
		Body:       string(body),
		Kind:       domain.KindFile,
		Status:     domain.StatusSent,
		ReadStatus: domain.ReadStatusUnread,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.direct.SaveDirect(ctx, m); err != nil {
		return nil, apperr.Persistence("save direct file", err)
	}
	s.journalDirect(ctx, m)
	s.deliverDirect(ctx, m, string(body), fmt.Sprintf("[File: %s]", blob.name))
	metrics.MessagesSent.WithLabelValues("direct", string(domain.KindFile)).Inc()
	return m, nil
}

// SendGroupImage is the group counterpart of SendDirectImage: same upload
// flow, group fan-out and per-member notifications.
func (s *Service) SendGroupImage(ctx context.Context, in *protocol.SendGroupImage) (*domain.GroupMessage, error) {
	if err := in.Validate(); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	group, err := s.users.GetGroup(ctx, in.GroupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("group not found")
		}
		return nil, apperr.Persistence("load group", err)
	}
	blob, err := s.stageUpload(in.ImageData, in.FileName)
	if err != nil {
		return nil, err
	}
	defer blob.cleanup()
	_, url, _, err := s.uploadStaged(ctx, blob, contentTypeFor(in.FileName, ""), true)
	if err != nil {
		return nil, err
	}
	m, err := s.persistGroupMedia(ctx, group, in.Sender, url, domain.KindImage)
	if err != nil {
		return nil, err
	}
	s.deliverGroup(ctx, group, m, url, previewImage)
	metrics.MessagesSent.WithLabelValues("group", string(domain.KindImage)).Inc()
	return m, nil
}

func (s *Service) SendGroupFile(ctx context.Context, in *protocol.SendGroupFile) (*domain.GroupMessage, error) {
	if err := in.Validate(); err != nil {
		return nil, apperr.Validation(err.Error())
	}
	group, err := s.users.GetGroup(ctx, in.GroupID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("group not found")
		}
		return nil, apperr.Persistence("load group", err)
	}
	blob, err := s.stageUpload(in.FileData, in.FileName)
	if err != nil {
		return nil, err
	}
	defer blob.cleanup()
	id, _, viewLink, err := s.uploadStaged(ctx, blob, contentTypeFor(in.FileName, in.FileType), false)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(fileLocator{FileName: blob.name, FileID: id, ViewLink: viewLink})
	if err != nil {
		return nil, apperr.Internal("encode file locator", err)
	}
	m, err := s.persistGroupMedia(ctx, group, in.Sender, string(body), domain.KindFile)
	if err != nil {
		return nil, err
	}
	s.deliverGroup(ctx, group, m, string(body), fmt.Sprintf("[File: %s]", blob.name))
	metrics.MessagesSent.WithLabelValues("group", string(domain.KindFile)).Inc()
	return m, nil
}

func (s *Service) persistGroupMedia(ctx context.Context, group *domain.Group, senderID, body string, kind domain.MessageKind) (*domain.GroupMessage, error) {
	senderName := senderID
	if sender, err := s.users.GetUser(ctx, senderID); err == nil {
		senderName = sender.Username
	}
	m := &domain.GroupMessage{
		ID:         uuid.NewString(),
		GroupID:    group.ID,
		Sender:     senderID,
		SenderName: senderName,
		Body:       body,
		Kind:       kind,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.groups.SaveGroup(ctx, m); err != nil {
		return nil, apperr.Persistence("save group media message", err)
	}
	s.journalGroup(ctx, m)
	return m, nil
}
