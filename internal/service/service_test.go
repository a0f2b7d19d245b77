package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/CCVpopular/appchatonlinev2/internal/crypto"
	"github.com/CCVpopular/appchatonlinev2/internal/domain"
	"github.com/CCVpopular/appchatonlinev2/internal/hub"
	"github.com/CCVpopular/appchatonlinev2/internal/protocol"
	"github.com/CCVpopular/appchatonlinev2/internal/store/memory"
)

type directCall struct {
	senderID   string
	senderName string
	receiverID string
	body       string
}

type groupCall struct {
	groupID    string
	senderName string
	body       string
	memberID   string
}

type fakeNotifier struct {
	mu          sync.Mutex
	direct      []directCall
	group       []groupCall
	calls       []string
	err         error
	groupErrFor map[string]error // per-member group push failures
}

func (f *fakeNotifier) DirectMessage(_ context.Context, senderID, senderName string, receiver *domain.User, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.direct = append(f.direct, directCall{senderID: senderID, senderName: senderName, receiverID: receiver.ID, body: body})
	return nil
}

func (f *fakeNotifier) GroupMessage(_ context.Context, group *domain.Group, senderName, body string, member *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if err := f.groupErrFor[member.ID]; err != nil {
		return err
	}
	f.group = append(f.group, groupCall{groupID: group.ID, senderName: senderName, body: body, memberID: member.ID})
	return nil
}

func (f *fakeNotifier) CallInvite(_ context.Context, caller, receiver *domain.User) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	channel := hub.DirectRoomName(caller.ID, receiver.ID)
	f.calls = append(f.calls, channel)
	return channel, nil
}

func (f *fakeNotifier) GroupCallInvite(_ context.Context, group *domain.Group, _ string, member *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, group.ID+":"+member.ID)
	return nil
}

type uploadRecord struct {
	key         string
	contentType string
	size        int
}

type fakeBlobs struct {
	mu      sync.Mutex
	uploads []uploadRecord
	err     error
}

func (f *fakeBlobs) Upload(_ context.Context, key, contentType string, r io.Reader) (string, string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", "", "", f.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", "", "", err
	}
	f.uploads = append(f.uploads, uploadRecord{key: key, contentType: contentType, size: len(data)})
	return key, "https://cdn.example.com/" + key, "https://view.example.com/" + key, nil
}

type fixture struct {
	svc      *Service
	store    *memory.Store
	router   *hub.Router
	notifier *fakeNotifier
	blobs    *fakeBlobs
	cipher   *crypto.Cipher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cipher, err := crypto.New(bytes.Repeat([]byte{0x24}, 32))
	require.NoError(t, err)
	mem := memory.New()
	router := hub.NewRouter(nil)
	notifier := &fakeNotifier{}
	blobs := &fakeBlobs{}
	svc := New(Deps{
		Cipher:   cipher,
		Direct:   mem,
		Groups:   mem,
		Users:    mem,
		Router:   router,
		Notifier: notifier,
		Blobs:    blobs,
		TempDir:  t.TempDir(),
		Log:      zap.NewNop().Sugar(),
	})
	return &fixture{svc: svc, store: mem, router: router, notifier: notifier, blobs: blobs, cipher: cipher}
}

func (f *fixture) addUser(id, name, token string) {
	f.store.AddUser(&domain.User{ID: id, Username: name, PushToken: token})
}

func (f *fixture) addGroup(id, name string, members ...string) {
	f.store.AddGroup(&domain.Group{ID: id, Name: name, Members: members})
}

// connectUser binds a fresh connection to the user's private room.
func (f *fixture) connectUser(userID string) *hub.Client {
	c := hub.NewClient(userID+"-conn", 64)
	f.router.BindUser(c, userID)
	return c
}

// connectRoom binds a fresh connection to the canonical pair room only.
func (f *fixture) connectRoom(a, b string) *hub.Client {
	c := hub.NewClient(fmt.Sprintf("%s-%s-conn", a, b), 64)
	f.router.JoinDirect(c, a, b)
	return c
}

func (f *fixture) connectGroup(userID, groupID string) *hub.Client {
	c := hub.NewClient(userID+"-"+groupID+"-conn", 64)
	f.router.JoinGroup(context.Background(), c, userID, groupID)
	return c
}

// framesOf drains the client's queue and decodes every envelope.
func framesOf(t *testing.T, c *hub.Client) []*protocol.Envelope {
	t.Helper()
	var out []*protocol.Envelope
	for {
		select {
		case b := <-c.Send:
			env, err := protocol.Decode(b)
			require.NoError(t, err)
			out = append(out, env)
		default:
			return out
		}
	}
}

func framesOfType(t *testing.T, c *hub.Client, eventType string) []*protocol.Envelope {
	t.Helper()
	var out []*protocol.Envelope
	for _, env := range framesOf(t, c) {
		if env.Type == eventType {
			out = append(out, env)
		}
	}
	return out
}

func decodeInto[T any](t *testing.T, env *protocol.Envelope) *T {
	t.Helper()
	var p T
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	return &p
}
