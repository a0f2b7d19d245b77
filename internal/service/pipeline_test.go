package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CCVpopular/appchatonlinev2/internal/apperr"
	"github.com/CCVpopular/appchatonlinev2/internal/domain"
	"github.com/CCVpopular/appchatonlinev2/internal/protocol"
	"github.com/CCVpopular/appchatonlinev2/internal/store"
)

func TestSendDirect(t *testing.T) {
	f := newFixture(t)
	f.addUser("alice", "Alice", "tok-alice")
	f.addUser("bob", "Bob", "tok-bob")

	roomConn := f.connectRoom("alice", "bob")
	aliceConn := f.connectUser("alice")
	bobConn := f.connectUser("bob")

	m, err := f.svc.SendDirect(context.Background(), &protocol.SendMessage{
		Sender: "alice", Receiver: "bob", Message: "hi bob",
	})
	require.NoError(t, err)

	// stored body is ciphertext, not the plaintext
	stored, err := f.store.GetDirectByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "hi bob", stored.Body)
	plain, err := f.cipher.DecryptString(stored.Body)
	require.NoError(t, err)
	assert.Equal(t, "hi bob", plain)
	assert.Equal(t, domain.KindText, stored.Kind)
	assert.Equal(t, domain.ReadStatusUnread, stored.ReadStatus)

	// the pair room sees the plaintext with the persisted id
	received := framesOfType(t, roomConn, protocol.EvReceiveMessage)
	require.Len(t, received, 1)
	rm := decodeInto[protocol.ReceiveMessage](t, received[0])
	assert.Equal(t, m.ID, rm.ID)
	assert.Equal(t, "hi bob", rm.Message)
	assert.Equal(t, "alice", rm.Sender)

	// both participants' user rooms get a summary refresh
	aliceLatest := framesOfType(t, aliceConn, protocol.EvLatestMessage)
	require.Len(t, aliceLatest, 1)
	assert.Equal(t, "bob", decodeInto[protocol.LatestMessage](t, aliceLatest[0]).FriendID)

	bobLatest := framesOfType(t, bobConn, protocol.EvLatestMessage)
	require.Len(t, bobLatest, 1)
	lm := decodeInto[protocol.LatestMessage](t, bobLatest[0])
	assert.Equal(t, "alice", lm.FriendID)
	assert.Equal(t, "hi bob", lm.Message)

	// the receiver is push-notified with the sender's display name
	require.Len(t, f.notifier.direct, 1)
	call := f.notifier.direct[0]
	assert.Equal(t, "bob", call.receiverID)
	assert.Equal(t, "Alice", call.senderName)
	assert.Equal(t, "hi bob", call.body)
}

func TestSendDirectValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SendDirect(context.Background(), &protocol.SendMessage{Sender: "a"})
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}

type failingDirectStore struct {
	store.DirectStore
}

func (failingDirectStore) SaveDirect(context.Context, *domain.DirectMessage) error {
	return errors.New("disk full")
}

func TestSendDirectPersistFailureAbortsDelivery(t *testing.T) {
	f := newFixture(t)
	f.addUser("alice", "Alice", "")
	f.addUser("bob", "Bob", "tok")
	f.svc.direct = failingDirectStore{DirectStore: f.store}

	roomConn := f.connectRoom("alice", "bob")
	bobConn := f.connectUser("bob")

	_, err := f.svc.SendDirect(context.Background(), &protocol.SendMessage{
		Sender: "alice", Receiver: "bob", Message: "hi",
	})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodePersistence))

	// nothing was delivered or notified
	assert.Empty(t, framesOf(t, roomConn))
	assert.Empty(t, framesOf(t, bobConn))
	assert.Empty(t, f.notifier.direct)
}

func TestSendDirectNotifyFailureIsNonFatal(t *testing.T) {
	f := newFixture(t)
	f.addUser("alice", "Alice", "")
	f.addUser("bob", "Bob", "tok")
	f.notifier.err = errors.New("gateway down")

	roomConn := f.connectRoom("alice", "bob")
	bobConn := f.connectUser("bob")

	m, err := f.svc.SendDirect(context.Background(), &protocol.SendMessage{
		Sender: "alice", Receiver: "bob", Message: "hi",
	})
	require.NoError(t, err)

	// message still persisted and delivered
	_, err = f.store.GetDirectByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Len(t, framesOfType(t, roomConn, protocol.EvReceiveMessage), 1)
	assert.Len(t, framesOfType(t, bobConn, protocol.EvLatestMessage), 1)
}

func TestSendGroup(t *testing.T) {
	f := newFixture(t)
	f.addUser("alice", "Alice", "tok-a")
	f.addUser("bob", "Bob", "tok-b")
	f.addUser("carol", "Carol", "") // no push token
	f.addGroup("g1", "Team", "alice", "bob", "carol")

	groupConn := f.connectGroup("bob", "g1")

	m, err := f.svc.SendGroup(context.Background(), &protocol.SendGroupMessage{
		GroupID: "g1", Sender: "alice", Message: "hello team",
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", m.SenderName)

	stored, err := f.store.GetGroupByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "hello team", stored.Body)
	assert.Equal(t, "Alice", stored.SenderName)

	frames := framesOf(t, groupConn)
	var received []*protocol.Envelope
	var latest []*protocol.Envelope
	for _, env := range frames {
		switch env.Type {
		case protocol.EvReceiveGroupMessage:
			received = append(received, env)
		case protocol.EvLatestGroupMessage:
			latest = append(latest, env)
		}
	}
	require.Len(t, received, 1)
	rm := decodeInto[protocol.ReceiveGroupMessage](t, received[0])
	assert.Equal(t, "hello team", rm.Message)
	assert.Equal(t, "Alice", rm.SenderName)
	assert.Equal(t, "g1", rm.GroupID)

	// the group room also gets the summary refresh
	require.Len(t, latest, 1)
	lm := decodeInto[protocol.LatestGroupMessage](t, latest[0])
	assert.Equal(t, "g1", lm.GroupID)
	assert.Equal(t, "hello team", lm.Message)

	// everyone but the sender gets a push attempt; the token check is the
	// dispatcher's job, so carol is attempted too
	require.Len(t, f.notifier.group, 2)
	members := []string{f.notifier.group[0].memberID, f.notifier.group[1].memberID}
	assert.ElementsMatch(t, []string{"bob", "carol"}, members)
	for _, call := range f.notifier.group {
		assert.Equal(t, "Alice", call.senderName)
		assert.Equal(t, "hello team", call.body)
	}
}

func TestSendGroupNotifyFailureOnlyHitsThatMember(t *testing.T) {
	f := newFixture(t)
	f.addUser("alice", "Alice", "tok-a")
	f.addUser("bob", "Bob", "tok-b")
	f.addUser("carol", "Carol", "tok-c")
	f.addGroup("g1", "Team", "alice", "bob", "carol")
	f.notifier.groupErrFor = map[string]error{"bob": errors.New("token expired")}

	groupConn := f.connectGroup("carol", "g1")

	m, err := f.svc.SendGroup(context.Background(), &protocol.SendGroupMessage{
		GroupID: "g1", Sender: "alice", Message: "hello team",
	})
	require.NoError(t, err)

	// persisted and delivered despite bob's push failing
	_, err = f.store.GetGroupByID(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Len(t, framesOfType(t, groupConn, protocol.EvReceiveGroupMessage), 1)

	// carol's push still went out
	require.Len(t, f.notifier.group, 1)
	assert.Equal(t, "carol", f.notifier.group[0].memberID)
}

func TestSendGroupUnknownGroup(t *testing.T) {
	f := newFixture(t)
	f.addUser("alice", "Alice", "")
	_, err := f.svc.SendGroup(context.Background(), &protocol.SendGroupMessage{
		GroupID: "ghost", Sender: "alice", Message: "hi",
	})
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}

func TestSendGroupSenderNameFallsBackToID(t *testing.T) {
	f := newFixture(t)
	f.addGroup("g1", "Team", "alice", "bob")

	// sender has no directory record
	m, err := f.svc.SendGroup(context.Background(), &protocol.SendGroupMessage{
		GroupID: "g1", Sender: "alice", Message: "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", m.SenderName)
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	f.addUser("alice", "Alice", "")
	f.addUser("bob", "Bob", "")
	aliceConn := f.connectUser("alice")

	for i := 0; i < 2; i++ {
		_, err := f.svc.SendDirect(context.Background(), &protocol.SendMessage{
			Sender: "alice", Receiver: "bob", Message: "hi",
		})
		require.NoError(t, err)
	}
	_ = framesOf(t, aliceConn) // discard send frames

	n, err := f.svc.MarkRead(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	// the sender's user room is told so open views can update read ticks
	read := framesOfType(t, aliceConn, protocol.EvMessagesRead)
	require.Len(t, read, 1)
	p := decodeInto[protocol.MessagesRead](t, read[0])
	assert.Equal(t, "alice", p.SenderID)
	assert.Equal(t, "bob", p.ReceiverID)

	// a retry with nothing left unread still emits, so views stay consistent
	n, err = f.svc.MarkRead(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, framesOfType(t, aliceConn, protocol.EvMessagesRead), 1)
}

func TestStartCall(t *testing.T) {
	f := newFixture(t)
	f.addUser("alice", "Alice", "")
	f.addUser("bob", "Bob", "tok")

	channel, err := f.svc.StartCall(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "alice_bob", channel)

	_, err = f.svc.StartCall(context.Background(), "alice", "ghost")
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}

func TestStartGroupCall(t *testing.T) {
	f := newFixture(t)
	f.addUser("alice", "Alice", "")
	f.addUser("bob", "Bob", "tok-b")
	f.addUser("carol", "Carol", "tok-c")
	f.addGroup("g1", "Team", "alice", "bob", "carol")
	groupConn := f.connectGroup("bob", "g1")

	channel, err := f.svc.StartGroupCall(context.Background(), "g1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "g1", channel)

	// invites go to everyone but the initiator
	assert.ElementsMatch(t, []string{"g1:bob", "g1:carol"}, f.notifier.calls)

	started := framesOfType(t, groupConn, protocol.EvGroupCallStarted)
	require.Len(t, started, 1)
	p := decodeInto[protocol.GroupCallStarted](t, started[0])
	assert.Equal(t, "Alice", p.InitiatorName)
	assert.Equal(t, "Team", p.GroupName)
}

func TestStartGroupCallRecordsSystemMessage(t *testing.T) {
	f := newFixture(t)
	f.addUser("alice", "Alice", "")
	f.addUser("bob", "Bob", "tok-b")
	f.addGroup("g1", "Team", "alice", "bob")
	groupConn := f.connectGroup("bob", "g1")

	_, err := f.svc.StartGroupCall(context.Background(), "g1", "alice")
	require.NoError(t, err)

	// the announcement lands in group history as a senderless system message
	h, err := f.svc.GetGroupHistory(context.Background(), "g1", 1, 10)
	require.NoError(t, err)
	require.Len(t, h.Messages, 1)
	ann := h.Messages[0]
	assert.Equal(t, domain.KindSystem, ann.Kind)
	assert.Empty(t, ann.Sender)
	assert.Equal(t, "Alice started a call", ann.Message)

	// stored body is sealed like any text message
	stored, err := f.store.GetGroupByID(context.Background(), ann.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "Alice started a call", stored.Body)

	// the group room hears the announcement in the clear
	received := framesOfType(t, groupConn, protocol.EvReceiveGroupMessage)
	require.Len(t, received, 1)
	rm := decodeInto[protocol.ReceiveGroupMessage](t, received[0])
	assert.Equal(t, "Alice started a call", rm.Message)
	assert.Equal(t, string(domain.KindSystem), rm.Type)
}

func TestNotifyGroupsChanged(t *testing.T) {
	f := newFixture(t)
	conn := f.connectUser("alice")
	f.svc.NotifyGroupsChanged(context.Background(), "alice")
	assert.Len(t, framesOfType(t, conn, protocol.EvUpdateGroups), 1)
}
