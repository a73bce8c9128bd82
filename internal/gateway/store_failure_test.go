package gateway

import (
	"errors"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/vovakirdan/termicomm/internal/proto"
	"github.com/vovakirdan/termicomm/internal/store/mocks"
)

var errUnavailable = errors.New("database is locked")

func TestStoreUnavailableIsSilent(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)

	st.EXPECT().ListGuildsWithChannels(gomock.Any()).Return(nil, errUnavailable).AnyTimes()
	st.EXPECT().ListMessagesOrdered(gomock.Any()).Return(nil, errUnavailable).AnyTimes()
	st.EXPECT().RecordUser(gomock.Any(), "alice", gomock.Any()).Return(errUnavailable).Times(1)
	st.EXPECT().AppendMessage(gomock.Any(), int64(1), "alice", "hi").Return(int64(0), errUnavailable).Times(1)
	st.EXPECT().CreateGuild(gomock.Any(), "Ops").Return(int64(0), errUnavailable).Times(1)
	st.EXPECT().CreateChannel(gomock.Any(), int64(1), "alerts").Return(int64(0), errUnavailable).Times(1)

	h := newHarness(t, st, Options{})
	c := h.dial(t)

	c.send(proto.OpIdentify, proto.IdentifyData{Username: "alice", Password: "pw"})
	if p := mustEvent[proto.PresenceSync](t, c.next()); len(p.Usernames) != 1 || p.Usernames[0] != "alice" {
		t.Fatalf("presence = %v", p.Usernames)
	}
	// No tree and no history: both reads failed.
	c.expectNone(quiet)

	c.send(proto.OpMessage, proto.MessageData{Content: "hi", ChannelID: 1})
	c.send(proto.OpGuildCreate, proto.GuildData{Name: "Ops"})
	c.send(proto.OpChannelCreate, proto.ChannelData{GuildID: 1, Name: "alerts"})
	c.expectNone(quiet)

	// The session survives store failures.
	if names := h.gw.Registry().Names(); len(names) != 1 || names[0] != "alice" {
		t.Fatalf("names after store failures = %v", names)
	}
}

func TestUploadWithStoreFailureIsNotAnnounced(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)

	st.EXPECT().ListGuildsWithChannels(gomock.Any()).Return(nil, nil).AnyTimes()
	st.EXPECT().ListMessagesOrdered(gomock.Any()).Return(nil, nil).AnyTimes()
	st.EXPECT().RecordUser(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	st.EXPECT().AppendMessage(gomock.Any(), int64(1), SystemAuthor, gomock.Any()).Return(int64(0), errUnavailable).Times(1)

	h := newHarness(t, st, Options{})
	c := h.dial(t)
	c.identify("alice")

	c.send(proto.OpUpload, proto.UploadData{Filename: "a.txt", Data: "aGk=", ChannelID: 1})
	c.expectNone(quiet)

	// The blob itself was stored before the announcement failed.
	c.send(proto.OpBlobList, struct{}{})
	if list := mustEvent[proto.BlobListed](t, c.next()); len(list.Filenames) != 1 || list.Filenames[0] != "a.txt" {
		t.Fatalf("list = %v", list.Filenames)
	}
}
