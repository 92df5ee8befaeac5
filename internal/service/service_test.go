package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	connInmemory "github.com/sharetube/syncroom/internal/repository/connection/inmemory"
	roomInmemory "github.com/sharetube/syncroom/internal/repository/room/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	videoA = "dQw4w9WgXcQ"
	videoB = "9bZkp7q19f0"
	videoC = "kJQP7kiw5Fk"
)

type fakeConn struct {
	mu          sync.Mutex
	outputs     []*Output
	closeCode   int
	closeReason string
}

func (c *fakeConn) Send(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.outputs = append(c.outputs, msg.(*Output))
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeCode = code
	c.closeReason = reason
	return nil
}

func (c *fakeConn) ofType(outType string) []*Output {
	c.mu.Lock()
	defer c.mu.Unlock()

	var res []*Output
	for _, out := range c.outputs {
		if out.Type == outType {
			res = append(res, out)
		}
	}

	return res
}

func (c *fakeConn) last(outType string) *Output {
	outs := c.ofType(outType)
	if len(outs) == 0 {
		return nil
	}

	return outs[len(outs)-1]
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.outputs = nil
}

type testEnv struct {
	service  *service
	clock    *clock.Mock
	roomRepo interface {
		PendingDeletion(roomId string) bool
		Exists(roomId string) bool
	}
	conns map[string]*fakeConn
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()

	mock := clock.NewMock()
	mock.Set(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	roomRepo := roomInmemory.NewRepo(mock, &roomInmemory.Config{
		EmptyTTL:      2 * time.Minute,
		InactivityTTL: 2 * time.Hour,
	})
	cfg := &Config{
		MembersLimit:     9,
		QueueLimit:       25,
		Secret:           "test-secret",
		ThrottleInterval: 500 * time.Millisecond,
		LateJoinDelay:    time.Second,
		MetadataTimeout:  time.Second,
		SweepInterval:    time.Minute,
		RejoinTokenTTL:   time.Hour,
		Clock:            mock,
	}
	for _, fn := range mutate {
		fn(cfg)
	}

	return &testEnv{
		service:  New(roomRepo, connInmemory.NewRepo(), cfg),
		clock:    mock,
		roomRepo: roomRepo,
		conns:    make(map[string]*fakeConn),
	}
}

func (e *testEnv) connect(t *testing.T, memberId string) *fakeConn {
	t.Helper()

	conn := &fakeConn{}
	err := e.service.ConnectMember(context.Background(), &ConnectMemberParams{
		ConnectionId: memberId,
		Conn:         conn,
	})
	require.NoError(t, err)
	e.conns[memberId] = conn

	return conn
}

func (e *testEnv) createRoom(t *testing.T, memberId string) string {
	t.Helper()

	e.connect(t, memberId)
	resp, err := e.service.CreateRoom(context.Background(), &CreateRoomParams{SenderId: memberId})
	require.NoError(t, err)
	require.Len(t, resp.RoomId, roomIdLength)

	return resp.RoomId
}

func (e *testEnv) join(t *testing.T, roomId, memberId string) {
	t.Helper()

	e.connect(t, memberId)
	_, err := e.service.JoinRoom(context.Background(), &JoinRoomParams{
		SenderId: memberId,
		RoomId:   roomId,
	})
	require.NoError(t, err)
}

func payloadMap(t *testing.T, out *Output) map[string]any {
	t.Helper()

	require.NotNil(t, out)
	payload, ok := out.Payload.(map[string]any)
	require.True(t, ok, "payload must be a map, got %T", out.Payload)

	return payload
}

func videoState(t *testing.T, out *Output) VideoState {
	t.Helper()

	require.NotNil(t, out)
	if state, ok := out.Payload.(VideoState); ok {
		return state
	}

	state, ok := payloadMap(t, out)["videoState"].(VideoState)
	require.True(t, ok, "payload has no video state")

	return state
}

func TestPlaybackScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	roomId := env.createRoom(t, "c1")
	c1 := env.conns["c1"]
	created := payloadMap(t, c1.last(TypeRoomCreated))
	assert.Equal(t, roomId, created["roomId"])
	assert.Equal(t, true, created["isHost"])
	assert.NotEmpty(t, created["rejoinToken"])

	env.join(t, roomId, "c2")
	c2 := env.conns["c2"]
	joined := payloadMap(t, c2.last(TypeRoomJoined))
	assert.Equal(t, false, joined["isHost"])
	assert.Nil(t, joined["currentVideo"])
	assert.Equal(t, 2, joined["userCount"])

	count := payloadMap(t, c1.last(TypeUserCountUpdated))
	assert.Equal(t, 2, count["userCount"])
	assert.Nil(t, c2.last(TypeUserCountUpdated), "joiner gets the count in room-joined")

	loaded, err := env.service.LoadVideo(ctx, &LoadVideoParams{
		SenderId: "c1",
		RoomId:   roomId,
		Url:      "https://www.youtube.com/watch?v=" + videoA,
		Title:    "A",
	})
	require.NoError(t, err)
	assert.Equal(t, videoA, loaded.Video.VideoId)

	for _, conn := range []*fakeConn{c1, c2} {
		out := payloadMap(t, conn.last(TypeVideoLoaded))
		assert.Equal(t, videoA, out["videoId"])
		state := videoState(t, conn.last(TypeVideoLoaded))
		assert.False(t, state.IsPlaying)
		assert.Zero(t, state.CurrentTime)
	}

	playResp, err := env.service.Play(ctx, &UpdatePlaybackParams{
		SenderId:    "c1",
		RoomId:      roomId,
		CurrentTime: 0,
	})
	require.NoError(t, err)
	assert.True(t, playResp.VideoState.IsPlaying)

	assert.Nil(t, c1.last(TypeVideoPlay), "sender must not receive its own transition")
	play := videoState(t, c2.last(TypeVideoPlay))
	assert.True(t, play.IsPlaying)
	assert.Equal(t, "c1", play.SenderId)
	assert.Equal(t, env.clock.Now().UnixMilli(), play.LastUpdate)

	env.clock.Add(10 * time.Second)

	env.join(t, roomId, "c3")
	c3 := env.conns["c3"]
	joined = payloadMap(t, c3.last(TypeRoomJoined))
	assert.Equal(t, videoA, *joined["currentVideo"].(*string))
	state := videoState(t, c3.last(TypeRoomJoined))
	assert.True(t, state.IsPlaying)
	assert.InDelta(t, 10, state.CurrentTime, 0.001)
	assert.Equal(t, env.clock.Now().UnixMilli(), state.LastUpdate)

	assert.Nil(t, c3.last(TypeVideoSync))
	env.clock.Add(time.Second)
	assert.Eventually(t, func() bool {
		return c3.last(TypeVideoSync) != nil
	}, time.Second, 10*time.Millisecond)

	sync := payloadMap(t, c3.last(TypeVideoSync))
	assert.Equal(t, videoA, sync["videoId"])
	assert.Equal(t, true, sync["isPlaying"])
	assert.InDelta(t, 11, sync["currentTime"].(float64), 0.001)
	assert.Nil(t, c1.last(TypeVideoSync), "late join sync goes to the joiner only")

	_, err = env.service.Pause(ctx, &UpdatePlaybackParams{
		SenderId:    "c2",
		RoomId:      roomId,
		CurrentTime: 11.2,
	})
	require.NoError(t, err)
	pause := videoState(t, c1.last(TypeVideoPause))
	assert.False(t, pause.IsPlaying)
	assert.InDelta(t, 11.2, pause.CurrentTime, 0.001)
	assert.Nil(t, c2.last(TypeVideoPause))
	assert.NotNil(t, c3.last(TypeVideoPause))

	info, err := env.service.GetRoom(ctx, roomId)
	require.NoError(t, err)
	assert.Equal(t, 3, info.UserCount)
	assert.Equal(t, "paused", info.Status)
	assert.False(t, info.HasPassword)
}

func TestPausedPositionDoesNotAdvance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	roomId := env.createRoom(t, "c1")
	_, err := env.service.LoadVideo(ctx, &LoadVideoParams{SenderId: "c1", RoomId: roomId, VideoId: videoA, Title: "A"})
	require.NoError(t, err)
	_, err = env.service.Seek(ctx, &UpdatePlaybackParams{SenderId: "c1", RoomId: roomId, CurrentTime: 42})
	require.NoError(t, err)

	env.clock.Add(time.Minute)
	env.join(t, roomId, "c2")

	state := videoState(t, env.conns["c2"].last(TypeRoomJoined))
	assert.False(t, state.IsPlaying)
	assert.InDelta(t, 42, state.CurrentTime, 0.001)
}

func TestJoinErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.connect(t, "c1")
	_, err := env.service.JoinRoom(ctx, &JoinRoomParams{SenderId: "c1", RoomId: "missing1"})
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.False(t, env.roomRepo.Exists("missing1"), "joining must not create a room")

	_, err = env.service.Play(ctx, &UpdatePlaybackParams{SenderId: "c1", RoomId: "missing1"})
	assert.ErrorIs(t, err, ErrRoomNotFound)

	roomId := env.createRoom(t, "host")

	_, err = env.service.Play(ctx, &UpdatePlaybackParams{SenderId: "c1", RoomId: roomId})
	assert.ErrorIs(t, err, ErrNotAMember)

	_, err = env.service.Play(ctx, &UpdatePlaybackParams{SenderId: "host", RoomId: roomId})
	assert.ErrorIs(t, err, ErrNoVideo)

	_, err = env.service.JoinRoom(ctx, &JoinRoomParams{SenderId: "host", RoomId: roomId})
	assert.ErrorIs(t, err, ErrAlreadyInRoom)
}

func TestFailedSwitchKeepsPreviousRoom(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.MembersLimit = 2 })
	ctx := context.Background()

	roomA := env.createRoom(t, "a1")
	env.join(t, roomA, "a2")
	roomB := env.createRoom(t, "b1")
	env.join(t, roomB, "b2")
	env.conns["a1"].reset()

	for _, target := range []string{"missing1", roomB} {
		_, err := env.service.JoinRoom(ctx, &JoinRoomParams{SenderId: "a2", RoomId: target, PreviousRoomId: roomA})
		require.Error(t, err)
	}

	info, err := env.service.GetRoom(ctx, roomA)
	require.NoError(t, err)
	assert.Equal(t, 2, info.UserCount)
	assert.Nil(t, env.conns["a1"].last(TypeMembersUpdated), "the previous room sees nothing of a failed switch")
	assert.Nil(t, env.conns["a1"].last(TypeUserCountUpdated))

	_, err = env.service.SetReady(ctx, &SetReadyParams{SenderId: "a2", RoomId: roomA, IsReady: true})
	assert.NoError(t, err, "the member keeps acting in its room")
}

func TestSwitchRoom(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	roomA := env.createRoom(t, "a1")
	env.join(t, roomA, "a2")
	roomB := env.createRoom(t, "b1")

	_, err := env.service.JoinRoom(ctx, &JoinRoomParams{SenderId: "a1", RoomId: roomB, PreviousRoomId: roomA})
	require.NoError(t, err)

	assert.NotNil(t, env.conns["a2"].last(TypeHostChanged), "leaving the previous room hands over its host")
	assert.Equal(t, 1, payloadMap(t, env.conns["a2"].last(TypeUserCountUpdated))["userCount"])
	assert.Equal(t, 2, payloadMap(t, env.conns["a1"].last(TypeRoomJoined))["userCount"])

	resp, err := env.service.CreateRoom(ctx, &CreateRoomParams{SenderId: "a2", PreviousRoomId: roomA})
	require.NoError(t, err)
	assert.NotEqual(t, roomA, resp.RoomId)
	assert.True(t, env.roomRepo.PendingDeletion(roomA), "the emptied room waits for its grace period")
}

func TestMembersLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.MembersLimit = 2 })
	ctx := context.Background()

	roomId := env.createRoom(t, "c1")
	env.join(t, roomId, "c2")

	env.connect(t, "c3")
	_, err := env.service.JoinRoom(ctx, &JoinRoomParams{SenderId: "c3", RoomId: roomId})
	assert.ErrorIs(t, err, ErrMembersLimitReached)
}

func TestThrottle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	roomId := env.createRoom(t, "c1")
	env.join(t, roomId, "c2")
	_, err := env.service.LoadVideo(ctx, &LoadVideoParams{SenderId: "c1", RoomId: roomId, VideoId: videoA, Title: "A"})
	require.NoError(t, err)

	_, err = env.service.Play(ctx, &UpdatePlaybackParams{SenderId: "c1", RoomId: roomId, CurrentTime: 0})
	require.NoError(t, err)

	env.clock.Add(100 * time.Millisecond)
	_, err = env.service.Seek(ctx, &UpdatePlaybackParams{SenderId: "c2", RoomId: roomId, CurrentTime: 30})
	assert.ErrorIs(t, err, ErrThrottled)
	_, err = env.service.Play(ctx, &UpdatePlaybackParams{SenderId: "c2", RoomId: roomId, CurrentTime: 0.1})
	assert.ErrorIs(t, err, ErrThrottled, "repeated play inside the window is dropped")
	assert.Empty(t, env.conns["c1"].ofType(TypeVideoSeek))

	sync := payloadMap(t, env.conns["c2"].last(TypeVideoSync))
	assert.Equal(t, videoA, sync["videoId"])
	assert.Equal(t, true, sync["isPlaying"], "the reporter is pulled back to the room state")
	assert.InDelta(t, 0.1, sync["currentTime"], 0.001)

	_, err = env.service.Pause(ctx, &UpdatePlaybackParams{SenderId: "c2", RoomId: roomId, CurrentTime: 0.1})
	require.NoError(t, err, "a play/pause flip passes inside the window")

	env.clock.Add(600 * time.Millisecond)
	_, err = env.service.Seek(ctx, &UpdatePlaybackParams{SenderId: "c2", RoomId: roomId, CurrentTime: 30})
	require.NoError(t, err)

	seek := videoState(t, env.conns["c1"].last(TypeVideoSeek))
	assert.False(t, seek.IsPlaying)
	assert.InDelta(t, 30, seek.CurrentTime, 0.001)
}

func TestQueueAdvance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	roomId := env.createRoom(t, "c1")
	env.join(t, roomId, "c2")
	c1, c2 := env.conns["c1"], env.conns["c2"]

	first, err := env.service.AddToQueue(ctx, &AddToQueueParams{SenderId: "c1", RoomId: roomId, VideoId: videoA, Title: "A"})
	require.NoError(t, err)

	loaded := payloadMap(t, c2.last(TypeVideoLoaded))
	assert.Equal(t, videoA, loaded["videoId"], "idle room starts the first queued video")
	assert.Equal(t, first.Item.Id, loaded["entryId"])
	assert.True(t, videoState(t, c2.last(TypeVideoLoaded)).IsPlaying)
	assert.Empty(t, payloadMap(t, c1.last(TypeQueueUpdated))["queue"])

	_, err = env.service.AddToQueue(ctx, &AddToQueueParams{SenderId: "c2", RoomId: roomId, VideoId: videoB, Title: "B"})
	require.NoError(t, err)
	_, err = env.service.AddToQueue(ctx, &AddToQueueParams{SenderId: "c1", RoomId: roomId, Url: "https://youtu.be/" + videoC, Title: "C"})
	require.NoError(t, err)

	queue := payloadMap(t, c1.last(TypeQueueUpdated))["queue"].([]QueueItem)
	require.Len(t, queue, 2)
	assert.Equal(t, videoB, queue[0].VideoId)
	assert.Equal(t, videoC, queue[1].VideoId)
	assert.Equal(t, "c2", queue[0].AddedBy)

	// both members report the end of A; only one advance happens
	require.NoError(t, env.service.VideoEnded(ctx, &VideoEndedParams{SenderId: "c1", RoomId: roomId, EntryId: first.Item.Id}))
	require.NoError(t, env.service.VideoEnded(ctx, &VideoEndedParams{SenderId: "c2", RoomId: roomId, EntryId: first.Item.Id}))

	assert.Len(t, c1.ofType(TypeVideoLoaded), 2)
	loaded = payloadMap(t, c1.last(TypeVideoLoaded))
	assert.Equal(t, videoB, loaded["videoId"])
	assert.Equal(t, queue[0].Id, loaded["entryId"])

	require.NoError(t, env.service.PlayNext(ctx, &PlayNextParams{SenderId: "c2", RoomId: roomId}))
	assert.Equal(t, videoC, payloadMap(t, c2.last(TypeVideoLoaded))["videoId"])

	require.NoError(t, env.service.VideoEnded(ctx, &VideoEndedParams{SenderId: "c1", RoomId: roomId, EntryId: queue[1].Id}))
	require.NotNil(t, c1.last(TypeVideoStopped))
	require.NotNil(t, c2.last(TypeVideoStopped))

	info, err := env.service.GetRoom(ctx, roomId)
	require.NoError(t, err)
	assert.Equal(t, "idle", info.Status)
}

func TestQueueRemove(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.QueueLimit = 2 })
	ctx := context.Background()

	roomId := env.createRoom(t, "host")
	env.join(t, roomId, "guest")
	env.join(t, roomId, "other")

	_, err := env.service.LoadVideo(ctx, &LoadVideoParams{SenderId: "host", RoomId: roomId, VideoId: videoA, Title: "A"})
	require.NoError(t, err)

	item, err := env.service.AddToQueue(ctx, &AddToQueueParams{SenderId: "guest", RoomId: roomId, VideoId: videoB, Title: "B"})
	require.NoError(t, err)
	_, err = env.service.AddToQueue(ctx, &AddToQueueParams{SenderId: "guest", RoomId: roomId, VideoId: videoC, Title: "C"})
	require.NoError(t, err)

	_, err = env.service.AddToQueue(ctx, &AddToQueueParams{SenderId: "guest", RoomId: roomId, VideoId: videoC, Title: "C"})
	assert.ErrorIs(t, err, ErrQueueLimitReached)

	_, err = env.service.AddToQueue(ctx, &AddToQueueParams{SenderId: "guest", RoomId: roomId, Url: "https://vimeo.com/1234"})
	assert.ErrorIs(t, err, ErrUnsupportedVideoSource)

	err = env.service.RemoveFromQueue(ctx, &RemoveFromQueueParams{SenderId: "other", RoomId: roomId, ItemId: item.Item.Id})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	err = env.service.RemoveFromQueue(ctx, &RemoveFromQueueParams{SenderId: "host", RoomId: roomId, ItemId: item.Item.Id})
	require.NoError(t, err)

	err = env.service.RemoveFromQueue(ctx, &RemoveFromQueueParams{SenderId: "host", RoomId: roomId, ItemId: item.Item.Id})
	assert.ErrorIs(t, err, ErrQueueItemNotFound)

	queue := payloadMap(t, env.conns["other"].last(TypeQueueUpdated))["queue"].([]QueueItem)
	require.Len(t, queue, 1)
	assert.Equal(t, videoC, queue[0].VideoId)
}

func TestHostReassignmentAndGraceDeletion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	roomId := env.createRoom(t, "c1")
	env.clock.Add(time.Second)
	env.join(t, roomId, "c2")
	env.clock.Add(time.Second)
	env.join(t, roomId, "c3")

	resp, err := env.service.LeaveRoom(ctx, &LeaveRoomParams{SenderId: "c1", RoomId: roomId})
	require.NoError(t, err)
	assert.False(t, resp.IsRoomEmpty)

	require.NotNil(t, env.conns["c2"].last(TypeHostChanged), "earliest joined member becomes host")
	assert.Nil(t, env.conns["c3"].last(TypeHostChanged))
	assert.Equal(t, 2, payloadMap(t, env.conns["c3"].last(TypeUserCountUpdated))["userCount"])

	members := payloadMap(t, env.conns["c3"].last(TypeMembersUpdated))["members"].([]Member)
	require.Len(t, members, 2)
	assert.Equal(t, "c2", members[0].Id)
	assert.True(t, members[0].IsHost)

	require.NoError(t, env.service.DisconnectMember(ctx, &DisconnectMemberParams{ConnectionId: "c2", RoomId: roomId}))
	require.NotNil(t, env.conns["c3"].last(TypeHostChanged))

	resp, err = env.service.LeaveRoom(ctx, &LeaveRoomParams{SenderId: "c3", RoomId: roomId})
	require.NoError(t, err)
	assert.True(t, resp.IsRoomEmpty)
	assert.True(t, env.roomRepo.PendingDeletion(roomId))
	assert.True(t, env.roomRepo.Exists(roomId))

	// rejoining within the grace period keeps the room
	_, err = env.service.JoinRoom(ctx, &JoinRoomParams{SenderId: "c3", RoomId: roomId})
	require.NoError(t, err)
	assert.False(t, env.roomRepo.PendingDeletion(roomId))

	_, err = env.service.LeaveRoom(ctx, &LeaveRoomParams{SenderId: "c3", RoomId: roomId})
	require.NoError(t, err)

	env.clock.Add(2*time.Minute + time.Second)
	assert.Eventually(t, func() bool {
		return !env.roomRepo.Exists(roomId)
	}, time.Second, 10*time.Millisecond)

	_, err = env.service.JoinRoom(ctx, &JoinRoomParams{SenderId: "c3", RoomId: roomId})
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestRoomPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.connect(t, "host")
	created, err := env.service.CreateRoom(ctx, &CreateRoomParams{SenderId: "host", Password: "secret"})
	require.NoError(t, err)
	roomId := created.RoomId

	env.connect(t, "guest")
	_, err = env.service.JoinRoom(ctx, &JoinRoomParams{SenderId: "guest", RoomId: roomId, Password: "wrong"})
	assert.ErrorIs(t, err, ErrWrongPassword)

	_, err = env.service.JoinRoom(ctx, &JoinRoomParams{SenderId: "guest", RoomId: roomId, Password: "secret"})
	require.NoError(t, err)

	info, err := env.service.GetRoom(ctx, roomId)
	require.NoError(t, err)
	assert.True(t, info.HasPassword)

	empty := ""
	err = env.service.UpdateRoomSettings(ctx, &UpdateRoomSettingsParams{SenderId: "guest", RoomId: roomId, Password: &empty})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	err = env.service.UpdateRoomSettings(ctx, &UpdateRoomSettingsParams{SenderId: "host", RoomId: roomId, Password: &empty})
	require.NoError(t, err)
	assert.Equal(t, false, payloadMap(t, env.conns["guest"].last(TypeRoomSettingsUpdate))["hasPassword"])

	env.connect(t, "late")
	_, err = env.service.JoinRoom(ctx, &JoinRoomParams{SenderId: "late", RoomId: roomId})
	require.NoError(t, err)
}

func TestKickMember(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	roomId := env.createRoom(t, "host")
	env.join(t, roomId, "guest")
	env.join(t, roomId, "other")

	err := env.service.KickMember(ctx, &KickMemberParams{SenderId: "guest", RoomId: roomId, KickedMemberId: "other"})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	err = env.service.KickMember(ctx, &KickMemberParams{SenderId: "host", RoomId: roomId, KickedMemberId: "host"})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	err = env.service.KickMember(ctx, &KickMemberParams{SenderId: "host", RoomId: roomId, KickedMemberId: "nobody"})
	assert.ErrorIs(t, err, ErrNotAMember)

	err = env.service.KickMember(ctx, &KickMemberParams{SenderId: "host", RoomId: roomId, KickedMemberId: "other"})
	require.NoError(t, err)

	other := env.conns["other"]
	other.mu.Lock()
	assert.Equal(t, closeCodeKicked, other.closeCode)
	other.mu.Unlock()

	assert.Equal(t, 2, payloadMap(t, env.conns["guest"].last(TypeUserCountUpdated))["userCount"])

	// the kicked connection's disconnect is harmless
	require.NoError(t, env.service.DisconnectMember(ctx, &DisconnectMemberParams{ConnectionId: "other", RoomId: roomId}))
}

func TestRejoinTokenKeepsPrecedence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	roomId := env.createRoom(t, "c1")
	token := payloadMap(t, env.conns["c1"].last(TypeRoomCreated))["rejoinToken"].(string)

	env.clock.Add(time.Second)
	env.join(t, roomId, "c2")

	require.NoError(t, env.service.DisconnectMember(ctx, &DisconnectMemberParams{ConnectionId: "c1", RoomId: roomId}))
	require.NotNil(t, env.conns["c2"].last(TypeHostChanged))

	env.clock.Add(time.Second)
	env.join(t, roomId, "c3")

	env.clock.Add(time.Second)
	env.connect(t, "c1b")
	_, err := env.service.JoinRoom(ctx, &JoinRoomParams{SenderId: "c1b", RoomId: roomId, RejoinToken: token})
	require.NoError(t, err)

	_, err = env.service.LeaveRoom(ctx, &LeaveRoomParams{SenderId: "c2", RoomId: roomId})
	require.NoError(t, err)

	assert.NotNil(t, env.conns["c1b"].last(TypeHostChanged), "rejoined member keeps its original join time")
	assert.Nil(t, env.conns["c3"].last(TypeHostChanged))

	_, err = env.service.parseRejoinToken("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	env.clock.Add(2 * time.Hour)
	_, err = env.service.parseRejoinToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken, "token expired")
}

func TestRejoinTokenIsBoundToItsMember(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	roomId := env.createRoom(t, "host")
	hostToken := payloadMap(t, env.conns["host"].last(TypeRoomCreated))["rejoinToken"].(string)
	env.clock.Add(time.Second)
	env.join(t, roomId, "guest")
	guestToken := payloadMap(t, env.conns["guest"].last(TypeRoomJoined))["rejoinToken"].(string)

	joinWithToken := func(memberId, token string) {
		t.Helper()
		env.clock.Add(time.Second)
		env.connect(t, memberId)
		_, err := env.service.JoinRoom(ctx, &JoinRoomParams{SenderId: memberId, RoomId: roomId, RejoinToken: token})
		require.NoError(t, err)
	}
	nextHost := func(leaverId string) string {
		t.Helper()
		for _, conn := range env.conns {
			conn.reset()
		}
		_, err := env.service.LeaveRoom(ctx, &LeaveRoomParams{SenderId: leaverId, RoomId: roomId})
		require.NoError(t, err)
		for id, conn := range env.conns {
			if conn.last(TypeHostChanged) != nil {
				return id
			}
		}
		return ""
	}

	joinWithToken("thief", hostToken)
	assert.Equal(t, "guest", nextHost("host"), "a connected member's token cannot be claimed")
	assert.Equal(t, "thief", nextHost("guest"))

	joinWithToken("c4", "")
	joinWithToken("guest2", guestToken)
	joinWithToken("guest3", guestToken)
	assert.Equal(t, "guest2", nextHost("thief"), "a disconnected member's token is honored")
	assert.Equal(t, "c4", nextHost("guest2"), "a used token is spent")
}

func TestKickRevokesRejoinToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	roomId := env.createRoom(t, "host")
	env.clock.Add(time.Second)
	env.join(t, roomId, "guest")
	guestToken := payloadMap(t, env.conns["guest"].last(TypeRoomJoined))["rejoinToken"].(string)
	env.clock.Add(time.Second)
	env.join(t, roomId, "other")

	require.NoError(t, env.service.KickMember(ctx, &KickMemberParams{SenderId: "host", RoomId: roomId, KickedMemberId: "guest"}))

	env.clock.Add(time.Second)
	env.connect(t, "guest2")
	_, err := env.service.JoinRoom(ctx, &JoinRoomParams{SenderId: "guest2", RoomId: roomId, RejoinToken: guestToken})
	require.NoError(t, err, "a revoked token is ignored, not rejected")

	_, err = env.service.LeaveRoom(ctx, &LeaveRoomParams{SenderId: "host", RoomId: roomId})
	require.NoError(t, err)
	assert.NotNil(t, env.conns["other"].last(TypeHostChanged), "the kicked member lost its precedence")
	assert.Nil(t, env.conns["guest2"].last(TypeHostChanged))
}

func TestReadyStartsPlayback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	roomId := env.createRoom(t, "c1")
	env.join(t, roomId, "c2")

	_, err := env.service.SetReady(ctx, &SetReadyParams{SenderId: "c1", RoomId: roomId, IsReady: true})
	require.NoError(t, err)
	_, err = env.service.SetReady(ctx, &SetReadyParams{SenderId: "c2", RoomId: roomId, IsReady: true})
	require.NoError(t, err)
	assert.Nil(t, env.conns["c1"].last(TypeVideoPlay), "nothing to start without a video")

	_, err = env.service.LoadVideo(ctx, &LoadVideoParams{SenderId: "c1", RoomId: roomId, VideoId: videoA, Title: "A"})
	require.NoError(t, err)

	resp, err := env.service.SetReady(ctx, &SetReadyParams{SenderId: "c1", RoomId: roomId, IsReady: true})
	require.NoError(t, err)
	assert.True(t, resp.Member.IsReady)
	assert.Nil(t, env.conns["c2"].last(TypeVideoPlay), "loading a video resets readiness")

	_, err = env.service.SetReady(ctx, &SetReadyParams{SenderId: "c2", RoomId: roomId, IsReady: true})
	require.NoError(t, err)

	for _, id := range []string{"c1", "c2"} {
		state := videoState(t, env.conns[id].last(TypeVideoPlay))
		assert.True(t, state.IsPlaying)
		assert.Empty(t, state.SenderId)
	}
}

func TestReadyStartsPlaybackWhenLastUnreadyMemberLeaves(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	roomId := env.createRoom(t, "c1")
	env.join(t, roomId, "c2")
	env.join(t, roomId, "c3")

	_, err := env.service.LoadVideo(ctx, &LoadVideoParams{SenderId: "c1", RoomId: roomId, VideoId: videoA, Title: "A"})
	require.NoError(t, err)
	_, err = env.service.SetReady(ctx, &SetReadyParams{SenderId: "c1", RoomId: roomId, IsReady: true})
	require.NoError(t, err)
	_, err = env.service.SetReady(ctx, &SetReadyParams{SenderId: "c3", RoomId: roomId, IsReady: true})
	require.NoError(t, err)
	require.Nil(t, env.conns["c1"].last(TypeVideoPlay))

	_, err = env.service.LeaveRoom(ctx, &LeaveRoomParams{SenderId: "c2", RoomId: roomId})
	require.NoError(t, err)

	for _, id := range []string{"c1", "c3"} {
		state := videoState(t, env.conns[id].last(TypeVideoPlay))
		assert.True(t, state.IsPlaying)
	}
	assert.Nil(t, env.conns["c2"].last(TypeVideoPlay), "the leaver is not addressed")

	info, err := env.service.GetRoom(ctx, roomId)
	require.NoError(t, err)
	assert.Equal(t, "playing", info.Status)
}

func TestKickedUnreadyMemberStartsPlayback(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	roomId := env.createRoom(t, "host")
	env.join(t, roomId, "guest")

	_, err := env.service.LoadVideo(ctx, &LoadVideoParams{SenderId: "host", RoomId: roomId, VideoId: videoA, Title: "A"})
	require.NoError(t, err)
	_, err = env.service.SetReady(ctx, &SetReadyParams{SenderId: "host", RoomId: roomId, IsReady: true})
	require.NoError(t, err)

	require.NoError(t, env.service.KickMember(ctx, &KickMemberParams{SenderId: "host", RoomId: roomId, KickedMemberId: "guest"}))
	assert.True(t, videoState(t, env.conns["host"].last(TypeVideoPlay)).IsPlaying)
}

func TestVoteSkip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	roomId := env.createRoom(t, "c1")
	env.join(t, roomId, "c2")
	env.join(t, roomId, "c3")

	err := env.service.VoteSkip(ctx, &VoteSkipParams{SenderId: "c1", RoomId: roomId, Vote: true})
	assert.ErrorIs(t, err, ErrNoVideo)

	_, err = env.service.AddToQueue(ctx, &AddToQueueParams{SenderId: "c1", RoomId: roomId, VideoId: videoA, Title: "A"})
	require.NoError(t, err)
	_, err = env.service.AddToQueue(ctx, &AddToQueueParams{SenderId: "c1", RoomId: roomId, VideoId: videoB, Title: "B"})
	require.NoError(t, err)

	require.NoError(t, env.service.VoteSkip(ctx, &VoteSkipParams{SenderId: "c1", RoomId: roomId, Vote: true}))
	votes := payloadMap(t, env.conns["c3"].last(TypeSkipVotesUpdated))
	assert.Equal(t, 1, votes["votes"])
	assert.Equal(t, 2, votes["required"])
	assert.Equal(t, videoA, payloadMap(t, env.conns["c3"].last(TypeVideoLoaded))["videoId"])

	require.NoError(t, env.service.VoteSkip(ctx, &VoteSkipParams{SenderId: "c2", RoomId: roomId, Vote: true}))
	assert.Equal(t, videoB, payloadMap(t, env.conns["c3"].last(TypeVideoLoaded))["videoId"])

	// votes are reset with the new video
	require.NoError(t, env.service.VoteSkip(ctx, &VoteSkipParams{SenderId: "c1", RoomId: roomId, Vote: true}))
	_, err = env.service.LeaveRoom(ctx, &LeaveRoomParams{SenderId: "c3", RoomId: roomId})
	require.NoError(t, err)
	assert.Nil(t, env.conns["c1"].last(TypeVideoStopped), "one of two is not a majority")
	assert.Equal(t, 2, payloadMap(t, env.conns["c1"].last(TypeSkipVotesUpdated))["required"])

	require.NoError(t, env.service.VoteSkip(ctx, &VoteSkipParams{SenderId: "c2", RoomId: roomId, Vote: true}))
	assert.NotNil(t, env.conns["c1"].last(TypeVideoStopped))
}

func TestJanitorClosesInactiveRooms(t *testing.T) {
	env := newTestEnv(t)

	roomId := env.createRoom(t, "c1")
	env.join(t, roomId, "c2")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		env.service.RunJanitor(ctx)
		close(done)
	}()

	// let the janitor register its ticker before moving the clock
	assert.Eventually(t, func() bool {
		env.clock.Add(time.Hour)
		return !env.roomRepo.Exists(roomId)
	}, 2*time.Second, 10*time.Millisecond)

	for _, id := range []string{"c1", "c2"} {
		assert.Eventually(t, func() bool {
			return env.conns[id].last(TypeRoomClosed) != nil
		}, time.Second, 10*time.Millisecond)
	}
	assert.Equal(t, 0, env.service.RoomsCount())

	cancel()
	<-done
}

func TestDisconnectWithoutRoom(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.connect(t, "c1")
	require.NoError(t, env.service.DisconnectMember(ctx, &DisconnectMemberParams{ConnectionId: "c1"}))

	err := env.service.ConnectMember(ctx, &ConnectMemberParams{ConnectionId: "c1", Conn: &fakeConn{}})
	require.NoError(t, err)
	err = env.service.ConnectMember(ctx, &ConnectMemberParams{ConnectionId: "c1", Conn: &fakeConn{}})
	assert.Error(t, err)
}
