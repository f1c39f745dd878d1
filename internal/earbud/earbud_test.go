package earbud_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/duet/internal/collab"
	"github.com/roach88/duet/internal/collab/fake"
	"github.com/roach88/duet/internal/config"
	"github.com/roach88/duet/internal/earbud"
	"github.com/roach88/duet/internal/engine"
	"github.com/roach88/duet/internal/logging"
	"github.com/roach88/duet/internal/topology"
)

type fixture struct {
	loop   *engine.Loop
	timers *engine.ManualTimers
	bus    *collab.Bus
	fc     *fake.Collaborators
	client *topology.Inbox
}

func newFixture() *fixture {
	f := &fixture{
		timers: engine.NewManualTimers(),
		client: &topology.Inbox{Name: "app"},
	}
	f.loop = engine.New(engine.WithTimers(f.timers))
	f.bus = collab.NewBus(f.loop, logging.NewNop())
	f.fc = fake.New(f.bus)
	f.fc.Role = collab.RolePrimary
	return f
}

func (f *fixture) build(t *testing.T, opts ...earbud.Option) *earbud.Earbud {
	t.Helper()
	opts = append([]earbud.Option{earbud.WithLogger(logging.NewNop())}, opts...)
	e, err := earbud.New(f.loop, f.bus, f.fc.Set(), config.Default(), opts...)
	require.NoError(t, err)
	e.RegisterClient(f.client)
	return e
}

func (f *fixture) run(t *testing.T) {
	t.Helper()
	require.NoError(t, f.loop.RunUntilIdle())
}

func (f *fixture) start(t *testing.T, e *earbud.Earbud) {
	t.Helper()
	e.Start(f.client)
	f.run(t)
	require.Equal(t, topology.Started, e.Topology().State())
}

func TestStart_PairsFindsRoleAndConnectsProfiles(t *testing.T) {
	f := newFixture()
	e := f.build(t)

	f.start(t, e)

	assert.Equal(t, []string{
		"perf_request",
		"advertising_enable(fast)",
		"perf_relinquish",
		"pair(30s)",
		"find_role(10s)",
		"connect_peer",
		"profiles_connect(a2dp|hfp|avrcp)",
	}, f.fc.Calls)
	assert.Zero(t, f.fc.Performance, "performance request is relinquished")

	assert.Equal(t, []string{
		"start_cfm",
		"started_cfm",
		"peer_pair_result",
		"role_changed",
		"find_role_result",
		"profile_connect_result",
	}, f.client.Kinds())
	assert.Contains(t, f.client.Messages, earbud.FindRoleResult{Status: collab.StatusSuccess, Role: collab.RolePrimary})
	assert.Equal(t, earbud.ProfileConnectResult{
		Status:   collab.StatusSuccess,
		Profiles: collab.ProfileA2DP | collab.ProfileHFP | collab.ProfileAVRCP,
	}, f.client.Last())

	st := e.State()
	assert.True(t, st.Paired)
	assert.True(t, st.IsPrimary())
	assert.True(t, st.PeerConnected)
	assert.True(t, st.Advertising)
	assert.True(t, e.Topology().Goals().ActiveGoals().IsEmpty())
	assert.False(t, e.Topology().Goals().IsAnyGoalPending())
}

func TestStart_AlreadyPairedSkipsPairing(t *testing.T) {
	f := newFixture()
	f.fc.Role = collab.RoleSecondary
	e := f.build(t, earbud.WithState(earbud.State{Paired: true}))

	f.start(t, e)

	assert.Zero(t, f.fc.Called(fake.OpPair))
	assert.Equal(t, 1, f.fc.Called(fake.OpFindRole))
	assert.Zero(t, f.fc.Called(fake.OpConnectPeer), "secondary waits for the primary")
	assert.Contains(t, f.client.Messages, earbud.FindRoleResult{Status: collab.StatusSuccess, Role: collab.RoleSecondary})
}

func TestPeerLoss_RediscoversRoleAndReconnects(t *testing.T) {
	f := newFixture()
	e := f.build(t)
	f.start(t, e)
	f.client.Messages = nil

	f.bus.Publish(collab.PeerDisconnected{})
	f.run(t)

	assert.Equal(t, 2, f.fc.Called(fake.OpFindRole))
	assert.Equal(t, 2, f.fc.Called(fake.OpConnectPeer))
	assert.Equal(t, 2, f.fc.Called(fake.OpProfilesConnect))
	assert.Equal(t, []string{"find_role_result", "profile_connect_result"}, f.client.Kinds(),
		"an unchanged role is not reported again")
	assert.True(t, e.State().PeerConnected)
}

func TestPairFailure_ThenStandalone(t *testing.T) {
	f := newFixture()
	f.fc.PairStatus = collab.StatusFailure
	e := f.build(t)

	f.start(t, e)
	assert.Equal(t, earbud.PeerPairResult{Status: collab.StatusFailure}, f.client.Last())
	assert.Zero(t, f.fc.Called(fake.OpFindRole))

	e.RequestStandalone()
	f.run(t)

	assert.True(t, e.State().Standalone)
	assert.Equal(t, "advertising_enable(identify)", f.fc.Calls[len(f.fc.Calls)-1])
	assert.Equal(t, earbud.StandaloneResult{Status: collab.StatusSuccess}, f.client.Last())

	e.RequestStandalone()
	f.run(t)
	assert.Equal(t, 2, f.fc.Called(fake.OpAdvertisingEnable), "already standalone")
}

func TestPairTimeout_CancelsAndReportsFailure(t *testing.T) {
	f := newFixture()
	f.fc.Hold[fake.OpPair] = true
	e := f.build(t)
	f.start(t, e)
	require.True(t, e.Topology().Goals().IsGoalActive(earbud.GoalPairPeer))

	f.timers.Advance(30 * time.Second)
	f.run(t)

	assert.Equal(t, 1, f.fc.Called(fake.OpCancelPair))
	assert.False(t, e.Topology().Goals().IsGoalActive(earbud.GoalPairPeer))
	assert.Equal(t, earbud.PeerPairResult{Status: collab.StatusFailure}, f.client.Last())
	assert.False(t, e.State().Paired)
}

func TestShutdownPrepare_CancelsRoleDiscovery(t *testing.T) {
	f := newFixture()
	f.fc.Hold[fake.OpFindRole] = true
	e := f.build(t, earbud.WithState(earbud.State{Paired: true}))
	f.start(t, e)
	require.True(t, e.Topology().Goals().IsGoalActive(earbud.GoalFindRole))

	f.bus.Publish(collab.ShutdownPrepare{})
	f.run(t)

	assert.Equal(t, 1, f.fc.Called(fake.OpCancelFindRole))
	assert.Equal(t, 1, f.fc.Called(fake.OpAdvertisingDisable))
	assert.True(t, e.Topology().Goals().ActiveGoals().IsEmpty())
	assert.NotContains(t, f.client.Kinds(), "find_role_result", "a cancelled goal reports nothing")

	st := e.State()
	assert.True(t, st.ShuttingDown)
	assert.False(t, st.Advertising)
}

func TestShutdownPrepare_SuppressesAdvertisingOnStart(t *testing.T) {
	f := newFixture()
	f.fc.PairStatus = collab.StatusFailure
	e := f.build(t)

	f.bus.Publish(collab.ShutdownPrepare{})
	f.run(t)
	f.start(t, e)

	assert.Zero(t, f.fc.Called(fake.OpAdvertisingEnable))
	assert.Equal(t, 1, f.fc.Called(fake.OpPerfRequest))
}

func TestStop_DisablesAdvertisingAndDisconnects(t *testing.T) {
	f := newFixture()
	e := f.build(t)
	f.start(t, e)

	e.Stop(f.client)
	f.run(t)

	assert.Equal(t, topology.Stopped, e.Topology().State())
	assert.Equal(t, 1, f.fc.Called(fake.OpAdvertisingDisable))
	assert.Equal(t, 1, f.fc.Called(fake.OpDisconnectAll))
	assert.Equal(t, topology.StopCfm{Status: collab.StatusSuccess}, f.client.Last())

	st := e.State()
	assert.False(t, st.Advertising)
	assert.False(t, st.PeerConnected)
	assert.False(t, st.RoleKnown)
	assert.True(t, st.Paired, "pairing survives a stop")
}

func TestStop_DuringConnectable(t *testing.T) {
	f := newFixture()
	f.fc.Hold[fake.OpAdvertisingEnable] = true
	e := f.build(t)

	e.Start(f.client)
	f.run(t)
	require.Equal(t, topology.Starting, e.Topology().State())

	e.Stop(f.client)
	f.run(t)

	assert.Equal(t, topology.Stopped, e.Topology().State())
	assert.Equal(t, []string{"start_cfm", "stopping_cfm", "stop_cfm"}, f.client.Kinds())
	assert.Equal(t, 1, f.fc.Called(fake.OpDisconnectAll))
	assert.Equal(t, 1, f.fc.Called(fake.OpPerfRelinquish))
	assert.Zero(t, f.fc.Performance, "the performance request is released when connectable is cancelled")
}

func TestStart_ConnectableTimeoutReleasesPerformance(t *testing.T) {
	f := newFixture()
	f.fc.Hold[fake.OpAdvertisingEnable] = true
	e := f.build(t)

	e.Start(f.client)
	f.run(t)
	require.Equal(t, 1, f.fc.Performance)

	f.timers.Advance(config.Default().Timeouts.Connectable())
	f.run(t)

	assert.Equal(t, topology.Stopped, e.Topology().State())
	assert.Equal(t, topology.StartedCfm{Status: collab.StatusFailure}, f.client.Last())
	assert.Equal(t, 1, f.fc.Called(fake.OpPerfRelinquish))
	assert.Zero(t, f.fc.Performance)
}

func TestStop_DropsQueuedAndCancelsStartedGoals(t *testing.T) {
	f := newFixture()
	f.fc.Hold[fake.OpFindRole] = true
	e := f.build(t, earbud.WithState(earbud.State{Paired: true}))
	f.start(t, e)
	require.True(t, e.Topology().Goals().IsGoalActive(earbud.GoalFindRole))

	e.RequestStandalone()
	f.run(t)
	require.True(t, e.Topology().Goals().IsGoalQueued(earbud.GoalBecomeStandalone))

	e.Stop(f.client)
	f.run(t)

	assert.Equal(t, topology.Stopped, e.Topology().State())
	assert.Equal(t, 1, f.fc.Called(fake.OpCancelFindRole))
	assert.False(t, e.Topology().Goals().IsGoalQueued(earbud.GoalBecomeStandalone))
	assert.True(t, e.Topology().Goals().ActiveGoals().IsEmpty())

	f.timers.Advance(time.Minute)
	f.run(t)

	assert.Equal(t, topology.Stopped, e.Topology().State())
	assert.Equal(t, 1, f.fc.Called(fake.OpAdvertisingEnable), "nothing advertises once stopped")
	assert.False(t, e.State().Standalone)
	assert.False(t, e.State().Advertising)
}

func TestRestart(t *testing.T) {
	f := newFixture()
	e := f.build(t)
	f.start(t, e)
	e.Stop(nil)
	f.run(t)

	f.start(t, e)

	assert.Equal(t, 1, f.fc.Called(fake.OpPair), "paired on the first run")
	assert.Equal(t, 2, f.fc.Called(fake.OpFindRole))
	assert.Equal(t, 2, f.fc.Called(fake.OpProfilesConnect))
}

func TestNew_RejectsNegativeTimeout(t *testing.T) {
	f := newFixture()
	b := config.Default()
	b.Timeouts.PairMS = -1

	_, err := earbud.New(f.loop, f.bus, f.fc.Set(), b)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `goal "pair_peer": negative timeout`)
}

func TestCatalog(t *testing.T) {
	c := earbud.NewCatalog()
	assert.Equal(t, "connect_peer_profiles", c.GoalName(earbud.GoalConnectPeerProfiles))
	assert.Equal(t, "standalone_requested", c.EventName(earbud.EventStandaloneRequested))

	id, ok := c.LookupEvent("peer_disconnected")
	require.True(t, ok)
	assert.Equal(t, earbud.EventPeerDisconnected, id)
}
