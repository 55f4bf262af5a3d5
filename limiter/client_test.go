package limiter

import (
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"chat-relay/contract"
	"chat-relay/errors"
	"chat-relay/mocks"
)

func noReport(t *testing.T) func(error) {
	return func(err error) {
		t.Errorf("unexpected limiter error: %v", err)
	}
}

func TestClient_AdmitsWhileLimiterIsQuiet(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	handle := mocks.NewMockLimiterHandle(ctrl)
	handle.EXPECT().Check(gomock.Any(), true).Return(0.0, nil).AnyTimes()

	client := NewClient(func() contract.LimiterHandle { return handle },
		noReport(t), slog.Default())

	// A zero cooldown never flips the gate.
	for i := 0; i < 5; i++ {
		req.True(client.CheckLimit())
	}
	time.Sleep(50 * time.Millisecond)
	req.True(client.CheckLimit())
}

func TestClient_CooldownFlipsTheGate(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	handle := mocks.NewMockLimiterHandle(ctrl)
	handle.EXPECT().Check(gomock.Any(), true).Return(3600.0, nil).AnyTimes()

	client := NewClient(func() contract.LimiterHandle { return handle },
		noReport(t), slog.Default())

	// The first decision is optimistic, only the async outcome can deny.
	req.True(client.CheckLimit())

	req.Eventually(func() bool { return !client.CheckLimit() },
		time.Second, 5*time.Millisecond)
}

func TestClient_CooldownExpires(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	handle := mocks.NewMockLimiterHandle(ctrl)
	first := handle.EXPECT().Check(gomock.Any(), true).Return(0.05, nil)
	handle.EXPECT().Check(gomock.Any(), true).Return(0.0, nil).AnyTimes().After(first)

	client := NewClient(func() contract.LimiterHandle { return handle },
		noReport(t), slog.Default())

	req.True(client.CheckLimit())
	req.Eventually(func() bool { return !client.CheckLimit() },
		time.Second, 5*time.Millisecond)

	// Once the reported cooldown elapses, admissions resume.
	req.Eventually(client.CheckLimit, time.Second, 5*time.Millisecond)
}

func TestClient_ReacquiresHandleOnDisconnect(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dead := mocks.NewMockLimiterHandle(ctrl)
	dead.EXPECT().Check(gomock.Any(), true).
		Return(0.0, errors.ErrHandleDisconnected).AnyTimes()

	fresh := mocks.NewMockLimiterHandle(ctrl)
	var retried atomic.Bool
	fresh.EXPECT().Check(gomock.Any(), true).
		DoAndReturn(func(_ any, _ bool) (float64, error) {
			retried.Store(true)
			return 0.0, nil
		}).AnyTimes()

	var calls atomic.Int32
	factory := func() contract.LimiterHandle {
		if calls.Add(1) == 1 {
			return dead
		}
		return fresh
	}

	client := NewClient(factory, noReport(t), slog.Default())

	req.True(client.CheckLimit())

	// The dead handle is replaced and the consumption retried exactly once.
	req.Eventually(retried.Load, time.Second, 5*time.Millisecond)
	req.True(client.CheckLimit())
}

func TestClient_ReportsWhenRetryAlsoFails(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dead := mocks.NewMockLimiterHandle(ctrl)
	dead.EXPECT().Check(gomock.Any(), true).
		Return(0.0, errors.ErrHandleDisconnected).AnyTimes()

	reported := make(chan error, 1)
	client := NewClient(func() contract.LimiterHandle { return dead },
		func(err error) { reported <- err }, slog.Default())

	req.True(client.CheckLimit())

	select {
	case err := <-reported:
		req.ErrorIs(err, errors.ErrLimiterUnavailable)
	case <-time.After(time.Second):
		t.Fatal("expected the limiter failure to be reported")
	}
}
