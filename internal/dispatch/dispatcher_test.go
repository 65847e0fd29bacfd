package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zaidalbayati/minaret/internal/db"
	"github.com/zaidalbayati/minaret/internal/prayer"
	"github.com/zaidalbayati/minaret/internal/push"
)

type fakeRepo struct {
	mu          sync.Mutex
	marked      map[uuid.UUID]*string
	deactivated map[uuid.UUID]bool
	logged      []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		marked:      make(map[uuid.UUID]*string),
		deactivated: make(map[uuid.UUID]bool),
	}
}

func (f *fakeRepo) MarkSent(ctx context.Context, id uuid.UUID, deliveryErr *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked[id] = deliveryErr
	return nil
}

func (f *fakeRepo) DeactivateSubscriber(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deactivated[id] = true
	return nil
}

func (f *fakeRepo) LogDelivery(ctx context.Context, subscriberID uuid.UUID, name prayer.Name, status string, deliveryErr *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logged = append(f.logged, status)
	return nil
}

type fakeSender struct {
	mu    sync.Mutex
	sends int
	// errFor maps endpoints to the error their sends should return.
	errFor map[string]error
}

func (f *fakeSender) Send(ctx context.Context, msg push.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	return f.errFor[msg.Endpoint]
}

func dueNotif(endpoint string) *db.DueNotification {
	return &db.DueNotification{
		ID:            uuid.New(),
		SubscriberID:  uuid.New(),
		PrayerName:    prayer.Fajr,
		ScheduledTime: time.Now().Add(-time.Minute),
		Endpoint:      endpoint,
		KeyP256dh:     "p256dh-key",
		KeyAuth:       "auth-key",
	}
}

func TestDispatchSuccess(t *testing.T) {
	repo := newFakeRepo()
	sender := &fakeSender{errFor: map[string]error{}}
	d := New(repo, sender, Config{Concurrency: 4}, zap.NewNop())

	notif := dueNotif("https://push.example/ok")
	d.Dispatch(context.Background(), []*db.DueNotification{notif})

	errMsg, ok := repo.marked[notif.ID]
	if !ok {
		t.Fatal("successful delivery should mark the row sent")
	}
	if errMsg != nil {
		t.Errorf("success should record no error, got %q", *errMsg)
	}
	if repo.deactivated[notif.SubscriberID] {
		t.Error("successful delivery must not deactivate the subscriber")
	}
	if sender.sends != 1 {
		t.Errorf("sends = %d, want 1", sender.sends)
	}
}

func TestDispatchGoneEndpointDeactivates(t *testing.T) {
	repo := newFakeRepo()
	gone := dueNotif("https://push.example/gone")
	ok := dueNotif("https://push.example/ok")

	sender := &fakeSender{errFor: map[string]error{
		gone.Endpoint: push.ErrEndpointGone,
	}}
	d := New(repo, sender, Config{Concurrency: 2}, zap.NewNop())

	d.Dispatch(context.Background(), []*db.DueNotification{gone, ok})

	if !repo.deactivated[gone.SubscriberID] {
		t.Error("gone endpoint should deactivate its subscriber")
	}
	if repo.deactivated[ok.SubscriberID] {
		t.Error("healthy subscriber must not be deactivated")
	}

	// Both rows reach a terminal state.
	if _, marked := repo.marked[gone.ID]; !marked {
		t.Error("gone row should still be marked sent")
	}
	if _, marked := repo.marked[ok.ID]; !marked {
		t.Error("ok row should be marked sent")
	}
	if errMsg := repo.marked[gone.ID]; errMsg == nil {
		t.Error("gone row should record the delivery error")
	}
}

func TestDispatchTransientFailureKeepsSubscriber(t *testing.T) {
	repo := newFakeRepo()
	notif := dueNotif("https://push.example/flaky")

	sender := &fakeSender{errFor: map[string]error{
		notif.Endpoint: errors.New("push service returned status 500"),
	}}
	d := New(repo, sender, Config{}, zap.NewNop())

	d.Dispatch(context.Background(), []*db.DueNotification{notif})

	if repo.deactivated[notif.SubscriberID] {
		t.Error("transient failure must not deactivate the subscriber")
	}

	// The row is marked sent anyway: a stale prayer alert is never
	// retried.
	errMsg, marked := repo.marked[notif.ID]
	if !marked {
		t.Fatal("failed row should still be marked sent")
	}
	if errMsg == nil {
		t.Error("failed row should record the delivery error")
	}
}

func TestDispatchEmptyBatch(t *testing.T) {
	repo := newFakeRepo()
	sender := &fakeSender{errFor: map[string]error{}}
	d := New(repo, sender, Config{}, zap.NewNop())

	d.Dispatch(context.Background(), nil)

	if sender.sends != 0 {
		t.Errorf("empty batch should send nothing, sent %d", sender.sends)
	}
}

func TestDispatchBoundedConcurrency(t *testing.T) {
	repo := newFakeRepo()
	sender := &fakeSender{errFor: map[string]error{}}
	d := New(repo, sender, Config{Concurrency: 3}, zap.NewNop())

	batch := make([]*db.DueNotification, 20)
	for i := range batch {
		batch[i] = dueNotif("https://push.example/bulk")
	}

	d.Dispatch(context.Background(), batch)

	if sender.sends != len(batch) {
		t.Errorf("sends = %d, want %d", sender.sends, len(batch))
	}
	if len(repo.marked) != len(batch) {
		t.Errorf("marked = %d rows, want %d", len(repo.marked), len(batch))
	}
}
