package reservation_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/hrm/internal/domain"
	"github.com/vladislavdragonenkov/hrm/internal/metrics"
	"github.com/vladislavdragonenkov/hrm/internal/service/reservation"
	"github.com/vladislavdragonenkov/hrm/internal/storage/memory"
)

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: false, DisableTimestamp: true})
	logger.SetLevel(logrus.DebugLevel)
	return logger.WithField("component", "test")
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestStore(t *testing.T, kv domain.KeyValueStore, opts ...reservation.Option) *reservation.Store {
	t.Helper()
	base := []reservation.Option{
		reservation.WithLogger(loggerForTests()),
		reservation.WithMetrics(metrics.NewStoreMetricsWithRegisterer(prometheus.NewRegistry())),
	}
	return reservation.NewStore(context.Background(), kv, append(base, opts...)...)
}

func sampleReservation() domain.Reservation {
	return domain.Reservation{
		GuestName:    "A",
		GuestEmail:   "a@x.com",
		RoomNumber:   "101",
		CheckInDate:  "2024-01-01",
		CheckOutDate: "2024-01-02",
	}
}

// stubKV: управляемая подмена хранилища для проверки fail-soft поведения.
type stubKV struct {
	mu       sync.Mutex
	value    string
	found    bool
	readErr  error
	writeErr error
	writes   []string
}

func (s *stubKV) Read(context.Context, string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.found, s.readErr
}

func (s *stubKV) Write(_ context.Context, _ string, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, value)
	if s.writeErr != nil {
		return s.writeErr
	}
	s.value, s.found = value, true
	return nil
}

func (s *stubKV) Ping(context.Context) error { return nil }

func (s *stubKV) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func TestStore_EmptyStorage(t *testing.T) {
	store := newTestStore(t, memory.NewKeyValueStore())

	all := store.GetAll()
	require.NotNil(t, all)
	require.Empty(t, all)
	require.NoError(t, store.PersistError())
}

func TestStore_AddAssignsFreshID(t *testing.T) {
	store := newTestStore(t, memory.NewKeyValueStore())

	withID := sampleReservation()
	withID.ID = "client-supplied"

	first := store.Add(context.Background(), withID)
	second := store.Add(context.Background(), sampleReservation())

	require.NotEmpty(t, first.ID)
	require.NotEqual(t, "client-supplied", first.ID)
	require.NotEmpty(t, second.ID)
	require.NotEqual(t, first.ID, second.ID)
}

func TestStore_DefaultIDsAreTimeOrdered(t *testing.T) {
	store := newTestStore(t, memory.NewKeyValueStore())

	ids := make(map[string]struct{})
	prev := ""
	for i := 0; i < 50; i++ {
		r := store.Add(context.Background(), sampleReservation())
		_, dup := ids[r.ID]
		require.False(t, dup, "duplicate id %s", r.ID)
		ids[r.ID] = struct{}{}
		require.Greater(t, r.ID, prev)
		prev = r.ID
	}
}

func TestStore_GetAllAfterAdd(t *testing.T) {
	store := newTestStore(t, memory.NewKeyValueStore(), reservation.WithIDGenerator(sequentialIDs()))

	in := sampleReservation()
	stored := store.Add(context.Background(), in)

	all := store.GetAll()
	require.Len(t, all, 1)

	expected := in
	expected.ID = stored.ID
	require.Equal(t, expected, all[0])
}

func TestStore_GetAllPreservesInsertionOrder(t *testing.T) {
	store := newTestStore(t, memory.NewKeyValueStore(), reservation.WithIDGenerator(sequentialIDs()))
	ctx := context.Background()

	for _, room := range []string{"301", "101", "201"} {
		r := sampleReservation()
		r.RoomNumber = room
		store.Add(ctx, r)
	}

	all := store.GetAll()
	require.Len(t, all, 3)
	require.Equal(t, "301", all[0].RoomNumber)
	require.Equal(t, "101", all[1].RoomNumber)
	require.Equal(t, "201", all[2].RoomNumber)
}

func TestStore_GetAllReturnsCopy(t *testing.T) {
	store := newTestStore(t, memory.NewKeyValueStore())
	store.Add(context.Background(), sampleReservation())

	all := store.GetAll()
	all[0].GuestName = "mutated"

	require.Equal(t, "A", store.GetAll()[0].GuestName)
}

func TestStore_GetByID(t *testing.T) {
	store := newTestStore(t, memory.NewKeyValueStore())
	stored := store.Add(context.Background(), sampleReservation())

	got, ok := store.GetByID(stored.ID)
	require.True(t, ok)
	require.Equal(t, stored, got)

	_, ok = store.GetByID("missing")
	require.False(t, ok)
}

func TestStore_Delete(t *testing.T) {
	kv := &stubKV{}
	store := newTestStore(t, kv, reservation.WithIDGenerator(sequentialIDs()))
	ctx := context.Background()

	a := store.Add(ctx, sampleReservation())
	b := store.Add(ctx, sampleReservation())

	require.True(t, store.Delete(ctx, a.ID))

	all := store.GetAll()
	require.Len(t, all, 1)
	require.Equal(t, b.ID, all[0].ID)
	_, ok := store.GetByID(a.ID)
	require.False(t, ok)
}

func TestStore_DeleteMissingIsNoopButPersists(t *testing.T) {
	kv := &stubKV{}
	store := newTestStore(t, kv)
	ctx := context.Background()

	store.Add(ctx, sampleReservation())
	before := store.GetAll()
	writes := kv.writeCount()

	require.False(t, store.Delete(ctx, "missing"))
	require.Equal(t, before, store.GetAll())
	require.Equal(t, writes+1, kv.writeCount(), "delete rewrites the slot even on no-op")
}

func TestStore_Update(t *testing.T) {
	store := newTestStore(t, memory.NewKeyValueStore(), reservation.WithIDGenerator(sequentialIDs()))
	ctx := context.Background()

	a := store.Add(ctx, sampleReservation())
	b := store.Add(ctx, sampleReservation())
	c := store.Add(ctx, sampleReservation())

	changed := b
	changed.GuestName = "B"
	changed.RoomNumber = "202"
	require.True(t, store.Update(ctx, changed))

	all := store.GetAll()
	require.Equal(t, []domain.Reservation{a, changed, c}, all)
}

func TestStore_UpdateMissingIsNoopButPersists(t *testing.T) {
	kv := &stubKV{}
	store := newTestStore(t, kv)
	ctx := context.Background()

	store.Add(ctx, sampleReservation())
	before := store.GetAll()
	writes := kv.writeCount()

	ghost := sampleReservation()
	ghost.ID = "missing"
	require.False(t, store.Update(ctx, ghost))
	require.Equal(t, before, store.GetAll())
	require.Equal(t, writes+1, kv.writeCount(), "update rewrites the slot on every call")
}

func TestStore_EveryAddRewritesWholeSlot(t *testing.T) {
	kv := &stubKV{}
	store := newTestStore(t, kv, reservation.WithIDGenerator(sequentialIDs()))
	ctx := context.Background()

	store.Add(ctx, sampleReservation())
	store.Add(ctx, sampleReservation())

	require.Equal(t, 2, kv.writeCount())
	decoded, err := reservation.Decode(kv.writes[1])
	require.NoError(t, err)
	require.Len(t, decoded, 2)
}

func TestStore_RoundTripThroughStorage(t *testing.T) {
	kv := memory.NewKeyValueStore()
	store := newTestStore(t, kv)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		r := sampleReservation()
		r.RoomNumber = fmt.Sprintf("10%d", i)
		store.Add(ctx, r)
	}

	reopened := newTestStore(t, kv)
	require.Equal(t, store.GetAll(), reopened.GetAll())
}

func TestStore_PersistenceFormat(t *testing.T) {
	kv := memory.NewKeyValueStore()
	store := newTestStore(t, kv, reservation.WithIDGenerator(func() string { return "1700000000000" }))
	store.Add(context.Background(), sampleReservation())

	raw, found, err := kv.Read(context.Background(), reservation.DefaultKey)
	require.NoError(t, err)
	require.True(t, found)
	require.JSONEq(t, `[{
		"id": "1700000000000",
		"checkInDate": "2024-01-01",
		"checkOutDate": "2024-01-02",
		"guestName": "A",
		"guestEmail": "a@x.com",
		"roomNumber": "101"
	}]`, raw)
}

func TestStore_CustomKey(t *testing.T) {
	kv := memory.NewKeyValueStore()
	store := newTestStore(t, kv, reservation.WithKey("hotel-a"))
	store.Add(context.Background(), sampleReservation())

	require.Equal(t, "hotel-a", store.Key())
	_, found, err := kv.Read(context.Background(), "hotel-a")
	require.NoError(t, err)
	require.True(t, found)
	_, found, err = kv.Read(context.Background(), reservation.DefaultKey)
	require.NoError(t, err)
	require.False(t, found)
}

func TestStore_CorruptedSlotFailsSoft(t *testing.T) {
	for _, raw := range []string{"{not json", `{"id":"1"}`, `[1,2,3]`} {
		t.Run(raw, func(t *testing.T) {
			kv := &stubKV{value: raw, found: true}
			store := newTestStore(t, kv)

			require.Empty(t, store.GetAll())
			require.ErrorIs(t, store.PersistError(), domain.ErrSlotCorrupted)

			// следующая успешная запись "лечит" слот
			store.Add(context.Background(), sampleReservation())
			require.NoError(t, store.PersistError())
			require.Len(t, store.GetAll(), 1)
		})
	}
}

func TestStore_EmptyAndNullSlot(t *testing.T) {
	for _, raw := range []string{"", "   ", "null", "[]"} {
		store := newTestStore(t, &stubKV{value: raw, found: true})
		require.Empty(t, store.GetAll(), "raw=%q", raw)
		require.NoError(t, store.PersistError(), "raw=%q", raw)
	}
}

func TestStore_ReadFailureFailsSoft(t *testing.T) {
	kv := &stubKV{readErr: errors.New("quota exceeded")}
	store := newTestStore(t, kv)

	require.Empty(t, store.GetAll())
	require.Error(t, store.PersistError())
}

func TestStore_WriteFailureKeepsMemoryState(t *testing.T) {
	kv := &stubKV{writeErr: errors.New("disk full")}
	store := newTestStore(t, kv)
	ctx := context.Background()

	stored := store.Add(ctx, sampleReservation())

	require.Len(t, store.GetAll(), 1)
	require.Error(t, store.PersistError())

	kv.mu.Lock()
	kv.writeErr = nil
	kv.mu.Unlock()

	require.True(t, store.Delete(ctx, stored.ID))
	require.NoError(t, store.PersistError())
}

func TestStore_NilStorage(t *testing.T) {
	store := reservation.NewStore(context.Background(), nil, reservation.WithLogger(loggerForTests()))

	require.ErrorIs(t, store.PersistError(), domain.ErrStorageUnavailable)
	r := store.Add(context.Background(), sampleReservation())
	require.NotEmpty(t, r.ID)
	require.Len(t, store.GetAll(), 1)
}

func TestStore_Reload(t *testing.T) {
	kv := memory.NewKeyValueStore()
	ctx := context.Background()
	writer := newTestStore(t, kv)
	reader := newTestStore(t, kv)

	writer.Add(ctx, sampleReservation())
	require.Empty(t, reader.GetAll())

	require.NoError(t, reader.Reload(ctx))
	require.Equal(t, writer.GetAll(), reader.GetAll())
}

func TestStore_ReloadCorruptedKeepsState(t *testing.T) {
	kv := &stubKV{}
	store := newTestStore(t, kv)
	ctx := context.Background()
	store.Add(ctx, sampleReservation())

	kv.mu.Lock()
	kv.value = "garbage"
	kv.mu.Unlock()

	err := store.Reload(ctx)
	require.ErrorIs(t, err, domain.ErrSlotCorrupted)
	require.Len(t, store.GetAll(), 1)
}

// Два экземпляра над одним слотом (аналог двух вкладок браузера):
// побеждает последний писатель, изменения другого экземпляра теряются.
func TestStore_SharedSlotIsLastWriterWins(t *testing.T) {
	kv := memory.NewKeyValueStore()
	ctx := context.Background()
	tabA := newTestStore(t, kv)
	tabB := newTestStore(t, kv)

	tabA.Add(ctx, sampleReservation())
	other := sampleReservation()
	other.GuestName = "B"
	tabB.Add(ctx, other)

	fresh := newTestStore(t, kv)
	all := fresh.GetAll()
	require.Len(t, all, 1)
	require.Equal(t, "B", all[0].GuestName)
}

func TestStore_Subscribe(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(t, memory.NewKeyValueStore(),
		reservation.WithIDGenerator(sequentialIDs()),
		reservation.WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	var events []domain.ReservationEvent
	unsubscribe := store.Subscribe(func(e domain.ReservationEvent) {
		events = append(events, e)
	})

	created := store.Add(ctx, sampleReservation())
	updated := created
	updated.RoomNumber = "999"
	store.Update(ctx, updated)
	store.Update(ctx, domain.Reservation{ID: "missing"})
	store.Delete(ctx, created.ID)
	store.Delete(ctx, "missing")

	require.Len(t, events, 3)
	require.Equal(t, domain.EventReservationCreated, events[0].Type)
	require.Equal(t, created, events[0].Reservation)
	require.Equal(t, domain.EventReservationUpdated, events[1].Type)
	require.Equal(t, "999", events[1].Reservation.RoomNumber)
	require.Equal(t, domain.EventReservationDeleted, events[2].Type)
	require.Equal(t, created.ID, events[2].Reservation.ID)
	require.Equal(t, now, events[0].Timestamp)

	unsubscribe()
	unsubscribe()
	store.Add(ctx, sampleReservation())
	require.Len(t, events, 3)
}

func TestStore_SubscriberMayReadStore(t *testing.T) {
	store := newTestStore(t, memory.NewKeyValueStore())

	var seen int
	store.Subscribe(func(domain.ReservationEvent) {
		seen = len(store.GetAll())
	})
	store.Add(context.Background(), sampleReservation())

	require.Equal(t, 1, seen)
}

func TestStore_ConcurrentAdds(t *testing.T) {
	kv := memory.NewKeyValueStore()
	store := newTestStore(t, kv)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Add(ctx, sampleReservation())
		}()
	}
	wg.Wait()

	require.Len(t, store.GetAll(), 20)
	require.Len(t, newTestStore(t, kv).GetAll(), 20)
}

func TestStore_EndToEnd(t *testing.T) {
	store := newTestStore(t, memory.NewKeyValueStore())
	ctx := context.Background()

	in := domain.Reservation{
		GuestName:    "A",
		GuestEmail:   "a@x.com",
		RoomNumber:   "101",
		CheckInDate:  "2024-01-01",
		CheckOutDate: "2024-01-02",
	}
	stored := store.Add(ctx, in)

	all := store.GetAll()
	require.Len(t, all, 1)
	require.NotEmpty(t, all[0].ID)
	require.Equal(t, stored.ID, all[0].ID)
	require.Equal(t, "A", all[0].GuestName)
	require.Equal(t, "a@x.com", all[0].GuestEmail)
	require.Equal(t, "101", all[0].RoomNumber)
	require.Equal(t, "2024-01-01", all[0].CheckInDate)
	require.Equal(t, "2024-01-02", all[0].CheckOutDate)

	store.Delete(ctx, stored.ID)
	require.Empty(t, store.GetAll())
}

func TestEncodeDecode(t *testing.T) {
	raw, err := reservation.Encode(nil)
	require.NoError(t, err)
	require.Equal(t, "[]", raw)

	items, err := reservation.Decode(`[{"id":"1","guestName":"A"}]`)
	require.NoError(t, err)
	require.Equal(t, []domain.Reservation{{ID: "1", GuestName: "A"}}, items)
}
