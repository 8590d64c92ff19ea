package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/hrm/internal/domain"
	"github.com/vladislavdragonenkov/hrm/internal/metrics"
	"github.com/vladislavdragonenkov/hrm/internal/service/reservation"
	"github.com/vladislavdragonenkov/hrm/internal/storage/memory"
)

const validJSON = `{"guestName":"A","guestEmail":"a@x.com","roomNumber":"101","checkInDate":"2024-01-01","checkOutDate":"2024-01-02"}`

type testServer struct {
	handler  http.Handler
	store    *reservation.Store
	kv       domain.KeyValueStore
	registry *prometheus.Registry
}

func newTestServer(t *testing.T) testServer {
	t.Helper()

	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	entry := log.NewEntry(logger)

	kv := memory.NewKeyValueStore()
	store := reservation.NewStore(context.Background(), kv, reservation.WithLogger(entry))
	registry := prometheus.NewRegistry()

	return testServer{
		handler:  NewRouter(NewHandler(store, entry), metrics.NewHTTPMetricsWithRegisterer(registry)),
		store:    store,
		kv:       kv,
		registry: registry,
	}
}

func (s testServer) do(t *testing.T, method, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestCreate_JSONReturnsCreated(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/reservations", "application/json", validJSON)
	require.Equal(t, http.StatusCreated, rec.Code)

	created := decode[domain.Reservation](t, rec)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "A", created.GuestName)
	require.Equal(t, "/reservations/"+created.ID, rec.Header().Get("Location"))

	all := srv.store.GetAll()
	require.Len(t, all, 1)
	require.Equal(t, created, all[0])
}

func TestCreate_IgnoresClientID(t *testing.T) {
	srv := newTestServer(t)

	body := strings.Replace(validJSON, "{", `{"id":"client-chosen",`, 1)
	rec := srv.do(t, http.MethodPost, "/reservations", "application/json", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	created := decode[domain.Reservation](t, rec)
	require.NotEqual(t, "client-chosen", created.ID)
}

func TestCreate_FormPostRedirectsToList(t *testing.T) {
	srv := newTestServer(t)

	form := url.Values{
		"checkInDate":  {"2024-01-01"},
		"checkOutDate": {"2024-01-02"},
		"guestName":    {"Bob"},
		"guestEmail":   {"bob@example.com"},
		"roomNumber":   {"7"},
	}
	rec := srv.do(t, http.MethodPost, "/reservations", "application/x-www-form-urlencoded", form.Encode())

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, ListPath, rec.Header().Get("Location"))
	require.Len(t, srv.store.GetAll(), 1)
	require.Equal(t, "Bob", srv.store.GetAll()[0].GuestName)
}

func TestCreate_InvalidFormDoesNotReachStore(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		fields map[string]string
	}{
		{
			name: "empty",
			body: `{}`,
			fields: map[string]string{
				"checkInDate":  "field is required",
				"checkOutDate": "field is required",
				"guestName":    "field is required",
				"guestEmail":   "field is required",
				"roomNumber":   "field is required",
			},
		},
		{
			name:   "bad email",
			body:   strings.Replace(validJSON, "a@x.com", "not-an-email", 1),
			fields: map[string]string{"guestEmail": "email is invalid"},
		},
		{
			name:   "blank name",
			body:   strings.Replace(validJSON, `"guestName":"A"`, `"guestName":"   "`, 1),
			fields: map[string]string{"guestName": "field is required"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)

			rec := srv.do(t, http.MethodPost, "/reservations", "application/json", tt.body)
			require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

			resp := decode[ErrorResponse](t, rec)
			require.Equal(t, "Form is invalid", resp.Error)
			require.Equal(t, tt.fields, resp.Fields)
			require.Empty(t, srv.store.GetAll())

			_, found, err := srv.kv.Read(context.Background(), reservation.DefaultKey)
			require.NoError(t, err)
			require.False(t, found, "invalid form must not touch storage")
		})
	}
}

func TestCreate_MalformedBody(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/reservations", "application/json", `{"guestName":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, srv.store.GetAll())
}

func TestList_InsertionOrder(t *testing.T) {
	srv := newTestServer(t)

	for _, name := range []string{"first", "second", "third"} {
		body := strings.Replace(validJSON, `"guestName":"A"`, `"guestName":"`+name+`"`, 1)
		require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/reservations", "application/json", body).Code)
	}

	rec := srv.do(t, http.MethodGet, "/reservations", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	list := decode[[]domain.Reservation](t, rec)
	require.Len(t, list, 3)
	require.Equal(t, "first", list[0].GuestName)
	require.Equal(t, "second", list[1].GuestName)
	require.Equal(t, "third", list[2].GuestName)
}

func TestList_EmptyIsArray(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/reservations", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())
}

func TestGet(t *testing.T) {
	srv := newTestServer(t)
	created := decode[domain.Reservation](t, srv.do(t, http.MethodPost, "/reservations", "application/json", validJSON))

	rec := srv.do(t, http.MethodGet, "/reservations/"+created.ID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, created, decode[domain.Reservation](t, rec))

	rec = srv.do(t, http.MethodGet, "/reservations/missing", "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "reservation not found", decode[ErrorResponse](t, rec).Error)
}

func TestUpdate(t *testing.T) {
	srv := newTestServer(t)
	first := decode[domain.Reservation](t, srv.do(t, http.MethodPost, "/reservations", "application/json", validJSON))
	second := decode[domain.Reservation](t, srv.do(t, http.MethodPost, "/reservations", "application/json", validJSON))

	body := strings.Replace(validJSON, `"roomNumber":"101"`, `"roomNumber":"202"`, 1)
	rec := srv.do(t, http.MethodPut, "/reservations/"+first.ID, "application/json", body)
	require.Equal(t, http.StatusOK, rec.Code)

	updated := decode[domain.Reservation](t, rec)
	require.Equal(t, first.ID, updated.ID)
	require.Equal(t, "202", updated.RoomNumber)

	all := srv.store.GetAll()
	require.Len(t, all, 2)
	require.Equal(t, updated, all[0])
	require.Equal(t, second, all[1], "other entries stay unchanged")
}

func TestUpdate_MissingAndInvalid(t *testing.T) {
	srv := newTestServer(t)
	created := decode[domain.Reservation](t, srv.do(t, http.MethodPost, "/reservations", "application/json", validJSON))

	rec := srv.do(t, http.MethodPut, "/reservations/missing", "application/json", validJSON)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(t, http.MethodPut, "/reservations/"+created.ID, "application/json", `{"guestName":"only"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	require.Equal(t, []domain.Reservation{created}, srv.store.GetAll())
}

func TestDelete_ReturnsRefreshedList(t *testing.T) {
	srv := newTestServer(t)
	first := decode[domain.Reservation](t, srv.do(t, http.MethodPost, "/reservations", "application/json", validJSON))
	second := decode[domain.Reservation](t, srv.do(t, http.MethodPost, "/reservations", "application/json", validJSON))

	rec := srv.do(t, http.MethodDelete, "/reservations/"+first.ID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []domain.Reservation{second}, decode[[]domain.Reservation](t, rec))

	rec = srv.do(t, http.MethodDelete, "/reservations/"+first.ID, "", "")
	require.Equal(t, http.StatusOK, rec.Code, "deleting a missing id is a no-op")
	require.Equal(t, []domain.Reservation{second}, decode[[]domain.Reservation](t, rec))
}

func TestEndToEnd_AddThenDelete(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/reservations", "application/json", validJSON)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[domain.Reservation](t, rec)

	list := decode[[]domain.Reservation](t, srv.do(t, http.MethodGet, "/reservations", "", ""))
	require.Len(t, list, 1)
	require.NotEmpty(t, list[0].ID)
	require.Equal(t, domain.Reservation{
		ID:           created.ID,
		CheckInDate:  "2024-01-01",
		CheckOutDate: "2024-01-02",
		GuestName:    "A",
		GuestEmail:   "a@x.com",
		RoomNumber:   "101",
	}, list[0])

	rec = srv.do(t, http.MethodDelete, "/reservations/"+created.ID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[]`, rec.Body.String())

	raw, found, err := srv.kv.Read(context.Background(), reservation.DefaultKey)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, `[]`, raw)
}

// requestCount возвращает значение hrm_http_requests_total для набора меток.
func requestCount(t *testing.T, registry *prometheus.Registry, method, route, code string) float64 {
	t.Helper()

	families, err := registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "hrm_http_requests_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["method"] == method && labels["route"] == route && labels["code"] == code {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestRouter_UnknownRouteAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/nope", "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.NotEmpty(t, decode[ErrorResponse](t, rec).Error)

	rec = srv.do(t, http.MethodPatch, "/reservations", "", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	srv.do(t, http.MethodGet, "/reservations", "", "")
	srv.do(t, http.MethodGet, "/reservations/missing", "", "")

	count, err := testutil.GatherAndCount(srv.registry, "hrm_http_requests_total")
	require.NoError(t, err)
	require.GreaterOrEqual(t, count, 3)
	require.Equal(t, 1.0, requestCount(t, srv.registry, http.MethodGet, "/reservations", "200"))
	require.Equal(t, 1.0, requestCount(t, srv.registry, http.MethodGet, "/reservations/:id", "404"))
}

type panickingStore struct{ ReservationStore }

func (panickingStore) GetAll() []domain.Reservation { panic("boom") }

func TestRouter_RecoversFromPanic(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	registry := prometheus.NewRegistry()

	router := NewRouter(NewHandler(panickingStore{}, log.NewEntry(logger)), metrics.NewHTTPMetricsWithRegisterer(registry))

	req := httptest.NewRequest(http.MethodGet, "/reservations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, http.StatusText(http.StatusInternalServerError), decode[ErrorResponse](t, rec).Error)
	require.Equal(t, 1.0, requestCount(t, registry, http.MethodGet, "/reservations", "500"))

	var panicEntry *log.Entry
	for _, entry := range hook.AllEntries() {
		if entry.Message == "panic in http handler" {
			panicEntry = entry
		}
	}
	require.NotNil(t, panicEntry, "panic must be logged through logrus")
	require.Contains(t, panicEntry.Data[log.ErrorKey].(error).Error(), "boom")
	require.NotEmpty(t, panicEntry.Data["stack"])
}
