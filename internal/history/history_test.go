package history

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gokatarajesh/peerprep/internal/auth"
)

type fakePublisher struct {
	channel string
	payload []byte
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.payload, _ = message.([]byte)
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Insert(ctx context.Context, rec Record) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *mockStore) ListByUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	args := m.Called(ctx, userID, limit)
	records, _ := args.Get(0).([]Record)
	return records, args.Error(1)
}

type mockDB struct {
	mock.Mock
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	called := m.Called(ctx, sql, args)
	return pgconn.NewCommandTag("INSERT 0 1"), called.Error(0)
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	called := m.Called(ctx, sql, args)
	rows, _ := called.Get(0).(pgx.Rows)
	return rows, called.Error(1)
}

type fakeRows struct {
	data   [][]any
	idx    int
	closed bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = row[i].(string)
		case *time.Time:
			*p = row[i].(time.Time)
		default:
			return errors.New("unsupported scan target")
		}
	}
	return nil
}

func (r *fakeRows) Values() ([]any, error) { return r.data[r.idx-1], nil }

func sampleRecord() Record {
	return Record{
		UserID:            "user-1",
		Title:             "Two Sum",
		Topic:             "Arrays",
		Difficulty:        "Easy",
		Description:       "Find two numbers.",
		SubmittedSolution: "return []int{0, 1}",
		Date:              time.Date(2026, 4, 2, 15, 4, 5, 0, time.UTC),
	}
}

func TestPublisherRecord(t *testing.T) {
	pub := &fakePublisher{}
	require.NoError(t, NewPublisher(pub, "").Record(context.Background(), sampleRecord()))

	assert.Equal(t, DefaultChannel, pub.channel)
	var got Record
	require.NoError(t, json.Unmarshal(pub.payload, &got))
	assert.Equal(t, sampleRecord(), got)
}

func TestPublisherRecordError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	err := NewPublisher(pub, "custom").Record(context.Background(), sampleRecord())
	assert.ErrorContains(t, err, "connection refused")
	assert.Equal(t, "custom", pub.channel)
}

func TestRecorderPersistsDecodedRecord(t *testing.T) {
	store := new(mockStore)
	store.On("Insert", mock.Anything, sampleRecord()).Return(nil).Once()
	rec := NewRecorder(nil, store, "", zerolog.Nop())

	data, err := json.Marshal(sampleRecord())
	require.NoError(t, err)
	rec.persist(context.Background(), string(data))

	store.AssertExpectations(t)
}

func TestRecorderSkipsBadPayloads(t *testing.T) {
	store := new(mockStore)
	rec := NewRecorder(nil, store, "", zerolog.Nop())

	rec.persist(context.Background(), "not json")
	rec.persist(context.Background(), `{"title":"no user"}`)

	store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestRecorderSurvivesInsertFailure(t *testing.T) {
	store := new(mockStore)
	store.On("Insert", mock.Anything, mock.Anything).Return(errors.New("db down")).Twice()
	rec := NewRecorder(nil, store, "", zerolog.Nop())

	data, _ := json.Marshal(sampleRecord())
	rec.persist(context.Background(), string(data))
	rec.persist(context.Background(), string(data))
	store.AssertExpectations(t)
}

func TestRecorderRunWithoutRedis(t *testing.T) {
	assert.NoError(t, NewRecorder(nil, new(mockStore), "", zerolog.Nop()).Run(context.Background()))
}

func TestRepositoryInsert(t *testing.T) {
	db := new(mockDB)
	r := sampleRecord()
	db.On("Exec", mock.Anything, insertRecordSQL,
		[]any{r.UserID, r.Title, r.Topic, r.Difficulty, r.Description, r.SubmittedSolution, r.Date}).Return(nil)

	require.NoError(t, NewRepository(db).Insert(context.Background(), r))
	db.AssertExpectations(t)
}

func TestRepositoryInsertWrapsError(t *testing.T) {
	db := new(mockDB)
	db.On("Exec", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("relation does not exist"))

	err := NewRepository(db).Insert(context.Background(), sampleRecord())
	assert.ErrorContains(t, err, "insert history record")
}

func TestRepositoryListByUser(t *testing.T) {
	r := sampleRecord()
	rows := &fakeRows{data: [][]any{
		{r.UserID, r.Title, r.Topic, r.Difficulty, r.Description, r.SubmittedSolution, r.Date},
	}}
	db := new(mockDB)
	db.On("Query", mock.Anything, listRecordsSQL, []any{"user-1", 20}).Return(rows, nil)

	records, err := NewRepository(db).ListByUser(context.Background(), "user-1", 0)
	require.NoError(t, err)
	assert.Equal(t, []Record{r}, records)
	assert.True(t, rows.closed)
}

func TestRepositoryListByUserClampsLimit(t *testing.T) {
	db := new(mockDB)
	db.On("Query", mock.Anything, listRecordsSQL, []any{"user-1", 100}).Return(&fakeRows{}, nil)

	_, err := NewRepository(db).ListByUser(context.Background(), "user-1", 150)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestHTTPHandlerList(t *testing.T) {
	store := new(mockStore)
	store.On("ListByUser", mock.Anything, "user-1", 5).Return([]Record{sampleRecord()}, nil)
	h := NewHTTPHandler(store, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/v1/history?limit=5", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: "user-1"}))
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Records, 1)
	assert.Equal(t, "Two Sum", body.Records[0].Title)
}

func TestHTTPHandlerListRequiresIdentity(t *testing.T) {
	h := NewHTTPHandler(new(mockStore), zerolog.Nop())

	rec := httptest.NewRecorder()
	h.HandleList(rec, httptest.NewRequest(http.MethodGet, "/v1/history", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHTTPHandlerListRejectsBadLimit(t *testing.T) {
	h := NewHTTPHandler(new(mockStore), zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/v1/history?limit=abc", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), auth.Identity{UserID: "user-1"}))
	rec := httptest.NewRecorder()
	h.HandleList(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
