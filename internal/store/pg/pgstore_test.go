package pg

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"stockroom.org/internal/store"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestGet(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(getQuery)).
		WithArgs("Catalogs", "c1").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow([]byte(`{"CatalogName":"Laptop"}`)))

	raw, err := s.Get(context.Background(), store.Catalogs, "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(raw) != `{"CatalogName":"Laptop"}` {
		t.Fatalf("unexpected body: %s", raw)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(getQuery)).
		WithArgs("Users", "ghost").
		WillReturnError(sql.ErrNoRows)

	if _, err := s.Get(context.Background(), store.Users, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetUpserts(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(setQuery)).
		WithArgs("Orders", "o1", []byte(`{"OrderQuantity":3}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Set(context.Background(), store.Orders, "o1", []byte(`{"OrderQuantity":3}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateMissingDocument(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(updateQuery)).
		WithArgs("Users", "u1", []byte(`{"isActive":false}`)).
		WillReturnError(sql.ErrNoRows)

	err := s.Update(context.Background(), store.Users, "u1", map[string]any{"isActive": false})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdatePublishesMergedBody(t *testing.T) {
	s, mock := newMock(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _ := s.Subscribe(ctx, store.Users)

	mock.ExpectQuery(regexp.QuoteMeta(updateQuery)).
		WithArgs("Users", "u1", []byte(`{"isActive":false}`)).
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow([]byte(`{"email":"a@b.c","isActive":false}`)))

	if err := s.Update(ctx, store.Users, "u1", map[string]any{"isActive": false}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	evt := <-events
	if evt.Op != store.OpUpdate || string(evt.Value) != `{"email":"a@b.c","isActive":false}` {
		t.Fatalf("unexpected event: %+v", evt)
	}
}

func TestListOrdersByID(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(listQuery)).
		WithArgs("AuditLog").
		WillReturnRows(sqlmock.NewRows([]string{"id", "body"}).
			AddRow("01A", []byte(`{"action":"ADD_CATALOG"}`)).
			AddRow("01B", []byte(`{"action":"CREATE_ORDER"}`)))

	docs, err := s.List(context.Background(), store.AuditLog)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "01A" || docs[1].ID != "01B" {
		t.Fatalf("unexpected docs: %+v", docs)
	}
}

func TestListByFieldFiltersInSQL(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`select id, body from documents where collection = $1 and body ->> 'catalogName' = $2 order by id`)).
		WithArgs("Catalogs", "Laptop").
		WillReturnRows(sqlmock.NewRows([]string{"id", "body"}).
			AddRow("01A", []byte(`{"catalogName":"Laptop"}`)))

	docs, err := store.ListByField(context.Background(), s, store.Catalogs, "catalogName", "Laptop")
	if err != nil {
		t.Fatalf("ListByField: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "01A" {
		t.Fatalf("unexpected docs: %+v", docs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListByFieldRejectsUnsafeField(t *testing.T) {
	s, _ := newMock(t)
	_, err := s.ListByField(context.Background(), store.Catalogs, "x' or '1'='1", "v")
	if !errors.Is(err, store.ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
}

func TestRemoveIgnoresMissingRow(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(removeQuery)).
		WithArgs("Catalogs", "gone").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.Remove(context.Background(), store.Catalogs, "gone"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
}

func TestDriverErrorsAreClassified(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(setQuery)).
		WillReturnError(errors.New("connection reset by peer"))
	if err := s.Set(context.Background(), store.Catalogs, "c1", []byte(`{}`)); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	mock.ExpectExec(regexp.QuoteMeta(setQuery)).
		WillReturnError(&pgconn.PgError{Code: pgErrInvalidText, Message: "invalid input syntax for type json"})
	if err := s.Set(context.Background(), store.Catalogs, "c1", []byte(`{}`)); !errors.Is(err, store.ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
}
