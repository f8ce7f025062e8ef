package postgres

import (
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/riverline-chat/riverline/server/store/adapter"
)

func newMockAdapter(t *testing.T) (*Adapter, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	a, err := New(1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	a.db = sqlx.NewDb(db, "postgres")
	return a, mock
}

func TestRegisterUser_NameTaken(t *testing.T) {
	a, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users WHERE username = \$1`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, err := a.RegisterUser("alice", "deadbeef")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var storeErr *adapter.Error
	if !asAdapterError(err, &storeErr) {
		t.Fatalf("expected *adapter.Error, got %T: %v", err, err)
	}
	if storeErr.Code != adapter.ErrNameTaken {
		t.Fatalf("got code %v, want ErrNameTaken", storeErr.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetOrCreateConversation_Canonicalizes(t *testing.T) {
	a, mock := newMockAdapter(t)

	// Caller passes (20, 10); adapter must canonicalize to (10, 20).
	mock.ExpectQuery(`SELECT conversation_id FROM conversations WHERE participant1_id = \$1 AND participant2_id = \$2`).
		WithArgs(int64(10), int64(20)).
		WillReturnRows(sqlmock.NewRows([]string{"conversation_id"}).AddRow(uint64(555)))

	id, err := a.GetOrCreateConversation(20, 10)
	if err != nil {
		t.Fatalf("GetOrCreateConversation: %v", err)
	}
	if id != 555 {
		t.Fatalf("got id %v, want 555", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRemoveMember_NotMember(t *testing.T) {
	a, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE group_members SET active = FALSE`).
		WithArgs(uint64(7), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := a.RemoveMember(7, 3, "bob")
	var storeErr *adapter.Error
	if !asAdapterError(err, &storeErr) || storeErr.Code != adapter.ErrNotMember {
		t.Fatalf("got %v, want ErrNotMember", err)
	}
}

func asAdapterError(err error, target **adapter.Error) bool {
	ae, ok := err.(*adapter.Error)
	if ok {
		*target = ae
	}
	return ok
}
