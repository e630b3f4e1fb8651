package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestListIncidentsPropagatesDriverError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT .* FROM incidents WHERE reporter_user_id<>\$1 ORDER BY id ASC$`).
		WithArgs(int64(7)).
		WillReturnError(errors.New("connection reset"))

	_, err = NewIncidentsStore(db).ListIncidents(context.Background(), IncidentFilter{ExcludeReporter: 7})
	if err == nil || !regexp.MustCompile(`connection reset`).MatchString(err.Error()) {
		t.Fatalf("expected driver error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateResponseMapsForeignKeyViolation(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`(?s)^\s*INSERT\s+INTO\s+responses`).
		WillReturnError(errors.New("FOREIGN KEY constraint failed"))

	_, err = NewResponsesStore(db).CreateResponse(context.Background(), &Response{IncidentID: "x", ResponderUserID: 1, Description: "d"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWithinTxCommitFailureIsReported(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("disk full"))

	err = NewTxManager(db).WithinTx(context.Background(), func(r *Repos) error { return nil })
	if err == nil || !regexp.MustCompile(`commit tx: disk full`).MatchString(err.Error()) {
		t.Fatalf("expected commit error, got %v", err)
	}
}
