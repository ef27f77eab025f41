package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avasiliev/kaltrack/internal/client/models"
)

func TestDue_QueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("disk I/O error"))

	_, err = New(db).Due(context.Background(), time.Now(), 10)
	assert.ErrorContains(t, err, "disk I/O error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueue_InsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO outbox").WillReturnError(errors.New("database is locked"))

	_, err = New(db).Enqueue(context.Background(), models.EntityFood, "f1", models.OpCreate, []byte(`{}`))
	assert.ErrorContains(t, err, "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkInProgress_RowsAffectedFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE outbox").
		WillReturnResult(sqlmock.NewErrorResult(errors.New("no rows affected info")))

	_, err = New(db).MarkInProgress(context.Background(), 1)
	assert.ErrorContains(t, err, "rows affected")
	assert.NoError(t, mock.ExpectationsWereMet())
}
