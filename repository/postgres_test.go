package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestGetByIdentifierReturnsNilWhenAbsent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, cloud_url").
		WithArgs("video-1").
		WillReturnRows(sqlmock.NewRows(nil))

	repo := NewPostgresVideoRepository(db)
	v, err := repo.GetByIdentifier(context.Background(), "video-1")
	require.NoError(t, err)
	require.Nil(t, v)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertVideoUpsertsOnConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO videos").
		WithArgs("video-1", "gs://bucket/video-1.mp4", "https://example.com/demo.mp4", 120.5, int64(1024), "h264", int64(1920), int64(1080), 30.0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgresVideoRepository(db)
	err = repo.Insert(context.Background(), &Video{
		ID: "video-1", CloudURL: "gs://bucket/video-1.mp4", SourceURL: "https://example.com/demo.mp4",
		DurationSeconds: 120.5, SizeBytes: 1024, Codec: "h264", Width: 1920, Height: 1080, FPS: 30.0,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkInsertMomentsSkipsWhenEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostgresMomentRepository(db)
	require.NoError(t, repo.BulkInsert(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkInsertMomentsCommitsTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO moments")
	mock.ExpectExec("INSERT INTO moments").
		WithArgs("abc123", "video-1", 10.0, 70.0, "Intro", false, "", "", "", "gencfg-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewPostgresMomentRepository(db)
	err = repo.BulkInsert(context.Background(), []Moment{
		{ID: "abc123", VideoID: "video-1", StartTime: 10, EndTime: 70, Title: "Intro", GenerationConfigID: "gencfg-1"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertRefinedDeletesPriorRefinementThenInserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM moments").WithArgs("parent-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO moments").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	repo := NewPostgresMomentRepository(db)
	err = repo.InsertRefined(context.Background(), "parent-1", Moment{
		ID: "refined-1", VideoID: "video-1", StartTime: 12, EndTime: 60,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
