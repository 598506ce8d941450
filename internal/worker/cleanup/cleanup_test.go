package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/goleak"
)

const deleteQuery = `DELETE FROM kv_entries WHERE key LIKE 'session:%' AND updated_at < now() - $1::interval`

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmockの生成に失敗: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// findLogField はJSONログからkeyの値を探す。
func findLogField(buf *bytes.Buffer, key string) (any, bool) {
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if v, ok := entry[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func TestNewCleanupJob_SetsRetentionDays(t *testing.T) {
	var buf bytes.Buffer
	db, _ := newMock(t)

	job := NewCleanupJob(db, newTestLogger(&buf))
	if job.RetentionDays != DefaultRetentionDays {
		t.Errorf("RetentionDays = %d, want %d", job.RetentionDays, DefaultRetentionDays)
	}
}

func TestCleanupJob_Run_DeletesStaleSessions(t *testing.T) {
	var buf bytes.Buffer
	db, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(deleteQuery)).
		WithArgs("30 days").
		WillReturnResult(sqlmock.NewResult(0, 5))

	job := NewCleanupJob(db, newTestLogger(&buf))
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("未実行の期待値があります: %v", err)
	}
	if v, ok := findLogField(&buf, "deleted_count"); !ok || v != float64(5) {
		t.Errorf("ログに deleted_count=5 が記録されていない。ログ出力: %s", buf.String())
	}
	if v, ok := findLogField(&buf, "retention_days"); !ok || v != float64(30) {
		t.Errorf("ログに retention_days=30 が記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_CustomRetention(t *testing.T) {
	var buf bytes.Buffer
	db, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(deleteQuery)).
		WithArgs("7 days").
		WillReturnResult(sqlmock.NewResult(0, 0))

	job := NewCleanupJob(db, newTestLogger(&buf))
	job.RetentionDays = 7
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("未実行の期待値があります: %v", err)
	}
}

func TestCleanupJob_Run_ReturnsErrorOnDBFailure(t *testing.T) {
	var buf bytes.Buffer
	db, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(deleteQuery)).
		WithArgs("30 days").
		WillReturnError(sql.ErrConnDone)

	job := NewCleanupJob(db, newTestLogger(&buf))
	err := job.Run(context.Background())
	if !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("err = %v, want sql.ErrConnDone", err)
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラーログが出力されていない: %s", buf.String())
	}
}

func TestCleanupJob_Start_RunsImmediatelyAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	var buf bytes.Buffer
	db, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta(deleteQuery)).
		WithArgs("30 days").
		WillReturnResult(sqlmock.NewResult(0, 1))

	job := NewCleanupJob(db, newTestLogger(&buf))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	deadline := time.After(time.Second)
	for mock.ExpectationsWereMet() != nil {
		select {
		case <-deadline:
			t.Fatal("起動直後にクリーンアップが実行されていません")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("コンテキストのキャンセル後もジョブが停止しません")
	}
	db.Close()
}
