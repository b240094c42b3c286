package store

import (
	"context"
	"testing"
	"time"

	"clinic-portal-server/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(gormmysql.New(gormmysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return db, mock
}

func duplicateEntry() error {
	return &mysql.MySQLError{Number: 1062, Message: "Duplicate entry for key 'idx_appointments_active_slot'"}
}

func TestUserStore_FindByID(t *testing.T) {
	db, mock := setupMockDB(t)
	users := NewUserStore(db)

	rows := sqlmock.NewRows([]string{"id", "email", "first_name", "last_name", "role", "is_active", "is_verified"}).
		AddRow("user-1", "ada@clinic.test", "Ada", "Lovelace", "DOCTOR", true, true)
	mock.ExpectQuery("SELECT \\* FROM `users` WHERE id = \\?").WillReturnRows(rows)

	user, err := users.FindByID(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "ada@clinic.test", user.Email)
	assert.Equal(t, models.RoleDoctor, user.Role)
	assert.True(t, user.CanPractice())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStore_FindByID_NotFound(t *testing.T) {
	db, mock := setupMockDB(t)
	users := NewUserStore(db)

	mock.ExpectQuery("SELECT \\* FROM `users`").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := users.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStore_Create_DuplicateEmail(t *testing.T) {
	db, mock := setupMockDB(t)
	users := NewUserStore(db)

	mock.ExpectExec("INSERT INTO `users`").WillReturnError(duplicateEntry())

	err := users.Create(context.Background(), &models.User{Email: "ada@clinic.test", Role: models.RolePatient})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStore_ListFiltersDoctors(t *testing.T) {
	db, mock := setupMockDB(t)
	users := NewUserStore(db)

	rows := sqlmock.NewRows([]string{"id", "role", "is_active", "is_verified"}).
		AddRow("doc-1", "DOCTOR", true, true)
	mock.ExpectQuery("SELECT \\* FROM `users` WHERE role = \\? AND is_active = \\? AND is_verified = \\?").
		WillReturnRows(rows)

	got, err := users.List(context.Background(), UserFilter{Role: models.RoleDoctor, ActiveOnly: true, VerifiedOnly: true})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentStore_Create_SlotTaken(t *testing.T) {
	db, mock := setupMockDB(t)
	appts := NewAppointmentStore(db)

	mock.ExpectExec("INSERT INTO `appointments`").WillReturnError(duplicateEntry())

	slot := models.SlotKey("doc-1", "2030-01-02", "09:00")
	err := appts.Create(context.Background(), &models.Appointment{
		PatientID:  "pat-1",
		DoctorID:   "doc-1",
		Date:       "2030-01-02",
		Time:       "09:00",
		Status:     models.StatusScheduled,
		ActiveSlot: &slot,
	})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentStore_Create(t *testing.T) {
	db, mock := setupMockDB(t)
	appts := NewAppointmentStore(db)

	mock.ExpectExec("INSERT INTO `appointments`").WillReturnResult(sqlmock.NewResult(0, 1))

	appt := &models.Appointment{PatientID: "pat-1", DoctorID: "doc-1", Date: "2030-01-02", Time: "09:00", Status: models.StatusScheduled}
	require.NoError(t, appts.Create(context.Background(), appt))
	assert.NotEmpty(t, appt.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentStore_FindConflicting(t *testing.T) {
	db, mock := setupMockDB(t)
	appts := NewAppointmentStore(db)
	ctx := context.Background()

	mock.ExpectQuery("SELECT \\* FROM `appointments` WHERE doctor_id = \\? AND date = \\? AND time = \\? AND status IN").
		WillReturnRows(sqlmock.NewRows([]string{"id", "doctor_id", "date", "time", "status"}))

	got, err := appts.FindConflicting(ctx, "doc-1", "2030-01-02", "09:00", models.SlotHoldingStatuses)
	require.NoError(t, err)
	assert.Nil(t, got)

	mock.ExpectQuery("SELECT \\* FROM `appointments`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "doctor_id", "date", "time", "status"}).
			AddRow("appt-1", "doc-1", "2030-01-02", "09:00", "CONFIRMED"))

	got, err = appts.FindConflicting(ctx, "doc-1", "2030-01-02", "09:00", models.SlotHoldingStatuses)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StatusConfirmed, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentStore_UpdateStatus(t *testing.T) {
	db, mock := setupMockDB(t)
	appts := NewAppointmentStore(db)
	ctx := context.Background()

	now := time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC)
	appt := &models.Appointment{Status: models.StatusCancelled, CancelledAt: &now}
	appt.ID = "appt-1"

	mock.ExpectExec("UPDATE `appointments` SET .* WHERE id = \\? AND status = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, appts.UpdateStatus(ctx, appt, models.StatusScheduled))

	mock.ExpectExec("UPDATE `appointments`").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, appts.UpdateStatus(ctx, appt, models.StatusScheduled), ErrStale)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenStore_Revoke(t *testing.T) {
	db, mock := setupMockDB(t)
	tokens := NewRefreshTokenStore(db)
	ctx := context.Background()

	mock.ExpectExec("UPDATE `refresh_tokens` SET .*is_revoked").WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, tokens.Revoke(ctx, "tok"))

	mock.ExpectExec("UPDATE `refresh_tokens`").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `refresh_tokens`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	assert.ErrorIs(t, tokens.Revoke(ctx, "tok"), ErrStale)

	mock.ExpectExec("UPDATE `refresh_tokens`").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `refresh_tokens`").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	assert.ErrorIs(t, tokens.Revoke(ctx, "never-issued"), ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenStore_DeleteExpired(t *testing.T) {
	db, mock := setupMockDB(t)
	tokens := NewRefreshTokenStore(db)

	mock.ExpectExec("DELETE FROM `refresh_tokens` WHERE").WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := tokens.DeleteExpired(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrescriptionStore_UpdateStatusStale(t *testing.T) {
	db, mock := setupMockDB(t)
	ps := NewPrescriptionStore(db)

	mock.ExpectExec("UPDATE `prescriptions`").WillReturnResult(sqlmock.NewResult(0, 0))

	p := &models.Prescription{Status: models.PrescriptionDispensed}
	p.ID = "rx-1"
	assert.ErrorIs(t, ps.UpdateStatus(context.Background(), p, models.PrescriptionActive), ErrStale)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTranslate(t *testing.T) {
	assert.Nil(t, translate(nil))
	assert.ErrorIs(t, translate(gorm.ErrRecordNotFound), ErrNotFound)
	assert.ErrorIs(t, translate(gorm.ErrDuplicatedKey), ErrDuplicate)
	assert.ErrorIs(t, translate(duplicateEntry()), ErrDuplicate)
	deadlock := &mysql.MySQLError{Number: 1213}
	assert.Equal(t, error(deadlock), translate(deadlock))
}
