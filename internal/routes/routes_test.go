package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"clinic-portal-server/internal/config"
	"clinic-portal-server/internal/metrics"
	"clinic-portal-server/internal/middleware"
	"clinic-portal-server/internal/models"
	"clinic-portal-server/internal/revocation"
	"clinic-portal-server/internal/services"
	"clinic-portal-server/internal/store"
	"clinic-portal-server/internal/store/memory"
	"clinic-portal-server/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const password = "correct-horse-battery"

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t       *testing.T
	router  *gin.Engine
	stores  *store.Stores
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T) *testServer {
	return newLimitedTestServer(t, nil)
}

// newLimitedTestServer throttles login and register with limiter; nil
// leaves them unthrottled.
func newLimitedTestServer(t *testing.T, limiter *middleware.RateLimiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	stores := memory.New()
	m := metrics.New()
	cfg := &config.Config{Environment: "test", Origin: "http://localhost:4200"}
	tokens := utils.NewTokenService("access-secret", "refresh-secret", time.Hour, 24*time.Hour)

	router, err := NewRouter(cfg, m)
	require.NoError(t, err)
	SetupRoutes(router, Dependencies{
		Config:       cfg,
		Stores:       stores,
		Tokens:       tokens,
		Appointments: services.NewAppointmentService(stores.Users, stores.Appointments, time.UTC, 0, m),
		Denylist:     revocation.NewMemoryDenylist(time.Minute),
		Metrics:      m,
		RateLimiter:  limiter,
	})

	return &testServer{t: t, router: router, stores: stores, metrics: m}
}

func (s *testServer) do(method, path, token string, body interface{}) (int, envelope) {
	s.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

// register signs up through the API and returns the new user's id.
func (s *testServer) register(email string, role models.Role) string {
	s.t.Helper()
	status, env := s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"firstName": "Test",
		"lastName":  string(role),
		"email":     email,
		"password":  password,
		"role":      strings.ToLower(string(role)),
	})
	require.Equal(s.t, http.StatusCreated, status, env.Message)
	return decode[models.UserSanitized](s.t, env).ID
}

type session struct {
	Access  string
	Refresh string
	UserID  string
}

func (s *testServer) login(email string) session {
	s.t.Helper()
	status, env := s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(s.t, http.StatusOK, status, env.Message)
	resp := decode[struct {
		AccessToken  string               `json:"accessToken"`
		RefreshToken string               `json:"refreshToken"`
		User         models.UserSanitized `json:"user"`
	}](s.t, env)
	return session{Access: resp.AccessToken, Refresh: resp.RefreshToken, UserID: resp.User.ID}
}

// seedAdmin creates an admin directly; admins cannot self-register.
func (s *testServer) seedAdmin() session {
	s.t.Helper()
	admin := models.User{Email: "admin@clinic.test", Role: models.RoleAdmin, IsActive: true, IsVerified: true}
	require.NoError(s.t, admin.SetPassword(password))
	require.NoError(s.t, s.stores.Users.Create(context.Background(), &admin))
	return s.login(admin.Email)
}

// onboardDoctor registers a doctor, then has the admin verify them and set
// their fee.
func (s *testServer) onboardDoctor(admin session, email string, fee float64) session {
	s.t.Helper()
	id := s.register(email, models.RoleDoctor)

	status, env := s.do(http.MethodPatch, "/api/v1/users/"+id+"/verify", admin.Access, nil)
	require.Equal(s.t, http.StatusOK, status, env.Message)
	status, env = s.do(http.MethodPut, "/api/v1/users/"+id, admin.Access, map[string]interface{}{"consultationFee": fee})
	require.Equal(s.t, http.StatusOK, status, env.Message)

	return s.login(email)
}

func (s *testServer) patient(email string) session {
	s.t.Helper()
	s.register(email, models.RolePatient)
	return s.login(email)
}

func (s *testServer) book(p session, doctorID, date, clock string) (int, envelope) {
	s.t.Helper()
	return s.do(http.MethodPost, "/api/v1/appointments", p.Access, map[string]string{
		"doctorId": doctorID,
		"date":     date,
		"time":     clock,
		"reason":   "checkup",
	})
}

func TestBookingScenarios(t *testing.T) {
	s := newTestServer(t)
	admin := s.seedAdmin()
	doctor := s.onboardDoctor(admin, "house@clinic.test", 150)
	otherDoctor := s.onboardDoctor(admin, "wilson@clinic.test", 90)

	// Patient registers, logs in and books.
	alice := s.patient("alice@clinic.test")
	status, env := s.book(alice, doctor.UserID, "2099-01-01", "10:00")
	require.Equal(t, http.StatusCreated, status, env.Message)
	appt := decode[models.Appointment](t, env)
	assert.Equal(t, models.StatusScheduled, appt.Status)
	assert.Equal(t, alice.UserID, appt.PatientID)
	assert.Equal(t, "checkup", appt.Reason)
	assert.Equal(t, 150.0, appt.Fee)

	// A second patient cannot take the same slot.
	bob := s.patient("bob@clinic.test")
	status, env = s.book(bob, doctor.UserID, "2099-01-01", "10:00")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "This time slot is already booked", env.Message)

	// Only the assigned doctor may complete it.
	path := "/api/v1/appointments/" + appt.ID + "/status"
	status, env = s.do(http.MethodPatch, path, otherDoctor.Access, map[string]string{"status": "COMPLETED", "notes": "all good"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Only the assigned doctor can update this appointment", env.Message)

	status, env = s.do(http.MethodPatch, path, doctor.Access, map[string]string{"status": "COMPLETED", "notes": "all good"})
	require.Equal(t, http.StatusOK, status, env.Message)
	done := decode[models.Appointment](t, env)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.Equal(t, "all good", done.Notes)
	assert.NotNil(t, done.CheckedOutAt)

	// No token at all.
	status, env = s.do(http.MethodGet, "/api/v1/appointments", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, env.Success)
	assert.True(t, strings.HasPrefix(env.Message, "No token provided"))
}

func TestBookingRules(t *testing.T) {
	s := newTestServer(t)
	admin := s.seedAdmin()
	doctor := s.onboardDoctor(admin, "house@clinic.test", 150)
	pending := s.register("pending@clinic.test", models.RoleDoctor)
	alice := s.patient("alice@clinic.test")

	tests := []struct {
		name     string
		doctorID string
		date     string
		clock    string
		status   int
		message  string
	}{
		{name: "unverified doctor", doctorID: pending, date: "2099-02-01", clock: "09:00", status: http.StatusBadRequest, message: "Doctor is not available for booking"},
		{name: "unknown doctor", doctorID: "missing", date: "2099-02-01", clock: "09:00", status: http.StatusBadRequest, message: "Doctor is not available for booking"},
		{name: "not a doctor", doctorID: alice.UserID, date: "2099-02-01", clock: "09:00", status: http.StatusBadRequest, message: "Doctor is not available for booking"},
		{name: "past date", doctorID: doctor.UserID, date: "2001-02-01", clock: "09:00", status: http.StatusBadRequest, message: "Appointment must be scheduled in the future"},
		{name: "malformed date", doctorID: doctor.UserID, date: "01/02/2099", clock: "09:00", status: http.StatusBadRequest},
		{name: "malformed time", doctorID: doctor.UserID, date: "2099-02-01", clock: "9am", status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := s.book(alice, tt.doctorID, tt.date, tt.clock)
			assert.Equal(t, tt.status, status)
			assert.False(t, env.Success)
			if tt.message != "" {
				assert.Equal(t, tt.message, env.Message)
			}
		})
	}

	// Doctors cannot book.
	status, _ := s.book(doctor, doctor.UserID, "2099-02-01", "09:00")
	assert.Equal(t, http.StatusForbidden, status)
}

func TestCancelFreesSlot(t *testing.T) {
	s := newTestServer(t)
	admin := s.seedAdmin()
	doctor := s.onboardDoctor(admin, "house@clinic.test", 100)
	alice := s.patient("alice@clinic.test")
	bob := s.patient("bob@clinic.test")

	status, env := s.book(alice, doctor.UserID, "2099-03-01", "11:30")
	require.Equal(t, http.StatusCreated, status, env.Message)
	appt := decode[models.Appointment](t, env)

	// Another patient may not cancel it.
	cancelPath := "/api/v1/appointments/" + appt.ID + "/cancel"
	status, _ = s.do(http.MethodPatch, cancelPath, bob.Access, map[string]string{"reason": "mine now"})
	assert.Equal(t, http.StatusForbidden, status)

	status, env = s.do(http.MethodPatch, cancelPath, alice.Access, map[string]string{"reason": "travelling"})
	require.Equal(t, http.StatusOK, status, env.Message)
	cancelled := decode[models.Appointment](t, env)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancellationReason)
	assert.Equal(t, "travelling", *cancelled.CancellationReason)

	// Cancelling again is a no-op.
	status, _ = s.do(http.MethodPatch, cancelPath, alice.Access, nil)
	assert.Equal(t, http.StatusOK, status)

	status, env = s.book(bob, doctor.UserID, "2099-03-01", "11:30")
	assert.Equal(t, http.StatusCreated, status, env.Message)
}

func TestLateCancellation(t *testing.T) {
	s := newTestServer(t)
	admin := s.seedAdmin()
	doctor := s.onboardDoctor(admin, "house@clinic.test", 100)
	alice := s.patient("alice@clinic.test")

	soon := time.Now().UTC().Add(3 * time.Hour)
	status, env := s.book(alice, doctor.UserID, soon.Format(models.DateLayout), soon.Format(models.TimeLayout))
	require.Equal(t, http.StatusCreated, status, env.Message)
	appt := decode[models.Appointment](t, env)

	cancelPath := "/api/v1/appointments/" + appt.ID + "/cancel"
	status, env = s.do(http.MethodPatch, cancelPath, alice.Access, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, env.Message, "less than 24 hours in advance")

	// The doctor is not bound by the lead time.
	status, env = s.do(http.MethodPatch, cancelPath, doctor.Access, map[string]string{"reason": "emergency"})
	assert.Equal(t, http.StatusOK, status, env.Message)
}

func TestAppointmentVisibility(t *testing.T) {
	s := newTestServer(t)
	admin := s.seedAdmin()
	doctor := s.onboardDoctor(admin, "house@clinic.test", 100)
	alice := s.patient("alice@clinic.test")
	bob := s.patient("bob@clinic.test")

	_, env := s.book(alice, doctor.UserID, "2099-04-01", "09:00")
	appt := decode[models.Appointment](t, env)
	s.book(bob, doctor.UserID, "2099-04-01", "09:30")

	count := func(sess session) int {
		status, env := s.do(http.MethodGet, "/api/v1/appointments", sess.Access, nil)
		require.Equal(t, http.StatusOK, status)
		return len(decode[[]models.Appointment](t, env))
	}
	assert.Equal(t, 1, count(alice))
	assert.Equal(t, 2, count(doctor))
	assert.Equal(t, 2, count(admin))

	status, _ := s.do(http.MethodGet, "/api/v1/appointments/"+appt.ID, bob.Access, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = s.do(http.MethodGet, "/api/v1/appointments/"+appt.ID, alice.Access, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestRegistration(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"firstName": "Eve", "lastName": "Root", "email": "eve@clinic.test", "password": password, "role": "ADMIN",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Admin accounts cannot be self-registered", env.Message)

	status, env = s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"firstName": "Eve", "lastName": "Root", "email": "eve@clinic.test", "password": password, "role": "surgeon",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, env.Message, "Validation failed")

	s.register("Carol@Clinic.test", models.RolePatient)
	status, env = s.do(http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"firstName": "Carol", "lastName": "Again", "email": "carol@clinic.test", "password": password,
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "User with this email already exists", env.Message)

	// Emails are case-insensitive at login too.
	carol := s.login("CAROL@clinic.test")
	assert.NotEmpty(t, carol.Access)

	status, env = s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "carol@clinic.test", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid email or password", env.Message)

	nurse := s.register("nurse@clinic.test", models.RoleNurse)
	user, err := s.stores.Users.FindByID(context.Background(), nurse)
	require.NoError(t, err)
	assert.False(t, user.IsVerified)
}

func TestRefreshRotation(t *testing.T) {
	s := newTestServer(t)
	alice := s.patient("alice@clinic.test")

	status, env := s.do(http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{"refreshToken": alice.Refresh})
	require.Equal(t, http.StatusOK, status, env.Message)
	pair := decode[struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}](t, env)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEqual(t, alice.Refresh, pair.RefreshToken)

	// The old refresh token is spent.
	status, _ = s.do(http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{"refreshToken": alice.Refresh})
	assert.Equal(t, http.StatusUnauthorized, status)

	// An access token is not a refresh token.
	status, _ = s.do(http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{"refreshToken": alice.Access})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(http.MethodGet, "/api/v1/auth/profile", pair.AccessToken, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestLogoutRevokesTokens(t *testing.T) {
	s := newTestServer(t)
	alice := s.patient("alice@clinic.test")

	status, _ := s.do(http.MethodPost, "/api/v1/auth/logout", alice.Access, map[string]string{"refreshToken": alice.Refresh})
	require.Equal(t, http.StatusOK, status)

	status, env := s.do(http.MethodGet, "/api/v1/auth/profile", alice.Access, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Token is not valid", env.Message)

	status, _ = s.do(http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{"refreshToken": alice.Refresh})
	assert.Equal(t, http.StatusUnauthorized, status)

	// Logging in again works.
	again := s.login("alice@clinic.test")
	status, _ = s.do(http.MethodGet, "/api/v1/auth/profile", again.Access, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestLogoutRejectsForeignRefreshToken(t *testing.T) {
	s := newTestServer(t)
	alice := s.patient("alice@clinic.test")
	bob := s.patient("bob@clinic.test")

	status, env := s.do(http.MethodPost, "/api/v1/auth/logout", bob.Access, map[string]string{"refreshToken": alice.Refresh})
	assert.Equal(t, http.StatusForbidden, status)
	assert.False(t, env.Success)

	// Alice's session survives.
	status, env = s.do(http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{"refreshToken": alice.Refresh})
	assert.Equal(t, http.StatusOK, status, env.Message)

	// A refresh token that does not verify is ignored.
	status, _ = s.do(http.MethodPost, "/api/v1/auth/logout", bob.Access, map[string]string{"refreshToken": "not-a-token"})
	assert.Equal(t, http.StatusOK, status)
}

func TestDeactivation(t *testing.T) {
	s := newTestServer(t)
	admin := s.seedAdmin()
	alice := s.patient("alice@clinic.test")

	status, _ := s.do(http.MethodGet, "/api/v1/auth/profile", alice.Access, nil)
	require.Equal(t, http.StatusOK, status)

	status, env := s.do(http.MethodPatch, "/api/v1/users/"+alice.UserID+"/active", admin.Access, map[string]bool{"isActive": false})
	require.Equal(t, http.StatusOK, status, env.Message)

	status, env = s.do(http.MethodGet, "/api/v1/auth/profile", alice.Access, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Account has been deactivated", env.Message)

	status, _ = s.do(http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{"refreshToken": alice.Refresh})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = s.do(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "alice@clinic.test", "password": password})
	assert.Equal(t, http.StatusForbidden, status, env.Message)

	// Admins cannot lock themselves out.
	status, _ = s.do(http.MethodPatch, "/api/v1/users/"+admin.UserID+"/active", admin.Access, map[string]bool{"isActive": false})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestUserDirectory(t *testing.T) {
	s := newTestServer(t)
	admin := s.seedAdmin()
	s.onboardDoctor(admin, "house@clinic.test", 100)
	s.register("pending@clinic.test", models.RoleDoctor)
	alice := s.patient("alice@clinic.test")

	status, env := s.do(http.MethodGet, "/api/v1/users/doctors", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.UserSanitized](t, env), 1)

	status, env = s.do(http.MethodGet, "/api/v1/users/doctors", admin.Access, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.UserSanitized](t, env), 2)

	status, _ = s.do(http.MethodGet, "/api/v1/users/patients", alice.Access, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, env = s.do(http.MethodGet, "/api/v1/users/patients", admin.Access, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.UserSanitized](t, env), 1)

	status, _ = s.do(http.MethodGet, "/api/v1/users", alice.Access, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, env = s.do(http.MethodGet, "/api/v1/users?role=doctor", admin.Access, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.UserSanitized](t, env), 2)

	status, env = s.do(http.MethodPost, "/api/v1/users", admin.Access, map[string]string{
		"firstName": "Second", "lastName": "Admin", "email": "admin2@clinic.test", "password": password, "role": "ADMIN",
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	assert.True(t, decode[models.UserSanitized](t, env).IsVerified)
}

func TestMedicalRecords(t *testing.T) {
	s := newTestServer(t)
	admin := s.seedAdmin()
	doctor := s.onboardDoctor(admin, "house@clinic.test", 100)
	alice := s.patient("alice@clinic.test")
	bob := s.patient("bob@clinic.test")

	status, env := s.do(http.MethodPost, "/api/v1/medical-records", doctor.Access, map[string]string{
		"patientId":  alice.UserID,
		"recordType": "LabResult",
		"title":      "Blood panel",
		"summary":    "Within range",
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	record := decode[models.MedicalRecord](t, env)
	assert.Equal(t, doctor.UserID, record.AuthorID)
	assert.Equal(t, models.RoleDoctor, record.AuthorRole)

	// Patients cannot author records.
	status, _ = s.do(http.MethodPost, "/api/v1/medical-records", alice.Access, map[string]string{
		"patientId": alice.UserID, "recordType": "LabResult", "title": "x", "summary": "y",
	})
	assert.Equal(t, http.StatusForbidden, status)

	listPath := "/api/v1/medical-records/patient/" + alice.UserID
	status, env = s.do(http.MethodGet, listPath, alice.Access, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.MedicalRecord](t, env), 1)

	status, _ = s.do(http.MethodGet, listPath, bob.Access, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = s.do(http.MethodGet, "/api/v1/medical-records/"+record.ID, bob.Access, nil)
	assert.Equal(t, http.StatusForbidden, status)

	// Attachment upload and download.
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "panel.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("hemoglobin 14.1"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/medical-records/"+record.ID+"/attachments", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+doctor.Access)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "hemoglobin")

	var uploaded envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &uploaded))
	attachment := decode[models.MedicalRecordAttachment](t, uploaded)
	assert.Equal(t, int64(len("hemoglobin 14.1")), attachment.FileSize)
	assert.Equal(t, doctor.UserID, attachment.UploadedBy)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/medical-records/attachments/"+attachment.ID, nil)
	req.Header.Set("Authorization", "Bearer "+alice.Access)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hemoglobin 14.1", w.Body.String())

	// Only the author or an admin may delete.
	status, _ = s.do(http.MethodDelete, "/api/v1/medical-records/"+record.ID, alice.Access, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = s.do(http.MethodDelete, "/api/v1/medical-records/"+record.ID, admin.Access, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = s.do(http.MethodGet, "/api/v1/medical-records/"+record.ID, doctor.Access, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPrescriptions(t *testing.T) {
	s := newTestServer(t)
	admin := s.seedAdmin()
	doctor := s.onboardDoctor(admin, "house@clinic.test", 100)
	alice := s.patient("alice@clinic.test")

	pharmacyID := s.register("pharmacy@clinic.test", models.RolePharmacy)
	status, _ := s.do(http.MethodPatch, "/api/v1/users/"+pharmacyID+"/verify", admin.Access, nil)
	require.Equal(t, http.StatusOK, status)
	pharmacy := s.login("pharmacy@clinic.test")

	status, env := s.do(http.MethodPost, "/api/v1/prescriptions", doctor.Access, map[string]interface{}{
		"patientId":    alice.UserID,
		"medication":   "Amoxicillin",
		"dosage":       "500mg",
		"frequency":    "3x daily",
		"durationDays": 7,
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	p := decode[models.Prescription](t, env)
	assert.Equal(t, models.PrescriptionActive, p.Status)

	status, env = s.do(http.MethodGet, "/api/v1/prescriptions/patient/"+alice.UserID, pharmacy.Access, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.Prescription](t, env), 1)

	dispense := "/api/v1/prescriptions/" + p.ID + "/dispense"
	status, _ = s.do(http.MethodPatch, dispense, doctor.Access, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, env = s.do(http.MethodPatch, dispense, pharmacy.Access, nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	dispensed := decode[models.Prescription](t, env)
	assert.Equal(t, models.PrescriptionDispensed, dispensed.Status)
	require.NotNil(t, dispensed.DispensedBy)
	assert.Equal(t, pharmacy.UserID, *dispensed.DispensedBy)

	status, env = s.do(http.MethodPatch, dispense, pharmacy.Access, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Prescription is no longer active", env.Message)

	status, _ = s.do(http.MethodPatch, "/api/v1/prescriptions/"+p.ID+"/cancel", doctor.Access, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestMessaging(t *testing.T) {
	s := newTestServer(t)
	admin := s.seedAdmin()
	doctor := s.onboardDoctor(admin, "house@clinic.test", 100)
	alice := s.patient("alice@clinic.test")
	bob := s.patient("bob@clinic.test")

	send := func(from session, to, content string) (int, envelope) {
		return s.do(http.MethodPost, "/api/v1/messages/send", from.Access, map[string]string{
			"recipientId": to,
			"content":     content,
		})
	}

	status, env := send(alice, doctor.UserID, "My results?")
	require.Equal(t, http.StatusCreated, status, env.Message)
	first := decode[models.Message](t, env)
	send(alice, doctor.UserID, "Still waiting")

	status, _ = send(alice, bob.UserID, "hi")
	assert.Equal(t, http.StatusForbidden, status)
	status, _ = send(alice, alice.UserID, "me")
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = s.do(http.MethodGet, "/api/v1/messages/conversations", doctor.Access, nil)
	require.Equal(t, http.StatusOK, status)
	previews := decode[[]models.ConversationPreview](t, env)
	require.Len(t, previews, 1)
	assert.Equal(t, alice.UserID, previews[0].Partner.ID)
	assert.Equal(t, int64(2), previews[0].UnreadCount)
	assert.Equal(t, "Still waiting", previews[0].LastMessage.Content)

	status, _ = s.do(http.MethodPatch, "/api/v1/messages/"+first.ID+"/read", alice.Access, nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, env = s.do(http.MethodPatch, "/api/v1/messages/"+first.ID+"/read", doctor.Access, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.MessageStatusRead, decode[models.Message](t, env).Status)

	// Opening the conversation reads the rest.
	status, env = s.do(http.MethodGet, "/api/v1/messages?withUser="+alice.UserID, doctor.Access, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.Message](t, env), 2)
	unread, err := s.stores.Messages.CountUnread(context.Background(), doctor.UserID, alice.UserID)
	require.NoError(t, err)
	assert.Zero(t, unread)

	since := time.Now().Add(-time.Minute).UTC().Format(time.RFC3339)
	status, env = s.do(http.MethodGet, "/api/v1/messages/new?since="+since, alice.Access, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.Message](t, env), 2)

	status, _ = s.do(http.MethodGet, "/api/v1/messages/new", alice.Access, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAuthRateLimitIgnoresForwardedFor(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{Rate: rate.Every(time.Hour), Burst: 2})
	s := newLimitedTestServer(t, limiter)

	login := func(remoteIP, forwardedFor string) int {
		raw, err := json.Marshal(map[string]string{"email": "nobody@clinic.test", "password": password})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = remoteIP + ":40000"
		if forwardedFor != "" {
			req.Header.Set("X-Forwarded-For", forwardedFor)
		}
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		return w.Code
	}

	codes := map[int]int{}
	for i := 0; i < 10; i++ {
		codes[login("203.0.113.8", fmt.Sprintf("198.51.100.%d", i+1))]++
	}
	assert.Equal(t, 2, codes[http.StatusUnauthorized])
	assert.Equal(t, 8, codes[http.StatusTooManyRequests])

	// A different peer has its own budget.
	assert.Equal(t, http.StatusUnauthorized, login("203.0.113.9", ""))
}

func TestPanicIsCountedAsServerError(t *testing.T) {
	s := newTestServer(t)
	s.router.GET("/boom", func(*gin.Context) { panic("kaboom") })

	status, env := s.do(http.MethodGet, "/boom", "", nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "Internal server error", env.Message)
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/boom", "500")))
}

func TestOpsEndpoints(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database"`)

	s.book(s.patient("alice@clinic.test"), "nobody", "2099-01-01", "10:00")

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `appointment_bookings_total{outcome="doctor_unavailable"} 1`)

	status, env := s.do(http.MethodGet, "/api/v1/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, env.Success)
}
