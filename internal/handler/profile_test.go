package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"folio/internal/avatar"
	"folio/internal/config"
	"folio/internal/events"
	"folio/internal/logger"
	"folio/internal/middleware"
	"folio/internal/profile"
)

// memStore implements avatar.ObjectStore for testing.
type memStore struct {
	objects map[string]string
	deleted []string
}

func (m *memStore) Put(ctx context.Context, key, contentType string, body []byte) error {
	if m.objects == nil {
		m.objects = map[string]string{}
	}
	m.objects[key] = contentType
	return nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	return nil
}

var pngImage = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

const avatarBase = "https://cdn.example.com"

func setupProfileTest(t *testing.T, maxBytes int64) (*ProfileHandler, sqlmock.Sqlmock, *memStore) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := &memStore{}
	avatars := avatar.NewService(store, config.AvatarConfig{Bucket: "folio", PublicBaseURL: avatarBase, MaxBytes: maxBytes})
	manager := profile.NewManager(profile.NewDatastore(db))
	return NewProfileHandler(manager, avatars, events.NewBroadcaster(), logger.Discard()), mock, store
}

func withProfile(req *http.Request, p *profile.Profile) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), middleware.ProfileContextKey, p))
}

func multipartAvatar(t *testing.T, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("avatar", "me.png")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestProfileHandler_Get(t *testing.T) {
	handler, _, _ := setupProfileTest(t, 0)
	p := newProfile(uuid.New(), profile.RoleUser)

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	rec := httptest.NewRecorder()

	handler.Get(rec, withProfile(req, p))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var got profile.Profile
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.ID != p.ID {
		t.Errorf("expected profile %s, got %s", p.ID, got.ID)
	}
}

func TestProfileHandler_Update(t *testing.T) {
	handler, mock, _ := setupProfileTest(t, 0)
	p := newProfile(uuid.New(), profile.RoleUser)
	updated := *p
	updated.FullName = "Rear Admiral Hopper"

	mock.ExpectExec(`UPDATE profiles SET full_name = \$2`).
		WithArgs(p.ID, "Rear Admiral Hopper", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .+ FROM profiles WHERE id = \$1`).
		WithArgs(p.ID).
		WillReturnRows(profileRow(sqlmock.NewRows(profileCols), &updated))

	req := httptest.NewRequest(http.MethodPatch, "/api/profile", jsonBody(t, map[string]string{"full_name": "  Rear Admiral Hopper "}))
	rec := httptest.NewRecorder()

	handler.Update(rec, withProfile(req, p))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestProfileHandler_Update_RoleIsNotSelfService(t *testing.T) {
	handler, mock, _ := setupProfileTest(t, 0)
	p := newProfile(uuid.New(), profile.RoleUser)

	req := httptest.NewRequest(http.MethodPatch, "/api/profile", strings.NewReader(`{"role":"admin"}`))
	rec := httptest.NewRecorder()

	handler.Update(rec, withProfile(req, p))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected database calls: %v", err)
	}
}

func TestProfileHandler_UploadAvatar_ReplacesPrevious(t *testing.T) {
	handler, mock, store := setupProfileTest(t, 0)
	p := newProfile(uuid.New(), profile.RoleUser)
	oldKey := "avatars/" + p.ID.String() + "/old.png"
	p.AvatarURL = avatarBase + "/" + oldKey

	mock.ExpectExec(`UPDATE profiles SET avatar_url = \$2`).
		WithArgs(p.ID, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	body, contentType := multipartAvatar(t, pngImage)
	req := httptest.NewRequest(http.MethodPost, "/api/profile/avatar", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handler.UploadAvatar(rec, withProfile(req, p))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var response map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !strings.HasPrefix(response["avatar_url"], avatarBase+"/avatars/"+p.ID.String()+"/") {
		t.Errorf("unexpected avatar url %q", response["avatar_url"])
	}
	if len(store.objects) != 1 {
		t.Errorf("expected one stored object, got %v", store.objects)
	}
	if len(store.deleted) != 1 || store.deleted[0] != oldKey {
		t.Errorf("expected previous avatar to be removed, got %v", store.deleted)
	}
}

func TestProfileHandler_UploadAvatar_TooLarge(t *testing.T) {
	handler, mock, store := setupProfileTest(t, 16)
	p := newProfile(uuid.New(), profile.RoleUser)

	body, contentType := multipartAvatar(t, pngImage)
	req := httptest.NewRequest(http.MethodPost, "/api/profile/avatar", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handler.UploadAvatar(rec, withProfile(req, p))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected status 413, got %d", rec.Code)
	}
	if len(store.objects) != 0 {
		t.Error("nothing should be stored")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected database calls: %v", err)
	}
}

func TestProfileHandler_UploadAvatar_UnsupportedType(t *testing.T) {
	handler, _, store := setupProfileTest(t, 0)
	p := newProfile(uuid.New(), profile.RoleUser)

	body, contentType := multipartAvatar(t, []byte("<svg xmlns=\"http://www.w3.org/2000/svg\"></svg>"))
	req := httptest.NewRequest(http.MethodPost, "/api/profile/avatar", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handler.UploadAvatar(rec, withProfile(req, p))

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("expected status 415, got %d", rec.Code)
	}
	if len(store.objects) != 0 {
		t.Error("nothing should be stored")
	}
}

func TestProfileHandler_UploadAvatar_MissingField(t *testing.T) {
	handler, _, _ := setupProfileTest(t, 0)
	p := newProfile(uuid.New(), profile.RoleUser)

	req := httptest.NewRequest(http.MethodPost, "/api/profile/avatar", strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()

	handler.UploadAvatar(rec, withProfile(req, p))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

func TestProfileHandler_DeleteAvatar(t *testing.T) {
	handler, mock, store := setupProfileTest(t, 0)
	p := newProfile(uuid.New(), profile.RoleUser)
	key := "avatars/" + p.ID.String() + "/current.png"
	p.AvatarURL = avatarBase + "/" + key

	mock.ExpectExec(`UPDATE profiles SET avatar_url = \$2`).
		WithArgs(p.ID, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodDelete, "/api/profile/avatar", nil)
	rec := httptest.NewRecorder()

	handler.DeleteAvatar(rec, withProfile(req, p))

	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", rec.Code)
	}
	if len(store.deleted) != 1 || store.deleted[0] != key {
		t.Errorf("expected avatar object to be removed, got %v", store.deleted)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestProfileHandler_ScrumMaster(t *testing.T) {
	handler, mock, _ := setupProfileTest(t, 0)
	holder := newProfile(uuid.New(), profile.RoleAdmin)
	holder.IsScrumMaster = true

	mock.ExpectQuery(`SELECT .+ FROM profiles WHERE is_scrum_master`).
		WillReturnRows(profileRow(sqlmock.NewRows(profileCols), holder))

	req := httptest.NewRequest(http.MethodGet, "/api/scrum-master", nil)
	rec := httptest.NewRecorder()

	handler.ScrumMaster(rec, withProfile(req, newProfile(uuid.New(), profile.RoleUser)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), holder.Email) {
		t.Error("scrum master email should not be exposed")
	}
	if !strings.Contains(rec.Body.String(), holder.ID.String()) {
		t.Errorf("expected holder id in body, got %s", rec.Body.String())
	}
}

func TestProfileHandler_ScrumMaster_None(t *testing.T) {
	handler, mock, _ := setupProfileTest(t, 0)

	mock.ExpectQuery(`SELECT .+ FROM profiles WHERE is_scrum_master`).
		WillReturnRows(sqlmock.NewRows(profileCols))

	req := httptest.NewRequest(http.MethodGet, "/api/scrum-master", nil)
	rec := httptest.NewRecorder()

	handler.ScrumMaster(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"scrum_master":null}` {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}
