package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/porabnik/internal/auth"
	"github.com/erazemk/porabnik/internal/blob"
	"github.com/erazemk/porabnik/internal/db"
	"github.com/erazemk/porabnik/internal/inventory"
	"github.com/erazemk/porabnik/internal/model"
	"github.com/erazemk/porabnik/internal/store"
)

const testJWTSecret = "test-secret"

type testEnv struct {
	server *httptest.Server
	blobs  *blob.Memory
	token  string
	office *model.Office
}

func setupTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	env := newTestEnv(t)
	return env.server, env.token
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	database := db.NewTestDB(t)
	blobs := blob.NewMemory()
	engine := inventory.New(database, blobs, nil, nil)
	server := httptest.NewServer(NewRouter(database, engine, testJWTSecret, nil))
	t.Cleanup(server.Close)

	// Create admin user.
	ctx := context.Background()
	office, err := store.CreateOffice(ctx, database, "HQ")
	if err != nil {
		t.Fatalf("CreateOffice: %v", err)
	}
	hash, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	if _, err := store.CreateUser(ctx, database, "admin", string(hash), model.RoleAdmin, office.ID); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	env := &testEnv{server: server, blobs: blobs, office: office}
	env.token = login(t, server, "admin", "password")
	return env
}

func login(t *testing.T, server *httptest.Server, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": username, "password": password})
	resp, err := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}

	var loginResp map[string]string
	json.NewDecoder(resp.Body).Decode(&loginResp)
	token := loginResp["token"]
	if token == "" {
		t.Fatal("empty token from login")
	}
	return token
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// formRequest builds a multipart request. Files are keyed by filename and
// sent under the images field.
func formRequest(t *testing.T, method, url, token string, fields url.Values, files map[string][]byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for key, values := range fields {
		for _, v := range values {
			mw.WriteField(key, v)
		}
	}
	for name, data := range files {
		fw, err := mw.CreateFormFile(fieldImages, name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write(data)
	}
	mw.Close()

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	return buf.Bytes()
}

func do(t *testing.T, req *http.Request, wantStatus int, target any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: expected %d, got %d: %s", req.Method, req.URL.Path, wantStatus, resp.StatusCode, body)
	}
	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
	}
}

func createItem(t *testing.T, env *testEnv, name string, quantity int, files map[string][]byte) model.Item {
	t.Helper()
	req := formRequest(t, "POST", env.server.URL+"/api/items", env.token, url.Values{
		fieldName:     {name},
		fieldWattage:  {"10"},
		fieldQuantity: {fmt.Sprint(quantity)},
		fieldModel:    {"PX-1"},
	}, files)
	var item model.Item
	do(t, req, http.StatusCreated, &item)
	return item
}

func TestLoginEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)

	// Test invalid credentials.
	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
	resp, _ := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Test unknown user.
	body, _ = json.Marshal(map[string]string{"username": "nobody", "password": "password"})
	resp, _ = http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for unknown user, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Test missing fields.
	body, _ = json.Marshal(map[string]string{"username": "admin"})
	resp, _ = http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for missing password, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestItemsAPIFlow(t *testing.T) {
	env := newTestEnv(t)
	base := env.server.URL + "/api/items"

	item := createItem(t, env, "Pump", 5, map[string][]byte{"photo.png": testPNG(t)})
	if item.Quantity != 5 || item.ArchivedQuantity != 0 {
		t.Errorf("unexpected quantities %d/%d", item.Quantity, item.ArchivedQuantity)
	}
	if len(item.Images) != 1 || !strings.HasPrefix(item.Images[0], "Pump.") || !strings.HasSuffix(item.Images[0], ".png") {
		t.Fatalf("unexpected images %v", item.Images)
	}
	if item.TotalPower.String() != "50" {
		t.Errorf("expected total_power 50, got %s", item.TotalPower)
	}

	// List items.
	req, _ := authRequest("GET", base+"?search=pump", env.token, nil)
	var list listItemsResponse
	do(t, req, http.StatusOK, &list)
	if len(list.Items) != 1 || list.Items[0].ID != item.ID {
		t.Fatalf("expected the created item in list, got %+v", list.Items)
	}

	// Fetch the image.
	req, _ = authRequest("GET", fmt.Sprintf("%s/%d/images/%s", base, item.ID, item.Images[0]), env.token, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("image request: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Errorf("expected png image, got %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if !bytes.Equal(data, testPNG(t)) {
		t.Error("image bytes differ from upload")
	}

	// Archive everything.
	req, _ = authRequest("POST", fmt.Sprintf("%s/%d/archive", base, item.ID), env.token, map[string]int{"quantity": 5})
	var moved moveResponse
	do(t, req, http.StatusOK, &moved)
	if moved.NewQuantity != 0 || moved.ArchivedQuantity != 5 {
		t.Errorf("expected 0/5 after archive, got %+v", moved)
	}

	req, _ = authRequest("GET", base, env.token, nil)
	do(t, req, http.StatusOK, &list)
	if len(list.Items) != 0 {
		t.Errorf("expected archived item hidden, got %d items", len(list.Items))
	}
	req, _ = authRequest("GET", base+"?showArchived=true", env.token, nil)
	do(t, req, http.StatusOK, &list)
	if len(list.Items) != 1 {
		t.Errorf("expected archived item with showArchived, got %d items", len(list.Items))
	}

	// Restore two.
	req, _ = authRequest("POST", fmt.Sprintf("%s/%d/restore", base, item.ID), env.token, map[string]int{"quantity": 2})
	do(t, req, http.StatusOK, &moved)
	if moved.NewQuantity != 2 || moved.ArchivedQuantity != 3 {
		t.Errorf("expected 2/3 after restore, got %+v", moved)
	}

	// Update keeping the image via a JSON array string.
	keep, _ := json.Marshal(item.Images)
	req = formRequest(t, "PUT", fmt.Sprintf("%s/%d", base, item.ID), env.token, url.Values{
		fieldName:           {"Pump v2"},
		fieldWattage:        {"12.5"},
		fieldQuantity:       {"0"},
		fieldExistingImages: {string(keep)},
	}, nil)
	var updated model.Item
	do(t, req, http.StatusOK, &updated)
	if updated.Name != "Pump v2" || updated.Quantity != 0 || len(updated.Images) != 1 {
		t.Errorf("unexpected updated item %+v", updated)
	}

	// Get.
	req, _ = authRequest("GET", fmt.Sprintf("%s/%d", base, item.ID), env.token, nil)
	var got model.Item
	do(t, req, http.StatusOK, &got)
	if got.Wattage.String() != "12.5" || got.ArchivedQuantity != 3 {
		t.Errorf("unexpected item %+v", got)
	}
}

func TestUpdateWithoutImageListsRemovesImages(t *testing.T) {
	env := newTestEnv(t)
	item := createItem(t, env, "Lamp", 1, map[string][]byte{"a.png": testPNG(t)})

	req := formRequest(t, "PUT", fmt.Sprintf("%s/api/items/%d", env.server.URL, item.ID), env.token, url.Values{
		fieldName:     {"Lamp"},
		fieldWattage:  {"10"},
		fieldQuantity: {"1"},
	}, nil)
	var updated model.Item
	do(t, req, http.StatusOK, &updated)
	if len(updated.Images) != 0 {
		t.Errorf("expected no images, got %v", updated.Images)
	}
	if keys := env.blobs.Keys(); len(keys) != 0 {
		t.Errorf("expected blobs deleted, got %v", keys)
	}
}

func TestItemErrors(t *testing.T) {
	env := newTestEnv(t)
	item := createItem(t, env, "Lamp", 2, nil)
	base := fmt.Sprintf("%s/api/items/%d", env.server.URL, item.ID)

	req, _ := authRequest("POST", base+"/archive", env.token, map[string]int{"quantity": 3})
	do(t, req, http.StatusBadRequest, nil)

	req, _ = authRequest("POST", base+"/restore", env.token, map[string]int{"quantity": 1})
	do(t, req, http.StatusBadRequest, nil)

	req, _ = authRequest("GET", env.server.URL+"/api/items/999", env.token, nil)
	do(t, req, http.StatusNotFound, nil)

	req, _ = authRequest("GET", env.server.URL+"/api/items/abc", env.token, nil)
	do(t, req, http.StatusBadRequest, nil)

	req, _ = authRequest("GET", env.server.URL+"/api/items?sortBy=colour", env.token, nil)
	do(t, req, http.StatusBadRequest, nil)

	req, _ = authRequest("GET", base+"/images/missing.png", env.token, nil)
	do(t, req, http.StatusNotFound, nil)

	req = formRequest(t, "POST", env.server.URL+"/api/items", env.token, url.Values{
		fieldName: {"Lamp"}, fieldWattage: {"ten"}, fieldQuantity: {"1"},
	}, nil)
	do(t, req, http.StatusBadRequest, nil)

	req = formRequest(t, "POST", env.server.URL+"/api/items", env.token, url.Values{
		fieldName: {"Lamp"}, fieldWattage: {"10"}, fieldQuantity: {"1"},
	}, map[string][]byte{"notes.txt": []byte("not an image")})
	do(t, req, http.StatusBadRequest, nil)

	if keys := env.blobs.Keys(); len(keys) != 0 {
		t.Errorf("expected no blobs after failed requests, got %v", keys)
	}
}

func TestCrossOfficeItemsAreHidden(t *testing.T) {
	env := newTestEnv(t)
	item := createItem(t, env, "Lamp", 2, nil)

	// Create a manager in another office through the admin API.
	req, _ := authRequest("POST", env.server.URL+"/api/offices", env.token, map[string]string{"name": "Branch"})
	var branch model.Office
	do(t, req, http.StatusCreated, &branch)

	req, _ = authRequest("POST", env.server.URL+"/api/users", env.token, map[string]any{
		"username": "remote", "password": "password1", "role": model.RoleManager, "office_id": branch.ID,
	})
	do(t, req, http.StatusCreated, nil)
	remote := login(t, env.server, "remote", "password1")

	req, _ = authRequest("GET", fmt.Sprintf("%s/api/items/%d", env.server.URL, item.ID), remote, nil)
	do(t, req, http.StatusNotFound, nil)

	req, _ = authRequest("POST", fmt.Sprintf("%s/api/items/%d/archive", env.server.URL, item.ID), remote, map[string]int{"quantity": 1})
	do(t, req, http.StatusNotFound, nil)

	var list listItemsResponse
	req, _ = authRequest("GET", env.server.URL+"/api/items", remote, nil)
	do(t, req, http.StatusOK, &list)
	if len(list.Items) != 0 {
		t.Errorf("expected empty list for other office, got %d", len(list.Items))
	}
}

func TestUsersAdminFlow(t *testing.T) {
	env := newTestEnv(t)

	req, _ := authRequest("POST", env.server.URL+"/api/users", env.token, map[string]any{
		"username": "worker", "password": "password1", "role": model.RoleUser,
	})
	var user model.User
	do(t, req, http.StatusCreated, &user)
	if user.OfficeID != env.office.ID {
		t.Errorf("expected admin's office %d, got %d", env.office.ID, user.OfficeID)
	}

	req, _ = authRequest("POST", env.server.URL+"/api/users", env.token, map[string]any{
		"username": "worker", "password": "password1", "role": model.RoleUser,
	})
	do(t, req, http.StatusConflict, nil)

	req, _ = authRequest("PUT", fmt.Sprintf("%s/api/users/%d", env.server.URL, user.ID), env.token, map[string]string{"role": model.RoleManager})
	do(t, req, http.StatusOK, &user)
	if user.Role != model.RoleManager {
		t.Errorf("expected role manager, got %q", user.Role)
	}

	req, _ = authRequest("PUT", fmt.Sprintf("%s/api/users/%d/office", env.server.URL, user.ID), env.token, map[string]int64{"office_id": 999})
	do(t, req, http.StatusBadRequest, nil)

	var users []model.User
	req, _ = authRequest("GET", env.server.URL+"/api/users", env.token, nil)
	do(t, req, http.StatusOK, &users)
	if len(users) != 2 {
		t.Errorf("expected 2 users, got %d", len(users))
	}

	req, _ = authRequest("DELETE", fmt.Sprintf("%s/api/users/%d", env.server.URL, user.ID), env.token, nil)
	do(t, req, http.StatusOK, nil)

	body, _ := json.Marshal(map[string]string{"username": "worker", "password": "password1"})
	resp, _ := http.Post(env.server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for deleted user, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)

	req, _ := authRequest("PUT", env.server.URL+"/api/auth/password", env.token, map[string]string{
		"current_password": "wrong", "new_password": "newpassword",
	})
	do(t, req, http.StatusUnauthorized, nil)

	req, _ = authRequest("PUT", env.server.URL+"/api/auth/password", env.token, map[string]string{
		"current_password": "password", "new_password": "short",
	})
	do(t, req, http.StatusBadRequest, nil)

	req, _ = authRequest("PUT", env.server.URL+"/api/auth/password", env.token, map[string]string{
		"current_password": "password", "new_password": "newpassword",
	})
	do(t, req, http.StatusOK, nil)

	login(t, env.server, "admin", "newpassword")
}

func TestUnauthenticatedAccess(t *testing.T) {
	server, _ := setupTestServer(t)

	resp, _ := http.Get(server.URL + "/api/items")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for unauthenticated request, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ := authRequest("GET", server.URL+"/api/items", "garbage", nil)
	resp, _ = http.DefaultClient.Do(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for invalid token, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRoleBasedAccess(t *testing.T) {
	env := newTestEnv(t)

	// Create a regular user.
	req, _ := authRequest("POST", env.server.URL+"/api/users", env.token, map[string]any{
		"username": "user1", "password": "password1", "role": model.RoleUser,
	})
	var user model.User
	do(t, req, http.StatusCreated, &user)

	userToken, _ := auth.GenerateToken(testJWTSecret, user.ID, "user1", model.RoleUser)

	// Regular user should not be able to create items (manager+ required).
	req = formRequest(t, "POST", env.server.URL+"/api/items", userToken, url.Values{
		fieldName: {"Test"}, fieldWattage: {"1"}, fieldQuantity: {"1"},
	}, nil)
	do(t, req, http.StatusForbidden, nil)

	// Regular user can still read.
	req, _ = authRequest("GET", env.server.URL+"/api/items", userToken, nil)
	do(t, req, http.StatusOK, nil)

	// Regular user should not access /api/users.
	req, _ = authRequest("GET", env.server.URL+"/api/users", userToken, nil)
	do(t, req, http.StatusForbidden, nil)
}

func TestTokenFollowsStoredAccount(t *testing.T) {
	env := newTestEnv(t)

	req, _ := authRequest("POST", env.server.URL+"/api/users", env.token, map[string]any{
		"username": "vodja", "password": "password1", "role": model.RoleManager,
	})
	var manager model.User
	do(t, req, http.StatusCreated, &manager)
	token := login(t, env.server, "vodja", "password1")

	newItem := func() *http.Request {
		return formRequest(t, "POST", env.server.URL+"/api/items", token, url.Values{
			fieldName: {"Črpalka"}, fieldWattage: {"750"}, fieldQuantity: {"1"},
		}, nil)
	}
	do(t, newItem(), http.StatusCreated, nil)

	// Demoted: the old token no longer grants manager access.
	req, _ = authRequest("PUT", fmt.Sprintf("%s/api/users/%d", env.server.URL, manager.ID), env.token,
		map[string]string{"role": model.RoleUser})
	do(t, req, http.StatusOK, nil)
	do(t, newItem(), http.StatusForbidden, nil)

	req, _ = authRequest("GET", env.server.URL+"/api/items", token, nil)
	do(t, req, http.StatusOK, nil)

	// A user token promoted in the store gains access without a new login.
	req, _ = authRequest("PUT", fmt.Sprintf("%s/api/users/%d", env.server.URL, manager.ID), env.token,
		map[string]string{"role": model.RoleAdmin})
	do(t, req, http.StatusOK, nil)
	req, _ = authRequest("GET", env.server.URL+"/api/offices", token, nil)
	do(t, req, http.StatusOK, nil)

	// Deleted: the token is rejected outright.
	req, _ = authRequest("DELETE", fmt.Sprintf("%s/api/users/%d", env.server.URL, manager.ID), env.token, nil)
	do(t, req, http.StatusOK, nil)
	req, _ = authRequest("GET", env.server.URL+"/api/items", token, nil)
	do(t, req, http.StatusUnauthorized, nil)

	ghost, _ := auth.GenerateToken(testJWTSecret, 999, "ghost", model.RoleAdmin)
	req, _ = authRequest("GET", env.server.URL+"/api/offices", ghost, nil)
	do(t, req, http.StatusUnauthorized, nil)
}
