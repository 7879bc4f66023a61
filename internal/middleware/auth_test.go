package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("SignedString returned error: %v", err)
	}
	return token
}

func validClaims(userID primitive.ObjectID, role string) jwt.MapClaims {
	return jwt.MapClaims{
		"userId": userID.Hex(),
		"role":   role,
		"exp":    time.Now().Add(time.Hour).Unix(),
	}
}

func newGuardedRouter(guard gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", guard, func(c *gin.Context) {
		userID, _ := c.Get("userId")
		role, _ := c.Get("role")
		id, _ := userID.(primitive.ObjectID)
		c.JSON(http.StatusOK, gin.H{"userId": id.Hex(), "role": role})
	})
	return r
}

func doRequest(r *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestUserAuthSetsUserID(t *testing.T) {
	userID := primitive.NewObjectID()
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims(userID, "customer"))

	w := doRequest(newGuardedRouter(UserAuth(testSecret)), "Bearer "+token)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	want := `{"role":"customer","userId":"` + userID.Hex() + `"}`
	if w.Body.String() != want {
		t.Fatalf("expected %s, got %s", want, w.Body.String())
	}
}

func TestUserAuthRejections(t *testing.T) {
	userID := primitive.NewObjectID()
	expired := validClaims(userID, "customer")
	expired["exp"] = time.Now().Add(-time.Minute).Unix()
	noUser := jwt.MapClaims{"role": "customer", "exp": time.Now().Add(time.Hour).Unix()}

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Token abc"},
		{"bad signature", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte("other"), validClaims(userID, "customer"))},
		{"expired", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), expired)},
		{"no user id", "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), noUser)},
		{"unsigned", "Bearer " + signToken(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, validClaims(userID, "customer"))},
	}

	r := newGuardedRouter(UserAuth(testSecret))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := doRequest(r, tt.header); w.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", w.Code)
			}
		})
	}
}

func TestAdminAuthRequiresAdminRole(t *testing.T) {
	r := newGuardedRouter(AdminAuth(testSecret))
	userID := primitive.NewObjectID()

	customer := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims(userID, "customer"))
	if w := doRequest(r, "Bearer "+customer); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer, got %d", w.Code)
	}

	admin := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims(userID, "admin"))
	if w := doRequest(r, "Bearer "+admin); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", w.Code)
	}
}
