package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkondra/ring-receptionist/internal/auth"

	"github.com/gin-gonic/gin"
)

func roleRouter(workspaceID, role string, allowed ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), "u1", workspaceID, role)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, RequireWorkspace(), RequireAnyRole(allowed...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRequireAnyRole(t *testing.T) {
	cases := []struct {
		name        string
		workspaceID string
		role        string
		allowed     []string
		want        int
	}{
		{"allowed role passes", "w1", RoleOwner, []string{RoleOwner}, http.StatusOK},
		{"super_admin bypasses", "w1", RoleSuperAdmin, []string{RoleOwner}, http.StatusOK},
		{"hidden operator denied on dashboard routes", "w1", RoleOperator, []string{RoleOwner}, http.StatusForbidden},
		{"hidden operator allowed when named", "w1", RoleOperator, []string{RoleOperator}, http.StatusOK},
		{"unknown role denied", "w1", "viewer", []string{RoleOwner}, http.StatusForbidden},
		{"missing workspace rejected", "", RoleOwner, []string{RoleOwner}, http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			roleRouter(tc.workspaceID, tc.role, tc.allowed...).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}
