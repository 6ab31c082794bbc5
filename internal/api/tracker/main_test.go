package tracker

import (
	"os"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Setenv("PT_JWT_SECRET", "test-tracker-jwt-secret-that-is-32chars!")
	os.Exit(m.Run())
}
