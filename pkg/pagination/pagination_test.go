package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func parseQuery(t *testing.T, rawQuery string) Params {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/requests?"+rawQuery, nil)
	return Parse(c)
}

func TestParse(t *testing.T) {
	cases := []struct {
		name  string
		query string
		want  Params
	}{
		{"defaults", "", Params{Page: 1, Limit: 20, Offset: 0}},
		{"explicit", "page=3&limit=10", Params{Page: 3, Limit: 10, Offset: 20}},
		{"limit clamped to max", "limit=1000", Params{Page: 1, Limit: 100, Offset: 0}},
		{"zero limit falls back", "limit=0", Params{Page: 1, Limit: 20, Offset: 0}},
		{"negative page falls back", "page=-2", Params{Page: 1, Limit: 20, Offset: 0}},
		{"garbage falls back", "page=abc&limit=xyz", Params{Page: 1, Limit: 20, Offset: 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, parseQuery(t, tc.query))
		})
	}
}
