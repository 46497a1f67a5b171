package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"Green_Community/internal/pkg"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: bad token", pkg.ErrUnauthorized), http.StatusUnauthorized, "UNAUTHORIZED"},
		{fmt.Errorf("%w: not the leader", pkg.ErrForbidden), http.StatusForbidden, "FORBIDDEN"},
		{fmt.Errorf("%w: community", pkg.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{pkg.ErrAlreadyResolved, http.StatusConflict, "ALREADY_RESOLVED"},
		{fmt.Errorf("%w: pending request exists", pkg.ErrConflict), http.StatusConflict, "CONFLICT"},
		{fmt.Errorf("%w: members", pkg.ErrValidation), http.StatusBadRequest, "VALIDATION_ERROR"},
		{fmt.Errorf("%w: llm timeout", pkg.ErrUpstream), http.StatusBadGateway, "UPSTREAM_FAILURE"},
		{fmt.Errorf("%w: %w", pkg.ErrUpstream, errors.New("connection refused")), http.StatusBadGateway, "UPSTREAM_FAILURE"},
		{errors.New("db gone"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			respondError(c, tc.err)

			assert.Equal(t, tc.status, w.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body["code"])
			if tc.status == http.StatusInternalServerError {
				assert.Equal(t, "internal error", body["msg"])
				assert.Len(t, c.Errors, 1)
			}
		})
	}
}
