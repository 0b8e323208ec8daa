package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/revrec/internal/revrec"
)

func TestRespondErrorMapsDomainErrors(t *testing.T) {
	cases := []struct {
		err        error
		status     int
		showDetail bool
	}{
		{revrec.Invalid("amount", "must be positive"), http.StatusBadRequest, true},
		{&revrec.ConcurrencyError{ContractID: "c1"}, http.StatusConflict, true},
		{&revrec.InconsistentStateError{ObligationID: "ob1"}, http.StatusConflict, true},
		{revrec.Imbalance("debit %s credit %s", "1", "2"), http.StatusInternalServerError, false},
		{revrec.ExternalIO("get contract", errors.New("dial tcp 10.0.0.1:5432")), http.StatusServiceUnavailable, false},
		{fmt.Errorf("load: %w", revrec.ErrNotFound), http.StatusNotFound, true},
		{ErrForbidden, http.StatusForbidden, true},
		{errors.New("boom"), http.StatusInternalServerError, false},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())

		var problem ProblemDetail
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
		require.Equal(t, tc.status, problem.Status)
		if tc.showDetail {
			require.NotEmpty(t, problem.Detail)
		} else {
			require.Empty(t, problem.Detail)
		}
	}
}
