package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"idsync/internal/session"
	"idsync/internal/session/handler/mocks"
	dErrors "idsync/pkg/domain-errors"
)

//go:generate mockgen -source=handler.go -destination=mocks/session-mocks.go -package=mocks Service
type SessionHandlerSuite struct {
	suite.Suite
}

func TestSessionHandlerSuite(t *testing.T) {
	suite.Run(t, new(SessionHandlerSuite))
}

func newTestRouter(t *testing.T) (chi.Router, *mocks.MockService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	mockService := mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	r := chi.NewRouter()
	New(mockService, logger).Register(r)
	return r, mockService
}

func (s *SessionHandlerSuite) post(r chi.Router, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/validate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func (s *SessionHandlerSuite) TestValidSession() {
	r, mockService := newTestRouter(s.T())
	mockService.EXPECT().Validate(gomock.Any(), "tok-abc", "project:p1").Return(&session.Result{
		Valid:       true,
		SubjectID:   "u1",
		DisplayName: "Ada",
		Attributes:  map[string]string{"email": "ada@x.com"},
	}, nil)

	w := s.post(r, `{"credential":"tok-abc","required_scope":"project:p1"}`)

	assert.Equal(s.T(), http.StatusOK, w.Code)
	var resp session.Result
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(s.T(), resp.Valid)
	assert.Equal(s.T(), "u1", resp.SubjectID)
	assert.Equal(s.T(), "ada@x.com", resp.Attributes["email"])
}

func (s *SessionHandlerSuite) TestInvalidCredentialIsStillOK() {
	r, mockService := newTestRouter(s.T())
	mockService.EXPECT().Validate(gomock.Any(), "garbage", "").Return(&session.Result{
		Valid:  false,
		Reason: session.ReasonInvalidCredential,
	}, nil)

	w := s.post(r, `{"credential":"garbage"}`)

	assert.Equal(s.T(), http.StatusOK, w.Code)
	var resp session.Result
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(s.T(), resp.Valid)
	assert.Equal(s.T(), session.ReasonInvalidCredential, resp.Reason)
}

func (s *SessionHandlerSuite) TestMalformedBody() {
	r, _ := newTestRouter(s.T())

	w := s.post(r, `{"credential":`)

	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
}

func (s *SessionHandlerSuite) TestFailedPreconditionMapsTo422() {
	r, mockService := newTestRouter(s.T())
	mockService.EXPECT().Validate(gomock.Any(), "tok-ghost", "").Return(
		nil, dErrors.New(dErrors.CodeFailedPrecondition, "subject unknown to identity provider"))

	w := s.post(r, `{"credential":"tok-ghost"}`)

	assert.Equal(s.T(), http.StatusUnprocessableEntity, w.Code)
	var resp map[string]string
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(s.T(), "failed_precondition", resp["error"])
}

func (s *SessionHandlerSuite) TestInternalErrorHidesDetail() {
	r, mockService := newTestRouter(s.T())
	mockService.EXPECT().Validate(gomock.Any(), "tok-abc", "").Return(
		nil, dErrors.New(dErrors.CodeInternal, "redis exploded"))

	w := s.post(r, `{"credential":"tok-abc"}`)

	assert.Equal(s.T(), http.StatusInternalServerError, w.Code)
	assert.NotContains(s.T(), w.Body.String(), "redis exploded")
}
