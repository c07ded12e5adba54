package api_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/caesium-cloud/sweep/api"
	"github.com/caesium-cloud/sweep/api/rest/bind"
	"github.com/caesium-cloud/sweep/internal/event"
	"github.com/caesium-cloud/sweep/internal/models"
	"github.com/caesium-cloud/sweep/internal/store"
	"github.com/caesium-cloud/sweep/internal/study"
	"github.com/caesium-cloud/sweep/internal/sweep"
	"github.com/caesium-cloud/sweep/internal/testutil"
	"github.com/caesium-cloud/sweep/internal/trigger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/suite"
)

const definition = `
apiVersion: v1
kind: Study
metadata:
  name: demo
stages:
  - name: stage_a
    parameters:
      x: [1, 2]
      y: [a, b]
`

type fakeTrigger struct {
	err   error
	fired int
}

func (f *fakeTrigger) Listen(context.Context) {}

func (f *fakeTrigger) Fire(context.Context) error {
	f.fired++
	return f.err
}

func (f *fakeTrigger) ID() uuid.UUID {
	return uuid.Nil
}

type APITestSuite struct {
	suite.Suite
	echo    *echo.Echo
	bus     event.Bus
	trigger *fakeTrigger
	close   func()
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}

func (s *APITestSuite) SetupSuite() {
	ctx := context.Background()

	dir := s.T().TempDir()
	testutil.WriteFile(s.T(), dir, "study.yaml", definition)
	def, err := study.Load(filepath.Join(dir, "study.yaml"))
	s.Require().NoError(err)

	db := testutil.OpenTestDB(s.T())
	s.close = func() { testutil.CloseDB(db) }
	s.Require().NoError(def.Init(ctx, db))

	st := store.New(db)
	_, err = sweep.NewGenerator(def, st, nil).Generate(ctx, "stage_a")
	s.Require().NoError(err)

	s.bus = event.New()
	s.trigger = &fakeTrigger{}
	s.echo = api.New(bind.Dependencies{
		Definition: def,
		Store:      st,
		Bus:        s.bus,
		Triggers:   map[string]trigger.Trigger{"stage_a": s.trigger},
	})
}

func (s *APITestSuite) TearDownSuite() {
	s.close()
}

func (s *APITestSuite) do(method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func (s *APITestSuite) TestHealth() {
	rec := s.do(http.MethodGet, "/health")
	s.Equal(http.StatusOK, rec.Code)

	var resp api.HealthResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal(api.Healthy, resp.Status)
	s.Equal("demo", resp.Study)
	s.Empty(resp.Missing)
}

func (s *APITestSuite) TestListUnits() {
	rec := s.do(http.MethodGet, "/v1/stages/stage_a/units")
	s.Require().Equal(http.StatusOK, rec.Code)

	var units []models.WorkUnit
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &units))
	s.Require().Len(units, 4)
	s.Equal(int64(1), units[0].ID)
	s.Equal(map[string]string{"x": "1", "y": "a"}, units[0].Params)
	s.Equal(models.StatusIncomplete, units[0].Status)

	rec = s.do(http.MethodGet, "/v1/stages/stage_a/units?status=complete")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.JSONEq(`[]`, rec.Body.String())

	rec = s.do(http.MethodGet, "/v1/stages/stage_a/units?status=done")
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/v1/stages/stage_z/units")
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *APITestSuite) TestGetUnit() {
	rec := s.do(http.MethodGet, "/v1/stages/stage_a/units/2")
	s.Require().Equal(http.StatusOK, rec.Code)

	var u models.WorkUnit
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &u))
	s.Equal(int64(2), u.ID)

	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/v1/stages/stage_a/units/99").Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/v1/stages/stage_a/units/abc").Code)
}

func (s *APITestSuite) TestUnitTasks() {
	rec := s.do(http.MethodGet, "/v1/stages/stage_a/units/1/tasks")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.JSONEq(`[]`, rec.Body.String())

	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/v1/stages/stage_a/units/99/tasks").Code)
}

func (s *APITestSuite) TestGather() {
	s.trigger.err = nil
	s.Equal(http.StatusNoContent, s.do(http.MethodPost, "/v1/stages/stage_a/gather").Code)

	s.trigger.err = trigger.ErrBusy
	s.Equal(http.StatusConflict, s.do(http.MethodPost, "/v1/stages/stage_a/gather").Code)
	s.Equal(2, s.trigger.fired)

	s.Equal(http.StatusNotFound, s.do(http.MethodPost, "/v1/stages/stage_z/gather").Code)
}

func (s *APITestSuite) TestEventStream() {
	srv := httptest.NewServer(s.echo)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events?stage=stage_a", nil)
	s.Require().NoError(err)
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal("text/event-stream", resp.Header.Get(echo.HeaderContentType))

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	s.Require().NoError(err)
	s.Equal(": ping\n", line)

	s.bus.Publish(event.NewEvent(event.TypeUnitCreated, "demo", "stage_b", 1, nil))
	s.bus.Publish(event.NewEvent(event.TypeUnitCreated, "demo", "stage_a", 7, nil))

	for {
		line, err = r.ReadString('\n')
		s.Require().NoError(err)
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}

	var e event.Event
	s.Require().NoError(json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e))
	s.Equal("stage_a", e.Stage)
	s.Equal(int64(7), e.WorkUnitID)
}
