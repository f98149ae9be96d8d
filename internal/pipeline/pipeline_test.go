package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/osm-poi-cli/internal/export"
	"github.com/sells-group/osm-poi-cli/internal/extract"
	"github.com/sells-group/osm-poi-cli/internal/store"
)

const sampleOSM = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="test">
 <node id="1" lat="51.5072" lon="-0.1276"><tag k="name" v="Cafe Coco"/><tag k="amenity" v="cafe"/></node>
 <node id="2" lat="51.5100" lon="-0.1300"><tag k="highway" v="bus_stop"/></node>
 <node id="3" lat="51.5200" lon="-0.1400"><tag k="name" v="The Crown"/><tag k="amenity" v="pub"/></node>
 <node id="4" lat="51.5300" lon="-0.1500"><tag k="name" v="Corner Shop"/><tag k="shop" v="convenience"/></node>
 <node id="5" lat="51.5400" lon="-0.1600"><tag k="name" v="Night Owl"/><tag k="amenity" v="bar"/></node>
</osm>`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.osm")
	require.NoError(t, os.WriteFile(path, []byte(sampleOSM), 0o644))
	return path
}

func newSQLite(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestRun_FullFlow(t *testing.T) {
	ctx := context.Background()
	src := writeSample(t)
	st := newSQLite(t)
	out := t.TempDir()

	var sinks []export.Sink
	for _, kind := range export.Kinds {
		s, err := export.New(kind, filepath.Join(out, "pois."+kind), 3857)
		require.NoError(t, err)
		sinks = append(sinks, s)
	}

	res, err := Run(ctx, Options{
		Source:    src,
		Amenities: extract.DefaultAmenities,
		SRID:      3857,
		Store:     st,
		Sinks:     sinks,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(5), res.Scan.Points)
	assert.Equal(t, store.RunStats{Features: 5, Records: 5, Kept: 3, Warnings: 0}, res.Stats)
	require.Len(t, res.Records, 3)
	assert.Equal(t, "Cafe Coco", extract.Value(res.Records[0].Name))
	assert.Equal(t, "Night Owl", extract.Value(res.Records[2].Name))
	assert.InDelta(t, -14204.4, res.Records[0].Point.X, 1)

	run, err := st.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusComplete, run.Status)
	assert.Equal(t, 3857, run.SRID)
	assert.Equal(t, res.Stats, run.Stats)

	saved, err := st.ListRecords(ctx, res.RunID, nil)
	require.NoError(t, err)
	assert.Equal(t, res.Records, saved)

	for _, kind := range export.Kinds {
		_, err := os.Stat(filepath.Join(out, "pois."+kind))
		assert.NoError(t, err, kind)
	}
}

func TestRun_NoFilterKeepsEverything(t *testing.T) {
	res, err := Run(context.Background(), Options{Source: writeSample(t)})
	require.NoError(t, err)
	assert.Empty(t, res.RunID)
	assert.Equal(t, 4326, res.SRID)
	assert.Len(t, res.Records, 5)
	assert.Equal(t, -0.1276, res.Records[0].Point.X)
}

func TestRun_MissingSource(t *testing.T) {
	_, err := Run(context.Background(), Options{Source: filepath.Join(t.TempDir(), "missing.osm")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read source")
}

func TestProcess_MalformedTagsAreWarnings(t *testing.T) {
	features := []extract.Feature{
		{Lon: 1, Lat: 1, Properties: map[string]*string{"other_tags": extract.Str(`"amenity"=>"cafe"`)}},
		{Lon: 2, Lat: 2, Properties: map[string]*string{"other_tags": extract.Str(`"amenity"=>"pub`)}},
		{Lon: 3, Lat: 3, Properties: map[string]*string{"other_tags": extract.Str(`"amenity"=>"bar"`)}},
	}

	res, err := Process(context.Background(), "inline", features, Options{Amenities: []string{"cafe", "pub", "bar"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.Warnings)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, 1, res.Warnings[0].Index)
	assert.Len(t, res.Records, 2)
}

func TestProcess_EmptyInput(t *testing.T) {
	res, err := Process(context.Background(), "inline", nil, Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Equal(t, store.RunStats{}, res.Stats)
}

func TestProcess_UnsupportedSRID(t *testing.T) {
	_, err := Process(context.Background(), "inline", nil, Options{SRID: 2154})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported srid")
}

func TestProcess_PolarPointFailsMercatorRun(t *testing.T) {
	ctx := context.Background()
	st := newSQLite(t)

	features := []extract.Feature{
		{Lon: 1, Lat: 2, Properties: map[string]*string{"name": extract.Str("ok")}},
		{Lon: 0, Lat: 90, Properties: map[string]*string{"name": extract.Str("pole")}},
	}
	res, err := Process(ctx, "inline", features, Options{SRID: 3857, Store: st})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reproject")
	assert.Contains(t, err.Error(), "record 1")

	run, err := st.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusFailed, run.Status)
}

type failingSink struct{}

func (failingSink) Name() string { return "failing" }

func (failingSink) Write(context.Context, []extract.Record) error {
	return fmt.Errorf("disk full")
}

func TestProcess_SinkFailureMarksRunFailed(t *testing.T) {
	ctx := context.Background()
	st := newSQLite(t)

	res, err := Process(ctx, "inline", []extract.Feature{{Lon: 1, Lat: 2}}, Options{
		Store: st,
		Sinks: []export.Sink{failingSink{}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink failing")
	require.NotNil(t, res)

	run, err := st.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusFailed, run.Status)
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateRun(ctx context.Context, source string, srid int) (*store.Run, error) {
	args := m.Called(ctx, source, srid)
	run, _ := args.Get(0).(*store.Run)
	return run, args.Error(1)
}

func (m *mockStore) FinishRun(ctx context.Context, runID string, status store.RunStatus, stats store.RunStats) error {
	return m.Called(ctx, runID, status, stats).Error(0)
}

func (m *mockStore) GetRun(ctx context.Context, runID string) (*store.Run, error) {
	args := m.Called(ctx, runID)
	run, _ := args.Get(0).(*store.Run)
	return run, args.Error(1)
}

func (m *mockStore) ListRuns(ctx context.Context, limit int) ([]store.Run, error) {
	args := m.Called(ctx, limit)
	runs, _ := args.Get(0).([]store.Run)
	return runs, args.Error(1)
}

func (m *mockStore) SaveRecords(ctx context.Context, runID string, records []extract.Record) (int64, error) {
	args := m.Called(ctx, runID, records)
	return int64(args.Int(0)), args.Error(1)
}

func (m *mockStore) ListRecords(ctx context.Context, runID string, amenities []string) ([]extract.Record, error) {
	args := m.Called(ctx, runID, amenities)
	records, _ := args.Get(0).([]extract.Record)
	return records, args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *mockStore) Close() error { return m.Called().Error(0) }

func TestProcess_CreateRunError(t *testing.T) {
	st := &mockStore{}
	st.On("CreateRun", mock.Anything, "inline", 4326).Return(nil, fmt.Errorf("db down"))

	_, err := Process(context.Background(), "inline", nil, Options{Store: st})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create run")
	st.AssertExpectations(t)
}

func TestProcess_SaveRecordsError(t *testing.T) {
	st := &mockStore{}
	st.On("CreateRun", mock.Anything, "inline", 4326).Return(&store.Run{ID: "run-1"}, nil)
	st.On("SaveRecords", mock.Anything, "run-1", mock.Anything).Return(0, fmt.Errorf("constraint violation"))
	st.On("FinishRun", mock.Anything, "run-1", store.RunStatusFailed, store.RunStats{Features: 1, Records: 1, Kept: 1}).Return(nil)

	_, err := Process(context.Background(), "inline", []extract.Feature{{Lon: 1, Lat: 2}}, Options{Store: st})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save records")
	st.AssertExpectations(t)
}

func TestProcess_FinishRunErrorIsLogged(t *testing.T) {
	st := &mockStore{}
	st.On("CreateRun", mock.Anything, "inline", 4326).Return(&store.Run{ID: "run-1"}, nil)
	st.On("SaveRecords", mock.Anything, "run-1", mock.Anything).Return(1, nil)
	st.On("FinishRun", mock.Anything, "run-1", store.RunStatusComplete, mock.Anything).Return(fmt.Errorf("db down"))

	res, err := Process(context.Background(), "inline", []extract.Feature{{Lon: 1, Lat: 2}}, Options{Store: st})
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
	st.AssertExpectations(t)
}
