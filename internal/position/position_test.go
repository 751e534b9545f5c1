package position_test

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/browsernavi/navi/internal/geometry"
	"github.com/browsernavi/navi/internal/position"
)

var tokyoStation = geometry.Coordinate{Lon: 139.767, Lat: 35.681}

func TestFeed_PushDeliversToWatchers(t *testing.T) {
	feed := position.NewFeed()

	var got []position.Sample
	var gotErr error
	stop, err := feed.Watch(func(s position.Sample) { got = append(got, s) }, func(err error) { gotErr = err })
	require.NoError(t, err)
	assert.Equal(t, 1, feed.WatcherCount())

	require.NoError(t, feed.Push(position.Sample{Coordinate: tokyoStation}))
	feed.PushError(position.ErrTimeout)

	require.Len(t, got, 1)
	assert.Equal(t, tokyoStation, got[0].Coordinate)
	assert.False(t, got[0].Timestamp.IsZero(), "missing timestamps are filled in")
	assert.ErrorIs(t, gotErr, position.ErrTimeout)

	stop()
	stop()
	assert.Equal(t, 0, feed.WatcherCount())

	require.NoError(t, feed.Push(position.Sample{Coordinate: tokyoStation}))
	assert.Len(t, got, 1, "stopped watchers receive nothing")
}

func TestFeed_RejectsInvalidSamples(t *testing.T) {
	feed := position.NewFeed()

	err := feed.Push(position.Sample{Coordinate: geometry.Coordinate{Lon: 200, Lat: 0}})
	assert.ErrorIs(t, err, position.ErrInvalidSample)

	_, ok := feed.LastFix()
	assert.False(t, ok)
}

func TestFeed_LastFix(t *testing.T) {
	feed := position.NewFeed()
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, feed.Push(position.Sample{Coordinate: tokyoStation, Timestamp: at}))

	last, ok := feed.LastFix()
	require.True(t, ok)
	assert.Equal(t, tokyoStation, last.Coordinate)
	assert.Equal(t, at, last.Timestamp)
}

func TestFeed_StopFromInsideHandler(t *testing.T) {
	feed := position.NewFeed()

	var stop func()
	calls := 0
	stop, err := feed.Watch(func(position.Sample) {
		calls++
		stop()
	}, nil)
	require.NoError(t, err)

	require.NoError(t, feed.Push(position.Sample{Coordinate: tokyoStation}))
	require.NoError(t, feed.Push(position.Sample{Coordinate: tokyoStation}))
	assert.Equal(t, 1, calls)
}

func TestErrorFromCode(t *testing.T) {
	assert.ErrorIs(t, position.ErrorFromCode(1), position.ErrPermissionDenied)
	assert.ErrorIs(t, position.ErrorFromCode(2), position.ErrUnavailable)
	assert.ErrorIs(t, position.ErrorFromCode(3), position.ErrTimeout)
	assert.ErrorIs(t, position.ErrorFromCode(99), position.ErrUnavailable)
}

func TestReplay_PlaysWholeTrack(t *testing.T) {
	track := position.AlongRoute([]geometry.Coordinate{
		{Lon: 0, Lat: 0},
		{Lon: 0, Lat: 0.001},
	}, 25)

	replay := position.NewReplay(position.ReplayConfig{
		Track:    track,
		Interval: time.Millisecond,
		Logger:   zerolog.Nop(),
	})

	var mu sync.Mutex
	var got []position.Sample
	_, err := replay.Watch(func(s position.Sample) {
		mu.Lock()
		got = append(got, s)
		mu.Unlock()
	}, nil)
	require.NoError(t, err)

	select {
	case <-replay.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("replay did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, len(track))
	assert.Equal(t, track[len(track)-1].Coordinate, got[len(got)-1].Coordinate)
}

func TestReplay_StopFromHandler(t *testing.T) {
	track := make([]position.Sample, 100)
	for i := range track {
		track[i] = position.Sample{Coordinate: geometry.Coordinate{Lon: 0, Lat: float64(i) * 0.0001}}
	}

	replay := position.NewReplay(position.ReplayConfig{Track: track, Interval: time.Millisecond, Logger: zerolog.Nop()})

	var stop func()
	var mu sync.Mutex
	calls := 0
	ready := make(chan struct{})
	stop, err := replay.Watch(func(position.Sample) {
		<-ready
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 3 {
			stop()
		}
	}, nil)
	require.NoError(t, err)
	close(ready)

	select {
	case <-replay.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("replay did not stop")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, calls)
}

func TestReplay_Errors(t *testing.T) {
	empty := position.NewReplay(position.ReplayConfig{Logger: zerolog.Nop()})
	_, err := empty.Watch(func(position.Sample) {}, nil)
	assert.ErrorIs(t, err, position.ErrEmptyTrack)

	track := []position.Sample{{Coordinate: tokyoStation}, {Coordinate: tokyoStation}}
	replay := position.NewReplay(position.ReplayConfig{Track: track, Interval: time.Hour, Logger: zerolog.Nop()})

	stop, err := replay.Watch(func(position.Sample) {}, nil)
	require.NoError(t, err)
	defer stop()

	_, err = replay.Watch(func(position.Sample) {}, nil)
	assert.ErrorIs(t, err, position.ErrReplayRunning)
}

const sampleGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="navi-test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk>
    <name>Marunouchi loop</name>
    <trkseg>
      <trkpt lat="35.68124" lon="139.76713"><time>2024-05-01T09:00:00Z</time></trkpt>
      <trkpt lat="35.68000" lon="139.76500"><time>2024-05-01T09:00:05Z</time></trkpt>
    </trkseg>
    <trkseg>
      <trkpt lat="35.67800" lon="139.76000"><time>2024-05-01T09:00:10Z</time></trkpt>
    </trkseg>
  </trk>
</gpx>`

const routeOnlyGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="navi-test" xmlns="http://www.topografix.com/GPX/1/1">
  <rte>
    <rtept lat="35.0" lon="139.0"></rtept>
    <rtept lat="35.1" lon="139.1"></rtept>
  </rte>
</gpx>`

func TestLoadGPX(t *testing.T) {
	samples, err := position.LoadGPX(strings.NewReader(sampleGPX))
	require.NoError(t, err)

	require.Len(t, samples, 3)
	assert.InDelta(t, 139.76713, samples[0].Coordinate.Lon, 1e-9)
	assert.InDelta(t, 35.68124, samples[0].Coordinate.Lat, 1e-9)
	assert.InDelta(t, 139.76, samples[2].Coordinate.Lon, 1e-9)
	assert.Equal(t, time.Date(2024, 5, 1, 9, 0, 5, 0, time.UTC), samples[1].Timestamp.UTC())
	assert.Nil(t, samples[0].HeadingDegrees)
}

func TestLoadGPX_RoutePoints(t *testing.T) {
	samples, err := position.LoadGPX(strings.NewReader(routeOnlyGPX))
	require.NoError(t, err)
	assert.Len(t, samples, 2)
}

func TestLoadGPX_Empty(t *testing.T) {
	_, err := position.LoadGPX(strings.NewReader(`<gpx version="1.1" creator="x"></gpx>`))
	assert.True(t, errors.Is(err, position.ErrNoTrackPoints), "got %v", err)

	_, err = position.LoadGPXFile("testdata/does-not-exist.gpx")
	assert.Error(t, err)
}

func TestAlongRoute(t *testing.T) {
	line := []geometry.Coordinate{
		{Lon: 0, Lat: 0},
		{Lon: 0, Lat: 0.001}, // ~111 m
		{Lon: 0, Lat: 0.001},
		{Lon: 0.001, Lat: 0.001}, // ~111 m
	}

	samples := position.AlongRoute(line, 25)

	assert.Equal(t, line[0], samples[0].Coordinate)
	assert.Equal(t, line[3], samples[len(samples)-1].Coordinate)
	// 222 m total at 25 m spacing: 8 interior samples + start + end.
	assert.Len(t, samples, 10)

	for i := 1; i < len(samples)-1; i++ {
		gap := geometry.Haversine(samples[i-1].Coordinate, samples[i].Coordinate)
		assert.LessOrEqual(t, gap, 25.5, "sample %d", i)
	}

	assert.Nil(t, position.AlongRoute(nil, 10))
	assert.Len(t, position.AlongRoute(line[:1], 10), 1)
}
