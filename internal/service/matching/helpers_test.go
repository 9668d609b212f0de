package matching_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oggyb/matchmaker/internal/app"
	"github.com/oggyb/matchmaker/internal/cache"
	"github.com/oggyb/matchmaker/internal/config"
	"github.com/oggyb/matchmaker/internal/db"
	"github.com/oggyb/matchmaker/internal/geocode"
	applog "github.com/oggyb/matchmaker/internal/logger"
	"github.com/oggyb/matchmaker/internal/password"
	"github.com/oggyb/matchmaker/internal/service/matching"
)

type testEnv struct {
	svc    *matching.Service
	appCtx *app.AppContext
	db     *gorm.DB
	mr     *miniredis.Miniredis
	clock  *fakeClock
	geo    *fakeGeocoder
}

// setupService spins up an in-memory SQLite DB, applies migrations, starts a
// miniredis, and wires everything into a matching Service. The daily like
// limit is 2 so rate limiting is cheap to reach.
func setupService(t *testing.T, tweak ...func(*app.AppContext)) *testEnv {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()
	cfg.Matching.DailyLikeLimit = 2
	cfg.Matching.LikeWindow = 24 * time.Hour
	cfg.Matching.AllowedGenders = []string{"male", "female"}
	cfg.Matching.ListCacheTTL = 30 * time.Second
	cfg.Matching.MaxAvatarBytes = 1 << 20

	rc := cache.NewRedisCache(cfg)
	t.Cleanup(func() { rc.Close() })

	clock := newFakeClock()
	geo := newFakeGeocoder()

	appCtx := app.New(cfg, gdb, rc, applog.Discard())
	appCtx.Hasher = password.NewBcryptHasher(4)
	appCtx.Geocoder = geo
	appCtx.Now = clock.Now
	for _, fn := range tweak {
		fn(appCtx)
	}

	return &testEnv{
		svc:    matching.NewService(appCtx),
		appCtx: appCtx,
		db:     gdb,
		mr:     mr,
		clock:  clock,
		geo:    geo,
	}
}

// register creates a participant through the service and advances the clock
// so creation times are distinct.
func (e *testEnv) register(t *testing.T, email, firstName, gender string) matching.ParticipantView {
	t.Helper()
	v, err := e.svc.RegisterParticipant(context.Background(), matching.RegisterRequest{
		Gender:    gender,
		FirstName: firstName,
		LastName:  "Tester",
		Email:     email,
		Password:  "secret123",
	})
	require.NoError(t, err)
	e.clock.Advance(time.Second)
	return v
}

func (e *testEnv) registerAt(t *testing.T, email, firstName string, lat, lon float64) matching.ParticipantView {
	t.Helper()
	v, err := e.svc.RegisterParticipant(context.Background(), matching.RegisterRequest{
		Gender:    "female",
		FirstName: firstName,
		LastName:  "Tester",
		Email:     email,
		Password:  "secret123",
		Latitude:  &lat,
		Longitude: &lon,
	})
	require.NoError(t, err)
	e.clock.Advance(time.Second)
	return v
}

// fakeClock is a settable clock safe for concurrent use.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 10, 27, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errGeocoderDown = errors.New("geocoder down")

// fakeGeocoder resolves from a fixed table; down makes every call fail.
type fakeGeocoder struct {
	mu    sync.Mutex
	locs  map[string]geocode.Location
	down  bool
	calls int
}

func newFakeGeocoder() *fakeGeocoder {
	return &fakeGeocoder{locs: map[string]geocode.Location{
		"berlin": {Lat: 52.52, Lon: 13.405, DisplayName: "Berlin, Deutschland"},
	}}
}

func (g *fakeGeocoder) Resolve(_ context.Context, city string) (geocode.Location, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.down {
		return geocode.Location{}, errGeocoderDown
	}
	loc, ok := g.locs[strings.ToLower(city)]
	if !ok {
		return geocode.Location{}, geocode.ErrNotFound
	}
	return loc, nil
}

func (g *fakeGeocoder) setDown(down bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.down = down
}

func (g *fakeGeocoder) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{G: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
