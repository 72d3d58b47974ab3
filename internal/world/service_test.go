package world

import (
	"errors"
	"math/rand"
	"testing"

	"go.uber.org/zap"

	"github.com/worldsim/server/internal/geom"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	reg := NewRegistry(0)
	s := NewService(reg, 64, 0, zap.NewNop())
	s.ClearWorld(
		geom.Vec3{X: -4096, Y: -4096, Z: -4096},
		geom.Vec3{X: 4096, Y: 4096, Z: 4096},
	)
	return s
}

// createBox makes an entity whose absolute box is exactly mins..maxs by
// giving it a zero origin and the box as its local extent.
func createBox(t *testing.T, s *Service, mins, maxs geom.Vec3, kind SolidKind) EntityID {
	t.Helper()
	id, err := s.Registry().Create(mins, maxs, kind)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return id
}

func link(t *testing.T, s *Service, id EntityID) {
	t.Helper()
	if err := s.LinkEntity(id); err != nil {
		t.Fatalf("LinkEntity(%d): %v", id, err)
	}
}

func containsID(ids []EntityID, id EntityID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func TestAreaEntitiesAcrossCells(t *testing.T) {
	s := newTestService(t)

	a := createBox(t, s, geom.Vec3{}, geom.Vec3{X: 10, Y: 10, Z: 10}, SolidBBox)
	b := createBox(t, s, geom.Vec3{X: 50}, geom.Vec3{X: 70}, SolidBBox)
	link(t, s, a)
	link(t, s, b)

	got := s.AreaEntities(geom.Vec3{}, geom.Vec3{X: 100}, MaskAll)
	if len(got) != 2 || !containsID(got, a) || !containsID(got, b) {
		t.Errorf("AreaEntities = %v, want {%d, %d}", got, a, b)
	}
}

func TestAreaEntitiesMaskFilter(t *testing.T) {
	s := newTestService(t)

	trig := createBox(t, s, geom.Vec3{}, geom.Vec3{X: 10, Y: 10, Z: 10}, SolidTrigger)
	bbox := createBox(t, s, geom.Vec3{X: 5}, geom.Vec3{X: 15, Y: 10, Z: 10}, SolidBBox)
	slide := createBox(t, s, geom.Vec3{Y: 5}, geom.Vec3{X: 10, Y: 15, Z: 10}, SolidSlideBox)
	link(t, s, trig)
	link(t, s, bbox)
	link(t, s, slide)

	region := func(mask KindMask) []EntityID {
		return s.AreaEntities(geom.Vec3{}, geom.Vec3{X: 20, Y: 20, Z: 20}, mask)
	}

	if got := region(MaskTrigger); len(got) != 1 || got[0] != trig {
		t.Errorf("trigger mask = %v, want [%d]", got, trig)
	}
	if got := region(MaskBlocking); len(got) != 2 || !containsID(got, bbox) || !containsID(got, slide) {
		t.Errorf("blocking mask = %v, want {%d, %d}", got, bbox, slide)
	}
	if got := region(MaskAll); len(got) != 3 {
		t.Errorf("all mask = %v, want 3 ids", got)
	}
}

func TestLinkSolidNoneIsNoop(t *testing.T) {
	s := newTestService(t)

	id := createBox(t, s, geom.Vec3{}, geom.Vec3{X: 10, Y: 10, Z: 10}, SolidNone)
	link(t, s, id)

	v, _ := s.Registry().Get(id)
	if v.Linked {
		t.Error("solid NONE entity reported linked")
	}
	if got := s.AreaEntities(geom.Vec3{X: -50, Y: -50, Z: -50}, geom.Vec3{X: 50, Y: 50, Z: 50}, MaskAll); len(got) != 0 {
		t.Errorf("AreaEntities = %v, want empty", got)
	}
	if st := s.Stats(); st.UsedCells != 0 {
		t.Errorf("UsedCells = %d, want 0", st.UsedCells)
	}
}

func TestUnlinkIdempotent(t *testing.T) {
	s := newTestService(t)

	id := createBox(t, s, geom.Vec3{}, geom.Vec3{X: 10, Y: 10, Z: 10}, SolidBBox)
	link(t, s, id)

	if err := s.UnlinkEntity(id); err != nil {
		t.Fatalf("first Unlink: %v", err)
	}
	if err := s.UnlinkEntity(id); err != nil {
		t.Fatalf("second Unlink: %v", err)
	}
	if st := s.Stats(); st.UsedCells != 0 {
		t.Errorf("UsedCells = %d, want 0", st.UsedCells)
	}

	if err := s.UnlinkEntity(999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Unlink missing id err = %v, want ErrNotFound", err)
	}
}

func TestRelinkAfterMove(t *testing.T) {
	s := newTestService(t)

	id := createBox(t, s, geom.Vec3{X: -8, Y: -8, Z: -8}, geom.Vec3{X: 8, Y: 8, Z: 8}, SolidBBox)
	link(t, s, id)

	// Linking a linked entity removes the old box first, so even a direct
	// relink after a long move leaves no stale cells behind.
	if err := s.Registry().SetOrigin(id, geom.Vec3{X: 1000, Y: 1000, Z: 1000}); err != nil {
		t.Fatalf("SetOrigin: %v", err)
	}
	link(t, s, id)

	if got := s.AreaEntities(geom.Vec3{X: -50, Y: -50, Z: -50}, geom.Vec3{X: 50, Y: 50, Z: 50}, MaskAll); len(got) != 0 {
		t.Errorf("query at old position = %v, want empty", got)
	}
	got := s.AreaEntities(geom.Vec3{X: 950, Y: 950, Z: 950}, geom.Vec3{X: 1050, Y: 1050, Z: 1050}, MaskAll)
	if len(got) != 1 || got[0] != id {
		t.Errorf("query at new position = %v, want [%d]", got, id)
	}
}

func TestTestEntityPositionSelfExclusion(t *testing.T) {
	s := newTestService(t)

	id := createBox(t, s, geom.Vec3{}, geom.Vec3{X: 10, Y: 10, Z: 10}, SolidBBox)
	link(t, s, id)

	ok, err := s.TestEntityPosition(id)
	if err != nil {
		t.Fatalf("TestEntityPosition: %v", err)
	}
	if !ok {
		t.Error("linked entity collides with itself")
	}

	// An overlapping trigger does not block.
	trig := createBox(t, s, geom.Vec3{X: 5}, geom.Vec3{X: 15, Y: 10, Z: 10}, SolidTrigger)
	link(t, s, trig)
	if ok, _ := s.TestEntityPosition(id); !ok {
		t.Error("trigger overlap reported as blocking")
	}

	// An overlapping bbox does.
	other := createBox(t, s, geom.Vec3{X: 8}, geom.Vec3{X: 18, Y: 10, Z: 10}, SolidBBox)
	link(t, s, other)
	if ok, _ := s.TestEntityPosition(id); ok {
		t.Error("bbox overlap not reported as blocking")
	}

	if _, err := s.TestEntityPosition(999); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing id err = %v, want ErrNotFound", err)
	}
}

func TestTouchLinksOncePerPair(t *testing.T) {
	s := newTestService(t)

	// Both straddle the cell corner at the origin so their boxes span four
	// shared cells on the xy plane.
	trig := createBox(t, s,
		geom.Vec3{X: -20, Y: -20, Z: 0}, geom.Vec3{X: 20, Y: 20, Z: 10}, SolidTrigger)
	mover := createBox(t, s,
		geom.Vec3{X: -15, Y: -15, Z: 0}, geom.Vec3{X: 15, Y: 15, Z: 10}, SolidBBox)
	link(t, s, trig)
	link(t, s, mover)

	var calls []pairKey
	s.SetTouchHandler(func(tv, mv EntityView) {
		calls = append(calls, pairKey{trigger: tv.ID, mover: mv.ID})
	})

	s.BeginTick()
	if err := s.TouchLinks(mover); err != nil {
		t.Fatalf("TouchLinks: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("callback fired %d times, want 1", len(calls))
	}
	if calls[0].trigger != trig || calls[0].mover != mover {
		t.Errorf("pair = %+v, want trigger=%d mover=%d", calls[0], trig, mover)
	}

	// Running touch from the trigger's side reports the same pair, still
	// deduped within the window.
	if err := s.TouchLinks(trig); err != nil {
		t.Fatalf("TouchLinks: %v", err)
	}
	if len(calls) != 1 {
		t.Errorf("callback fired %d times within one window, want 1", len(calls))
	}

	// A fresh window makes the pair reportable again.
	s.BeginTick()
	if err := s.TouchLinks(mover); err != nil {
		t.Fatalf("TouchLinks: %v", err)
	}
	if len(calls) != 2 {
		t.Errorf("callback fired %d times after new window, want 2", len(calls))
	}
}

func TestTouchLinksIgnoresNonContacts(t *testing.T) {
	s := newTestService(t)

	trig := createBox(t, s, geom.Vec3{}, geom.Vec3{X: 10, Y: 10, Z: 10}, SolidTrigger)
	otherTrig := createBox(t, s, geom.Vec3{X: 5}, geom.Vec3{X: 15, Y: 10, Z: 10}, SolidTrigger)
	farBox := createBox(t, s, geom.Vec3{X: 500}, geom.Vec3{X: 510, Y: 10, Z: 10}, SolidBBox)
	link(t, s, trig)
	link(t, s, otherTrig)
	link(t, s, farBox)

	calls := 0
	s.SetTouchHandler(func(_, _ EntityView) { calls++ })

	s.BeginTick()
	// Trigger on trigger is not a contact and the blocking entity is out
	// of range.
	for _, id := range []EntityID{trig, otherTrig, farBox} {
		if err := s.TouchLinks(id); err != nil {
			t.Fatalf("TouchLinks(%d): %v", id, err)
		}
	}
	if calls != 0 {
		t.Errorf("callback fired %d times, want 0", calls)
	}
}

func TestRandomUnlinkLeavesNoStaleEntries(t *testing.T) {
	s := newTestService(t)
	rng := rand.New(rand.NewSource(42))

	const n = 300
	ids := make([]EntityID, 0, n)
	for i := 0; i < n; i++ {
		origin := geom.Vec3{
			X: rng.Float64()*2000 - 1000,
			Y: rng.Float64()*2000 - 1000,
			Z: rng.Float64()*2000 - 1000,
		}
		id := createBox(t, s,
			origin.Sub(geom.Vec3{X: 10, Y: 10, Z: 10}),
			origin.Add(geom.Vec3{X: 10, Y: 10, Z: 10}),
			SolidBBox)
		link(t, s, id)
		ids = append(ids, id)
	}

	rng.Shuffle(n, func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	unlinked := ids[:n/2]
	for _, id := range unlinked {
		if err := s.UnlinkEntity(id); err != nil {
			t.Fatalf("Unlink(%d): %v", id, err)
		}
	}

	got := s.AreaEntities(
		geom.Vec3{X: -1100, Y: -1100, Z: -1100},
		geom.Vec3{X: 1100, Y: 1100, Z: 1100},
		MaskAll)
	if len(got) != n/2 {
		t.Fatalf("world query returned %d ids, want %d", len(got), n/2)
	}
	for _, id := range unlinked {
		if containsID(got, id) {
			t.Errorf("unlinked entity %d still returned by query", id)
		}
	}
}

func TestDestroyForcesUnlink(t *testing.T) {
	s := newTestService(t)

	id := createBox(t, s, geom.Vec3{}, geom.Vec3{X: 10, Y: 10, Z: 10}, SolidBBox)
	link(t, s, id)

	// Destroy without unlinking first: the registry must route through the
	// service so no grid cell keeps the freed id.
	if err := s.Registry().Destroy(id); err != nil {
		t.Fatalf("Destroy: %v", err)
	}

	got := s.AreaEntities(geom.Vec3{X: -50, Y: -50, Z: -50}, geom.Vec3{X: 50, Y: 50, Z: 50}, MaskAll)
	if len(got) != 0 {
		t.Errorf("query after Destroy = %v, want empty", got)
	}
	if st := s.Stats(); st.UsedCells != 0 {
		t.Errorf("UsedCells = %d, want 0", st.UsedCells)
	}
}

func TestDestroyQueue(t *testing.T) {
	s := newTestService(t)

	a := createBox(t, s, geom.Vec3{}, geom.Vec3{X: 10, Y: 10, Z: 10}, SolidBBox)
	b := createBox(t, s, geom.Vec3{X: 100}, geom.Vec3{X: 110, Y: 10, Z: 10}, SolidBBox)
	link(t, s, a)
	link(t, s, b)

	s.MarkForDestroy(a)
	s.MarkForDestroy(a) // duplicate, second attempt is skipped
	s.MarkForDestroy(b)

	if n := s.FlushDestroyQueue(); n != 2 {
		t.Errorf("FlushDestroyQueue = %d, want 2", n)
	}
	if s.Registry().Len() != 0 {
		t.Errorf("Len after flush = %d, want 0", s.Registry().Len())
	}
	if n := s.FlushDestroyQueue(); n != 0 {
		t.Errorf("second flush = %d, want 0", n)
	}
}

func TestClearWorldUnlinksEverything(t *testing.T) {
	s := newTestService(t)

	id := createBox(t, s, geom.Vec3{}, geom.Vec3{X: 10, Y: 10, Z: 10}, SolidBBox)
	link(t, s, id)

	s.ClearWorld(geom.Vec3{X: -100, Y: -100, Z: -100}, geom.Vec3{X: 100, Y: 100, Z: 100})

	v, err := s.Registry().Get(id)
	if err != nil {
		t.Fatalf("entity lost by ClearWorld: %v", err)
	}
	if v.Linked {
		t.Error("entity still linked after ClearWorld")
	}
	if st := s.Stats(); st.UsedCells != 0 {
		t.Errorf("UsedCells = %d, want 0", st.UsedCells)
	}

	// Relink works against the fresh grid.
	link(t, s, id)
	got := s.AreaEntities(geom.Vec3{X: -50, Y: -50, Z: -50}, geom.Vec3{X: 50, Y: 50, Z: 50}, MaskAll)
	if len(got) != 1 || got[0] != id {
		t.Errorf("query after relink = %v, want [%d]", got, id)
	}
}
