package orchestrator

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-life/engine/camera"
	"github.com/Carmen-Shannon/oxy-life/engine/grid"
	"github.com/Carmen-Shannon/oxy-life/engine/presenter"
	"github.com/Carmen-Shannon/oxy-life/engine/renderer"
	"github.com/Carmen-Shannon/oxy-life/engine/simulation"
)

type fixture struct {
	r       renderer.Renderer
	sw      renderer.SoftwareBackend
	buffers grid.GridBuffers
	pr      presenter.Presenter
	seed    grid.Seed
	o       Orchestrator
}

func blinkerSeed() grid.Seed {
	blinker, _ := grid.MotifByName("blinker")
	return grid.NewSeed(8, 8, grid.SeedPattern(8, 8, blinker, grid.Tiling{CountX: 1, CountY: 1, OffsetX: 3, OffsetY: 3}))
}

func newFixture(t *testing.T, options ...OrchestratorBuilderOption) *fixture {
	t.Helper()
	r, err := renderer.NewRenderer(renderer.BackendTypeSoftware, nil, renderer.WithSurfaceSize(8, 8), renderer.WithComputeWorkers(2))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(r.Release)

	seed := blinkerSeed()
	buffers, err := grid.New(r, seed.Width(), seed.Height())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(buffers.Release)
	step, err := simulation.New(r, seed.Width(), seed.Height())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(step.Release)
	pr, err := presenter.New(r, presenter.QuadGeometry())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pr.Release)
	cam := camera.NewCamera(camera.WithController(camera.NewCameraController()))

	o, err := New(r, buffers, step, pr, cam, seed, options...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{r: r, sw: r.Backend().(renderer.SoftwareBackend), buffers: buffers, pr: pr, seed: seed, o: o}
}

func (f *fixture) frame(t *testing.T, events ...Event) FrameResult {
	t.Helper()
	for _, ev := range events {
		f.o.Events().Push(ev)
	}
	res, err := f.o.Frame(1.0 / 60)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	return res
}

func TestNewSeedsAndStartsPaused(t *testing.T) {
	f := newFixture(t)
	if f.o.Mode() != ModePaused || f.o.Parity() != false || f.o.Generation() != 0 {
		t.Fatalf("mode %s parity %s generation %d", f.o.Mode(), f.o.Parity(), f.o.Generation())
	}
	for _, p := range []grid.Parity{false, true} {
		s, err := f.buffers.Read(p)
		if err != nil {
			t.Fatal(err)
		}
		if !s.Equal(f.seed) {
			t.Fatalf("buffer %s does not hold the seed", p)
		}
	}

	res := f.frame(t)
	if res.Stepped || !res.Rendered {
		t.Fatalf("paused frame: %+v", res)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(nil, nil, nil, nil, nil, grid.Seed{}); err == nil {
		t.Fatal("expected an error")
	}
}

func TestSingleStepArmsOneStep(t *testing.T) {
	f := newFixture(t)

	res := f.frame(t, Event{Kind: EventSingleStep})
	if !res.Stepped || res.Parity != true || res.Generation != 1 {
		t.Fatalf("single step: %+v", res)
	}
	if res = f.frame(t); res.Stepped {
		t.Fatal("stepped again without a new event")
	}

	f.frame(t, Event{Kind: EventSingleStep})
	s, err := f.buffers.Read(f.o.Parity())
	if err != nil {
		t.Fatal(err)
	}
	if !s.Equal(f.seed) {
		t.Fatal("blinker did not return after two single steps")
	}
}

func TestSteppedFramePresentsNewGeneration(t *testing.T) {
	f := newFixture(t)

	res := f.frame(t, Event{Kind: EventSingleStep})
	if !res.Stepped || res.Parity != true {
		t.Fatalf("single step: %+v", res)
	}
	shown := f.sw.Framebuffer()
	if shown == nil {
		t.Fatal("nothing presented")
	}

	// The camera uniform is left as the frame set it.
	if err := f.pr.Render(f.buffers, res.Parity); err != nil {
		t.Fatal(err)
	}
	if want := f.sw.Framebuffer(); !bytes.Equal(shown.Pix, want.Pix) {
		t.Fatal("presented frame differs from the buffer the step wrote")
	}
	if err := f.pr.Render(f.buffers, res.Parity.Flip()); err != nil {
		t.Fatal(err)
	}
	if stale := f.sw.Framebuffer(); bytes.Equal(shown.Pix, stale.Pix) {
		t.Fatal("presented frame shows the previous generation")
	}
}

func TestRunModes(t *testing.T) {
	tests := []struct {
		name   string
		events []Event
		want   Mode
	}{
		{"toggle runs", []Event{{Kind: EventToggleRun}}, ModeRunning},
		{"toggle twice pauses", []Event{{Kind: EventToggleRun}, {Kind: EventToggleRun}}, ModePaused},
		{"run start", []Event{{Kind: EventRunStart}}, ModeRunning},
		{"run start then stop", []Event{{Kind: EventRunStart}, {Kind: EventRunStop}}, ModePaused},
		{"unknown event ignored", []Event{{Kind: EventKind(99)}}, ModePaused},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			res := f.frame(t, tt.events...)
			if f.o.Mode() != tt.want {
				t.Fatalf("mode = %s, want %s", f.o.Mode(), tt.want)
			}
			if res.Stepped != (tt.want == ModeRunning) {
				t.Fatalf("stepped = %v in mode %s", res.Stepped, tt.want)
			}
		})
	}
}

func TestRunningStepsEveryFrame(t *testing.T) {
	f := newFixture(t, WithInitialMode(ModeRunning))
	for i := 1; i <= 5; i++ {
		res := f.frame(t)
		if !res.Stepped || res.Generation != uint64(i) {
			t.Fatalf("frame %d: %+v", i, res)
		}
		if res.Parity != grid.Parity(i%2 == 1) {
			t.Fatalf("frame %d: parity %s", i, res.Parity)
		}
	}
}

func TestExitMarksDone(t *testing.T) {
	f := newFixture(t, WithInitialMode(ModeRunning))
	res := f.frame(t, Event{Kind: EventExit})
	if !f.o.Done() || res.Stepped || res.Rendered {
		t.Fatalf("exit frame: %+v done=%v", res, f.o.Done())
	}
	if res = f.frame(t); res.Stepped || res.Rendered {
		t.Fatal("frame ran after exit")
	}
}

func TestEventsAfterExitAreIgnored(t *testing.T) {
	f := newFixture(t)
	f.frame(t, Event{Kind: EventExit}, Event{Kind: EventToggleRun})
	if !f.o.Done() || f.o.Mode() != ModePaused {
		t.Fatalf("done %v mode %s", f.o.Done(), f.o.Mode())
	}
}

func TestEventsAfterFailedEventAreKept(t *testing.T) {
	f := newFixture(t)
	f.sw.InjectFault(renderer.FaultReconfigure)
	f.o.Events().Push(Resize(4, 4))
	f.o.Events().Push(Event{Kind: EventToggleRun})
	if _, err := f.o.Frame(0); !errors.Is(err, ErrFatal) {
		t.Fatalf("err = %v, want ErrFatal", err)
	}
	if f.o.Mode() != ModePaused {
		t.Fatal("event after the failed resize was applied in the same frame")
	}

	f.sw.ClearFault(renderer.FaultReconfigure)
	res := f.frame(t)
	if f.o.Mode() != ModeRunning || !res.Stepped {
		t.Fatalf("kept toggle was not applied: mode %s %+v", f.o.Mode(), res)
	}
}

func TestSurfaceLostSkipsFrameAndRecovers(t *testing.T) {
	f := newFixture(t)
	f.frame(t)
	presented := f.sw.PresentCount()

	f.sw.InjectFault(renderer.FaultSurfaceLost)
	res := f.frame(t)
	if !res.Skipped || res.Rendered {
		t.Fatalf("lost frame: %+v", res)
	}
	if f.sw.PresentCount() != presented {
		t.Fatal("a frame was presented on a lost surface")
	}

	if res = f.frame(t); !res.Rendered {
		t.Fatalf("frame after reconfigure: %+v", res)
	}
	if w, h := f.r.SurfaceSize(); w != 8 || h != 8 {
		t.Fatalf("surface reconfigured to %dx%d, want the last size 8x8", w, h)
	}
}

func TestReconfigureFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.sw.InjectFault(renderer.FaultSurfaceLost)
	f.sw.InjectFault(renderer.FaultReconfigure)
	if _, err := f.o.Frame(0); !errors.Is(err, ErrFatal) {
		t.Fatalf("err = %v, want ErrFatal", err)
	}
}

func TestDispatchFailuresEscalateAfterBudget(t *testing.T) {
	f := newFixture(t, WithInitialMode(ModeRunning), WithMaxConsecutiveFailures(3))

	f.sw.InjectFault(renderer.FaultDispatch)
	for i := 1; i <= 2; i++ {
		res, err := f.o.Frame(0)
		if err != nil {
			t.Fatalf("failure %d escalated early: %v", i, err)
		}
		if !errors.Is(res.StepErr, renderer.ErrDispatchFailed) || res.Parity != false || !res.Rendered {
			t.Fatalf("failure %d: %+v", i, res)
		}
	}

	// one success resets the budget
	f.sw.ClearFault(renderer.FaultDispatch)
	if res := f.frame(t); !res.Stepped || f.o.Failures() != 0 {
		t.Fatalf("recovery frame: %+v failures=%d", res, f.o.Failures())
	}

	f.sw.InjectFault(renderer.FaultDeviceLost)
	for i := 1; i <= 2; i++ {
		if _, err := f.o.Frame(0); err != nil {
			t.Fatalf("device loss %d escalated early: %v", i, err)
		}
	}
	_, err := f.o.Frame(0)
	if !errors.Is(err, ErrFatal) || !errors.Is(err, renderer.ErrDeviceLost) {
		t.Fatalf("err = %v, want ErrFatal wrapping ErrDeviceLost", err)
	}
	if f.o.Parity() != true || f.o.Generation() != 1 {
		t.Fatalf("parity %s generation %d changed by failed steps", f.o.Parity(), f.o.Generation())
	}
}

func TestRenderFailuresEscalateAfterBudget(t *testing.T) {
	f := newFixture(t, WithInitialMode(ModeRunning), WithMaxConsecutiveFailures(3))
	f.sw.InjectFault(renderer.FaultDraw)

	for i := 1; i <= 2; i++ {
		res, err := f.o.Frame(0)
		if !errors.Is(err, renderer.ErrDrawFailed) || errors.Is(err, ErrFatal) {
			t.Fatalf("frame %d: err = %v, want a recoverable draw error", i, err)
		}
		if !errors.Is(res.RenderErr, renderer.ErrDrawFailed) || !res.Stepped || res.Generation != uint64(i) {
			t.Fatalf("frame %d: %+v", i, res)
		}
	}

	f.sw.ClearFault(renderer.FaultDraw)
	if res := f.frame(t); !res.Rendered {
		t.Fatalf("recovered frame: %+v", res)
	}

	f.sw.InjectFault(renderer.FaultDraw)
	for i := 1; i <= 2; i++ {
		if _, err := f.o.Frame(0); errors.Is(err, ErrFatal) {
			t.Fatalf("frame %d after recovery: budget was not reset", i)
		}
	}
	_, err := f.o.Frame(0)
	if !errors.Is(err, ErrFatal) || !errors.Is(err, renderer.ErrDrawFailed) {
		t.Fatalf("err = %v, want ErrFatal wrapping ErrDrawFailed", err)
	}
}

func TestAccessorsDoNotWaitForFrame(t *testing.T) {
	f := newFixture(t, WithInitialMode(ModeRunning))
	f.frame(t)

	impl := f.o.(*orchestrator)
	impl.mu.Lock()
	defer impl.mu.Unlock()

	got := make(chan uint64, 1)
	go func() {
		if f.o.Mode() == ModeRunning {
			got <- f.o.Generation()
		} else {
			got <- 0
		}
	}()
	select {
	case g := <-got:
		if g != 1 {
			t.Fatalf("generation = %d, want 1", g)
		}
	case <-time.After(time.Second):
		t.Fatal("Generation and Mode blocked on the frame lock")
	}
}

func TestResizeLeavesSimulationAlone(t *testing.T) {
	f := newFixture(t)
	f.frame(t, Event{Kind: EventSingleStep})
	before, err := f.buffers.Read(f.o.Parity())
	if err != nil {
		t.Fatal(err)
	}

	res := f.frame(t, Resize(0, 0))
	if !res.Skipped || res.Rendered {
		t.Fatalf("minimised frame: %+v", res)
	}
	res = f.frame(t, Resize(20, 10))
	if !res.Rendered {
		t.Fatalf("restored frame: %+v", res)
	}
	if b := f.sw.Framebuffer().Bounds(); b.Dx() != 20 || b.Dy() != 10 {
		t.Fatalf("framebuffer %v", b)
	}

	after, err := f.buffers.Read(f.o.Parity())
	if err != nil {
		t.Fatal(err)
	}
	if f.o.Parity() != true || f.buffers.Width() != 8 || !after.Equal(before) {
		t.Fatal("resize changed the simulation")
	}
}

func TestResizeFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.sw.InjectFault(renderer.FaultReconfigure)
	f.o.Events().Push(Resize(4, 4))
	if _, err := f.o.Frame(0); !errors.Is(err, ErrFatal) {
		t.Fatalf("err = %v, want ErrFatal", err)
	}
}

func TestResetReseeds(t *testing.T) {
	f := newFixture(t, WithInitialMode(ModeRunning))
	f.frame(t)
	f.frame(t)
	f.frame(t)
	if f.o.Generation() != 3 {
		t.Fatalf("generation = %d", f.o.Generation())
	}

	f.o.Events().Push(Event{Kind: EventReset})
	f.o.Events().Push(Event{Kind: EventRunStop})
	res := f.frame(t)
	if res.Parity != false || res.Generation != 0 || res.Stepped {
		t.Fatalf("after reset: %+v", res)
	}
	s, err := f.buffers.Read(false)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Equal(f.seed) {
		t.Fatal("current buffer does not hold the seed after reset")
	}
}

func TestGenerationLimit(t *testing.T) {
	t.Run("pauses", func(t *testing.T) {
		f := newFixture(t, WithInitialMode(ModeRunning), WithGenerationLimit(3))
		for i := 0; i < 5; i++ {
			f.frame(t)
		}
		if f.o.Generation() != 3 || f.o.Mode() != ModePaused || f.o.Done() {
			t.Fatalf("generation %d mode %s done %v", f.o.Generation(), f.o.Mode(), f.o.Done())
		}
	})
	t.Run("exits", func(t *testing.T) {
		f := newFixture(t, WithInitialMode(ModeRunning), WithGenerationLimit(2), WithExitOnLimit(true))
		for !f.o.Done() {
			f.frame(t)
			if f.o.Generation() > 2 {
				t.Fatal("ran past the limit")
			}
		}
		if f.o.Generation() != 2 {
			t.Fatalf("generation = %d, want 2", f.o.Generation())
		}
	})
}

func TestEventQueueDropsWhenFull(t *testing.T) {
	q := NewEventQueue(1)
	if !q.Push(Event{Kind: EventSingleStep}) {
		t.Fatal("first push dropped")
	}
	if q.Push(Event{Kind: EventExit}) {
		t.Fatal("push into a full queue succeeded")
	}
	events := q.drain()
	if len(events) != 1 || events[0].Kind != EventSingleStep || q.Len() != 0 {
		t.Fatalf("drained %v", events)
	}
}

func TestEventKindString(t *testing.T) {
	if EventResize.String() != "resize" || EventKind(42).String() != "EventKind(42)" {
		t.Fatal("unexpected names")
	}
}
