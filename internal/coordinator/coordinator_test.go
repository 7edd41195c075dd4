package coordinator

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/cuecam/internal/command"
	"github.com/lexiqai/cuecam/internal/listener"
)

type fakeController struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeController) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeController) StartListening(ctx command.Context) { f.record("start:" + ctx.String()) }
func (f *fakeController) StopListening()                     { f.record("stop") }
func (f *fakeController) HandleBackground(bg bool) {
	if bg {
		f.record("background")
	} else {
		f.record("foreground")
	}
}

func (f *fakeController) take() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := f.calls
	f.calls = nil
	return calls
}

type fakeCamera struct {
	mu      sync.Mutex
	actions []string
	failOn  string
}

func (c *fakeCamera) do(action string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = append(c.actions, action)
	if action == c.failOn {
		return errors.New("camera busy")
	}
	return nil
}

func (c *fakeCamera) StartRecording(context.Context) error   { return c.do("start") }
func (c *fakeCamera) StopRecording(context.Context) error    { return c.do("stop") }
func (c *fakeCamera) SaveRecording(context.Context) error    { return c.do("save") }
func (c *fakeCamera) DiscardRecording(context.Context) error { return c.do("discard") }

type cueRecorder struct{ cues []Cue }

func (r *cueRecorder) Cue(c Cue) { r.cues = append(r.cues, c) }

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeController, *fakeCamera, *cueRecorder) {
	ctrl := &fakeController{}
	cam := &fakeCamera{}
	cues := &cueRecorder{}
	c := New(ctrl, cam, cues, Config{Logger: zerolog.Nop()})
	t.Cleanup(c.Close)
	return c, ctrl, cam, cues
}

// send delivers a command and waits for its camera action to finish
func send(c *Coordinator, e command.Event) {
	c.Command(e)
	c.flush()
}

func event(token command.Token, ctx command.Context) command.Event {
	return command.Event{Token: token, Context: ctx, Generation: 1}
}

func TestCoordinator_RecordingCycle(t *testing.T) {
	c, ctrl, cam, _ := newTestCoordinator(t)

	c.Arm()
	if got := ctrl.take(); !reflect.DeepEqual(got, []string{"start:camera"}) {
		t.Errorf("Expected camera arm, got %v", got)
	}

	send(c, event(command.Start, command.Camera))
	if got := ctrl.take(); !reflect.DeepEqual(got, []string{"stop", "start:camera"}) {
		t.Errorf("Expected stop then camera re-arm after start, got %v", got)
	}
	if !c.Recording() {
		t.Error("Expected recording after start")
	}

	send(c, event(command.Stop, command.Camera))
	if got := ctrl.take(); !reflect.DeepEqual(got, []string{"stop", "start:save_dialog"}) {
		t.Errorf("Expected save dialog arm after stop, got %v", got)
	}
	if c.Context() != command.SaveDialog {
		t.Errorf("Expected save dialog context, got %v", c.Context())
	}

	send(c, event(command.Yes, command.SaveDialog))
	if got := ctrl.take(); !reflect.DeepEqual(got, []string{"stop", "start:camera"}) {
		t.Errorf("Expected camera re-arm after yes, got %v", got)
	}

	if want := []string{"start", "stop", "save"}; !reflect.DeepEqual(cam.actions, want) {
		t.Errorf("Expected camera actions %v, got %v", want, cam.actions)
	}
}

func TestCoordinator_Discard(t *testing.T) {
	c, _, cam, _ := newTestCoordinator(t)

	send(c, event(command.Start, command.Camera))
	send(c, event(command.Stop, command.Camera))
	send(c, event(command.No, command.SaveDialog))

	if want := []string{"start", "stop", "discard"}; !reflect.DeepEqual(cam.actions, want) {
		t.Errorf("Expected camera actions %v, got %v", want, cam.actions)
	}
	if c.Context() != command.Camera {
		t.Errorf("Expected camera context after dialog, got %v", c.Context())
	}
}

func TestCoordinator_IgnoresOutOfPlaceCommands(t *testing.T) {
	c, ctrl, cam, _ := newTestCoordinator(t)

	send(c, event(command.Stop, command.Camera))    // not recording
	send(c, event(command.Yes, command.SaveDialog)) // dialog not open
	send(c, event(command.Start, command.Camera))   // accepted
	ctrl.take()
	send(c, event(command.Start, command.Camera)) // already recording

	if got := ctrl.take(); len(got) != 0 {
		t.Errorf("Expected no listener calls, got %v", got)
	}
	if want := []string{"start"}; !reflect.DeepEqual(cam.actions, want) {
		t.Errorf("Expected only one camera action, got %v", cam.actions)
	}
}

func TestCoordinator_CameraFailureStillRearms(t *testing.T) {
	c, ctrl, cam, _ := newTestCoordinator(t)
	cam.failOn = "start"

	send(c, event(command.Start, command.Camera))
	if c.Recording() {
		t.Error("Expected not recording after a failed start")
	}
	if got := ctrl.take(); !reflect.DeepEqual(got, []string{"stop", "start:camera"}) {
		t.Errorf("Expected re-arm after failure, got %v", got)
	}
}

func TestCoordinator_BackgroundDefersRearm(t *testing.T) {
	c, ctrl, _, _ := newTestCoordinator(t)

	send(c, event(command.Start, command.Camera))
	c.Background()
	ctrl.take()

	send(c, event(command.Stop, command.Camera))
	if got := ctrl.take(); !reflect.DeepEqual(got, []string{"stop"}) {
		t.Errorf("Expected no re-arm while backgrounded, got %v", got)
	}

	c.Foreground()
	if got := ctrl.take(); !reflect.DeepEqual(got, []string{"foreground", "start:save_dialog"}) {
		t.Errorf("Expected foreground to re-arm the save dialog, got %v", got)
	}
}

func TestCoordinator_StatusCues(t *testing.T) {
	c, _, _, cues := newTestCoordinator(t)

	c.StatusChanged(listener.Status{State: listener.Starting})
	c.StatusChanged(listener.Status{State: listener.Listening})
	c.StatusChanged(listener.Status{State: listener.Listening, Generation: 2})
	c.StatusChanged(listener.Status{State: listener.Erroring, ErrorMessage: "No speech detected"})
	c.StatusChanged(listener.Status{State: listener.Erroring, Terminal: true, ErrorMessage: "denied"})
	c.StatusChanged(listener.Status{State: listener.Erroring, Terminal: true, ErrorMessage: "denied", Suspended: true})

	want := []Cue{CueReady, CueFailed}
	if !reflect.DeepEqual(cues.cues, want) {
		t.Errorf("Expected cues %v, got %v", want, cues.cues)
	}
}

func TestBellFeedback(t *testing.T) {
	var buf bytes.Buffer
	bell := NewBellFeedback(&buf)

	bell.Cue(CueReady)
	bell.Cue(CueCommand)
	bell.Cue(CueFailed)

	if got := buf.String(); got != "\a\a\a" {
		t.Errorf("Expected three bells, got %q", got)
	}
}

func TestLogCamera(t *testing.T) {
	cam := NewLogCamera(zerolog.Nop())
	ctx := context.Background()

	if err := cam.StopRecording(ctx); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Expected ErrNotRecording, got %v", err)
	}
	if err := cam.SaveRecording(ctx); !errors.Is(err, ErrNothingToSave) {
		t.Errorf("Expected ErrNothingToSave, got %v", err)
	}

	for _, step := range []func(context.Context) error{cam.StartRecording, cam.StopRecording, cam.SaveRecording} {
		if err := step(ctx); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	if saved := cam.Saved(); len(saved) != 1 || saved[0] == "" {
		t.Errorf("Expected one saved take, got %v", saved)
	}
}

type gatedCamera struct {
	fakeCamera
	entered chan struct{}
	release chan struct{}
}

func (g *gatedCamera) StartRecording(ctx context.Context) error {
	close(g.entered)
	select {
	case <-g.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return g.do("start")
}

func TestCoordinator_SlowCameraDoesNotBlockCallbacks(t *testing.T) {
	ctrl := &fakeController{}
	cam := &gatedCamera{entered: make(chan struct{}), release: make(chan struct{})}
	cues := &cueRecorder{}
	c := New(ctrl, cam, cues, Config{Logger: zerolog.Nop(), CameraTimeout: 5 * time.Second})
	t.Cleanup(c.Close)

	c.Command(event(command.Start, command.Camera))
	select {
	case <-cam.entered:
	case <-time.After(time.Second):
		t.Fatal("Expected the camera action to start")
	}

	returned := make(chan struct{})
	go func() {
		c.StatusChanged(listener.Status{State: listener.Idle})
		c.Command(event(command.Stop, command.Camera))
		c.Foreground()
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Expected callbacks to return while the camera is busy")
	}

	if got := ctrl.take(); !reflect.DeepEqual(got, []string{"stop", "foreground"}) {
		t.Errorf("Expected no re-arm while the action runs, got %v", got)
	}

	close(cam.release)
	c.flush()

	if !c.Recording() {
		t.Error("Expected recording once the camera finished")
	}
	if got := ctrl.take(); !reflect.DeepEqual(got, []string{"start:camera"}) {
		t.Errorf("Expected camera re-arm after the action, got %v", got)
	}
	if want := []string{"start"}; !reflect.DeepEqual(cam.actions, want) {
		t.Errorf("Expected the overlapping command to be ignored, got %v", cam.actions)
	}
	if want := []Cue{CueCommand}; !reflect.DeepEqual(cues.cues, want) {
		t.Errorf("Expected cues %v, got %v", want, cues.cues)
	}
}
