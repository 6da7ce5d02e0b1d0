package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmitchellscott/ditherworks/internal/config"
	"github.com/rmitchellscott/ditherworks/internal/dither"
	"github.com/rmitchellscott/ditherworks/internal/masks"
	"github.com/rmitchellscott/ditherworks/internal/pixbuf"
	"github.com/rmitchellscott/ditherworks/internal/workerproto"
	"github.com/rmitchellscott/ditherworks/internal/workers"
)

type recorder struct {
	messages []workerproto.Message
}

func (r *recorder) emit(msg workerproto.Message) {
	r.messages = append(r.messages, msg)
}

func (r *recorder) trace() []string {
	out := make([]string, len(r.messages))
	for i, m := range r.messages {
		out[i] = string(m.Type) + " " + m.ID
	}
	return out
}

func (r *recorder) find(id string, typ workerproto.MessageType) (workerproto.Message, bool) {
	for _, m := range r.messages {
		if m.ID == id && m.Type == typ {
			return m, true
		}
	}
	return workerproto.Message{}, false
}

func gradientJob(w, h int) Job {
	img := pixbuf.NewRGBA(w, h)
	for p, px := range img.AllPixels() {
		v := uint8(255 * p.X / max(w-1, 1))
		px[0], px[1], px[2], px[3] = v, v/2, 255-v, 255
	}
	return Job{ID: "job-1", Source: "gradient", Image: img}
}

func identity(_ context.Context, src *pixbuf.Buffer[float32], _ *Aux) (*pixbuf.Buffer[float32], error) {
	return src.Copy(), nil
}

func TestFutureResolvesOnce(t *testing.T) {
	f := NewFuture[int]()
	assert.False(t, f.Resolved())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.True(t, f.Resolve(1, nil))
	assert.False(t, f.Resolve(2, errors.New("late")))
	assert.True(t, f.Resolved())

	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestFutureWakesWaiters(t *testing.T) {
	f := NewFuture[string]()
	results := make(chan string, 3)
	for i := 0; i < 3; i++ {
		go func() {
			v, _ := f.Wait(context.Background())
			results <- v
		}()
	}
	f.Resolve("mask", nil)
	for i := 0; i < 3; i++ {
		assert.Equal(t, "mask", <-results)
	}
}

func TestAuxTimeout(t *testing.T) {
	aux := NewAux(1, 5*time.Millisecond)
	_, err := aux.BlueNoiseMask(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, ok := aux.BlueNoiseDuration()
	assert.False(t, ok)
}

func TestAuxBayerLevelRange(t *testing.T) {
	aux := NewAux(1, 0)
	aux.BayerLevels.Resolve([]*pixbuf.Gray{pixbuf.NewGray(2, 2)}, nil)

	_, err := aux.BayerLevel(context.Background(), 0)
	require.NoError(t, err)

	_, err = aux.BayerLevel(context.Background(), 1)
	assert.ErrorIs(t, err, pixbuf.ErrPrecondition)
}

func TestDefaultStagesOrder(t *testing.T) {
	opts := OptionsFrom(config.DefaultPipeline())
	opts.BayerLevels = 2

	var ids []string
	for _, s := range DefaultStages(opts) {
		ids = append(ids, s.ID)
	}
	expected := []string{
		"quantized", "random", "bayer-0", "bayer-1",
		"2derrdiff", "floydsteinberg", "jjn", "atkinson", "riemersma", "mybluenoise",
		"blur-spatial", "blur-fft", "library-fs", "color-atkinson", "color-riemersma",
	}
	assert.Equal(t, expected, ids)
}

func TestRiemersmaStagesUseTheirOwnRatios(t *testing.T) {
	opts := OptionsFrom(config.DefaultPipeline())
	require.Equal(t, 1.0/8, opts.RiemersmaRatio)
	require.Equal(t, 1.0/16, opts.ColorRiemersmaRatio)

	stages, err := Select(DefaultStages(opts), []string{"riemersma", "color-riemersma"})
	require.NoError(t, err)
	require.Len(t, stages, 2)

	gray := pixbuf.NewGray(8, 8)
	rgb := pixbuf.NewRGB(8, 8)
	for i := range gray.Data {
		gray.Data[i] = float32(i) / float32(len(gray.Data))
	}
	for i := range rgb.Data {
		rgb.Data[i] = float32(i%97) / 97
	}

	out, err := stages[0].Process(context.Background(), gray.Copy(), nil)
	require.NoError(t, err)
	expected, err := dither.Riemersma(gray.Copy(), dither.NewEvenPalette(opts.Levels), opts.RiemersmaQueue, 1.0/8)
	require.NoError(t, err)
	assert.Equal(t, expected.Data, out.Data)

	out, err = stages[1].Process(context.Background(), rgb.Copy(), nil)
	require.NoError(t, err)
	expected, err = dither.Riemersma(rgb.Copy(), dither.NewFloorPalette(opts.ColorLevels), opts.RiemersmaQueue, 1.0/16)
	require.NoError(t, err)
	assert.Equal(t, expected.Data, out.Data)
}

func TestSelect(t *testing.T) {
	stages := DefaultStages(OptionsFrom(config.DefaultPipeline()))

	tests := []struct {
		name     string
		ids      []string
		expected []string
		wantErr  bool
	}{
		{"keeps declared order", []string{"atkinson", "quantized"}, []string{"quantized", "atkinson"}, false},
		{"duplicates collapse", []string{"jjn", "jjn"}, []string{"jjn"}, false},
		{"unknown stage", []string{"quantized", "sierra"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			selected, err := Select(stages, tt.ids)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			var ids []string
			for _, s := range selected {
				ids = append(ids, s.ID)
			}
			assert.Equal(t, tt.expected, ids)
		})
	}

	all, err := Select(stages, nil)
	require.NoError(t, err)
	assert.Len(t, all, len(stages))
}

func TestRunEmitsInOrderAndContinuesAfterFailure(t *testing.T) {
	stages := []Stage{
		{ID: "first", Title: staticTitle("First"), Process: identity},
		{ID: "broken", Title: staticTitle("Broken"), Process: func(context.Context, *pixbuf.Buffer[float32], *Aux) (*pixbuf.Buffer[float32], error) {
			return nil, errors.New("boom")
		}},
		{ID: "nan", Title: staticTitle("NaN"), Process: func(_ context.Context, src *pixbuf.Buffer[float32], _ *Aux) (*pixbuf.Buffer[float32], error) {
			out := src.Copy()
			zero := float32(0)
			out.Data[0] = zero / zero
			return out, nil
		}},
		{ID: "colored", Title: staticTitle("Colored"), Input: InputColor, Process: identity},
	}

	o := New(stages, NewAux(1, 0))
	var rec recorder
	require.NoError(t, o.Run(context.Background(), gradientJob(4, 2), rec.emit))

	assert.Equal(t, []string{
		"result original",
		"result grayscale",
		"started first",
		"result first",
		"started broken",
		"failed broken",
		"started nan",
		"failed nan",
		"started colored",
		"result colored",
	}, rec.trace())

	original, _ := rec.find(workerproto.IDOriginal, workerproto.TypeResult)
	assert.Equal(t, 3, original.Image.Channels)
	grayscale, _ := rec.find(workerproto.IDGrayscale, workerproto.TypeResult)
	assert.Equal(t, 1, grayscale.Image.Channels)

	broken, _ := rec.find("broken", workerproto.TypeFailed)
	assert.ErrorContains(t, broken.Err, "boom")
	assert.Equal(t, "Broken", broken.Title)

	nan, _ := rec.find("nan", workerproto.TypeFailed)
	assert.ErrorIs(t, nan.Err, pixbuf.ErrNonFinite)

	colored, _ := rec.find("colored", workerproto.TypeResult)
	assert.Equal(t, 3, colored.Image.Channels)
}

func TestRunStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stages := []Stage{
		{ID: "cancel", Title: staticTitle("Cancel"), Process: func(_ context.Context, src *pixbuf.Buffer[float32], _ *Aux) (*pixbuf.Buffer[float32], error) {
			cancel()
			return src.Copy(), nil
		}},
		{ID: "never", Title: staticTitle("Never"), Process: identity},
	}

	var rec recorder
	err := New(stages, NewAux(1, 0)).Run(ctx, gradientJob(2, 2), rec.emit)
	assert.ErrorIs(t, err, context.Canceled)
	_, started := rec.find("never", workerproto.TypeStarted)
	assert.False(t, started)
}

func TestRunRejectsEmptyImage(t *testing.T) {
	err := New(nil, NewAux(1, 0)).Run(context.Background(), Job{ID: "empty"}, func(workerproto.Message) {})
	assert.ErrorIs(t, err, pixbuf.ErrPrecondition)
}

func TestPostResolvesAuxAndRoutesReplies(t *testing.T) {
	o := New(nil, NewAux(1, 0))
	mask := pixbuf.NewGray(2, 2)

	require.NoError(t, o.Post(workerproto.Message{ID: workerproto.IDBlueNoise, Type: workerproto.TypeResult, Mask: mask, Duration: 1500 * time.Microsecond}))
	got, err := o.Aux().BlueNoiseMask(context.Background())
	require.NoError(t, err)
	assert.Same(t, mask, got)
	assert.Equal(t, "Blue Noise (1.5ms)", blueNoiseTitle(o.Aux()))

	require.NoError(t, o.Post(workerproto.Message{ID: workerproto.IDBayerLevels, Type: workerproto.TypeFailed, Err: errors.New("no bayer")}))
	_, err = o.Aux().BayerLevel(context.Background(), 0)
	assert.ErrorContains(t, err, "no bayer")

	require.NoError(t, o.Post(workerproto.Message{ID: "abc", Type: workerproto.TypeResult}))
	reply, err := o.Replies().Wait(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", reply.ID)
}

func TestBlueNoiseTitleBeforeMask(t *testing.T) {
	assert.Equal(t, "Blue Noise (takes a bit...)", blueNoiseTitle(NewAux(1, 0)))
}

func TestDefaultPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bayer := workers.NewBayerWorker(8)
	go bayer.Run(ctx)

	opts := OptionsFrom(config.DefaultPipeline())
	o := New(DefaultStages(opts), NewAux(42, 5*time.Second))
	defer o.Close()

	o.RequestBayerLevels(ctx, bayer, opts.BayerLevels)
	mask, err := masks.NewBayerCache().Normalized(2)
	require.NoError(t, err)
	require.NoError(t, o.Post(workerproto.Message{ID: workerproto.IDBlueNoise, Type: workerproto.TypeResult, Mask: mask, Duration: 2 * time.Millisecond}))

	var rec recorder
	require.NoError(t, o.Run(ctx, gradientJob(13, 7), rec.emit))

	for _, m := range rec.messages {
		require.NotEqual(t, workerproto.TypeFailed, m.Type, "stage %s failed: %v", m.ID, m.Err)
	}
	// Two leading results plus started/result for each stage
	assert.Len(t, rec.messages, 2+2*len(o.Stages()))

	for _, id := range []string{"quantized", "floydsteinberg", "riemersma", "mybluenoise", "bayer-3"} {
		res, ok := rec.find(id, workerproto.TypeResult)
		require.True(t, ok, id)
		assert.Equal(t, 13, res.Image.Width)
		for _, v := range res.Image.Data {
			require.True(t, v == 0 || v == 1, "%s produced %v", id, v)
		}
	}

	bn, _ := rec.find("mybluenoise", workerproto.TypeResult)
	assert.True(t, strings.HasPrefix(bn.Title, "Blue Noise (2.0ms)"))

	blurred, _ := rec.find("blur-fft", workerproto.TypeResult)
	assert.Equal(t, 7, blurred.Image.Height)
}
