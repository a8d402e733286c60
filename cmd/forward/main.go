// Command forward renders an HCL render graph recipe into a glfw window.
//
// The shaders under recipes/shaders are GLSL sources; compile them with glslc before
// running a recipe that uses them:
//
//	go generate ./cmd/forward
//	go run ./cmd/forward cmd/forward/recipes/fullscreen.hcl
package main

//go:generate glslc recipes/shaders/fullscreen.vert -o recipes/shaders/fullscreen.vert.spv
//go:generate glslc recipes/shaders/sky.frag -o recipes/shaders/sky.frag.spv
//go:generate glslc recipes/shaders/vignette.frag -o recipes/shaders/vignette.frag.spv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/loov/hrtime"
	vk "github.com/vulkan-go/vulkan"
	"github.com/zclconf/go-cty/cty"

	"github.com/andewx/dieselgraph"
	"github.com/andewx/dieselgraph/graph"
	"github.com/andewx/dieselgraph/internal/cli"
	"github.com/andewx/dieselgraph/internal/ctxlog"
	"github.com/andewx/dieselgraph/recipe"
)

func init() {
	// glfw event handling must run on the main thread.
	runtime.LockOSThread()
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintf(os.Stderr, "forward: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, exit, err := cli.Parse(args, os.Stderr)
	if err != nil || exit {
		return err
	}
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	graph.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = ctxlog.WithLogger(ctx, logger)

	if err := glfw.Init(); err != nil {
		return fmt.Errorf("glfw init: %w", err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	window, err := glfw.CreateWindow(cfg.Width, cfg.Height, "forward", nil, nil)
	if err != nil {
		return fmt.Errorf("create window: %w", err)
	}
	defer window.Destroy()

	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vk.Init(); err != nil {
		return fmt.Errorf("vulkan init: %w", err)
	}

	backend, err := dieselgraph.NewBackend(newDisplay(window, cfg.Validation, logger), cfg.Frames)
	if err != nil {
		return err
	}
	defer backend.Destroy()

	kinds := newKinds(backend, filepath.Dir(cfg.Recipe), logger)
	defer kinds.destroy()

	file, err := recipe.LoadFile(ctx, cfg.Recipe, recipe.Options{
		SwapchainFormat: backend.Swapchain().Format,
		DepthFormat:     backend.DepthFormat(),
		Variables: map[string]cty.Value{
			"debug":  cty.BoolVal(cfg.LogLevel == "debug"),
			"width":  cty.NumberIntVal(int64(cfg.Width)),
			"height": cty.NumberIntVal(int64(cfg.Height)),
		},
		Kinds: kinds.registry(),
	})
	if err != nil {
		return err
	}

	// Flags win over the recipe, which wins over the defaults.
	frames := cfg.Frames
	if frames == 0 {
		frames = file.FramesInFlight
	}
	if frames == 0 {
		frames = graph.DefaultFramesInFlight
	}
	if err := backend.SetFramesInFlight(frames); err != nil {
		return err
	}
	workers := cfg.Workers
	if workers == 0 {
		workers = file.RecordWorkers
	}

	g := graph.New(backend, graph.Config{FramesInFlight: frames, RecordWorkers: workers, Logger: logger})
	if err := g.Init(backend.Swapchain()); err != nil {
		return err
	}
	if err := g.Build(ctx, file.Recipe); err != nil {
		return err
	}
	// Runs before the pipelines and the backend are destroyed.
	defer func() {
		if err := backend.WaitIdle(); err != nil {
			logger.Warn("wait idle before teardown", "error", err)
		}
		g.Destroy()
	}()

	exec := graph.NewExecutor(g, backend)
	window.SetFramebufferSizeCallback(func(_ *glfw.Window, w, h int) {
		logger.Debug("framebuffer resized", "width", w, "height", h)
		exec.Invalidate()
	})

	stats := newFrameStats()
	for !window.ShouldClose() && ctx.Err() == nil {
		glfw.PollEvents()
		if w, h := window.GetFramebufferSize(); w == 0 || h == 0 {
			// Minimized: nothing to present until the window is restored.
			glfw.WaitEvents()
			continue
		}
		start := hrtime.Now()
		res, err := exec.RenderFrame(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			return err
		}
		if res.Skipped {
			continue
		}
		stats.add(hrtime.Now() - start)
		if cfg.MaxFrames > 0 && exec.FrameCount() >= cfg.MaxFrames {
			break
		}
	}
	stats.log(logger)
	return nil
}

type frameStats struct {
	count    int
	total    time.Duration
	min, max time.Duration
}

func newFrameStats() *frameStats {
	return &frameStats{min: time.Duration(1<<63 - 1)}
}

func (s *frameStats) add(d time.Duration) {
	s.count++
	s.total += d
	s.min = min(s.min, d)
	s.max = max(s.max, d)
}

func (s *frameStats) log(logger *slog.Logger) {
	if s.count == 0 {
		logger.Info("no frames rendered")
		return
	}
	logger.Info("frame timing",
		"frames", s.count,
		"avg", s.total/time.Duration(s.count),
		"min", s.min,
		"max", s.max)
}
