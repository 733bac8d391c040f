package main

import (
	"flag"
	"log"
	"time"

	"github.com/gekko3d/lgh"
	"github.com/gekko3d/lgh/lghrt/rt/aggregate"
	"github.com/gekko3d/lgh/lghrt/rt/gpu"
	"github.com/gekko3d/lgh/lghrt/rt/preview"
)

func main() {
	numVPLs := flag.Int("n", 200000, "Number of VPLs per frame")
	frames := flag.Int("frames", 10, "Number of frames to run")
	configPath := flag.String("config", "", "JSON config file")
	source := flag.String("source", "", "Build source: pointcloud or finer")
	footprint := flag.String("footprint", "", "Splat footprint: trilinear or nearest")
	rate := flag.Int("rate", 0, "Interleave rate (1, 2 or 4)")
	level0 := flag.Bool("level0", false, "Include the raw VPLs as level 0")
	animate := flag.Bool("animate", false, "Move the light every frame")
	cycleRate := flag.Bool("cycle-rate", false, "Cycle the interleave rate every frame")
	useGPU := flag.Bool("gpu", false, "Upload every published hierarchy to a headless WebGPU device")
	previewPath := flag.String("preview", "", "Write a PNG preview of the last hierarchy")
	debug := flag.Bool("debug", false, "Enable debug logging and per-frame timings")
	flag.Parse()

	logger := lgh.NewDefaultLogger("lgh", *debug)

	cfg := lgh.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = lgh.LoadConfig(*configPath); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	if *source != "" {
		s, err := lgh.ParseBuildSource(*source)
		if err != nil {
			log.Fatal(err)
		}
		cfg.BuildSource = s
	}
	if *footprint != "" {
		fp, err := aggregate.ParseFootprint(*footprint)
		if err != nil {
			log.Fatal(err)
		}
		cfg.Footprint = fp
	}
	if *rate != 0 {
		cfg.InterleaveRate = *rate
	}
	if *level0 {
		cfg.IncludeLevelZero = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	var uploader *gpu.Uploader
	if *useGPU {
		dev, err := gpu.NewHeadlessDevice()
		if err != nil {
			log.Fatalf("webgpu: %v", err)
		}
		defer dev.Release()
		uploader = gpu.NewUploader(dev.Device)
		defer uploader.Release()
	}

	gen := NewVPLGenerator(*numVPLs, 1)
	h := lgh.NewHierarchy(logger.Named("build"))
	gpuLog := logger.Named("gpu")
	rates := []int{1, 2, 4}

	for frame := 0; frame < *frames; frame++ {
		vplsUpdated := frame == 0 || *animate
		f := lgh.Frame{NumVPLs: *numVPLs, VPLsUpdated: vplsUpdated}
		if vplsUpdated {
			f.Cloud = gen.Generate(*numVPLs, frame)
		} else {
			f.Cloud = gen.cloud
		}
		if *cycleRate {
			cfg.InterleaveRate = rates[frame%len(rates)]
		}

		start := time.Now()
		updated, err := h.CheckUpdate(f, cfg)
		if err != nil {
			log.Fatalf("frame %d: %v", frame, err)
		}
		if !updated {
			continue
		}
		logger.Infof("frame %d: %s in %v", frame, h.Current(), time.Since(start))

		if uploader != nil {
			err := h.View(func(s *lgh.Snapshot) {
				recreated, err := uploader.Upload(s.Instances, gpu.Tables{
					OffsetOfTile:      s.OffsetOfTile,
					NumInstanceOfTile: s.NumInstanceOfTile,
					LevelOffsetOfTile: s.LevelOffsetOfTile,
				}, gpu.Params{
					NumInstances:   s.NumInstances,
					HighestLevel:   s.HighestLevel,
					InterleaveRate: s.InterleaveRate,
					BaseRadius:     s.BaseRadius,
					Corner:         s.Cube.Corner,
					Size:           s.Cube.Size,
				})
				if err != nil {
					log.Fatalf("upload: %v", err)
				}
				if recreated {
					gpuLog.Debugf("buffers recreated (%d allocations)", uploader.Allocations)
				}
			})
			if err != nil {
				log.Fatal(err)
			}
		}
		if logger.DebugEnabled() {
			logger.Debugf("\n%s", h.Profiler.GetStatsString())
		}
	}

	if *previewPath != "" {
		err := h.View(func(s *lgh.Snapshot) {
			if err := preview.WritePNG(*previewPath, s, preview.DefaultOptions()); err != nil {
				log.Fatalf("preview: %v", err)
			}
		})
		if err != nil {
			log.Fatal(err)
		}
		logger.Named("preview").Infof("wrote %s", *previewPath)
	}
}
