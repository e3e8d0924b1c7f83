package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang/glog"
	_ "github.com/lib/pq"
	"github.com/peterbourgon/ff/v3"
	"golang.org/x/sync/errgroup"

	"github.com/videomoments/pipeline/concurrency"
	"github.com/videomoments/pipeline/config"
	"github.com/videomoments/pipeline/connector"
	"github.com/videomoments/pipeline/inference"
	"github.com/videomoments/pipeline/jobtracker"
	"github.com/videomoments/pipeline/kv"
	"github.com/videomoments/pipeline/mediatools"
	"github.com/videomoments/pipeline/metrics"
	"github.com/videomoments/pipeline/modelconfig"
	"github.com/videomoments/pipeline/objectstore"
	"github.com/videomoments/pipeline/orchestrator"
	"github.com/videomoments/pipeline/pprof"
	"github.com/videomoments/pipeline/repository"
	"github.com/videomoments/pipeline/stages"
	"github.com/videomoments/pipeline/statestore"
	"github.com/videomoments/pipeline/transcription"
	"github.com/videomoments/pipeline/tunnel"
	"github.com/videomoments/pipeline/worker"

	"github.com/redis/go-redis/v9"
)

func main() {
	if err := flag.Set("logtostderr", "true"); err != nil {
		glog.Fatal(err)
	}
	vFlag := flag.Lookup("v")
	fs := flag.NewFlagSet("pipeline-worker", flag.ExitOnError)
	cli := config.Cli{}

	version := fs.Bool("version", false, "print application version")
	verbosity := fs.String("v", "", "Log verbosity. {4|5|6}")
	pprofPort := fs.Int("pprof-port", 6061, "Pprof listen port")
	_ = fs.String("config", "", "config file (optional)")

	fs.StringVar(&cli.RedisURL, "redis-url", "redis://127.0.0.1:6379/0", "Redis connection URL used for state, locks, streams, and job tracking")
	fs.StringVar(&cli.PostgresDSN, "postgres-dsn", "", "Postgres connection string for the video/transcript/moment/generation-config tables")
	fs.StringVar(&cli.WorkerID, "worker-id", "", "Override the consumer name advertised to the stream's consumer group; defaults to the container hostname")
	fs.IntVar(&cli.PromPort, "prom-port", 9090, "Prometheus metrics listen port")
	fs.StringVar(&cli.ObjectStoreBucket, "object-store-bucket", config.ObjectStoreBucket, "Base os:// URL (gs://bucket or s3://bucket) source videos, audio, and clips are staged under")
	fs.StringVar(&cli.StagingDir, "staging-dir", config.StagingDir, "Local scratch directory for downloads, extracted audio, and cut clips")
	fs.DurationVar(&cli.LockTTL, "lock-ttl", config.LockTTL, "Per-video run lock TTL (parsed but not applied; the lock TTL is the config.LockTTL constant)")
	fs.IntVar(&cli.HistoryMaxRuns, "history-max-runs", config.HistoryMaxRuns, "Maximum archived runs retained per video (parsed but not applied; the limit is the config.HistoryMaxRuns constant)")
	fs.Int64Var(&cli.AudioLimit, "audio-extraction-limit", config.AudioExtractionLimit, "Global concurrent audio-extraction limit")
	fs.Int64Var(&cli.TranscriptionLimit, "transcription-limit", config.TranscriptionLimit, "Global concurrent transcription-call limit")
	fs.Int64Var(&cli.GenerationLimit, "generation-limit", config.GenerationLimit, "Global concurrent moment-generation-call limit")
	fs.Int64Var(&cli.ClipLimit, "clip-extraction-limit", config.ClipExtractionLimit, "Global concurrent clip-extraction limit")
	fs.Int64Var(&cli.RefinementLimit, "refinement-limit", config.RefinementLimit, "Global concurrent refinement-call limit")
	ffmpegPath := fs.String("ffmpeg-path", "ffmpeg", "Path to the ffmpeg binary used for audio extraction and clip cutting")

	err := ff.Parse(fs, os.Args[1:],
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		ff.WithEnvVarPrefix("PIPELINE"),
	)
	if err != nil {
		glog.Fatalf("error parsing cli: %s", err)
	}
	if len(fs.Args()) > 0 {
		glog.Fatalf("unexpected extra arguments on command line: %v", fs.Args())
	}

	if *version {
		fmt.Printf("pipeline-worker version: %s", config.Version)
		return
	}

	go func() {
		log.Println(pprof.ListenAndServe(*pprofPort))
	}()
	go func() {
		log.Println(metrics.ListenAndServe(cli.PromPort))
	}()

	if *verbosity != "" {
		if err := vFlag.Value.Set(*verbosity); err != nil {
			glog.Fatal(err)
		}
	}

	config.ObjectStoreBucket = cli.ObjectStoreBucket
	config.StagingDir = cli.StagingDir
	config.AudioExtractionLimit = cli.AudioLimit
	config.TranscriptionLimit = cli.TranscriptionLimit
	config.GenerationLimit = cli.GenerationLimit
	config.ClipExtractionLimit = cli.ClipLimit
	config.RefinementLimit = cli.RefinementLimit

	if err := os.MkdirAll(cli.StagingDir, 0o755); err != nil {
		glog.Fatalf("failed to create staging directory %s: %v", cli.StagingDir, err)
	}

	redisOpts, err := redis.ParseURL(cli.RedisURL)
	if err != nil {
		glog.Fatalf("invalid redis-url %q: %v", cli.RedisURL, err)
	}
	rdb := redis.NewClient(redisOpts)
	client := kv.NewFromRedisClient(rdb)

	db, err := sql.Open("postgres", cli.PostgresDSN)
	if err != nil {
		glog.Fatalf("failed to open postgres connection: %v", err)
	}
	if err := repository.EnsureSchema(db); err != nil {
		glog.Fatalf("failed to ensure postgres schema: %v", err)
	}

	modelConfigs := modelconfig.New(client)
	ctx := context.Background()
	if err := modelConfigs.SeedDefaults(ctx); err != nil {
		glog.Fatalf("failed to seed default model configs: %v", err)
	}

	status := statestore.New(client)
	jobs := jobtracker.New(client)
	tunnels := tunnel.NewManager()
	conn := connector.New(modelConfigs, tunnels)

	deps := &stages.Deps{
		Videos:            repository.NewPostgresVideoRepository(db),
		Transcripts:       repository.NewPostgresTranscriptRepository(db),
		Moments:           repository.NewPostgresMomentRepository(db),
		GenerationConfigs: repository.NewPostgresGenerationConfigRepository(db),
		Objects:           objectstore.New(),
		Connector:         conn,
		Limits:            concurrency.New(),
		Status:            status,
		ModelConfigs:      modelConfigs,
		Jobs:              jobs,
		Transcoder:        mediatools.Transcoder{FFmpegPath: *ffmpegPath},
		Prober:            mediatools.FFProbe{},
		Inference:         inference.NewClient(),
		Transcription:     transcription.NewClient(),
		StagingDir:        cli.StagingDir,
	}

	o := orchestrator.New(deps)

	consumer := cli.WorkerID
	var w *worker.Worker
	if consumer != "" {
		w = worker.NewWithConsumerName(client, status, o, consumer)
	} else {
		w = worker.New(client, status, o)
	}

	group, runCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return w.Run(runCtx)
	})

	if err := group.Wait(); err != nil {
		glog.Fatalf("pipeline-worker exited with error: %v", err)
	}
}
