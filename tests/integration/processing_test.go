package integration

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/gif"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/aidecameron/gifcut/internal/domain/entity"
	"github.com/aidecameron/gifcut/internal/infra/archive"
	"github.com/aidecameron/gifcut/internal/infra/email"
	"github.com/aidecameron/gifcut/internal/infra/gifsicle"
	"github.com/aidecameron/gifcut/internal/infra/gifski"
	miniostorage "github.com/aidecameron/gifcut/internal/infra/minio"
	"github.com/aidecameron/gifcut/internal/infra/postgres"
	"github.com/aidecameron/gifcut/internal/infra/rabbitmq"
	"github.com/aidecameron/gifcut/internal/usecase"
	"github.com/aidecameron/gifcut/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
)

// writeTestGIF builds a small animation with duplicate runs: frames 0-2
// identical, 3-5 identical, so dedup keeps exactly two.
func writeTestGIF(t *testing.T, path string) {
	t.Helper()

	palette := color.Palette{color.Black, color.White}
	anim := &gif.GIF{}
	for i := 0; i < 6; i++ {
		img := image.NewPaletted(image.Rect(0, 0, 64, 64), palette)
		if i >= 3 {
			for p := range img.Pix {
				img.Pix[p] = 1
			}
		}
		anim.Image = append(anim.Image, img)
		anim.Delay = append(anim.Delay, 5) // 50ms
	}

	fh, err := os.Create(path)
	require.NoError(t, err)
	defer fh.Close()
	require.NoError(t, gif.EncodeAll(fh, anim))
}

type testEnv struct {
	pgConnStr string
	rmqURL    string
	minioAddr string
	pool      *pgxpool.Pool
	storage   *miniostorage.Storage
	rmqConn   *amqp.Connection
}

func startEnv(t *testing.T, ctx context.Context) *testEnv {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("gifjobs"),
		tcpostgres.WithUsername("gif_user"),
		tcpostgres.WithPassword("gif_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	rmqContainer, err := tcrabbitmq.Run(ctx, "rabbitmq:3.12-management-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { rmqContainer.Terminate(ctx) })

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { minioContainer.Terminate(ctx) })

	minioAddr, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	require.NoError(t, postgres.RunMigrations(pgConnStr))

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:     minioAddr,
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		UseSSL:       false,
		UploadBucket: "uploads",
		ResultBucket: "results",
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	rmqConn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	t.Cleanup(func() { rmqConn.Close() })

	return &testEnv{
		pgConnStr: pgConnStr,
		rmqURL:    rmqURL,
		minioAddr: minioAddr,
		pool:      pool,
		storage:   storage,
		rmqConn:   rmqConn,
	}
}

func startWorker(t *testing.T, ctx context.Context, env *testEnv) {
	t.Helper()

	log, _ := logger.New("debug")

	pub, err := rabbitmq.NewPublisher(env.rmqConn, "gifcut")
	require.NoError(t, err)

	statusPub := rabbitmq.NewStatusPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, "gif.tasks.dlq")
	progressPub := rabbitmq.NewProgressPublisher(pub, log)

	repo := postgres.NewJobRepository(env.pool)
	codec := gifsicle.NewCodec("gifsicle", log)
	encoder := gifski.NewEncoder("gifski", log)
	zipper := archive.NewZipCreator()
	notifier := email.NewSMTPNotifier("localhost", 1025, "test@test.local", log)
	extractions := usecase.NewExtractionManager(log)

	uc := usecase.NewProcessGifUseCase(
		repo, env.storage, codec, encoder, zipper,
		statusPub, dlqPub, notifier,
		progressPub, extractions,
		log,
		usecase.ProcessGifConfig{
			TempDir:       t.TempDir(),
			BatchSize:     100,
			MaxPreviewDim: 120,
			PollInterval:  10 * time.Millisecond,
			Throttle:      10 * time.Millisecond,
		},
	)

	consumerCfg := rabbitmq.ConsumerConfig{
		URL:           env.rmqURL,
		Exchange:      "gifcut",
		TaskQueue:     "gif.tasks",
		StatusQueue:   "gif.status",
		ProgressQueue: "gif.progress",
		ControlQueue:  "gif.extract.control",
		DLQ:           "gif.tasks.dlq",
		Prefetch:      1,
	}
	consumer, err := rabbitmq.NewConsumer(consumerCfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { consumer.Close() })

	go func() {
		consumer.Consume(ctx, "gif.tasks", 1, uc.Execute)
	}()

	// Give the consumer time to register.
	time.Sleep(500 * time.Millisecond)
}

func publishTask(t *testing.T, ctx context.Context, env *testEnv, msg entity.GifTaskMessage) {
	t.Helper()

	body, err := json.Marshal(msg)
	require.NoError(t, err)

	ch, err := env.rmqConn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	require.NoError(t, ch.PublishWithContext(ctx,
		"gifcut", "gif.tasks",
		false, false,
		amqp.Publishing{ContentType: "application/json", Body: body},
	))
}

func awaitStatus(t *testing.T, env *testEnv, timeout time.Duration) entity.GifStatusMessage {
	t.Helper()

	ch, err := env.rmqConn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	deliveries, err := ch.Consume("gif.status", "", true, false, false, false, nil)
	require.NoError(t, err)

	var status entity.GifStatusMessage
	select {
	case d := <-deliveries:
		require.NoError(t, json.Unmarshal(d.Body, &status))
	case <-time.After(timeout):
		t.Fatal("timeout waiting for status message")
	}
	return status
}

func TestDedupEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if _, err := exec.LookPath("gifsicle"); err != nil {
		t.Skip("gifsicle not installed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	env := startEnv(t, ctx)

	gifPath := filepath.Join(t.TempDir(), "anim.gif")
	writeTestGIF(t, gifPath)

	minioClient, err := miniogo.New(env.minioAddr, &miniogo.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err)

	gifKey := "testuser/anim.gif"
	_, err = minioClient.FPutObject(ctx, "uploads", gifKey, gifPath, miniogo.PutObjectOptions{
		ContentType: "image/gif",
	})
	require.NoError(t, err)

	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()
	startWorker(t, workerCtx, env)

	jobID := uuid.New()
	info, _ := os.Stat(gifPath)
	publishTask(t, ctx, env, entity.GifTaskMessage{
		JobID:    jobID,
		UserID:   "testuser",
		GifKey:   gifKey,
		FileSize: info.Size(),
		Op:       entity.OpDedup,
		Dedup: &entity.DedupParams{
			Quality:    90,
			Similarity: 90,
			Colors:     255,
			UsePalette: true, // remux path needs only gifsicle
		},
	})

	status := awaitStatus(t, env, 2*time.Minute)

	assert.Equal(t, jobID, status.JobID)
	assert.Equal(t, entity.JobStatusCompleted, status.Status)
	assert.Equal(t, entity.OpDedup, status.Op)
	assert.Equal(t, 6, status.FrameCount)
	assert.Equal(t, 2, status.UniqueFrames)
	assert.NotEmpty(t, status.ResultKey)

	// Result GIF is downloadable and non-empty.
	obj, err := minioClient.GetObject(ctx, "results", status.ResultKey, miniogo.GetObjectOptions{})
	require.NoError(t, err)
	st, err := obj.Stat()
	require.NoError(t, err)
	assert.Greater(t, st.Size, int64(0))

	// Job row reflects the merge.
	var dbStatus string
	var dbUnique int
	err = env.pool.QueryRow(ctx,
		"SELECT status, unique_frames FROM gif_jobs WHERE id=$1", jobID,
	).Scan(&dbStatus, &dbUnique)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", dbStatus)
	assert.Equal(t, 2, dbUnique)
}

func TestMalformedTaskGoesToDLQ(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	env := startEnv(t, ctx)

	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()
	startWorker(t, workerCtx, env)

	ch, err := env.rmqConn.Channel()
	require.NoError(t, err)
	require.NoError(t, ch.PublishWithContext(ctx,
		"gifcut", "gif.tasks",
		false, false,
		amqp.Publishing{ContentType: "application/json", Body: []byte(`{invalid json`)},
	))
	ch.Close()

	time.Sleep(2 * time.Second)

	dlqCh, err := env.rmqConn.Channel()
	require.NoError(t, err)
	defer dlqCh.Close()

	msg, ok, err := dlqCh.Get("gif.tasks.dlq", true)
	require.NoError(t, err)
	assert.True(t, ok, "malformed message should be in DLQ")
	assert.Equal(t, `{invalid json`, string(msg.Body))
}
